package graph

import "github.com/railyard/railyard/pkg/domain"

// Layout constants. Values are canvas pixels; the grid places repaired
// processing stages between the input and output anchor columns.
const (
	sourceAnchorX = 80.0
	sinkAnchorX   = 1040.0
	anchorTopY    = 120.0
	anchorStepY   = 140.0

	gridColumns = 3
	gridOriginX = 320.0
	gridOriginY = 120.0
	gridCellW   = 240.0
	gridCellH   = 160.0
)

// ResolveLayout assigns a deterministic fallback position to every node
// whose stored position is missing or invalid, and returns the IDs it
// repaired in section order.
//
// Input kinds stack down the left anchor column, output kinds down the
// right one, and everything else fills a fixed three-column grid. Ordinals
// are counted among the section's invalid nodes only, so a section with
// one broken node always repairs it to the same slot.
func ResolveLayout(section *domain.Section) []string {
	var repaired []string
	sources, sinks, stages := 0, 0, 0

	for _, n := range section.Nodes {
		if n.Position.Valid() {
			continue
		}
		switch {
		case n.IsSource():
			n.Position = domain.Position{
				X: sourceAnchorX,
				Y: anchorTopY + float64(sources)*anchorStepY,
			}
			sources++
		case n.IsSink():
			n.Position = domain.Position{
				X: sinkAnchorX,
				Y: anchorTopY + float64(sinks)*anchorStepY,
			}
			sinks++
		default:
			n.Position = gridSlot(stages)
			stages++
		}
		repaired = append(repaired, n.ID)
	}
	return repaired
}

// PlaceNode resolves a position for a single node about to join the
// section, using the same anchors and grid as ResolveLayout. The ordinal
// counts existing nodes of the same placement class, so consecutive adds
// do not stack on one slot.
func PlaceNode(section *domain.Section, node *domain.Node) {
	if node.Position.Valid() {
		return
	}
	count := 0
	for _, n := range section.Nodes {
		switch {
		case node.IsSource():
			if n.IsSource() {
				count++
			}
		case node.IsSink():
			if n.IsSink() {
				count++
			}
		default:
			if !n.IsSource() && !n.IsSink() {
				count++
			}
		}
	}
	switch {
	case node.IsSource():
		node.Position = domain.Position{X: sourceAnchorX, Y: anchorTopY + float64(count)*anchorStepY}
	case node.IsSink():
		node.Position = domain.Position{X: sinkAnchorX, Y: anchorTopY + float64(count)*anchorStepY}
	default:
		node.Position = gridSlot(count)
	}
}

func gridSlot(ordinal int) domain.Position {
	row := ordinal / gridColumns
	col := ordinal % gridColumns
	return domain.Position{
		X: gridOriginX + float64(col)*gridCellW,
		Y: gridOriginY + float64(row)*gridCellH,
	}
}
