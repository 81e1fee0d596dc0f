package domain

import "math"

// NodeType constants define the role of a stage inside a pipeline.
const (
	// NodeTypeInput feeds external data into the pipeline (graph source).
	NodeTypeInput = "input"
	// NodeTypeOutput emits the pipeline result (graph sink).
	NodeTypeOutput = "output"

	// Processing stage variants.
	NodeTypeTransform = "transform"
	NodeTypeFilter    = "filter"
	NodeTypeMerge     = "merge"
	NodeTypeScript    = "script"
)

// Position is a node's 2D placement on the canvas.
// The upstream store historically used (0,0) to mean "never placed",
// so (0,0) is treated as unset by the layout resolver.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether the position can be used as-is: both coordinates
// must be finite and the pair must not be the (0,0) sentinel.
func (p Position) Valid() bool {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		return false
	}
	return !(p.X == 0 && p.Y == 0)
}

// Node represents one pipeline stage. The JSON shape is the persisted
// document contract; transient execution status lives outside the Node
// (see ExecutionState) and is never written to the store.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Label    string   `json:"label"`
	Position Position `json:"position"`

	// ConnectedTo / ConnectedFrom are symmetric adjacency sets:
	// B ∈ A.ConnectedTo ⇔ A ∈ B.ConnectedFrom.
	ConnectedTo   []string `json:"connectedTo"`
	ConnectedFrom []string `json:"connectedFrom"`

	Code          string `json:"code,omitempty"`
	Output        string `json:"output,omitempty"`
	IsDeactivated bool   `json:"isDeactivated,omitempty"`
}

// IsSource reports whether the node kind anchors at the left edge of the canvas.
func (n *Node) IsSource() bool { return n.Type == NodeTypeInput }

// IsSink reports whether the node kind anchors at the right edge of the canvas.
func (n *Node) IsSink() bool { return n.Type == NodeTypeOutput }

// Clone returns a deep copy, so cached or pending snapshots cannot be
// mutated through shared slices.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.ConnectedTo = append([]string(nil), n.ConnectedTo...)
	c.ConnectedFrom = append([]string(nil), n.ConnectedFrom...)
	return &c
}
