package graph

import (
	"fmt"

	"github.com/railyard/railyard/pkg/domain"
)

// ConnectResult reports the outcome of a connect request. Duplicate is a
// signal, not a failure: the UI informs the user and nothing changes.
type ConnectResult struct {
	Edge      domain.EdgeKey
	Duplicate bool
}

// connect wires source -> target, mutating both adjacency sets together so
// no intermediate asymmetric state is observable. Self-loops are rejected;
// an existing edge yields a duplicate signal and no mutation.
func connect(section *domain.Section, sourceID, targetID string) (ConnectResult, error) {
	if sourceID == targetID {
		return ConnectResult{}, fmt.Errorf("%w: %s", domain.ErrSelfLoop, sourceID)
	}

	src := section.Node(sourceID)
	if src == nil {
		return ConnectResult{}, fmt.Errorf("source %q: %w", sourceID, domain.ErrNodeNotFound)
	}
	dst := section.Node(targetID)
	if dst == nil {
		return ConnectResult{}, fmt.Errorf("target %q: %w", targetID, domain.ErrNodeNotFound)
	}

	key := domain.EdgeKey{SourceID: sourceID, TargetID: targetID}
	if contains(src.ConnectedTo, targetID) {
		return ConnectResult{Edge: key, Duplicate: true}, nil
	}

	src.ConnectedTo = append(src.ConnectedTo, targetID)
	dst.ConnectedFrom = append(dst.ConnectedFrom, sourceID)
	return ConnectResult{Edge: key}, nil
}

// disconnect removes both adjacency entries of an edge.
func disconnect(section *domain.Section, key domain.EdgeKey) error {
	src := section.Node(key.SourceID)
	if src == nil {
		return fmt.Errorf("source %q: %w", key.SourceID, domain.ErrNodeNotFound)
	}
	dst := section.Node(key.TargetID)
	if dst == nil {
		return fmt.Errorf("target %q: %w", key.TargetID, domain.ErrNodeNotFound)
	}
	if !contains(src.ConnectedTo, key.TargetID) {
		return fmt.Errorf("edge %s: %w", key, domain.ErrNodeNotFound)
	}

	src.ConnectedTo = remove(src.ConnectedTo, key.TargetID)
	dst.ConnectedFrom = remove(dst.ConnectedFrom, key.SourceID)
	return nil
}

// cascadeRemove deletes a node and strips its ID from every other node's
// adjacency sets, leaving no dangling edges.
func cascadeRemove(section *domain.Section, nodeID string) bool {
	idx := -1
	for i, n := range section.Nodes {
		if n.ID == nodeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	section.Nodes = append(section.Nodes[:idx], section.Nodes[idx+1:]...)
	for _, n := range section.Nodes {
		n.ConnectedTo = remove(n.ConnectedTo, nodeID)
		n.ConnectedFrom = remove(n.ConnectedFrom, nodeID)
	}
	return true
}

// edgeExists checks adjacency from the source side.
func edgeExists(section *domain.Section, key domain.EdgeKey) bool {
	src := section.Node(key.SourceID)
	return src != nil && contains(src.ConnectedTo, key.TargetID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
