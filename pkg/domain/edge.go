package domain

import (
	"fmt"
	"strings"
)

// EdgeKey identifies a directed connection by its ordered endpoint pair.
// Edges are derived from the adjacency sets and are not persisted
// independently.
type EdgeKey struct {
	SourceID string
	TargetID string
}

// String returns the stable "source->target" form used as a map key.
func (k EdgeKey) String() string {
	return k.SourceID + "->" + k.TargetID
}

// ParseEdgeKey is the inverse of EdgeKey.String.
func ParseEdgeKey(s string) (EdgeKey, error) {
	src, dst, ok := strings.Cut(s, "->")
	if !ok || src == "" || dst == "" {
		return EdgeKey{}, fmt.Errorf("malformed edge key %q", s)
	}
	return EdgeKey{SourceID: src, TargetID: dst}, nil
}
