package graph

import "github.com/railyard/railyard/pkg/domain"

// Execution overlay: transient per-node status projected from the push
// channel. Sequence numbers guard the auto-revert timers — a revert
// scheduled for an old run must not clear a newer one.

// lookupLocked resolves a section for overlay checks: the live view when
// one is materialized, else the last-loaded document. Frames may arrive
// before the first section switch. Caller holds s.mu.
func (s *Store) lookupLocked(sectionID string) (*domain.Section, bool) {
	if view, ok := s.cache.Get(sectionID); ok {
		return view, true
	}
	base, ok := s.baseline[sectionID]
	return base, ok
}

// SetExecution stores the overlay state for a node and returns the
// sequence number the caller's revert timer should present later. The
// second return is false when the node is unknown (deleted, or in no
// loaded section); late frames for such nodes are dropped.
func (s *Store) SetExecution(sectionID, nodeID string, state domain.ExecutionState) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.lookupLocked(sectionID)
	if !ok || sec.Node(nodeID) == nil {
		return 0, false
	}

	s.seq++
	nodes := s.exec[sectionID]
	if nodes == nil {
		nodes = make(map[string]*execEntry)
		s.exec[sectionID] = nodes
	}
	nodes[nodeID] = &execEntry{state: state, seq: s.seq}
	return s.seq, true
}

// ClearExecution reverts a node to idle, but only if seq still matches the
// overlay entry: a newer run supersedes the pending revert.
func (s *Store) ClearExecution(sectionID, nodeID string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.exec[sectionID]
	if nodes == nil {
		return
	}
	if entry, ok := nodes[nodeID]; ok && entry.seq == seq {
		delete(nodes, nodeID)
	}
}

// Execution returns a node's overlay state; idle when none is recorded.
func (s *Store) Execution(sectionID, nodeID string) domain.ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if nodes := s.exec[sectionID]; nodes != nil {
		if entry, ok := nodes[nodeID]; ok {
			return entry.state
		}
	}
	return domain.ExecutionState{Phase: domain.PhaseIdle}
}

// ActivateEdge flags an existing edge as carrying data, for the transient
// flow pulse. Returns false when the edge is gone (endpoint deleted or
// disconnected before the frame arrived).
func (s *Store) ActivateEdge(sectionID string, key domain.EdgeKey) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.lookupLocked(sectionID)
	if !ok || !edgeExists(sec, key) {
		return 0, false
	}

	s.seq++
	pulses := s.pulses[sectionID]
	if pulses == nil {
		pulses = make(map[domain.EdgeKey]uint64)
		s.pulses[sectionID] = pulses
	}
	pulses[key] = s.seq
	return s.seq, true
}

// ClearEdgePulse ends a pulse if seq still owns it.
func (s *Store) ClearEdgePulse(sectionID string, key domain.EdgeKey, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pulses := s.pulses[sectionID]
	if pulses == nil {
		return
	}
	if current, ok := pulses[key]; ok && current == seq {
		delete(pulses, key)
	}
}

// EdgeActive reports whether an edge currently shows a flow pulse.
func (s *Store) EdgeActive(sectionID string, key domain.EdgeKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pulses := s.pulses[sectionID]
	if pulses == nil {
		return false
	}
	_, ok := pulses[key]
	return ok
}
