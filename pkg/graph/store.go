package graph

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/railyard/railyard/internal/logging"
	"github.com/railyard/railyard/pkg/domain"
)

// Scheduler receives a full-section snapshot after every durable mutation.
// The persistence coordinator implements it; tests substitute a recorder.
type Scheduler interface {
	Schedule(section *domain.Section)
}

// NodePatch is a partial durable update. Nil fields are left untouched.
// Execution overlay state is deliberately not part of the patch: it is
// transient and never persisted.
type NodePatch struct {
	Label         *string
	Code          *string
	Position      *domain.Position
	Output        *string
	IsDeactivated *bool
}

// SectionInfo is the lightweight listing entry for loaded sections.
type SectionInfo struct {
	ID    string
	Name  string
	Group string
}

type execEntry struct {
	state domain.ExecutionState
	seq   uint64
}

// Store is the canonical, section-scoped collection of nodes and edges for
// an editing session. All mutations are atomic under one lock, so
// interleaved timer callbacks and push-channel projections never observe a
// half-applied operation.
type Store struct {
	mu       sync.Mutex
	baseline map[string]*domain.Section // last-loaded remote documents
	cache    *Cache                     // live per-section views
	sched    Scheduler
	logger   *slog.Logger

	seq    uint64
	exec   map[string]map[string]*execEntry     // sectionID -> nodeID -> overlay
	pulses map[string]map[domain.EdgeKey]uint64 // sectionID -> edge -> pulse seq
}

// Option configures the Store.
type Option func(*Store)

// WithScheduler wires the persistence coordinator.
func WithScheduler(s Scheduler) Option {
	return func(st *Store) { st.sched = s }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(st *Store) { st.logger = logger }
}

// NewStore creates an empty store. Seed loads documents into it.
func NewStore(opts ...Option) *Store {
	st := &Store{
		baseline: make(map[string]*domain.Section),
		cache:    NewCache(),
		logger:   logging.NewNop(),
		exec:     make(map[string]map[string]*execEntry),
		pulses:   make(map[string]map[domain.EdgeKey]uint64),
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Cache exposes the live view cache (read by the engine on activation).
func (s *Store) Cache() *Cache { return s.cache }

// Seed records the bulk-loaded remote documents. Live views are
// materialized lazily on first activation.
func (s *Store) Seed(sections []*domain.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range sections {
		s.baseline[sec.ID] = sec.Clone()
	}
}

// Sections lists the loaded sections in no particular order.
func (s *Store) Sections() []SectionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SectionInfo, 0, len(s.baseline))
	for _, sec := range s.baseline {
		out = append(out, SectionInfo{ID: sec.ID, Name: sec.Name, Group: sec.Group})
	}
	return out
}

// Materialize returns the live view for a section, building it from the
// last-loaded document on first use. Fresh views get a layout repair pass;
// any repaired position is immediately scheduled for persistence so the
// repair is not repeated on the next load.
func (s *Store) Materialize(sectionID string) (*domain.Section, error) {
	s.mu.Lock()
	view, repaired, err := s.materializeLocked(sectionID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.schedule(repaired)
	return view, nil
}

// materializeLocked builds the live view from the last-loaded document when
// no cached one exists. The second return is a snapshot to schedule when
// layout repair changed positions. Caller holds s.mu.
func (s *Store) materializeLocked(sectionID string) (*domain.Section, *domain.Section, error) {
	if view, ok := s.cache.Get(sectionID); ok {
		return view, nil, nil
	}

	base, ok := s.baseline[sectionID]
	if !ok {
		return nil, nil, fmt.Errorf("section %q: %w", sectionID, domain.ErrSectionNotFound)
	}

	view := base.Clone()
	repaired := ResolveLayout(view)
	s.cache.Put(sectionID, view)

	if len(repaired) == 0 {
		return view, nil, nil
	}
	s.logger.Info("repaired node layout",
		"section_id", sectionID,
		"nodes", len(repaired),
	)
	return view, view.Clone(), nil
}

// View returns a deep copy of a section's live view for read-only use.
func (s *Store) View(sectionID string) (*domain.Section, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.cache.Get(sectionID)
	if !ok {
		return nil, false
	}
	return view.Clone(), true
}

// AddNode inserts a node into a section. An empty ID is assigned a fresh
// UUID; a colliding ID fails. Nodes arriving without a usable position are
// placed by the layout resolver before insertion.
func (s *Store) AddNode(sectionID string, node *domain.Node) error {
	snapshot, err := s.mutate(sectionID, func(view *domain.Section) error {
		if node.ID == "" {
			node.ID = uuid.NewString()
		}
		if view.Node(node.ID) != nil {
			return fmt.Errorf("node %q: %w", node.ID, domain.ErrNodeExists)
		}
		PlaceNode(view, node)
		view.Nodes = append(view.Nodes, node)
		return nil
	})
	if err != nil {
		return err
	}
	s.schedule(snapshot)
	return nil
}

// RemoveNode deletes a node and cascades: the ID is stripped from every
// neighbor's adjacency sets and the node's overlay state is dropped.
func (s *Store) RemoveNode(sectionID, nodeID string) error {
	snapshot, err := s.mutate(sectionID, func(view *domain.Section) error {
		if !cascadeRemove(view, nodeID) {
			return fmt.Errorf("node %q: %w", nodeID, domain.ErrNodeNotFound)
		}
		if nodes := s.exec[sectionID]; nodes != nil {
			delete(nodes, nodeID)
		}
		for key := range s.pulses[sectionID] {
			if key.SourceID == nodeID || key.TargetID == nodeID {
				delete(s.pulses[sectionID], key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.schedule(snapshot)
	return nil
}

// UpdateNode merges a partial durable update into a node and schedules a
// write. Unknown node IDs fail; nil patch fields are ignored.
func (s *Store) UpdateNode(sectionID, nodeID string, patch NodePatch) error {
	snapshot, err := s.mutate(sectionID, func(view *domain.Section) error {
		node := view.Node(nodeID)
		if node == nil {
			return fmt.Errorf("node %q: %w", nodeID, domain.ErrNodeNotFound)
		}
		if patch.Label != nil {
			node.Label = *patch.Label
		}
		if patch.Code != nil {
			node.Code = *patch.Code
		}
		if patch.Position != nil {
			node.Position = *patch.Position
		}
		if patch.Output != nil {
			node.Output = *patch.Output
		}
		if patch.IsDeactivated != nil {
			node.IsDeactivated = *patch.IsDeactivated
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.schedule(snapshot)
	return nil
}

// Connect creates the source->target edge. A duplicate request is a no-op
// signal; nothing is scheduled for it.
func (s *Store) Connect(sectionID, sourceID, targetID string) (ConnectResult, error) {
	var result ConnectResult
	snapshot, err := s.mutate(sectionID, func(view *domain.Section) error {
		var err error
		result, err = connect(view, sourceID, targetID)
		return err
	})
	if err != nil {
		return result, err
	}
	if !result.Duplicate {
		s.schedule(snapshot)
	}
	return result, nil
}

// Disconnect removes an edge, updating both adjacency sets.
func (s *Store) Disconnect(sectionID string, key domain.EdgeKey) error {
	snapshot, err := s.mutate(sectionID, func(view *domain.Section) error {
		if err := disconnect(view, key); err != nil {
			return err
		}
		if pulses := s.pulses[sectionID]; pulses != nil {
			delete(pulses, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.schedule(snapshot)
	return nil
}

// Edges returns the section's derived edge list in node order.
func (s *Store) Edges(sectionID string) []domain.EdgeKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.cache.Get(sectionID)
	if !ok {
		return nil
	}
	var edges []domain.EdgeKey
	for _, n := range view.Nodes {
		for _, to := range n.ConnectedTo {
			edges = append(edges, domain.EdgeKey{SourceID: n.ID, TargetID: to})
		}
	}
	return edges
}

// SectionOf finds which section holds a node. Push frames carry only node
// IDs, so the event router resolves sections through this. The live view
// wins where one exists (it reflects deletions); sections that were loaded
// but never activated are resolved against their last-loaded document, so
// frames arriving before the first section switch still route.
func (s *Store) SectionOf(nodeID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, base := range s.baseline {
		if view, ok := s.cache.Get(id); ok {
			if view.Node(nodeID) != nil {
				return id, true
			}
			continue
		}
		if base.Node(nodeID) != nil {
			return id, true
		}
	}
	return "", false
}

// mutate runs fn against the live view under the store lock and returns a
// snapshot for scheduling. Sections that were loaded but never activated
// are materialized on the spot, so durable updates (push-channel outputs
// included) never depend on a prior section switch.
func (s *Store) mutate(sectionID string, fn func(*domain.Section) error) (*domain.Section, error) {
	s.mu.Lock()
	view, repaired, err := s.materializeLocked(sectionID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var snapshot *domain.Section
	if err = fn(view); err == nil {
		// The cache entry is the live view, so the mutation is already
		// visible to a subsequent section switch. Snapshot for the write
		// queue.
		snapshot = view.Clone()
	}
	s.mu.Unlock()

	s.schedule(repaired)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Store) schedule(snapshot *domain.Section) {
	if s.sched != nil && snapshot != nil {
		s.sched.Schedule(snapshot)
	}
}
