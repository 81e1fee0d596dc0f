// Package memory implements ports.SectionStore in process memory. It backs
// tests and the dev server; documents are deep-copied on both sides so the
// caller can never mutate stored state through a shared pointer.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/railyard/railyard/pkg/domain"
)

// Store is an in-memory SectionStore. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]*domain.Section
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string]*domain.Section)}
}

// NewStoreWith creates a store pre-seeded with sections.
func NewStoreWith(sections ...*domain.Section) *Store {
	s := NewStore()
	for _, sec := range sections {
		s.data[sec.ID] = sec.Clone()
	}
	return s
}

// LoadAll returns copies of every stored section.
func (s *Store) LoadAll(ctx context.Context) ([]*domain.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Section, 0, len(s.data))
	for _, sec := range s.data {
		out = append(out, sec.Clone())
	}
	return out, nil
}

// Save replaces the stored document.
func (s *Store) Save(ctx context.Context, section *domain.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[section.ID] = section.Clone()
	return nil
}

// Deactivate toggles a node's deactivation flag.
func (s *Store) Deactivate(ctx context.Context, sectionID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.data[sectionID]
	if !ok {
		return fmt.Errorf("section %q: %w", sectionID, domain.ErrSectionNotFound)
	}
	node := sec.Node(nodeID)
	if node == nil {
		return fmt.Errorf("node %q: %w", nodeID, domain.ErrNodeNotFound)
	}
	node.IsDeactivated = !node.IsDeactivated
	return nil
}

// Delete removes a section. Used by dev-server housekeeping.
func (s *Store) Delete(ctx context.Context, sectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sectionID)
	return nil
}
