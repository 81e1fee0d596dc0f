package ports

import (
	"context"

	"github.com/railyard/railyard/pkg/domain"
)

// SectionStore is the remote document store holding persisted sections.
// Writes are full-document replaces and must be idempotent: duplicate or
// reordered saves of the same snapshot converge to the same stored state.
type SectionStore interface {
	// LoadAll retrieves every section document. Called once at startup.
	LoadAll(ctx context.Context) ([]*domain.Section, error)

	// Save replaces the stored document for section.ID.
	Save(ctx context.Context, section *domain.Section) error

	// Deactivate toggles the deactivation flag of a node server-side.
	// The caller applies the same toggle locally.
	Deactivate(ctx context.Context, sectionID, nodeID string) error
}
