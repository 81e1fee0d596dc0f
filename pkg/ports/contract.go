package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railyard/railyard/pkg/domain"
)

// RunSectionStoreContract verifies that a SectionStore implementation
// adheres to the interface contract. Every adapter runs this suite.
func RunSectionStoreContract(t *testing.T, store SectionStore) {
	ctx := context.Background()

	section := &domain.Section{
		ID:    "contract-s1",
		Name:  "Contract Section",
		Group: "contract",
		Nodes: []*domain.Node{
			{
				ID:          "a",
				Type:        domain.NodeTypeInput,
				Label:       "A",
				Position:    domain.Position{X: 100, Y: 200},
				ConnectedTo: []string{"b"},
			},
			{
				ID:            "b",
				Type:          domain.NodeTypeTransform,
				Label:         "B",
				Position:      domain.Position{X: 400, Y: 200},
				ConnectedFrom: []string{"a"},
				Code:          "return input",
			},
		},
	}

	t.Run("Save and LoadAll", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, section), "Save should not return error")

		sections, err := store.LoadAll(ctx)
		require.NoError(t, err)

		loaded := findSection(sections, section.ID)
		require.NotNil(t, loaded, "saved section missing from LoadAll")
		assert.Equal(t, section.Name, loaded.Name)
		require.Len(t, loaded.Nodes, 2)
		assert.Equal(t, []string{"b"}, loaded.Nodes[0].ConnectedTo)
		assert.Equal(t, "return input", loaded.Nodes[1].Code)
	})

	t.Run("Save is a full replace", func(t *testing.T) {
		trimmed := section.Clone()
		trimmed.Nodes = trimmed.Nodes[:1]
		trimmed.Nodes[0].ConnectedTo = nil
		require.NoError(t, store.Save(ctx, trimmed))

		sections, err := store.LoadAll(ctx)
		require.NoError(t, err)
		loaded := findSection(sections, section.ID)
		require.NotNil(t, loaded)
		assert.Len(t, loaded.Nodes, 1, "replaced document should not retain old nodes")

		// Restore for the remaining subtests.
		require.NoError(t, store.Save(ctx, section))
	})

	t.Run("Deactivate toggles flag", func(t *testing.T) {
		require.NoError(t, store.Deactivate(ctx, section.ID, "b"))

		sections, err := store.LoadAll(ctx)
		require.NoError(t, err)
		loaded := findSection(sections, section.ID)
		require.NotNil(t, loaded)
		assert.True(t, loaded.Node("b").IsDeactivated)

		require.NoError(t, store.Deactivate(ctx, section.ID, "b"))
		sections, err = store.LoadAll(ctx)
		require.NoError(t, err)
		assert.False(t, findSection(sections, section.ID).Node("b").IsDeactivated)
	})

	t.Run("Deactivate unknown ids", func(t *testing.T) {
		err := store.Deactivate(ctx, "no-such-section", "b")
		assert.ErrorIs(t, err, domain.ErrSectionNotFound)

		err = store.Deactivate(ctx, section.ID, "no-such-node")
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	})
}

func findSection(sections []*domain.Section, id string) *domain.Section {
	for _, s := range sections {
		if s.ID == id {
			return s
		}
	}
	return nil
}
