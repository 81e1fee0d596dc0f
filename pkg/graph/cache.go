package graph

import (
	"sync"

	"github.com/railyard/railyard/pkg/domain"
)

// Cache preserves each section's live view across section switches.
// Returning to a section shows exactly what the user left, including
// not-yet-persisted edits, instead of a reload from the remote store.
type Cache struct {
	mu    sync.RWMutex
	views map[string]*domain.Section
}

// NewCache creates an empty view cache.
func NewCache() *Cache {
	return &Cache{views: make(map[string]*domain.Section)}
}

// Get returns the live view for a section, if one exists.
func (c *Cache) Get(sectionID string) (*domain.Section, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[sectionID]
	return v, ok
}

// Put stores the live view for a section.
func (c *Cache) Put(sectionID string, view *domain.Section) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[sectionID] = view
}

// Drop discards a section's cached view, forcing the next activation to
// rebuild from the last-loaded remote document.
func (c *Cache) Drop(sectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, sectionID)
}

// Len returns the number of cached views.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.views)
}
