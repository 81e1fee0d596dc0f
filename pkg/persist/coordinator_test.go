package persist_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/railyard/railyard/pkg/domain"
	"github.com/railyard/railyard/pkg/persist"
)

// countingStore records saves and optionally fails them.
type countingStore struct {
	mu     sync.Mutex
	saves  []*domain.Section
	failed bool
}

func (s *countingStore) LoadAll(ctx context.Context) ([]*domain.Section, error) { return nil, nil }

func (s *countingStore) Save(ctx context.Context, section *domain.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return errors.New("store unavailable")
	}
	s.saves = append(s.saves, section)
	return nil
}

func (s *countingStore) Deactivate(ctx context.Context, sectionID, nodeID string) error {
	return nil
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *countingStore) last() *domain.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

func snapshot(id string, label string) *domain.Section {
	return &domain.Section{
		ID: id,
		Nodes: []*domain.Node{
			{ID: "n1", Type: domain.NodeTypeTransform, Label: label, Position: domain.Position{X: 1, Y: 1}},
		},
	}
}

func TestCoordinator_DebounceCoalescing(t *testing.T) {
	store := &countingStore{}
	c := persist.New(store, persist.WithDebounce(40*time.Millisecond))

	// Rapid mutations inside one window must produce exactly one write
	// holding the final state.
	for i := 0; i < 10; i++ {
		c.Schedule(snapshot("s1", "edit"))
	}
	c.Schedule(snapshot("s1", "final"))

	waitFor(t, 2*time.Second, func() bool { return store.count() > 0 })
	// Give a stray second timer a chance to misfire before asserting.
	time.Sleep(100 * time.Millisecond)

	if got := store.count(); got != 1 {
		t.Fatalf("expected exactly 1 write, got %d", got)
	}
	if got := store.last().Nodes[0].Label; got != "final" {
		t.Errorf("write does not hold the final state: %q", got)
	}
}

func TestCoordinator_PerSectionTimers(t *testing.T) {
	store := &countingStore{}
	c := persist.New(store, persist.WithDebounce(40*time.Millisecond))

	c.Schedule(snapshot("s1", "one"))
	c.Schedule(snapshot("s2", "two"))

	waitFor(t, 2*time.Second, func() bool { return store.count() == 2 })
	ids := map[string]bool{}
	store.mu.Lock()
	for _, s := range store.saves {
		ids[s.ID] = true
	}
	store.mu.Unlock()
	if !ids["s1"] || !ids["s2"] {
		t.Errorf("expected writes for both sections, got %v", ids)
	}
}

func TestCoordinator_FlushNow(t *testing.T) {
	store := &countingStore{}
	c := persist.New(store, persist.WithDebounce(10*time.Second)) // never fires on its own

	c.Schedule(snapshot("s1", "pending"))
	if !c.HasPending("s1") {
		t.Fatal("snapshot not pending")
	}

	if err := c.FlushNow(context.Background(), "s1"); err != nil {
		t.Fatalf("FlushNow failed: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("expected 1 write after FlushNow, got %d", store.count())
	}
	if c.HasPending("s1") {
		t.Error("pending entry not cleared")
	}

	// The cancelled timer must not produce a second write later.
	time.Sleep(100 * time.Millisecond)
	if store.count() != 1 {
		t.Errorf("debounce timer fired after FlushNow: %d writes", store.count())
	}

	t.Run("no pending is a no-op", func(t *testing.T) {
		if err := c.FlushNow(context.Background(), "s1"); err != nil {
			t.Errorf("FlushNow without pending errored: %v", err)
		}
	})
}

func TestCoordinator_FailurePolicy(t *testing.T) {
	store := &countingStore{failed: true}

	var mu sync.Mutex
	var failures []string
	c := persist.New(store,
		persist.WithDebounce(10*time.Second),
		persist.WithHooks(persist.Hooks{
			OnError: func(sectionID string, err error) {
				mu.Lock()
				failures = append(failures, sectionID)
				mu.Unlock()
			},
		}),
	)

	c.Schedule(snapshot("s1", "doomed"))
	if err := c.FlushNow(context.Background(), "s1"); err == nil {
		t.Fatal("expected write failure")
	}

	mu.Lock()
	got := len(failures)
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected 1 failure notification, got %d", got)
	}

	// No automatic retry: the failed snapshot is gone until the next edit.
	if c.HasPending("s1") {
		t.Error("failed write left a pending entry (would auto-retry)")
	}

	// The next mutation's cycle re-sends current state.
	store.mu.Lock()
	store.failed = false
	store.mu.Unlock()
	c.Schedule(snapshot("s1", "recovered"))
	if err := c.FlushNow(context.Background(), "s1"); err != nil {
		t.Fatalf("recovery write failed: %v", err)
	}
	if store.last().Nodes[0].Label != "recovered" {
		t.Error("recovery write holds stale state")
	}
}

func TestCoordinator_Close(t *testing.T) {
	store := &countingStore{}
	c := persist.New(store, persist.WithDebounce(10*time.Second))

	c.Schedule(snapshot("s1", "unsaved"))
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("Close did not flush pending writes: %d", store.count())
	}

	// Scheduling after close is ignored.
	c.Schedule(snapshot("s1", "late"))
	if c.HasPending("s1") {
		t.Error("closed coordinator accepted a snapshot")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
