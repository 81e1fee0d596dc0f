// Package persist batches and rate-limits writes to the remote document
// store. Rapid edits to a section coalesce into one full-document write
// per debounce window; section switches and shutdown flush immediately so
// no edit is lost at a boundary.
package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/railyard/railyard/internal/logging"
	"github.com/railyard/railyard/internal/metrics"
	"github.com/railyard/railyard/pkg/domain"
	"github.com/railyard/railyard/pkg/ports"
)

// DefaultDebounce is the quiet period before a pending snapshot is written.
const DefaultDebounce = 500 * time.Millisecond

// DefaultWriteTimeout bounds a single remote write issued from a timer.
const DefaultWriteTimeout = 10 * time.Second

// Hooks surface coordinator outcomes to the UI layer. Failed writes are a
// notification, never a fatal condition: the next mutation's debounce
// cycle naturally retries by re-sending the then-current snapshot.
type Hooks struct {
	OnFlushed func(sectionID string)
	OnError   func(sectionID string, err error)
}

// Coordinator owns one timer per section with a pending write. A new
// snapshot for a section replaces its pending one and restarts the timer.
type Coordinator struct {
	store   ports.SectionStore
	delay   time.Duration
	timeout time.Duration
	hooks   Hooks
	logger  *slog.Logger
	metrics *metrics.Set

	mu      sync.Mutex
	pending map[string]*domain.Section
	timers  map[string]*time.Timer
	closed  bool

	inflight sync.WaitGroup
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithDebounce overrides the debounce delay. Tests use short values.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) { c.delay = d }
}

// WithWriteTimeout bounds timer-initiated writes.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithHooks registers outcome callbacks.
func WithHooks(h Hooks) Option {
	return func(c *Coordinator) { c.hooks = h }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Set) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a Coordinator writing through the given store.
func New(store ports.SectionStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		delay:   DefaultDebounce,
		timeout: DefaultWriteTimeout,
		logger:  logging.NewNop(),
		pending: make(map[string]*domain.Section),
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schedule replaces any pending snapshot for the section and restarts its
// debounce timer. Implements graph.Scheduler.
func (c *Coordinator) Schedule(section *domain.Section) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	id := section.ID
	c.pending[id] = section

	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	c.timers[id] = time.AfterFunc(c.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.flush(ctx, id)
	})
}

// FlushNow cancels the section's timer and writes its pending snapshot
// immediately. Called on section switch and on shutdown. No pending
// snapshot is not an error.
func (c *Coordinator) FlushNow(ctx context.Context, sectionID string) error {
	return c.flush(ctx, sectionID)
}

// FlushAll writes every pending snapshot. Used at shutdown.
func (c *Coordinator) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := c.flush(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HasPending reports whether a write is waiting for the section.
func (c *Coordinator) HasPending(sectionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[sectionID]
	return ok
}

// Close stops all timers, flushes what is pending, and rejects further
// scheduling. The push channel teardown calls this last so a reconnect
// never races a pending debounced write.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()

	err := c.FlushAll(ctx)
	c.inflight.Wait()
	return err
}

// flush takes the pending snapshot for a section (clearing it and its
// timer) and issues one full-document write. The entry is removed before
// the write so an edit arriving mid-write schedules a fresh cycle instead
// of being lost.
func (c *Coordinator) flush(ctx context.Context, sectionID string) error {
	c.mu.Lock()
	snapshot, ok := c.pending[sectionID]
	if ok {
		delete(c.pending, sectionID)
		if t, exists := c.timers[sectionID]; exists {
			t.Stop()
			delete(c.timers, sectionID)
		}
	}
	if ok {
		c.inflight.Add(1)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	defer c.inflight.Done()

	start := time.Now()
	if err := c.store.Save(ctx, snapshot); err != nil {
		c.metrics.WriteFailed()
		c.logger.Warn("section write failed",
			"section_id", sectionID,
			"err", err,
		)
		if c.hooks.OnError != nil {
			c.hooks.OnError(sectionID, err)
		}
		return err
	}

	c.metrics.ObserveWrite(time.Since(start).Seconds())
	c.logger.Debug("section written",
		"section_id", sectionID,
		"nodes", len(snapshot.Nodes),
		"took", time.Since(start),
	)
	if c.hooks.OnFlushed != nil {
		c.hooks.OnFlushed(sectionID)
	}
	return nil
}
