package railyard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/railyard/railyard/internal/logging"
	"github.com/railyard/railyard/internal/metrics"
	"github.com/railyard/railyard/pkg/domain"
	"github.com/railyard/railyard/pkg/graph"
	"github.com/railyard/railyard/pkg/persist"
	"github.com/railyard/railyard/pkg/ports"
	"github.com/railyard/railyard/pkg/track"
)

// Engine is the high-level entry point. It owns the graph store, the
// persistence coordinator, and the event router, and exposes the editing
// and execution API consumers call.
type Engine struct {
	store   ports.SectionStore
	source  ports.EventSource
	exec    ports.Executor
	logger  *slog.Logger
	metrics *metrics.Set

	debounce time.Duration
	dwell    time.Duration
	pulse    time.Duration
	hooks    persist.Hooks

	graph  *graph.Store
	coord  *persist.Coordinator
	router *track.Router

	mu     sync.Mutex
	active string // currently activated section, "" before first switch
	gen    uint64 // activation/refresh generation
	detach func()
	cancel context.CancelFunc
}

// Option configures the Engine.
type Option func(*Engine)

// WithSource wires the push channel. Without one, execution overlay state
// simply never updates.
func WithSource(source ports.EventSource) Option {
	return func(e *Engine) { e.source = source }
}

// WithExecutor wires the execution backend.
func WithExecutor(exec ports.Executor) Option {
	return func(e *Engine) { e.exec = exec }
}

// WithLogger sets a structured logger for the engine and its parts.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Set) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDebounce overrides the persistence debounce window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// WithDwell overrides the completed/error overlay dwell time.
func WithDwell(d time.Duration) Option {
	return func(e *Engine) { e.dwell = d }
}

// WithPulse overrides the flow edge pulse window.
func WithPulse(d time.Duration) Option {
	return func(e *Engine) { e.pulse = d }
}

// WithPersistenceHooks surfaces write outcomes to the UI layer.
func WithPersistenceHooks(h persist.Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// New assembles an engine over a section store.
func New(store ports.SectionStore, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("section store is required")
	}

	e := &Engine{
		store:    store,
		logger:   logging.NewNop(),
		debounce: persist.DefaultDebounce,
		dwell:    track.DefaultDwell,
		pulse:    track.DefaultPulse,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.coord = persist.New(store,
		persist.WithDebounce(e.debounce),
		persist.WithLogger(e.logger),
		persist.WithMetrics(e.metrics),
		persist.WithHooks(e.hooks),
	)
	e.graph = graph.NewStore(
		graph.WithScheduler(e.coord),
		graph.WithLogger(e.logger),
	)
	e.router = track.New(e.graph,
		track.WithDwell(e.dwell),
		track.WithPulse(e.pulse),
		track.WithLogger(e.logger),
		track.WithMetrics(e.metrics),
	)
	return e, nil
}

// Start loads all sections from the remote store and, when a push channel
// is configured, attaches to it and begins routing frames.
func (e *Engine) Start(ctx context.Context) error {
	sections, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sections: %w", err)
	}
	e.graph.Seed(sections)
	e.logger.Info("sections loaded", "count", len(sections))

	if e.source == nil {
		return nil
	}
	return e.attachSource()
}

func (e *Engine) attachSource() error {
	frames, detach, err := e.source.Attach()
	if err != nil {
		return fmt.Errorf("failed to attach push channel: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.detach = detach
	e.cancel = cancel
	e.mu.Unlock()

	go e.router.Run(runCtx, frames)
	return nil
}

// ReattachSource re-attaches after the push channel went down (manual
// reconnect path). A source that reports itself down and implements
// ports.Reconnector is revived first, so the whole sequence is expressible
// through the facade. Safe to call while running; the previous consumer is
// detached first.
func (e *Engine) ReattachSource() error {
	if e.source == nil {
		return fmt.Errorf("no push channel configured")
	}

	e.mu.Lock()
	detach, cancel := e.detach, e.cancel
	e.detach, e.cancel = nil, nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if detach != nil {
		detach()
	}

	err := e.attachSource()
	if err == nil {
		return nil
	}
	rc, ok := e.source.(ports.Reconnector)
	if !ok || !errors.Is(err, domain.ErrChannelDown) {
		return err
	}
	if err := rc.Reconnect(); err != nil {
		return fmt.Errorf("failed to revive push channel: %w", err)
	}
	return e.attachSource()
}

// Close flushes pending writes and releases the push channel. The channel
// is detached before the coordinator closes, so teardown cannot race a
// debounced write into a dead connection.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	detach, cancel := e.detach, e.cancel
	e.detach, e.cancel = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if detach != nil {
		detach()
	}
	e.router.Stop()
	return e.coord.Close(ctx)
}

// Sections lists the loaded sections.
func (e *Engine) Sections() []graph.SectionInfo {
	return e.graph.Sections()
}

// ActivateSection switches the editing focus. The previous section's
// pending write is flushed synchronously first, so no edit is lost at the
// boundary; then the target's cached live view is returned, or a fresh one
// is built from the last-loaded document (with layout repair).
func (e *Engine) ActivateSection(ctx context.Context, sectionID string) (*domain.Section, error) {
	e.mu.Lock()
	prev := e.active
	e.active = sectionID
	e.gen++
	e.mu.Unlock()

	if prev != "" && prev != sectionID {
		if err := e.coord.FlushNow(ctx, prev); err != nil {
			// Surfaced through hooks already; switching proceeds.
			e.logger.Warn("flush on section switch failed", "section_id", prev, "err", err)
		}
	}

	view, err := e.graph.Materialize(sectionID)
	if err != nil {
		return nil, err
	}
	return view.Clone(), nil
}

// ActiveSection returns the currently activated section ID.
func (e *Engine) ActiveSection() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Refresh re-reads all sections from the remote store and replaces the
// loaded baselines. Only the newest refresh wins: if another activation or
// refresh starts while this one is loading, its result is discarded.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	sections, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh sections: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		e.logger.Debug("discarding stale refresh result")
		return nil
	}
	e.graph.Seed(sections)
	return nil
}

// AddNode inserts a node into a section, assigning an ID and a layout
// position when missing.
func (e *Engine) AddNode(ctx context.Context, sectionID string, node *domain.Node) error {
	return e.graph.AddNode(sectionID, node)
}

// RemoveNode deletes a node with full cascade.
func (e *Engine) RemoveNode(ctx context.Context, sectionID, nodeID string) error {
	return e.graph.RemoveNode(sectionID, nodeID)
}

// UpdateNode merges a partial durable update.
func (e *Engine) UpdateNode(ctx context.Context, sectionID, nodeID string, patch graph.NodePatch) error {
	return e.graph.UpdateNode(sectionID, nodeID, patch)
}

// Connect creates an edge; a duplicate request is signalled, not failed.
func (e *Engine) Connect(ctx context.Context, sectionID, sourceID, targetID string) (graph.ConnectResult, error) {
	return e.graph.Connect(sectionID, sourceID, targetID)
}

// Disconnect removes an edge.
func (e *Engine) Disconnect(ctx context.Context, sectionID string, key domain.EdgeKey) error {
	return e.graph.Disconnect(sectionID, key)
}

// View returns a copy of a section's live view.
func (e *Engine) View(sectionID string) (*domain.Section, bool) {
	return e.graph.View(sectionID)
}

// Edges returns a section's derived edge list.
func (e *Engine) Edges(sectionID string) []domain.EdgeKey {
	return e.graph.Edges(sectionID)
}

// Execution returns a node's transient overlay state.
func (e *Engine) Execution(sectionID, nodeID string) domain.ExecutionState {
	return e.graph.Execution(sectionID, nodeID)
}

// EdgeActive reports whether an edge currently shows a flow pulse.
func (e *Engine) EdgeActive(sectionID string, key domain.EdgeKey) bool {
	return e.graph.EdgeActive(sectionID, key)
}

// ToggleDeactivated flips a node's deactivation flag on the backend and
// applies the same toggle locally.
func (e *Engine) ToggleDeactivated(ctx context.Context, sectionID, nodeID string) error {
	view, ok := e.graph.View(sectionID)
	if !ok {
		return fmt.Errorf("section %q: %w", sectionID, domain.ErrSectionNotFound)
	}
	node := view.Node(nodeID)
	if node == nil {
		return fmt.Errorf("node %q: %w", nodeID, domain.ErrNodeNotFound)
	}

	if err := e.store.Deactivate(ctx, sectionID, nodeID); err != nil {
		return err
	}
	toggled := !node.IsDeactivated
	return e.graph.UpdateNode(sectionID, nodeID, graph.NodePatch{IsDeactivated: &toggled})
}

// ExecuteNode starts an asynchronous run of one node, feeding it the
// outputs of its upstream neighbors. Progress arrives on the push channel.
func (e *Engine) ExecuteNode(ctx context.Context, sectionID, nodeID string) error {
	if e.exec == nil {
		return fmt.Errorf("no executor configured")
	}
	view, ok := e.graph.View(sectionID)
	if !ok {
		return fmt.Errorf("section %q: %w", sectionID, domain.ErrSectionNotFound)
	}
	node := view.Node(nodeID)
	if node == nil {
		return fmt.Errorf("node %q: %w", nodeID, domain.ErrNodeNotFound)
	}

	inputs := make(map[string]any, len(node.ConnectedFrom))
	for _, upstream := range node.ConnectedFrom {
		if up := view.Node(upstream); up != nil && up.Output != "" {
			inputs[upstream] = up.Output
		}
	}

	return e.exec.Execute(ctx, ports.ExecuteRequest{
		NodeID:    nodeID,
		SectionID: sectionID,
		Code:      node.Code,
		Inputs:    inputs,
	})
}

// StopNode requests cancellation of a running node.
func (e *Engine) StopNode(ctx context.Context, nodeID string) error {
	if e.exec == nil {
		return fmt.Errorf("no executor configured")
	}
	return e.exec.Stop(ctx, nodeID)
}

// ExecuteFlow starts an asynchronous multi-node run from an entry node.
func (e *Engine) ExecuteFlow(ctx context.Context, sectionID, startNodeID string) error {
	if e.exec == nil {
		return fmt.Errorf("no executor configured")
	}
	return e.exec.ExecuteFlow(ctx, sectionID, startNodeID)
}

// FlushNow forces an immediate write of a section's pending snapshot.
// Exposed for page-unload style boundaries.
func (e *Engine) FlushNow(ctx context.Context, sectionID string) error {
	return e.coord.FlushNow(ctx, sectionID)
}

// HasPendingWrite reports whether a debounced write is waiting.
func (e *Engine) HasPendingWrite(sectionID string) bool {
	return e.coord.HasPending(sectionID)
}
