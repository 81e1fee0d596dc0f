// Package track projects the asynchronous push-channel stream onto the
// transient execution overlay: per-node run status with self-clearing
// completed/error states, and short-lived edge pulses during flow runs.
package track

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/railyard/railyard/internal/logging"
	"github.com/railyard/railyard/internal/metrics"
	"github.com/railyard/railyard/pkg/domain"
	"github.com/railyard/railyard/pkg/graph"
)

// DefaultDwell is how long a completed/error overlay stays before
// auto-reverting to idle.
const DefaultDwell = 2500 * time.Millisecond

// DefaultPulse is how long a flow edge stays flagged active.
const DefaultPulse = 750 * time.Millisecond

// Router consumes execution frames and applies them to the graph store.
// Frames referencing nodes that are gone are dropped silently: deletion
// racing a late frame is expected and must neither crash nor resurrect
// the node.
type Router struct {
	store   *graph.Store
	dwell   time.Duration
	pulse   time.Duration
	logger  *slog.Logger
	metrics *metrics.Set

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

// Option configures the Router.
type Option func(*Router)

// WithDwell overrides the completed/error auto-revert delay.
func WithDwell(d time.Duration) Option {
	return func(r *Router) { r.dwell = d }
}

// WithPulse overrides the edge pulse window.
func WithPulse(d time.Duration) Option {
	return func(r *Router) { r.pulse = d }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Set) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a Router bound to a store.
func New(store *graph.Store, opts ...Option) *Router {
	r := &Router{
		store:  store,
		dwell:  DefaultDwell,
		pulse:  DefaultPulse,
		logger: logging.NewNop(),
		timers: make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes frames until the channel closes or the context is done.
func (r *Router) Run(ctx context.Context, frames <-chan domain.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			r.Route(frame)
		}
	}
}

// Route applies a single frame. Unroutable frames are logged at debug
// level only; nothing here may stop the loop.
func (r *Router) Route(frame domain.Frame) {
	switch f := frame.(type) {
	case *domain.ProgressFrame:
		r.routeProgress(f)
	case *domain.OutputFrame:
		r.routeOutput(f)
	case *domain.ExecStartFrame:
		r.setPhase(f.NodeID, domain.ExecutionState{Phase: domain.PhaseRunning}, false)
	case *domain.ExecCompleteFrame:
		r.setPhase(f.NodeID, domain.ExecutionState{Phase: domain.PhaseCompleted, Progress: 1}, true)
	case *domain.ExecErrorFrame:
		r.setPhase(f.NodeID, domain.ExecutionState{Phase: domain.PhaseError, Err: f.Error}, true)
	case *domain.FlowProgressFrame:
		r.routeFlow(f)
	default:
		// Unknown types are ignored by contract.
		r.logger.Debug("ignoring unknown frame", "frame_type", frame.FrameType())
		return
	}
}

// routeProgress maps the progress value onto the state machine: values at
// or above 1 complete the run, negative values mean failure, anything else
// is a running update.
func (r *Router) routeProgress(f *domain.ProgressFrame) {
	switch {
	case f.Progress >= 1:
		r.setPhase(f.NodeID, domain.ExecutionState{Phase: domain.PhaseCompleted, Progress: 1}, true)
	case f.Progress < 0:
		r.setPhase(f.NodeID, domain.ExecutionState{Phase: domain.PhaseError, Err: "execution failed"}, true)
	default:
		r.setPhase(f.NodeID, domain.ExecutionState{Phase: domain.PhaseRunning, Progress: f.Progress}, false)
	}
}

// routeOutput applies a computed output as a durable update through the
// store, which schedules persistence. Output is the one push-channel
// effect that does reach the remote document.
func (r *Router) routeOutput(f *domain.OutputFrame) {
	sectionID, ok := r.store.SectionOf(f.NodeID)
	if !ok {
		r.drop(f.NodeID, domain.FrameOutput)
		return
	}
	output := f.Output
	if err := r.store.UpdateNode(sectionID, f.NodeID, graph.NodePatch{Output: &output}); err != nil {
		r.drop(f.NodeID, domain.FrameOutput)
		return
	}
	r.metrics.FrameRouted(string(domain.FrameOutput))
}

func (r *Router) setPhase(nodeID string, state domain.ExecutionState, revert bool) {
	sectionID, ok := r.store.SectionOf(nodeID)
	if !ok {
		r.drop(nodeID, frameTypeFor(state.Phase))
		return
	}

	seq, ok := r.store.SetExecution(sectionID, nodeID, state)
	if !ok {
		r.drop(nodeID, frameTypeFor(state.Phase))
		return
	}
	r.metrics.FrameRouted(string(frameTypeFor(state.Phase)))

	if revert {
		r.after(r.dwell, func() {
			r.store.ClearExecution(sectionID, nodeID, seq)
		})
	}
}

func (r *Router) routeFlow(f *domain.FlowProgressFrame) {
	key := domain.EdgeKey{SourceID: f.SourceID, TargetID: f.TargetID}
	sectionID, ok := r.store.SectionOf(f.SourceID)
	if !ok {
		r.drop(f.SourceID, domain.FrameFlowProgress)
		return
	}

	seq, ok := r.store.ActivateEdge(sectionID, key)
	if !ok {
		r.drop(f.SourceID, domain.FrameFlowProgress)
		return
	}
	r.metrics.FrameRouted(string(domain.FrameFlowProgress))

	r.after(r.pulse, func() {
		r.store.ClearEdgePulse(sectionID, key, seq)
	})
}

// Stop cancels all outstanding revert and pulse timers. Pending overlay
// state stays as-is; it is transient and rebuilt from the next stream.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t := range r.timers {
		t.Stop()
	}
	r.timers = make(map[*time.Timer]struct{})
}

func (r *Router) after(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		fn()
		r.mu.Lock()
		delete(r.timers, t)
		r.mu.Unlock()
	})
	r.timers[t] = struct{}{}
}

func (r *Router) drop(nodeID string, frameType domain.FrameType) {
	r.metrics.FrameDropped()
	r.logger.Debug("dropping frame for unknown node",
		"node_id", nodeID,
		"frame_type", frameType,
	)
}

func frameTypeFor(phase domain.Phase) domain.FrameType {
	switch phase {
	case domain.PhaseCompleted:
		return domain.FrameExecComplete
	case domain.PhaseError:
		return domain.FrameExecError
	default:
		return domain.FrameProgress
	}
}
