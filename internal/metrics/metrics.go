// Package metrics defines the Prometheus instrumentation shared by the
// persistence coordinator, the event router, and the dev server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the collectors. A nil *Set is safe to use: every method is a
// no-op, so components can take metrics as an optional dependency.
type Set struct {
	WritesTotal   prometheus.Counter
	WriteFailures prometheus.Counter
	FramesRouted  *prometheus.CounterVec
	FramesDropped prometheus.Counter
	FlushSeconds  prometheus.Histogram
}

// New creates and registers the collector set.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		WritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "railyard_section_writes_total",
			Help: "Section documents flushed to the remote store.",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "railyard_section_write_failures_total",
			Help: "Section flushes that failed. Not retried; the next debounce cycle re-sends.",
		}),
		FramesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "railyard_frames_routed_total",
			Help: "Push-channel frames applied to the execution overlay.",
		}, []string{"type"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "railyard_frames_dropped_total",
			Help: "Frames referencing nodes or edges no longer present.",
		}),
		FlushSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "railyard_flush_duration_seconds",
			Help:    "Remote store write latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(s.WritesTotal, s.WriteFailures, s.FramesRouted, s.FramesDropped, s.FlushSeconds)
	return s
}

func (s *Set) ObserveWrite(seconds float64) {
	if s == nil {
		return
	}
	s.WritesTotal.Inc()
	s.FlushSeconds.Observe(seconds)
}

func (s *Set) WriteFailed() {
	if s == nil {
		return
	}
	s.WriteFailures.Inc()
}

func (s *Set) FrameRouted(frameType string) {
	if s == nil {
		return
	}
	s.FramesRouted.WithLabelValues(frameType).Inc()
}

func (s *Set) FrameDropped() {
	if s == nil {
		return
	}
	s.FramesDropped.Inc()
}
