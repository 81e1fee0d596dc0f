package ports

import "github.com/railyard/railyard/pkg/domain"

// EventSource is the shared push channel delivering execution frames.
//
// The underlying connection is one shared resource per backend domain,
// reference-counted by attached consumers: Attach registers a consumer
// and returns its frame stream plus a detach function; the connection is
// torn down only when the last consumer detaches. A source whose
// reconnect budget is exhausted closes all consumer streams and returns
// domain.ErrChannelDown from subsequent Attach calls until a manual
// reconnect.
type EventSource interface {
	Attach() (<-chan domain.Frame, func(), error)
}

// Reconnector is an optional EventSource capability. Sources whose
// connection can go down for good (see domain.ErrChannelDown) implement
// it so callers can revive the connection explicitly before re-attaching.
type Reconnector interface {
	Reconnect() error
}
