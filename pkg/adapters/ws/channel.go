// Package ws implements ports.EventSource over a websocket connection to
// the execution backend. One connection is shared per channel instance and
// reference-counted by attached consumers; it dials on first attach and
// tears down when the last consumer detaches.
package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/railyard/railyard/internal/logging"
	"github.com/railyard/railyard/pkg/domain"
	"github.com/railyard/railyard/pkg/ports"
)

const (
	// DefaultMaxRetries bounds the reconnect sequence. After exhaustion
	// the channel is down until Reconnect is called.
	DefaultMaxRetries = 5

	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 8 * time.Second

	consumerBuffer = 32
)

// Channel is a websocket-backed push channel.
type Channel struct {
	url        string
	dialer     *websocket.Dialer
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	mu        sync.Mutex
	consumers map[chan domain.Frame]struct{}
	conn      *websocket.Conn
	down      bool
	gen       int // connection generation, guards stale read loops
}

var (
	_ ports.EventSource = (*Channel)(nil)
	_ ports.Reconnector = (*Channel)(nil)
)

// Option configures the Channel.
type Option func(*Channel)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// WithMaxRetries overrides the reconnect budget.
func WithMaxRetries(n int) Option {
	return func(c *Channel) { c.maxRetries = n }
}

// WithBackoff overrides the reconnect delays.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Channel) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

// NewChannel creates a channel for the given websocket URL. No connection
// is made until the first Attach.
func NewChannel(url string, opts ...Option) *Channel {
	c := &Channel{
		url:        url,
		dialer:     websocket.DefaultDialer,
		logger:     logging.NewNop(),
		maxRetries: DefaultMaxRetries,
		baseDelay:  defaultBaseBackoff,
		maxDelay:   defaultMaxBackoff,
		consumers:  make(map[chan domain.Frame]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach registers a consumer. The first consumer dials the backend; later
// ones share the connection. The returned detach function is idempotent;
// when the last consumer detaches the connection is closed.
func (c *Channel) Attach() (<-chan domain.Frame, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.down {
		return nil, nil, domain.ErrChannelDown
	}

	if c.conn == nil {
		conn, err := c.dialLocked()
		if err != nil {
			return nil, nil, err
		}
		c.conn = conn
		c.gen++
		go c.readLoop(conn, c.gen)
	}

	ch := make(chan domain.Frame, consumerBuffer)
	c.consumers[ch] = struct{}{}

	var once sync.Once
	detach := func() {
		once.Do(func() { c.detach(ch) })
	}
	return ch, detach, nil
}

// Reconnect manually revives a channel that exhausted its retry budget.
// Existing consumers were closed at exhaustion and must re-attach.
func (c *Channel) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	conn, err := c.dialLocked()
	if err != nil {
		return err
	}
	c.down = false
	c.conn = conn
	c.gen++
	go c.readLoop(conn, c.gen)
	return nil
}

// Down reports whether the reconnect budget is exhausted.
func (c *Channel) Down() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.down
}

func (c *Channel) detach(ch chan domain.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.consumers[ch]; !ok {
		return
	}
	delete(c.consumers, ch)
	close(ch)

	if len(c.consumers) == 0 && c.conn != nil {
		// Last consumer gone: tear the connection down. The read loop
		// notices the close and exits via the generation check.
		c.gen++
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) dialLocked() (*websocket.Conn, error) {
	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop pumps frames from one connection generation. On read failure it
// runs the bounded backoff reconnect; a stale generation (superseded by
// teardown or manual reconnect) exits silently.
func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}

		frame, err := domain.DecodeFrame(data)
		if err != nil {
			// Unknown or malformed frames are skipped, not fatal.
			c.logger.Debug("skipping frame", "err", err)
			continue
		}
		c.fanout(frame)
	}
}

func (c *Channel) fanout(frame domain.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ch := range c.consumers {
		select {
		case ch <- frame:
		default:
			// Slow consumer: drop rather than stall the pump.
			c.logger.Warn("consumer buffer full, dropping frame",
				"frame_type", frame.FrameType(),
			)
		}
	}
}

func (c *Channel) handleReadError(gen int, readErr error) {
	c.mu.Lock()
	if gen != c.gen {
		// Deliberate teardown or a newer connection owns the channel.
		c.mu.Unlock()
		return
	}
	c.conn.Close()
	c.conn = nil
	c.mu.Unlock()

	c.logger.Warn("push channel read failed, reconnecting", "err", readErr)

	delay := c.baseDelay
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		time.Sleep(delay)
		if delay *= 2; delay > c.maxDelay {
			delay = c.maxDelay
		}

		c.mu.Lock()
		if gen != c.gen || len(c.consumers) == 0 {
			// Detached (or manually reconnected) while backing off.
			c.mu.Unlock()
			return
		}
		conn, err := c.dialLocked()
		if err != nil {
			c.mu.Unlock()
			c.logger.Warn("reconnect attempt failed",
				"attempt", attempt,
				"max", c.maxRetries,
				"err", err,
			)
			continue
		}
		c.conn = conn
		c.gen++
		go c.readLoop(conn, c.gen)
		c.mu.Unlock()
		c.logger.Info("push channel reconnected", "attempt", attempt)
		return
	}

	// Budget exhausted: mark down and close all consumer streams. No
	// silent resurrection; a manual Reconnect is required.
	c.mu.Lock()
	c.down = true
	for ch := range c.consumers {
		close(ch)
		delete(c.consumers, ch)
	}
	c.mu.Unlock()
	c.logger.Error("push channel down after exhausting reconnect budget",
		"retries", c.maxRetries,
	)
}
