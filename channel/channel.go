// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel maintains one long-lived connection to a realtime
// service, reconnecting with exponential backoff when it drops.
//
// A [Channel] owns an explicit state machine (disconnected → connecting
// → connected, with reconnecting and failed branches) and one goroutine
// that dials through a [Transport], pumps inbound frames, and waits out
// backoff delays. Everything the channel observes is delivered to the
// configured handler as a typed [Event], always from that one goroutine,
// so handlers see frames in arrival order.
//
// The package ships two transports: [WebSocketTransport] for the duplex
// presence connection and [SSETransport] for the server-push change
// feed.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dasi-Technology/fluxboard-sub000/lib/clock"
)

// State is the connection lifecycle state of a [Channel].
type State int

const (
	// StateDisconnected is the initial state, and the final state after
	// an orderly [Channel.Disconnect].
	StateDisconnected State = iota

	// StateConnecting covers the first dial.
	StateConnecting

	// StateConnected means frames are flowing.
	StateConnected

	// StateReconnecting covers the backoff wait and redial after an
	// unexpected drop.
	StateReconnecting

	// StateFailed is terminal: the reconnect attempt cap was exhausted.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is a channel lifecycle or traffic notification. The concrete
// types are [Opened], [Message], [Closed], and [Failed].
type Event interface {
	channelEvent()
}

// Opened reports an established connection. Resumed is false on the
// first open of the channel's life and true on every reconnect, which
// is a consumer's cue to reconcile state it may have missed.
type Opened struct {
	Resumed bool
}

// Message carries one inbound frame.
type Message struct {
	Frame Frame
}

// Closed reports an unexpected drop. The channel is already scheduling
// reconnect attempts when the handler sees it; a following [Opened] or
// [Failed] resolves the outcome.
type Closed struct {
	Err error
}

// Failed is terminal: every reconnect attempt was spent. The channel
// retries nothing further.
type Failed struct {
	Err error
}

func (Opened) channelEvent()  {}
func (Message) channelEvent() {}
func (Closed) channelEvent()  {}
func (Failed) channelEvent()  {}

// ErrNotConnected reports a send attempted while no connection is
// established. Ephemeral traffic is dropped on it; nothing queues.
var ErrNotConnected = errors.New("channel: not connected")

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
)

// Config configures a [Channel].
type Config struct {
	// Transport dials the underlying connection. Required.
	Transport Transport

	// Handler receives every event, in order, from the channel's one
	// delivery goroutine. Required.
	Handler func(Event)

	// Logger receives lifecycle logging. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock drives backoff and heartbeat timing. Defaults to the real
	// clock.
	Clock clock.Clock

	// MaxAttempts caps consecutive reconnect attempts before the
	// channel fails terminally. Defaults to 5.
	MaxAttempts int

	// BaseDelay is the first reconnect delay; attempt n waits
	// BaseDelay * 2^(n-1). Defaults to 1s.
	BaseDelay time.Duration

	// HeartbeatInterval and HeartbeatFrame enable a keepalive: while
	// connected, HeartbeatFrame is sent every interval. Zero interval
	// or empty frame disables it.
	HeartbeatInterval time.Duration
	HeartbeatFrame    []byte
}

// Channel is a reconnecting connection to one realtime service.
// Construct with [New], start with [Channel.Connect], stop with
// [Channel.Disconnect]. Safe for concurrent use.
type Channel struct {
	transport         Transport
	handler           func(Event)
	logger            *slog.Logger
	clock             clock.Clock
	maxAttempts       int
	baseDelay         time.Duration
	heartbeatInterval time.Duration
	heartbeatFrame    []byte

	mu      sync.Mutex
	state   State
	conn    Conn
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New validates config and returns an idle channel in
// [StateDisconnected].
func New(config Config) (*Channel, error) {
	if config.Transport == nil {
		return nil, fmt.Errorf("channel: Transport is required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("channel: Handler is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := config.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Channel{
		transport:         config.Transport,
		handler:           config.Handler,
		logger:            logger,
		clock:             clk,
		maxAttempts:       maxAttempts,
		baseDelay:         baseDelay,
		heartbeatInterval: config.HeartbeatInterval,
		heartbeatFrame:    config.HeartbeatFrame,
	}, nil
}

// Connect starts the channel's connection goroutine. The outcome of the
// first dial, like everything after it, arrives as events; Connect
// itself only fails if the channel was already started. ctx bounds the
// channel's whole life: cancelling it closes the live connection and
// stops reconnecting, like Disconnect without the wait for the
// delivery goroutine.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("channel: already started")
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.state = StateConnecting
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Disconnect tears the channel down: no reconnects, no events after it
// returns. Safe to call at any time, including after a terminal
// failure.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send transmits one frame on the live connection. Fails with
// [ErrNotConnected] while the channel is between connections; callers
// of ephemeral traffic drop and move on.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Send(data); err != nil {
		return fmt.Errorf("channel: send: %w", err)
	}
	return nil
}

// run is the channel's connection goroutine: dial, pump, back off,
// repeat. All events are emitted from here.
func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	attempt := 0
	resumed := false
	for {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			c.logger.Info("reconnect scheduled",
				"attempt", attempt,
				"max_attempts", c.maxAttempts,
				"delay", delay)
			select {
			case <-c.clock.After(delay):
			case <-ctx.Done():
				c.setState(StateDisconnected)
				return
			}
		}

		conn, err := c.transport.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return
			}
			attempt++
			if attempt > c.maxAttempts {
				c.logger.Error("reconnect attempts exhausted", "attempts", c.maxAttempts, "error", err)
				c.setState(StateFailed)
				c.handler(Failed{Err: fmt.Errorf("channel: %d connect attempts exhausted: %w", c.maxAttempts, err)})
				return
			}
			c.logger.Warn("connect failed", "attempt", attempt, "error", err)
			c.setState(StateReconnecting)
			continue
		}

		attempt = 0
		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()
		c.logger.Info("connected", "resumed", resumed)
		c.handler(Opened{Resumed: resumed})
		resumed = true

		stopHeartbeat := c.startHeartbeat(conn)
		stopWatch := watchContext(ctx, conn)
		var dropErr error
		for {
			frame, err := conn.Receive()
			if err != nil {
				dropErr = err
				break
			}
			if ctx.Err() != nil {
				break
			}
			c.handler(Message{Frame: frame})
		}
		stopHeartbeat()
		stopWatch()
		_ = conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		c.logger.Warn("connection dropped", "error", dropErr)
		c.setState(StateReconnecting)
		c.handler(Closed{Err: dropErr})
		attempt = 1
	}
}

// watchContext closes conn once ctx is cancelled so a blocked Receive
// unblocks. The websocket transport stops watching the context after
// the handshake, so cancellation has to reach the connection from here.
func watchContext(ctx context.Context, conn Conn) (stop func()) {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stopped:
		}
	}()
	return func() { close(stopped) }
}

// startHeartbeat sends the keepalive frame every interval until the
// returned stop function is called or a send fails. A failed heartbeat
// only stops the heartbeat; the read pump notices the dead connection
// on its own.
func (c *Channel) startHeartbeat(conn Conn) (stop func()) {
	if c.heartbeatInterval <= 0 || len(c.heartbeatFrame) == 0 {
		return func() {}
	}
	ticker := c.clock.NewTicker(c.heartbeatInterval)
	stopped := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.Send(c.heartbeatFrame); err != nil {
					c.logger.Debug("heartbeat send failed", "error", err)
					return
				}
			case <-stopped:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(stopped)
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
