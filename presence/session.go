// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence tracks who else is looking at a board and where
// their cursors are.
//
// A [Session] owns the binary presence connection for one board: it
// joins on every (re)connect, folds the service's broadcasts into a
// user roster, and rate-limits the local cursor so at most one update
// per throttle window reaches the wire. Roster entries are ephemeral;
// they live exactly as long as the connection that announced them.
package presence

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Dasi-Technology/fluxboard-sub000/channel"
	"github.com/Dasi-Technology/fluxboard-sub000/lib/clock"
	"github.com/Dasi-Technology/fluxboard-sub000/wire"
)

const (
	defaultCursorInterval    = 50 * time.Millisecond
	defaultHeartbeatInterval = 30 * time.Second
)

// User is one remote participant on the presence channel. CursorX and
// CursorY are normalized to [0,1]; HasCursor is false until the first
// broadcast for this user arrives.
type User struct {
	ID        uint8
	Name      string
	Color     wire.Color
	CursorX   float64
	CursorY   float64
	HasCursor bool
}

// Listener receives roster and cursor changes. Methods are invoked from
// the session's channel goroutine and must not block; hand off to the
// UI loop instead.
type Listener interface {
	UserJoined(user User)
	UserLeft(user User)
	CursorMoved(user User)
	PresenceCountChanged(count int)
}

// Config configures a [Session].
type Config struct {
	// Transport dials the presence service. Required.
	Transport channel.Transport

	// Channel is the board's presence channel number, assigned by the
	// Board Service and carried on the board entity.
	Channel uint16

	// Username is announced in the join message. At most 32 UTF-8
	// bytes; longer names fail [New].
	Username string

	// Listener receives roster changes. Required.
	Listener Listener

	// Logger receives lifecycle logging. Defaults to [slog.Default].
	Logger *slog.Logger

	// Clock drives throttle, backoff, and heartbeat timing. Defaults
	// to the real clock.
	Clock clock.Clock

	// CursorInterval is the cursor throttle window. Defaults to 50ms.
	CursorInterval time.Duration

	// MaxAttempts and BaseDelay tune the reconnecting channel; zero
	// values take the channel's defaults.
	MaxAttempts int
	BaseDelay   time.Duration

	// HeartbeatInterval is the keepalive period while connected.
	// Defaults to 30s.
	HeartbeatInterval time.Duration

	// OnFailed, if set, runs when the presence channel gives up
	// reconnecting.
	OnFailed func(error)
}

// Session is the presence view of one board. Construct with [New],
// start with [Session.Connect], stop with [Session.Close]. Safe for
// concurrent use.
type Session struct {
	channel      *channel.Channel
	throttle     *cursorThrottle
	listener     Listener
	logger       *slog.Logger
	boardChannel uint16
	joinFrame    []byte
	leaveFrame   []byte
	onFailed     func(error)

	mu     sync.Mutex
	users  map[uint8]User
	count  int
	joined bool
}

// New validates config and returns an unconnected session. The join
// message is encoded here, so a username over the wire limit fails
// construction instead of poisoning every connect.
func New(config Config) (*Session, error) {
	if config.Listener == nil {
		return nil, fmt.Errorf("presence: Listener is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	cursorInterval := config.CursorInterval
	if cursorInterval <= 0 {
		cursorInterval = defaultCursorInterval
	}
	heartbeatInterval := config.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	joinFrame, err := wire.Encode(wire.Join{Channel: config.Channel, Username: config.Username})
	if err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}
	leaveFrame, err := wire.Encode(wire.Leave{Channel: config.Channel})
	if err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}
	heartbeatFrame, err := wire.Encode(wire.Heartbeat{})
	if err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}

	s := &Session{
		listener:     config.Listener,
		logger:       logger,
		boardChannel: config.Channel,
		joinFrame:    joinFrame,
		leaveFrame:   leaveFrame,
		onFailed:     config.OnFailed,
		users:        make(map[uint8]User),
	}
	s.throttle = newCursorThrottle(clk, cursorInterval, s.sendCursor)

	ch, err := channel.New(channel.Config{
		Transport:         config.Transport,
		Handler:           s.handleChannelEvent,
		Logger:            logger,
		Clock:             clk,
		MaxAttempts:       config.MaxAttempts,
		BaseDelay:         config.BaseDelay,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatFrame:    heartbeatFrame,
	})
	if err != nil {
		return nil, err
	}
	s.channel = ch
	return s, nil
}

// Connect starts the presence connection. ctx bounds the session's
// whole life.
func (s *Session) Connect(ctx context.Context) error {
	return s.channel.Connect(ctx)
}

// Close sends a leave notice if this session had joined, then tears the
// connection down and empties the roster. No listener calls follow.
func (s *Session) Close() {
	s.throttle.Stop()
	s.mu.Lock()
	joined := s.joined
	s.joined = false
	s.mu.Unlock()
	if joined {
		if err := s.channel.Send(s.leaveFrame); err != nil && !errors.Is(err, channel.ErrNotConnected) {
			s.logger.Debug("leave not sent", "error", err)
		}
	}
	s.channel.Disconnect()
	s.clearRoster(false)
}

// ConnectionState reports the underlying channel state.
func (s *Session) ConnectionState() channel.State {
	return s.channel.State()
}

// UpdateCursor records the local cursor position for the next throttle
// window. Coordinates outside [0,1] are clamped at encode time.
func (s *Session) UpdateCursor(x, y float64) {
	s.throttle.Update(x, y)
}

// Users returns the current roster, ordered by user id.
func (s *Session) Users() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedUsers(s.users)
}

func sortedUsers(m map[uint8]User) []User {
	users := make([]User, 0, len(m))
	for _, user := range m {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b User) int { return cmp.Compare(a.ID, b.ID) })
	return users
}

// Count returns the service's last announced presence count. It is a
// coarse figure and may differ from len(Users).
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// sendCursor is the throttle's send hook. Presence traffic is
// ephemeral: a send while disconnected is dropped, not queued.
func (s *Session) sendCursor(x, y float64) {
	data, err := wire.Encode(wire.CursorUpdate{Channel: s.boardChannel, X: x, Y: y})
	if err != nil {
		s.logger.Warn("cursor update not encoded", "error", err)
		return
	}
	if err := s.channel.Send(data); err != nil {
		if !errors.Is(err, channel.ErrNotConnected) {
			s.logger.Debug("cursor update dropped", "error", err)
		}
		return
	}
}

func (s *Session) handleChannelEvent(event channel.Event) {
	switch e := event.(type) {
	case channel.Opened:
		s.handleOpen(e.Resumed)
	case channel.Message:
		s.handleFrame(e.Frame)
	case channel.Closed:
		// Roster entries live only as long as the connection that
		// announced them. A successful reconnect rejoins and the
		// service replays the roster.
		s.mu.Lock()
		s.joined = false
		s.mu.Unlock()
		s.clearRoster(true)
	case channel.Failed:
		s.logger.Error("presence connection failed", "error", e.Err)
		if s.onFailed != nil {
			s.onFailed(e.Err)
		}
	}
}

func (s *Session) handleOpen(resumed bool) {
	if err := s.channel.Send(s.joinFrame); err != nil {
		s.logger.Warn("join not sent", "error", err)
		return
	}
	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()
	s.logger.Info("presence joined", "channel", s.boardChannel, "resumed", resumed)
}

func (s *Session) handleFrame(frame channel.Frame) {
	message, err := wire.Decode(frame.Data)
	if err != nil {
		// A malformed frame is discarded; the connection stays up.
		s.logger.Warn("presence frame discarded", "error", err)
		return
	}
	switch m := message.(type) {
	case wire.CursorBroadcast:
		s.applyCursor(m)
	case wire.UserJoined:
		s.applyUserJoined(m)
	case wire.UserLeft:
		s.applyUserLeft(m)
	case wire.PresenceCount:
		s.applyCount(m)
	case wire.Heartbeat:
		// Server keepalive, nothing to track.
	default:
		s.logger.Debug("presence frame ignored", "type", fmt.Sprintf("%T", m))
	}
}

// applyCursor upserts a known user's cursor. A broadcast for a user who
// never joined is dropped; cursor traffic does not imply membership.
func (s *Session) applyCursor(m wire.CursorBroadcast) {
	s.mu.Lock()
	user, ok := s.users[m.UserID]
	if !ok {
		s.mu.Unlock()
		return
	}
	user.CursorX = m.X
	user.CursorY = m.Y
	user.HasCursor = true
	s.users[m.UserID] = user
	s.mu.Unlock()
	s.listener.CursorMoved(user)
}

func (s *Session) applyUserJoined(m wire.UserJoined) {
	user := User{ID: m.UserID, Name: m.Username, Color: m.Color}
	s.mu.Lock()
	s.users[m.UserID] = user
	s.mu.Unlock()
	s.listener.UserJoined(user)
}

func (s *Session) applyUserLeft(m wire.UserLeft) {
	s.mu.Lock()
	user, ok := s.users[m.UserID]
	if ok {
		delete(s.users, m.UserID)
	}
	s.mu.Unlock()
	if ok {
		s.listener.UserLeft(user)
	}
}

func (s *Session) applyCount(m wire.PresenceCount) {
	s.mu.Lock()
	s.count = int(m.Count)
	s.mu.Unlock()
	s.listener.PresenceCountChanged(int(m.Count))
}

// clearRoster empties the user map and resets the count. With notify
// set, each removal and the count reset reach the listener, so a UI
// drops stale cursors when the connection does.
func (s *Session) clearRoster(notify bool) {
	s.mu.Lock()
	removed := sortedUsers(s.users)
	s.users = make(map[uint8]User)
	hadCount := s.count != 0
	s.count = 0
	s.mu.Unlock()

	if !notify {
		return
	}
	for _, user := range removed {
		s.listener.UserLeft(user)
	}
	if hadCount {
		s.listener.PresenceCountChanged(0)
	}
}
