// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package client assembles a live board session from the sync core's
// parts: the in-memory replica, the optimistic mutation coordinator,
// the change feed consumer, and the presence session, all bound to one
// board selected by its share token.
//
// A [Session] is the whole client-side surface. Construct with [New],
// start with [Session.Open], issue intents through the promoted
// [mutation.Coordinator] methods, read the replica with
// [Session.Board], and stop with [Session.Close]. Asynchronous changes
// reach the owner through a [Listener].
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
	"github.com/Dasi-Technology/fluxboard-sub000/boardapi"
	"github.com/Dasi-Technology/fluxboard-sub000/channel"
	"github.com/Dasi-Technology/fluxboard-sub000/feed"
	"github.com/Dasi-Technology/fluxboard-sub000/lib/clock"
	"github.com/Dasi-Technology/fluxboard-sub000/mutation"
	"github.com/Dasi-Technology/fluxboard-sub000/presence"
	"github.com/Dasi-Technology/fluxboard-sub000/snapshot"
	"github.com/Dasi-Technology/fluxboard-sub000/wire"
)

// defaultCacheMaxAge bounds how old a cached snapshot may be and still
// serve an offline open.
const defaultCacheMaxAge = 24 * time.Hour

// resyncTimeout bounds the wholesale refetch after a feed reconnect.
// The refetch runs on the feed's delivery goroutine, so a hung request
// would stall event delivery without it.
const resyncTimeout = 30 * time.Second

// Listener receives a session's asynchronous notifications. Calls
// arrive on the session's delivery goroutines and must not block;
// replica reads from inside a callback observe the post-change state.
// After [Session.Close] returns, no method is invoked again.
type Listener interface {
	presence.Listener

	// BoardApplied runs after a change feed event has mutated the
	// replica.
	BoardApplied(event feed.Event)

	// BoardResynced runs after the replica is replaced wholesale: at
	// open and again whenever the feed reconnects.
	BoardResynced(b board.Board)

	// FeedFailed runs when the feed channel exhausts its reconnect
	// attempts. The replica stops converging; reads and intents keep
	// working against the last known state.
	FeedFailed(err error)

	// PresenceFailed runs when the presence channel exhausts its
	// reconnect attempts. Board state keeps flowing without a roster.
	PresenceFailed(err error)
}

// Config configures a [Session].
type Config struct {
	// BoardURL is the Board Service base URL (http or https). Required.
	BoardURL string

	// FeedURL is the Change Feed base URL. Defaults to BoardURL.
	FeedURL string

	// PresenceURL is the Presence Service endpoint (ws or wss).
	// Required unless PresenceTransport is set.
	PresenceURL string

	// ShareToken names and authorizes the board. Required.
	ShareToken string

	// Password unlocks a locked board. Optional.
	Password string

	// Username is announced to the presence roster. Required, at most
	// [wire.MaxUsernameLength] UTF-8 bytes.
	Username string

	// Listener receives asynchronous session notifications. Required.
	Listener Listener

	// Logger receives lifecycle logging. Defaults to [slog.Default].
	Logger *slog.Logger

	// Clock drives throttle, backoff, heartbeat, and snapshot
	// timestamps. Defaults to the real clock.
	Clock clock.Clock

	// HTTPClient serves REST calls and the feed stream. Defaults to
	// [http.DefaultClient].
	HTTPClient *http.Client

	// CursorInterval is the cursor throttle window. Defaults to 50ms.
	CursorInterval time.Duration

	// HeartbeatInterval is the presence keepalive period. Defaults to
	// 30s.
	HeartbeatInterval time.Duration

	// MaxAttempts and BaseDelay tune both reconnecting channels; zero
	// values take the channel defaults.
	MaxAttempts int
	BaseDelay   time.Duration

	// CacheDir, when set, enables the snapshot cache: the session
	// writes the replica there on open, resync, and close, and falls
	// back to it when the Board Service is unreachable at open.
	CacheDir string

	// CacheMaxAge bounds how old a snapshot may be and still serve an
	// offline open. Defaults to 24h.
	CacheMaxAge time.Duration

	// FeedTransport and PresenceTransport override the URL-derived
	// transports. Tests inject fakes here; production leaves them nil.
	FeedTransport     channel.Transport
	PresenceTransport channel.Transport
}

// Session is one user's live connection to one board.
//
// Intents are served by the promoted [mutation.Coordinator] methods:
// they apply optimistically to the replica, call the Board Service, and
// roll back on rejection. The change feed converges the replica behind
// them.
//
// Construct with [New]; nothing dials until [Session.Open]. Safe for
// concurrent use, except that Open must not be called concurrently
// with itself.
type Session struct {
	*mutation.Coordinator

	logger   *slog.Logger
	clock    clock.Clock
	listener Listener

	service *boardapi.Client
	store   *board.Store
	feed    *channel.Channel

	presenceConfig presence.Config

	snapshotPath string
	cacheMaxAge  time.Duration

	mu          sync.Mutex
	presence    *presence.Session
	lifetime    context.Context
	cancel      context.CancelFunc
	opened      bool
	closed      bool
	needsResync bool
}

// New validates config and returns an unopened session.
func New(config Config) (*Session, error) {
	if config.Listener == nil {
		return nil, fmt.Errorf("client: Listener is required")
	}
	if config.Username == "" {
		return nil, fmt.Errorf("client: Username is required")
	}
	if len(config.Username) > wire.MaxUsernameLength {
		return nil, fmt.Errorf("client: username length %d exceeds maximum %d", len(config.Username), wire.MaxUsernameLength)
	}
	if config.PresenceTransport == nil {
		if err := checkURL(config.PresenceURL, "PresenceURL", "ws", "wss"); err != nil {
			return nil, err
		}
	}
	if config.FeedTransport == nil && config.FeedURL != "" {
		if err := checkURL(config.FeedURL, "FeedURL", "http", "https"); err != nil {
			return nil, err
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	service, err := boardapi.NewClient(boardapi.ClientConfig{
		BaseURL:    config.BoardURL,
		ShareToken: config.ShareToken,
		Password:   config.Password,
		HTTPClient: config.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	store := board.NewStore()
	session := &Session{
		Coordinator: mutation.New(mutation.Config{
			Store:   store,
			Service: service,
			Logger:  logger,
		}),
		logger:   logger,
		clock:    clk,
		listener: config.Listener,
		service:  service,
		store:    store,
	}
	if config.CacheDir != "" {
		session.snapshotPath = snapshot.PathFor(config.CacheDir, config.ShareToken)
		session.cacheMaxAge = config.CacheMaxAge
		if session.cacheMaxAge == 0 {
			session.cacheMaxAge = defaultCacheMaxAge
		}
	}

	consumer := feed.New(feed.Config{
		Store:     store,
		Logger:    logger,
		OnApplied: config.Listener.BoardApplied,
		OnOpen:    session.feedOpened,
		OnFailed:  config.Listener.FeedFailed,
	})
	feedTransport := config.FeedTransport
	if feedTransport == nil {
		feedTransport = &channel.SSETransport{
			URL:        feedStreamURL(config.FeedURL, config.BoardURL, config.ShareToken),
			HTTPClient: config.HTTPClient,
			Header:     passwordHeader(config.Password),
		}
	}
	feedChannel, err := channel.New(channel.Config{
		Transport:   feedTransport,
		Handler:     consumer.HandleEvent,
		Logger:      logger.With("stream", "feed"),
		Clock:       clk,
		MaxAttempts: config.MaxAttempts,
		BaseDelay:   config.BaseDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	session.feed = feedChannel

	presenceTransport := config.PresenceTransport
	if presenceTransport == nil {
		presenceTransport = &channel.WebSocketTransport{URL: config.PresenceURL}
	}
	// Channel is filled in at open time from the fetched board.
	session.presenceConfig = presence.Config{
		Transport:         presenceTransport,
		Username:          config.Username,
		Listener:          config.Listener,
		Logger:            logger.With("stream", "presence"),
		Clock:             clk,
		CursorInterval:    config.CursorInterval,
		MaxAttempts:       config.MaxAttempts,
		BaseDelay:         config.BaseDelay,
		HeartbeatInterval: config.HeartbeatInterval,
		OnFailed:          config.Listener.PresenceFailed,
	}

	return session, nil
}

// Open performs the initial load, announces the first replica through
// [Listener.BoardResynced], and starts the feed and presence channels.
// The context governs only the load; the session's lifetime ends with
// [Session.Close].
//
// When the Board Service is unreachable and the cache holds a usable
// snapshot, the session opens from the snapshot instead and converges
// once the feed connects. A failed Open leaves the session unopened;
// calling Open again retries from scratch.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("client: open: session closed")
	}
	if s.opened {
		s.mu.Unlock()
		return fmt.Errorf("client: open: session already open")
	}
	s.mu.Unlock()

	b, err := s.service.FetchBoard(ctx)
	fromSnapshot := false
	if err != nil {
		snap, usable := s.readSnapshot()
		if !usable {
			return fmt.Errorf("client: open: %w", err)
		}
		s.logger.Warn("board service unreachable, opening from snapshot",
			"saved_at", snap.SavedAt, "error", err)
		b = snap.Board
		fromSnapshot = true
	}
	if err := s.store.Replace(b); err != nil {
		return fmt.Errorf("client: open: %w", err)
	}
	if !fromSnapshot {
		s.writeSnapshot()
	}
	s.listener.BoardResynced(s.store.Board())

	lifetime, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.lifetime = lifetime
	s.cancel = cancel
	s.needsResync = fromSnapshot
	s.mu.Unlock()

	if err := s.feed.Connect(lifetime); err != nil {
		cancel()
		return fmt.Errorf("client: open: %w", err)
	}

	presenceConfig := s.presenceConfig
	presenceConfig.Channel = b.Channel
	presenceSession, err := presence.New(presenceConfig)
	if err == nil {
		err = presenceSession.Connect(lifetime)
	}
	if err != nil {
		s.feed.Disconnect()
		cancel()
		return fmt.Errorf("client: open: %w", err)
	}

	s.mu.Lock()
	s.presence = presenceSession
	s.opened = true
	s.mu.Unlock()

	s.logger.Info("session open",
		"board_id", b.ID, "channel", b.Channel, "from_snapshot", fromSnapshot)
	return nil
}

// Close tears the session down: announces the leave to the presence
// roster, stops both channels, caches the final replica, and closes the
// store. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	presenceSession := s.presence
	cancel := s.cancel
	opened := s.opened
	s.mu.Unlock()

	if presenceSession != nil {
		presenceSession.Close()
	}
	if cancel != nil {
		// Aborts an in-flight resync fetch so the feed teardown does
		// not wait out its timeout.
		cancel()
	}
	s.feed.Disconnect()
	if opened {
		s.writeSnapshot()
		s.logger.Info("session closed")
	}
	s.store.Close()
}

// Board returns a copy of the current replica.
func (s *Session) Board() board.Board {
	return s.store.Board()
}

// UpdateCursor publishes the local cursor position on the presence
// channel, throttled. Calls before [Session.Open] are dropped.
func (s *Session) UpdateCursor(x, y float64) {
	if p := s.presenceSession(); p != nil {
		p.UpdateCursor(x, y)
	}
}

// Users returns the remote roster, ordered by user id.
func (s *Session) Users() []presence.User {
	if p := s.presenceSession(); p != nil {
		return p.Users()
	}
	return nil
}

// Count returns the service's last authoritative presence count.
func (s *Session) Count() int {
	if p := s.presenceSession(); p != nil {
		return p.Count()
	}
	return 0
}

// FeedState reports the feed channel's lifecycle state.
func (s *Session) FeedState() channel.State {
	return s.feed.State()
}

// PresenceState reports the presence channel's lifecycle state.
func (s *Session) PresenceState() channel.State {
	if p := s.presenceSession(); p != nil {
		return p.ConnectionState()
	}
	return channel.StateDisconnected
}

func (s *Session) presenceSession() *presence.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

// feedOpened runs on every feed connect. A resumed connection always
// resyncs: events published while the channel was down are gone for
// good. The first connection resyncs only when the session opened from
// the snapshot cache, whose replica is as stale as its save time.
func (s *Session) feedOpened(resumed bool) {
	if !resumed {
		s.mu.Lock()
		stale := s.needsResync
		s.needsResync = false
		s.mu.Unlock()
		if !stale {
			return
		}
		s.logger.Info("feed connected after snapshot open, replica needs resync")
	}
	s.resync()
}

// resync refetches the board wholesale. The feed carries no replay
// cursor, so a stale replica can only be reconciled by replacing it. A
// refetch that fails leaves the stale replica in place; per-entity
// absolute events still land, and the next reconnect retries.
func (s *Session) resync() {
	s.mu.Lock()
	lifetime := s.lifetime
	s.mu.Unlock()
	if lifetime == nil || lifetime.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(lifetime, resyncTimeout)
	defer cancel()
	b, err := s.service.FetchBoard(ctx)
	if err != nil {
		s.logger.Error("resync fetch failed, replica may lag until the next reconnect", "error", err)
		return
	}
	if err := s.store.Replace(b); err != nil {
		s.logger.Warn("resync dropped", "error", err)
		return
	}
	s.writeSnapshot()
	s.logger.Info("resynced", "board_id", b.ID)
	s.listener.BoardResynced(s.store.Board())
}

// readSnapshot loads the cached snapshot if one exists, verifies, and
// is fresh enough. Every failure degrades to a cold start.
func (s *Session) readSnapshot() (snapshot.Snapshot, bool) {
	if s.snapshotPath == "" {
		return snapshot.Snapshot{}, false
	}
	snap, usable, err := snapshot.Check(s.snapshotPath, s.cacheMaxAge, s.clock.Now())
	if err != nil {
		s.logger.Warn("snapshot unusable", "path", s.snapshotPath, "error", err)
		return snapshot.Snapshot{}, false
	}
	return snap, usable
}

// writeSnapshot caches the current replica. Failures are logged and
// dropped; the snapshot is an optimization, never a requirement.
func (s *Session) writeSnapshot() {
	if s.snapshotPath == "" {
		return
	}
	snap := snapshot.Snapshot{Board: s.store.Board(), SavedAt: s.clock.Now()}
	if err := snapshot.Write(s.snapshotPath, snap); err != nil {
		s.logger.Warn("snapshot write failed", "path", s.snapshotPath, "error", err)
	}
}

// feedStreamURL joins the feed base with the board's event stream path.
func feedStreamURL(feedBase, boardBase, shareToken string) string {
	base := feedBase
	if base == "" {
		base = boardBase
	}
	return strings.TrimRight(base, "/") + "/api/boards/" + url.PathEscape(shareToken) + "/events"
}

func passwordHeader(password string) http.Header {
	if password == "" {
		return nil
	}
	header := make(http.Header)
	header.Set(boardapi.PasswordHeader, password)
	return header
}

func checkURL(raw, field string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("client: %s is required", field)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("client: invalid %s %q: %w", field, raw, err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("client: %s scheme %q is not one of %s", field, parsed.Scheme, strings.Join(schemes, ", "))
}
