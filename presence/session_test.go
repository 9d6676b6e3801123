// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Dasi-Technology/fluxboard-sub000/channel"
	"github.com/Dasi-Technology/fluxboard-sub000/lib/clock"
	"github.com/Dasi-Technology/fluxboard-sub000/lib/testutil"
	"github.com/Dasi-Technology/fluxboard-sub000/wire"
)

const eventTimeout = 5 * time.Second

// coordinateTolerance is the quantization error bound of the u16 wire
// coordinates.
const coordinateTolerance = 1.0 / 65535

type fakeTransport struct {
	mu      sync.Mutex
	dials   int
	dialed  chan int
	connect func(dial int) (channel.Conn, error)
}

func newFakeTransport(connect func(dial int) (channel.Conn, error)) *fakeTransport {
	return &fakeTransport{
		dialed:  make(chan int, 16),
		connect: connect,
	}
}

func (t *fakeTransport) Connect(context.Context) (channel.Conn, error) {
	t.mu.Lock()
	t.dials++
	dial := t.dials
	t.mu.Unlock()
	t.dialed <- dial
	return t.connect(dial)
}

type fakeConn struct {
	frames chan channel.Frame
	sent   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan channel.Frame, 16),
		sent:   make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Receive() (channel.Frame, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.closed:
		return channel.Frame{}, errors.New("connection reset")
	}
}

func (c *fakeConn) Send(data []byte) error {
	select {
	case c.sent <- data:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.fail()
	return nil
}

func (c *fakeConn) fail() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// recordingListener forwards every notification onto a channel so tests
// can assert order and content.
type recordingListener struct {
	joined chan User
	left   chan User
	moved  chan User
	counts chan int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		joined: make(chan User, 16),
		left:   make(chan User, 16),
		moved:  make(chan User, 16),
		counts: make(chan int, 16),
	}
}

func (l *recordingListener) UserJoined(u User)          { l.joined <- u }
func (l *recordingListener) UserLeft(u User)            { l.left <- u }
func (l *recordingListener) CursorMoved(u User)         { l.moved <- u }
func (l *recordingListener) PresenceCountChanged(c int) { l.counts <- c }

func encodeFrame(t *testing.T, m wire.Message) channel.Frame {
	t.Helper()
	data, err := wire.Encode(m)
	if err != nil {
		t.Fatalf("encode %T: %v", m, err)
	}
	return channel.Frame{Data: data}
}

func startSession(t *testing.T, fake *clock.FakeClock, transport channel.Transport) (*Session, *recordingListener) {
	t.Helper()
	listener := newRecordingListener()
	session, err := New(Config{
		Transport: transport,
		Channel:   7,
		Username:  "Ada",
		Listener:  listener,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:     fake,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(session.Close)
	return session, listener
}

// requireJoin consumes the join frame a fresh connection must carry.
func requireJoin(t *testing.T, conn *fakeConn) {
	t.Helper()
	data := testutil.RequireReceive(t, conn.sent, eventTimeout, "join frame")
	message, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("decode join frame: %v", err)
	}
	join, ok := message.(wire.Join)
	if !ok {
		t.Fatalf("first frame: got %#v, want Join", message)
	}
	if join.Channel != 7 || join.Username != "Ada" {
		t.Errorf("join: got channel %d user %q, want 7 %q", join.Channel, join.Username, "Ada")
	}
}

func TestSessionJoinsOnOpen(t *testing.T) {
	t.Parallel()
	conn := newFakeConn()
	transport := newFakeTransport(func(int) (channel.Conn, error) { return conn, nil })
	session, _ := startSession(t, clock.Fake(time.Unix(0, 0)), transport)

	requireJoin(t, conn)
	if got := session.ConnectionState(); got != channel.StateConnected {
		t.Errorf("state: got %v, want connected", got)
	}
}

func TestSessionTracksRoster(t *testing.T) {
	t.Parallel()
	conn := newFakeConn()
	transport := newFakeTransport(func(int) (channel.Conn, error) { return conn, nil })
	session, listener := startSession(t, clock.Fake(time.Unix(0, 0)), transport)
	requireJoin(t, conn)

	conn.frames <- encodeFrame(t, wire.UserJoined{Channel: 7, UserID: 5, Username: "Grace", Color: wire.Color{R: 0xff, G: 0x20, B: 0x10}})
	joined := testutil.RequireReceive(t, listener.joined, eventTimeout, "user 5 joined")
	if joined.ID != 5 || joined.Name != "Grace" || joined.Color.R != 0xff {
		t.Errorf("joined user: got %#v", joined)
	}
	if joined.HasCursor {
		t.Error("new user reports a cursor before any broadcast")
	}

	conn.frames <- encodeFrame(t, wire.UserJoined{Channel: 7, UserID: 9, Username: "Linus", Color: wire.Color{G: 0x80}})
	testutil.RequireReceive(t, listener.joined, eventTimeout, "user 9 joined")

	conn.frames <- encodeFrame(t, wire.CursorBroadcast{Channel: 7, UserID: 5, X: 0.5, Y: 0.25})
	moved := testutil.RequireReceive(t, listener.moved, eventTimeout, "user 5 cursor")
	if moved.ID != 5 || !moved.HasCursor {
		t.Fatalf("cursor event: got %#v", moved)
	}
	if math.Abs(moved.CursorX-0.5) > coordinateTolerance || math.Abs(moved.CursorY-0.25) > coordinateTolerance {
		t.Errorf("cursor coords: got (%v, %v), want (0.5, 0.25) within tolerance", moved.CursorX, moved.CursorY)
	}

	conn.frames <- encodeFrame(t, wire.UserLeft{Channel: 7, UserID: 9})
	left := testutil.RequireReceive(t, listener.left, eventTimeout, "user 9 left")
	if left.ID != 9 {
		t.Errorf("left user: got id %d, want 9", left.ID)
	}

	conn.frames <- encodeFrame(t, wire.PresenceCount{Channel: 7, Count: 3})
	if got := testutil.RequireReceive(t, listener.counts, eventTimeout, "presence count"); got != 3 {
		t.Errorf("count: got %d, want 3", got)
	}
	if got := session.Count(); got != 3 {
		t.Errorf("Count(): got %d, want 3", got)
	}

	users := session.Users()
	if len(users) != 1 || users[0].ID != 5 {
		t.Fatalf("roster: got %#v, want just user 5", users)
	}
	if !users[0].HasCursor {
		t.Error("user 5 lost its cursor")
	}
}

func TestCursorBroadcastForUnknownUserIgnored(t *testing.T) {
	t.Parallel()
	conn := newFakeConn()
	transport := newFakeTransport(func(int) (channel.Conn, error) { return conn, nil })
	session, listener := startSession(t, clock.Fake(time.Unix(0, 0)), transport)
	requireJoin(t, conn)

	conn.frames <- encodeFrame(t, wire.CursorBroadcast{Channel: 7, UserID: 77, X: 0.1, Y: 0.2})
	// A later join acts as an ordering barrier: once it is observed,
	// the broadcast before it has been fully handled.
	conn.frames <- encodeFrame(t, wire.UserJoined{Channel: 7, UserID: 5, Username: "Grace"})
	testutil.RequireReceive(t, listener.joined, eventTimeout, "barrier join")

	select {
	case moved := <-listener.moved:
		t.Fatalf("cursor event for unknown user: %#v", moved)
	default:
	}
	if users := session.Users(); len(users) != 1 || users[0].ID != 5 {
		t.Errorf("roster: got %#v, want just user 5", users)
	}
}

func TestCursorThrottleCoalescesBurst(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(time.Unix(0, 0))
	conn := newFakeConn()
	transport := newFakeTransport(func(int) (channel.Conn, error) { return conn, nil })
	session, _ := startSession(t, fake, transport)
	requireJoin(t, conn)
	fake.WaitForTimers(1) // heartbeat ticker is registered

	session.UpdateCursor(0.1, 0.1)
	session.UpdateCursor(0.2, 0.2)
	session.UpdateCursor(0.9, 0.6)

	fake.WaitForTimers(2)
	fake.Advance(50 * time.Millisecond)

	data := testutil.RequireReceive(t, conn.sent, eventTimeout, "throttled cursor frame")
	message, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("decode cursor frame: %v", err)
	}
	update, ok := message.(wire.CursorUpdate)
	if !ok {
		t.Fatalf("sent frame: got %#v, want CursorUpdate", message)
	}
	if math.Abs(update.X-0.9) > coordinateTolerance || math.Abs(update.Y-0.6) > coordinateTolerance {
		t.Errorf("coords: got (%v, %v), want last call's (0.9, 0.6)", update.X, update.Y)
	}
	select {
	case extra := <-conn.sent:
		t.Fatalf("burst produced a second frame: %v", extra)
	default:
	}

	// The next burst arms a fresh window.
	session.UpdateCursor(0.3, 0.3)
	fake.WaitForTimers(2)
	fake.Advance(50 * time.Millisecond)
	testutil.RequireReceive(t, conn.sent, eventTimeout, "second window frame")
}

func TestMalformedFrameDiscardedWithoutDrop(t *testing.T) {
	t.Parallel()
	conn := newFakeConn()
	transport := newFakeTransport(func(int) (channel.Conn, error) { return conn, nil })
	session, listener := startSession(t, clock.Fake(time.Unix(0, 0)), transport)
	requireJoin(t, conn)

	conn.frames <- channel.Frame{Data: []byte{0x01, 0x00}} // truncated cursor-update
	conn.frames <- encodeFrame(t, wire.UserJoined{Channel: 7, UserID: 5, Username: "Grace"})

	testutil.RequireReceive(t, listener.joined, eventTimeout, "join after bad frame")
	if got := session.ConnectionState(); got != channel.StateConnected {
		t.Errorf("state after bad frame: got %v, want connected", got)
	}
}

func TestCloseSendsLeaveAndEmptiesRoster(t *testing.T) {
	t.Parallel()
	conn := newFakeConn()
	transport := newFakeTransport(func(int) (channel.Conn, error) { return conn, nil })
	session, listener := startSession(t, clock.Fake(time.Unix(0, 0)), transport)
	requireJoin(t, conn)

	conn.frames <- encodeFrame(t, wire.UserJoined{Channel: 7, UserID: 5, Username: "Grace"})
	testutil.RequireReceive(t, listener.joined, eventTimeout, "user joined")

	session.Close()

	data := testutil.RequireReceive(t, conn.sent, eventTimeout, "leave frame")
	message, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("decode leave frame: %v", err)
	}
	if leave, ok := message.(wire.Leave); !ok || leave.Channel != 7 {
		t.Fatalf("frame on close: got %#v, want Leave on channel 7", message)
	}
	if users := session.Users(); len(users) != 0 {
		t.Errorf("roster after close: got %#v, want empty", users)
	}
	if got := session.ConnectionState(); got != channel.StateDisconnected {
		t.Errorf("state after close: got %v, want disconnected", got)
	}
}

func TestDropClearsRosterAndRejoins(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(time.Unix(0, 0))
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	transport := newFakeTransport(func(dial int) (channel.Conn, error) { return conns[dial-1], nil })
	_, listener := startSession(t, fake, transport)
	requireJoin(t, conns[0])

	conns[0].frames <- encodeFrame(t, wire.UserJoined{Channel: 7, UserID: 5, Username: "Grace"})
	testutil.RequireReceive(t, listener.joined, eventTimeout, "user joined")
	conns[0].frames <- encodeFrame(t, wire.PresenceCount{Channel: 7, Count: 2})
	testutil.RequireReceive(t, listener.counts, eventTimeout, "count")

	conns[0].fail()

	left := testutil.RequireReceive(t, listener.left, eventTimeout, "roster cleared on drop")
	if left.ID != 5 {
		t.Errorf("cleared user: got id %d, want 5", left.ID)
	}
	if got := testutil.RequireReceive(t, listener.counts, eventTimeout, "count reset"); got != 0 {
		t.Errorf("count after drop: got %d, want 0", got)
	}

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	testutil.RequireReceive(t, transport.dialed, eventTimeout, "redial")
	requireJoin(t, conns[1])
}

func TestOverlongUsernameFailsConstruction(t *testing.T) {
	t.Parallel()
	_, err := New(Config{
		Transport: newFakeTransport(func(int) (channel.Conn, error) { return newFakeConn(), nil }),
		Channel:   7,
		Username:  "this-username-is-way-over-the-32-byte-limit",
		Listener:  newRecordingListener(),
	})
	if err == nil {
		t.Fatal("New with overlong username: got nil error")
	}
}
