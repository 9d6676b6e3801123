// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Dasi-Technology/fluxboard-sub000/wire"
)

// userPalette assigns display colors by user id. Ids recycle after a
// departure, so a color can reappear on a different person; within one
// connection the id and color are stable.
var userPalette = []wire.Color{
	{R: 0xe5, G: 0x48, B: 0x4d}, // red
	{R: 0xf2, G: 0x8c, B: 0x28}, // orange
	{R: 0xf2, G: 0xc9, B: 0x4c}, // yellow
	{R: 0x4c, G: 0xaf, B: 0x50}, // green
	{R: 0x26, G: 0xa6, B: 0x9a}, // teal
	{R: 0x42, G: 0x85, B: 0xf4}, // blue
	{R: 0x9c, G: 0x5f, B: 0xe0}, // purple
	{R: 0xe8, G: 0x5a, B: 0xa0}, // pink
}

// presenceHub speaks the binary presence protocol over websockets. Each
// connection represents at most one user on one channel: the first join
// frame claims an id, cursor frames fan out to the rest of the channel,
// and a leave frame or a dropped socket releases the id again.
type presenceHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	channels map[uint16]*presenceChannel
}

type presenceChannel struct {
	members map[uint8]*member
}

// member is one joined connection. Writes from the hub's fan-out paths
// interleave with roster replays, so every frame goes out under sendMu.
type member struct {
	conn     *websocket.Conn
	id       uint8
	username string
	color    wire.Color

	sendMu sync.Mutex
}

func newPresenceHub(logger *slog.Logger) *presenceHub {
	return &presenceHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Development tool; browser clients connect from any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		channels: make(map[uint16]*presenceChannel),
	}
}

// handle upgrades the request and runs the connection's read loop until
// the peer goes away. Frames that fail to decode are logged and skipped;
// the connection itself stays up.
func (h *presenceHub) handle(writer http.ResponseWriter, request *http.Request) {
	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		h.logger.Warn("presence upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var (
		channel uint16
		self    *member
	)
	defer func() {
		if self != nil {
			h.drop(channel, self)
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		message, err := wire.Decode(data)
		if err != nil {
			h.logger.Warn("discarding presence frame", "error", err)
			continue
		}
		switch m := message.(type) {
		case wire.Join:
			if self != nil {
				h.logger.Warn("duplicate join on connection", "channel", m.Channel, "username", m.Username)
				continue
			}
			channel = m.Channel
			self = h.join(channel, m.Username, conn)
			if self == nil {
				return
			}
		case wire.CursorUpdate:
			if self == nil {
				continue
			}
			h.broadcast(channel, self, wire.CursorBroadcast{Channel: channel, UserID: self.id, X: m.X, Y: m.Y})
		case wire.Leave:
			if self == nil {
				continue
			}
			h.drop(channel, self)
			self = nil
		case wire.Heartbeat:
			// Keepalive; nothing to do.
		default:
			h.logger.Warn("ignoring service-bound frame from client", "frame", fmt.Sprintf("%T", message))
		}
	}
}

// join registers a connection on a channel under the lowest free id.
// The joiner gets the existing roster replayed, everyone else gets the
// arrival, and both sides get the fresh count. Returns nil if the
// channel has no ids left.
func (h *presenceHub) join(channel uint16, username string, conn *websocket.Conn) *member {
	h.mu.Lock()
	ch := h.channels[channel]
	if ch == nil {
		ch = &presenceChannel{members: make(map[uint8]*member)}
		h.channels[channel] = ch
	}
	id, ok := ch.freeID()
	if !ok {
		h.mu.Unlock()
		h.logger.Warn("presence channel full", "channel", channel)
		return nil
	}
	self := &member{
		conn:     conn,
		id:       id,
		username: username,
		color:    userPalette[int(id)%len(userPalette)],
	}
	ch.members[id] = self
	count := uint8(len(ch.members))
	others := make([]*member, 0, len(ch.members)-1)
	for _, other := range ch.members {
		if other != self {
			others = append(others, other)
		}
	}
	h.mu.Unlock()

	for _, other := range others {
		self.send(h.logger, wire.UserJoined{Channel: channel, UserID: other.id, Username: other.username, Color: other.color})
	}
	self.send(h.logger, wire.PresenceCount{Channel: channel, Count: count})
	arrival := wire.UserJoined{Channel: channel, UserID: id, Username: username, Color: self.color}
	for _, other := range others {
		other.send(h.logger, arrival)
		other.send(h.logger, wire.PresenceCount{Channel: channel, Count: count})
	}
	h.logger.Info("user joined", "channel", channel, "user_id", id, "username", username)
	return self
}

// drop removes a member and tells the rest of the channel. Safe to call
// for a member already removed; an explicit leave frame and the
// connection teardown path can race.
func (h *presenceHub) drop(channel uint16, self *member) {
	h.mu.Lock()
	ch := h.channels[channel]
	if ch == nil || ch.members[self.id] != self {
		h.mu.Unlock()
		return
	}
	delete(ch.members, self.id)
	count := uint8(len(ch.members))
	others := make([]*member, 0, len(ch.members))
	for _, other := range ch.members {
		others = append(others, other)
	}
	if len(ch.members) == 0 {
		delete(h.channels, channel)
	}
	h.mu.Unlock()

	for _, other := range others {
		other.send(h.logger, wire.UserLeft{Channel: channel, UserID: self.id})
		other.send(h.logger, wire.PresenceCount{Channel: channel, Count: count})
	}
	h.logger.Info("user left", "channel", channel, "user_id", self.id, "username", self.username)
}

// broadcast sends a message to every member of a channel except origin.
// The member list is snapshotted under the lock and the writes happen
// outside it, so a slow socket cannot stall the hub.
func (h *presenceHub) broadcast(channel uint16, origin *member, message wire.Message) {
	h.mu.Lock()
	ch := h.channels[channel]
	var targets []*member
	if ch != nil {
		targets = make([]*member, 0, len(ch.members))
		for _, other := range ch.members {
			if other != origin {
				targets = append(targets, other)
			}
		}
	}
	h.mu.Unlock()

	for _, other := range targets {
		other.send(h.logger, message)
	}
}

// freeID returns the lowest unassigned user id. Ids stop one short of
// the full uint8 range so the member count itself always fits in a
// count frame.
func (ch *presenceChannel) freeID() (uint8, bool) {
	for id := 0; id < math.MaxUint8; id++ {
		if _, taken := ch.members[uint8(id)]; !taken {
			return uint8(id), true
		}
	}
	return 0, false
}

// send encodes and writes one frame. Write errors are left for the
// member's own read loop to notice; the peer is likely gone already.
func (m *member) send(logger *slog.Logger, message wire.Message) {
	data, err := wire.Encode(message)
	if err != nil {
		logger.Error("encode presence frame", "error", err)
		return
	}
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if err := m.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		logger.Debug("presence write failed", "user_id", m.id, "error", err)
	}
}
