// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the binary presence protocol spoken between a
// board client and the presence service. Every message is a single frame:
// a 1-byte type tag followed by a fixed-layout payload, all multi-byte
// integers big-endian. Cursor coordinates travel as unsigned 16-bit values
// quantized from the normalized [0, 1] range; usernames travel as
// length-prefixed UTF-8 of at most [MaxUsernameLength] bytes.
//
// [Encode] turns a typed message into its wire bytes and [Decode] does the
// reverse. Decoding is strict: a frame whose length does not match its
// type's layout exactly yields a [*ProtocolError] and no partial message.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Message type tags for the presence protocol.
const (
	// MessageTypeCursorUpdate carries this client's cursor position.
	// Client→service only. Payload is 6 bytes: channel (uint16), then
	// quantized x and y (uint16 each).
	MessageTypeCursorUpdate byte = 0x01

	// MessageTypeCursorBroadcast carries another user's cursor position.
	// Service→client only. Payload is 7 bytes: channel (uint16), user id
	// (uint8), then quantized x and y (uint16 each).
	MessageTypeCursorBroadcast byte = 0x02

	// MessageTypeJoin announces this client on a board channel.
	// Client→service only. Payload is channel (uint16), username length
	// (uint8), then the username bytes.
	MessageTypeJoin byte = 0x03

	// MessageTypeLeave announces an orderly departure from a board
	// channel. Client→service only. Payload is 2 bytes: channel (uint16).
	MessageTypeLeave byte = 0x04

	// MessageTypeUserJoined announces another user's arrival.
	// Service→client only. Payload is channel (uint16), user id (uint8),
	// username length (uint8), the username bytes, then the user's
	// display color as 3 bytes RGB.
	MessageTypeUserJoined byte = 0x05

	// MessageTypeUserLeft announces another user's departure.
	// Service→client only. Payload is 3 bytes: channel (uint16) and user
	// id (uint8).
	MessageTypeUserLeft byte = 0x06

	// MessageTypePresenceCount carries the authoritative number of users
	// on a board channel. Service→client only. Payload is 3 bytes:
	// channel (uint16) and count (uint8).
	MessageTypePresenceCount byte = 0x07

	// MessageTypeHeartbeat is a 1-byte keepalive frame with no payload.
	// Client→service only.
	MessageTypeHeartbeat byte = 0x08
)

// MaxUsernameLength is the maximum encoded username size in UTF-8 bytes.
// Encoding a longer name fails; names are never truncated on the wire.
const MaxUsernameLength = 32

// coordinateScale maps the normalized [0, 1] coordinate range onto the
// full uint16 range. Worst-case reconstruction error is 1/65535.
const coordinateScale = 65535

// Message is a presence protocol message. The concrete types are
// [CursorUpdate], [CursorBroadcast], [Join], [Leave], [UserJoined],
// [UserLeft], [PresenceCount], and [Heartbeat].
type Message interface {
	// wireType returns the message's type tag.
	wireType() byte
}

// Color is a user's display color as served by the presence service.
type Color struct {
	R, G, B uint8
}

// CursorUpdate is this client's cursor position on a board channel.
// X and Y are normalized to [0, 1]; values outside the range are clamped
// during encoding.
type CursorUpdate struct {
	Channel uint16
	X, Y    float64
}

// CursorBroadcast is another user's cursor position on a board channel.
// X and Y are reconstructed into [0, 1] from the quantized wire values.
type CursorBroadcast struct {
	Channel uint16
	UserID  uint8
	X, Y    float64
}

// Join announces this client on a board channel under a display name.
type Join struct {
	Channel  uint16
	Username string
}

// Leave announces an orderly departure from a board channel.
type Leave struct {
	Channel uint16
}

// UserJoined announces another user's arrival on a board channel.
type UserJoined struct {
	Channel  uint16
	UserID   uint8
	Username string
	Color    Color
}

// UserLeft announces another user's departure from a board channel.
type UserLeft struct {
	Channel uint16
	UserID  uint8
}

// PresenceCount is the authoritative user count for a board channel.
type PresenceCount struct {
	Channel uint16
	Count   uint8
}

// Heartbeat is the 1-byte keepalive frame.
type Heartbeat struct{}

func (CursorUpdate) wireType() byte    { return MessageTypeCursorUpdate }
func (CursorBroadcast) wireType() byte { return MessageTypeCursorBroadcast }
func (Join) wireType() byte            { return MessageTypeJoin }
func (Leave) wireType() byte           { return MessageTypeLeave }
func (UserJoined) wireType() byte      { return MessageTypeUserJoined }
func (UserLeft) wireType() byte        { return MessageTypeUserLeft }
func (PresenceCount) wireType() byte   { return MessageTypePresenceCount }
func (Heartbeat) wireType() byte       { return MessageTypeHeartbeat }

// ProtocolError describes an inbound frame that violates the wire format:
// an unknown type tag, a length that does not match the type's layout, or
// a username length field pointing past the frame. The offending frame is
// unusable but the connection itself is fine; callers log and discard.
type ProtocolError struct {
	// Type is the frame's type tag, or 0 for an empty frame.
	Type byte

	// Length is the total length of the offending frame.
	Length int

	// Reason describes the violation.
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: %s frame (%d bytes): %s", messageTypeName(e.Type), e.Length, e.Reason)
}

// messageTypeName returns a human-readable name for a type tag.
func messageTypeName(messageType byte) string {
	switch messageType {
	case MessageTypeCursorUpdate:
		return "cursor-update"
	case MessageTypeCursorBroadcast:
		return "cursor-broadcast"
	case MessageTypeJoin:
		return "join"
	case MessageTypeLeave:
		return "leave"
	case MessageTypeUserJoined:
		return "user-joined"
	case MessageTypeUserLeft:
		return "user-left"
	case MessageTypePresenceCount:
		return "presence-count"
	case MessageTypeHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("unknown(0x%02x)", messageType)
	}
}

// quantizeCoordinate maps a normalized coordinate onto the uint16 wire
// range. Out-of-range inputs clamp to the nearest bound; NaN clamps to 0.
func quantizeCoordinate(v float64) uint16 {
	if math.IsNaN(v) || v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return uint16(math.Floor(v * coordinateScale))
}

// dequantizeCoordinate reconstructs a normalized coordinate from its
// uint16 wire value.
func dequantizeCoordinate(q uint16) float64 {
	return float64(q) / coordinateScale
}

// Encode returns the wire bytes for a message. The only encode-time
// failure is a username longer than [MaxUsernameLength] bytes.
func Encode(message Message) ([]byte, error) {
	switch m := message.(type) {
	case CursorUpdate:
		buf := make([]byte, 7)
		buf[0] = MessageTypeCursorUpdate
		binary.BigEndian.PutUint16(buf[1:3], m.Channel)
		binary.BigEndian.PutUint16(buf[3:5], quantizeCoordinate(m.X))
		binary.BigEndian.PutUint16(buf[5:7], quantizeCoordinate(m.Y))
		return buf, nil

	case CursorBroadcast:
		buf := make([]byte, 8)
		buf[0] = MessageTypeCursorBroadcast
		binary.BigEndian.PutUint16(buf[1:3], m.Channel)
		buf[3] = m.UserID
		binary.BigEndian.PutUint16(buf[4:6], quantizeCoordinate(m.X))
		binary.BigEndian.PutUint16(buf[6:8], quantizeCoordinate(m.Y))
		return buf, nil

	case Join:
		if len(m.Username) > MaxUsernameLength {
			return nil, fmt.Errorf("wire: username length %d exceeds maximum %d", len(m.Username), MaxUsernameLength)
		}
		buf := make([]byte, 4+len(m.Username))
		buf[0] = MessageTypeJoin
		binary.BigEndian.PutUint16(buf[1:3], m.Channel)
		buf[3] = byte(len(m.Username))
		copy(buf[4:], m.Username)
		return buf, nil

	case Leave:
		buf := make([]byte, 3)
		buf[0] = MessageTypeLeave
		binary.BigEndian.PutUint16(buf[1:3], m.Channel)
		return buf, nil

	case UserJoined:
		if len(m.Username) > MaxUsernameLength {
			return nil, fmt.Errorf("wire: username length %d exceeds maximum %d", len(m.Username), MaxUsernameLength)
		}
		buf := make([]byte, 8+len(m.Username))
		buf[0] = MessageTypeUserJoined
		binary.BigEndian.PutUint16(buf[1:3], m.Channel)
		buf[3] = m.UserID
		buf[4] = byte(len(m.Username))
		copy(buf[5:], m.Username)
		buf[5+len(m.Username)] = m.Color.R
		buf[6+len(m.Username)] = m.Color.G
		buf[7+len(m.Username)] = m.Color.B
		return buf, nil

	case UserLeft:
		buf := make([]byte, 4)
		buf[0] = MessageTypeUserLeft
		binary.BigEndian.PutUint16(buf[1:3], m.Channel)
		buf[3] = m.UserID
		return buf, nil

	case PresenceCount:
		buf := make([]byte, 4)
		buf[0] = MessageTypePresenceCount
		binary.BigEndian.PutUint16(buf[1:3], m.Channel)
		buf[3] = m.Count
		return buf, nil

	case Heartbeat:
		return []byte{MessageTypeHeartbeat}, nil

	default:
		return nil, fmt.Errorf("wire: cannot encode message type %T", message)
	}
}

// Decode parses one frame into its typed message. Validation is strict:
// the frame length must match the type's layout exactly, and username
// length fields must describe the remaining bytes precisely. Any mismatch
// returns a [*ProtocolError].
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, &ProtocolError{Reason: "empty frame"}
	}
	messageType := data[0]

	// fail is the strict-validation exit: one frame, one error, nothing
	// partially decoded.
	fail := func(reason string) (Message, error) {
		return nil, &ProtocolError{Type: messageType, Length: len(data), Reason: reason}
	}

	switch messageType {
	case MessageTypeCursorUpdate:
		if len(data) != 7 {
			return fail("want 7 bytes")
		}
		return CursorUpdate{
			Channel: binary.BigEndian.Uint16(data[1:3]),
			X:       dequantizeCoordinate(binary.BigEndian.Uint16(data[3:5])),
			Y:       dequantizeCoordinate(binary.BigEndian.Uint16(data[5:7])),
		}, nil

	case MessageTypeCursorBroadcast:
		if len(data) != 8 {
			return fail("want 8 bytes")
		}
		return CursorBroadcast{
			Channel: binary.BigEndian.Uint16(data[1:3]),
			UserID:  data[3],
			X:       dequantizeCoordinate(binary.BigEndian.Uint16(data[4:6])),
			Y:       dequantizeCoordinate(binary.BigEndian.Uint16(data[6:8])),
		}, nil

	case MessageTypeJoin:
		if len(data) < 4 {
			return fail("want at least 4 bytes")
		}
		nameLength := int(data[3])
		if nameLength > MaxUsernameLength {
			return fail(fmt.Sprintf("username length %d exceeds maximum %d", nameLength, MaxUsernameLength))
		}
		if len(data) != 4+nameLength {
			return fail(fmt.Sprintf("want %d bytes for username length %d", 4+nameLength, nameLength))
		}
		return Join{
			Channel:  binary.BigEndian.Uint16(data[1:3]),
			Username: string(data[4 : 4+nameLength]),
		}, nil

	case MessageTypeLeave:
		if len(data) != 3 {
			return fail("want 3 bytes")
		}
		return Leave{Channel: binary.BigEndian.Uint16(data[1:3])}, nil

	case MessageTypeUserJoined:
		if len(data) < 8 {
			return fail("want at least 8 bytes")
		}
		nameLength := int(data[4])
		if nameLength > MaxUsernameLength {
			return fail(fmt.Sprintf("username length %d exceeds maximum %d", nameLength, MaxUsernameLength))
		}
		if len(data) != 8+nameLength {
			return fail(fmt.Sprintf("want %d bytes for username length %d", 8+nameLength, nameLength))
		}
		return UserJoined{
			Channel:  binary.BigEndian.Uint16(data[1:3]),
			UserID:   data[3],
			Username: string(data[5 : 5+nameLength]),
			Color: Color{
				R: data[5+nameLength],
				G: data[6+nameLength],
				B: data[7+nameLength],
			},
		}, nil

	case MessageTypeUserLeft:
		if len(data) != 4 {
			return fail("want 4 bytes")
		}
		return UserLeft{
			Channel: binary.BigEndian.Uint16(data[1:3]),
			UserID:  data[3],
		}, nil

	case MessageTypePresenceCount:
		if len(data) != 4 {
			return fail("want 4 bytes")
		}
		return PresenceCount{
			Channel: binary.BigEndian.Uint16(data[1:3]),
			Count:   data[3],
		}, nil

	case MessageTypeHeartbeat:
		if len(data) != 1 {
			return fail("want 1 byte")
		}
		return Heartbeat{}, nil

	default:
		return fail("unknown message type")
	}
}
