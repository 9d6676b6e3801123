// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Frame is one inbound message. Name is set by named-event transports
// (the change feed); the binary presence transport leaves it empty.
type Frame struct {
	Name string
	Data []byte
}

// Transport dials one connection attempt. The [Channel] calls Connect
// again for every reconnect, so implementations hold no per-connection
// state.
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

// Conn is one established connection. Receive blocks until a frame
// arrives or the connection dies; the [Channel] treats any receive
// error as a drop. Close must unblock a pending Receive and tolerate
// being called more than once, from more than one goroutine.
type Conn interface {
	Receive() (Frame, error)
	Send(data []byte) error
	Close() error
}

// WebSocketTransport dials a duplex websocket connection carrying
// binary frames. Used for the presence service.
type WebSocketTransport struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header is attached to the handshake request.
	Header http.Header
}

func (t *WebSocketTransport) Connect(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("channel: dial %s: %s: %w", t.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("channel: dial %s: %w", t.URL, err)
	}
	return &webSocketConn{conn: conn}, nil
}

// webSocketConn serializes writes because the heartbeat and the
// application may send concurrently; gorilla allows one writer at a
// time.
type webSocketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *webSocketConn) Receive() (Frame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: data}, nil
}

func (c *webSocketConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *webSocketConn) Close() error {
	return c.conn.Close()
}

var errServerPushOnly = errors.New("channel: transport is server-push only")

// SSETransport consumes a text/event-stream endpoint. Each event
// becomes one [Frame] with the event name and the data payload. Used
// for the change feed; sending is not supported.
type SSETransport struct {
	// URL is the stream endpoint.
	URL string

	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client

	// Header is attached to the stream request.
	Header http.Header
}

func (t *SSETransport) Connect(ctx context.Context) (Conn, error) {
	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("channel: stream request for %s: %w", t.URL, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for name, values := range t.Header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("channel: connect stream %s: %w", t.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("channel: stream %s returned %s", t.URL, resp.Status)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseConn{body: resp.Body, scanner: scanner}, nil
}

type sseConn struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Receive parses the next server-sent event: "event:" and "data:"
// lines accumulated until a blank line. Comment lines (leading colon)
// keep the stream alive and are discarded.
func (c *sseConn) Receive() (Frame, error) {
	var name string
	var data []string
	for c.scanner.Scan() {
		line := c.scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				name = ""
				continue
			}
			return Frame{Name: name, Data: []byte(strings.Join(data, "\n"))}, nil
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimPrefix(strings.TrimPrefix(line, "event:"), " ")
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := c.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

func (c *sseConn) Send([]byte) error {
	return errServerPushOnly
}

func (c *sseConn) Close() error {
	return c.body.Close()
}
