// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// pingInterval paces the stream's comment keepalive. Clients ignore
// comment lines; intermediaries see traffic and keep the connection.
const pingInterval = 15 * time.Second

type streamEvent struct {
	name string
	data []byte
}

// feedBroker fans board mutations out to every open event stream for
// that board. Subscribers get a buffered channel; one that stops
// draining loses events rather than blocking the publisher, which is
// the same contract as a dropped connection and triggers the same
// client-side resync.
type feedBroker struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]map[chan streamEvent]struct{}
}

func newFeedBroker(logger *slog.Logger) *feedBroker {
	return &feedBroker{
		logger: logger,
		subs:   make(map[string]map[chan streamEvent]struct{}),
	}
}

func (b *feedBroker) publish(token, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("encode feed event", "event", name, "error", err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[token] {
		select {
		case sub <- streamEvent{name: name, data: data}:
		default:
			b.logger.Warn("dropping feed event for slow subscriber", "event", name, "token", token)
		}
	}
}

func (b *feedBroker) subscribe(token string) chan streamEvent {
	sub := make(chan streamEvent, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[token] == nil {
		b.subs[token] = make(map[chan streamEvent]struct{})
	}
	b.subs[token][sub] = struct{}{}
	return sub
}

func (b *feedBroker) unsubscribe(token string, sub chan streamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[token], sub)
	if len(b.subs[token]) == 0 {
		delete(b.subs, token)
	}
}

// streamEvents serves one board's change feed as server-sent events:
// "event:" carries the name, "data:" the JSON payload, and bare
// comments keep the connection warm. The stream has no replay cursor;
// a client that reconnects refetches the board instead.
func (s *simulator) streamEvents(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	flusher, ok := writer.(http.Flusher)
	if !ok {
		writeAPIError(writer, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot flush")
		return
	}

	// Subscribe before the response goes out: once the client sees the
	// 200 it assumes every subsequent mutation reaches this stream.
	events := s.feed.subscribe(token)
	defer s.feed.unsubscribe(token, events)
	s.logger.Info("feed subscriber connected", "token", token)
	defer s.logger.Info("feed subscriber disconnected", "token", token)

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.WriteHeader(http.StatusOK)
	fmt.Fprint(writer, ": connected\n\n")
	flusher.Flush()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-request.Context().Done():
			return
		case event := <-events:
			fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", event.name, event.data)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprint(writer, ": ping\n\n")
			flusher.Flush()
		}
	}
}
