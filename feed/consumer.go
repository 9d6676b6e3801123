// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed consumes the board's change feed: it decodes stream
// frames into typed events and folds them into the local replica.
//
// The feed is the authoritative leg of the sync loop. Optimistic
// mutations guess; feed events correct. Every event carries absolute
// post-mutation values, so replaying or double-delivering an event is
// harmless.
package feed

import (
	"errors"
	"log/slog"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
	"github.com/Dasi-Technology/fluxboard-sub000/channel"
)

// Config carries the consumer's dependencies and hooks.
type Config struct {
	// Store receives the applied events.
	Store *board.Store

	// Logger receives skip and failure diagnostics. Defaults to
	// [slog.Default].
	Logger *slog.Logger

	// OnApplied, if set, runs after an event has mutated the store.
	OnApplied func(Event)

	// OnOpen, if set, runs when the feed connection is established.
	// resumed is false on the channel's first connection and true after
	// every drop. Events published while the feed was down are gone for
	// good, so a resumed owner refetches the board wholesale; an owner
	// that started from stale state resyncs on the first connection
	// too.
	OnOpen func(resumed bool)

	// OnFailed, if set, runs when the feed channel gives up
	// reconnecting.
	OnFailed func(error)
}

// Consumer turns the change feed into replica mutations. It is the
// channel handler for the feed connection: frames become typed events
// and fold into the store, and lifecycle transitions surface through
// the configured hooks.
//
// Construct with [New]. [Consumer.HandleEvent] is only ever invoked
// from the channel's event goroutine, so the consumer needs no locking
// of its own.
type Consumer struct {
	store  *board.Store
	logger *slog.Logger

	onApplied func(Event)
	onOpen    func(resumed bool)
	onFailed  func(error)
}

// New returns a consumer folding feed frames into config.Store.
func New(config Config) *Consumer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		store:     config.Store,
		logger:    logger,
		onApplied: config.OnApplied,
		onOpen:    config.OnOpen,
		onFailed:  config.OnFailed,
	}
}

// HandleEvent dispatches one channel event. Pass it to the feed
// channel's [channel.Config] as the handler.
func (c *Consumer) HandleEvent(event channel.Event) {
	switch e := event.(type) {
	case channel.Opened:
		if e.Resumed {
			c.logger.Info("feed resumed, replica needs resync")
		}
		if c.onOpen != nil {
			c.onOpen(e.Resumed)
		}
	case channel.Message:
		c.consume(e.Frame)
	case channel.Closed:
		c.logger.Info("feed connection dropped", "error", e.Err)
	case channel.Failed:
		c.logger.Error("feed connection failed", "error", e.Err)
		if c.onFailed != nil {
			c.onFailed(e.Err)
		}
	}
}

func (c *Consumer) consume(frame channel.Frame) {
	event, err := ParseEvent(frame.Name, frame.Data)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			c.logger.Warn("skipping unknown feed event", "event", frame.Name)
		} else {
			c.logger.Warn("skipping malformed feed event", "event", frame.Name, "error", err)
		}
		return
	}
	if err := Apply(c.store, event); err != nil {
		switch {
		case errors.Is(err, board.ErrNotFound):
			// The entity is already gone locally; nothing left to do.
			c.logger.Debug("feed event already converged", "event", frame.Name, "error", err)
		case errors.Is(err, board.ErrClosed):
			c.logger.Debug("feed event after store teardown", "event", frame.Name)
		default:
			c.logger.Warn("feed event not applied", "event", frame.Name, "error", err)
		}
		return
	}
	if c.onApplied != nil {
		c.onApplied(event)
	}
}
