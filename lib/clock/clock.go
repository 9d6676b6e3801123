// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts timer and wall-time access so reconnect
// backoff, heartbeats, and cursor throttling can be driven
// deterministically in tests. Production code injects [Real]; tests
// inject [Fake] and step time with [FakeClock.Advance].
package clock

import "time"

// Clock is the time surface the sync core is allowed to touch. Code that
// would call time.Now, time.After, time.AfterFunc, or time.NewTicker
// takes a Clock instead.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once, after d has elapsed.
	// A non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc schedules f to run after d. The returned Timer can
	// cancel the pending call. A non-positive d runs f before
	// AfterFunc returns on a fake clock, and in a new goroutine on the
	// real one.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering on C every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a cancellable scheduled call created by [Clock.AfterFunc].
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. Reports whether the call was still
// pending; false means it already ran or was already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks on C. C is buffered with capacity 1;
// ticks a slow consumer misses are dropped, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns the Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
