// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"sync"
	"time"

	"github.com/Dasi-Technology/fluxboard-sub000/lib/clock"
)

// cursorThrottle coalesces cursor updates to at most one send per
// window. The first update of a burst arms a timer for one full window;
// updates arriving while the timer is armed overwrite the pending
// coordinates. When the timer fires, the latest pair is the one
// transmitted. Coordinates are deferred, never dropped.
type cursorThrottle struct {
	clock    clock.Clock
	interval time.Duration
	send     func(x, y float64)

	mu      sync.Mutex
	pending *clock.Timer
	x, y    float64
	stopped bool
}

func newCursorThrottle(clk clock.Clock, interval time.Duration, send func(x, y float64)) *cursorThrottle {
	return &cursorThrottle{clock: clk, interval: interval, send: send}
}

// Update records the latest coordinates and arms the window timer if no
// send is already scheduled.
func (t *cursorThrottle) Update(x, y float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.x, t.y = x, y
	if t.pending != nil {
		return
	}
	t.pending = t.clock.AfterFunc(t.interval, t.fire)
}

func (t *cursorThrottle) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	x, y := t.x, t.y
	t.mu.Unlock()
	t.send(x, y)
}

// Stop cancels any scheduled send and refuses further updates.
func (t *cursorThrottle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
