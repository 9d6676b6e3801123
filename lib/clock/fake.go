// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Nothing fires until
// [FakeClock.Advance] moves the clock past a deadline.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic [Clock] for tests. Time moves only under
// [FakeClock.Advance], which fires due timers in deadline order and runs
// AfterFunc callbacks synchronously on the advancing goroutine. Do not
// call Advance from inside a callback.
//
// Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*scheduled
	changed *sync.Cond
}

// scheduled is one registered timer or ticker.
type scheduled struct {
	deadline time.Time

	// ch delivers the fire time for After and Ticker entries; nil for
	// AfterFunc entries.
	ch chan time.Time

	// run is the AfterFunc callback; nil for channel entries.
	run func()

	// every is the ticker period; zero for one-shot entries.
	every time.Duration

	stopped bool
	fired   bool
}

// Now returns the frozen current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives when the clock advances past d
// from now. A non-positive d delivers immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.register(&scheduled{deadline: c.now.Add(d), ch: ch})
	return ch
}

// AfterFunc schedules f to run when the clock advances past d from now.
// A non-positive d runs f synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &scheduled{deadline: c.now.Add(d), run: f}
	c.register(entry)
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if entry.stopped || entry.fired {
			return false
		}
		entry.stopped = true
		return true
	}}
}

// NewTicker returns a Ticker firing every d of advanced time. Panics if
// d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	entry := &scheduled{deadline: c.now.Add(d), ch: ch, every: d}
	c.register(entry)
	return &Ticker{C: ch, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entry.stopped = true
	}}
}

// register adds an entry and wakes WaitForTimers callers. Must be called
// with c.mu held.
func (c *FakeClock) register(entry *scheduled) {
	c.pending = append(c.pending, entry)
	c.changed.Broadcast()
}

// Advance moves the clock forward by d, firing every due entry in
// deadline order. A ticker spanning several periods fires once per
// period; ticks nobody consumed in time are dropped, like time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		entry := c.takeNextDue(target)
		if entry == nil {
			return
		}
		if entry.run != nil {
			entry.run()
			continue
		}
		select {
		case entry.ch <- target:
		default:
		}
	}
}

// takeNextDue removes and returns the earliest-deadline live entry due
// at or before target, rescheduling tickers for their next period.
// Returns nil when nothing further is due.
func (c *FakeClock) takeNextDue(target time.Time) *scheduled {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := -1
	for i, entry := range c.pending {
		if entry.stopped || entry.deadline.After(target) {
			continue
		}
		if next < 0 || entry.deadline.Before(c.pending[next].deadline) {
			next = i
		}
	}
	if next < 0 {
		c.compact()
		return nil
	}

	entry := c.pending[next]
	if entry.every > 0 {
		// Tickers stay registered; push the deadline one period out so
		// an advance spanning several periods fires once per period.
		entry.deadline = entry.deadline.Add(entry.every)
		return entry
	}
	entry.fired = true
	c.pending = append(c.pending[:next], c.pending[next+1:]...)
	return entry
}

// compact drops stopped entries so PendingCount stays meaningful.
// Must be called with c.mu held.
func (c *FakeClock) compact() {
	live := c.pending[:0]
	for _, entry := range c.pending {
		if !entry.stopped {
			live = append(live, entry)
		}
	}
	c.pending = live
}

// WaitForTimers blocks until at least n live entries are registered.
// It closes the race between a goroutine arming a timer and the test
// advancing the clock:
//
//	go channel.Connect(ctx)
//	fake.WaitForTimers(1)      // backoff timer is armed
//	fake.Advance(time.Second)  // fires it deterministically
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.liveCount() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of live registered entries.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveCount()
}

// liveCount counts non-stopped entries. Must be called with c.mu held.
func (c *FakeClock) liveCount() int {
	count := 0
	for _, entry := range c.pending {
		if !entry.stopped {
			count++
		}
	}
	return count
}
