// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for the sync core's tests.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap channel
// operations in a wall-clock safety valve so a broken test hangs for a
// bounded time instead of forever.
//
// [UniqueID] hands out process-unique identifiers for test entities.
package testutil

import (
	"fmt"
	"time"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout or fails the
// test.
//
//	event := testutil.RequireReceive(t, events, 5*time.Second, "channel event")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, format string, args ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for %s", fmt.Sprintf(format, args...))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for %s", timeout, fmt.Sprintf(format, args...))
	}
	panic("unreachable")
}

// RequireSend sends v on ch within timeout or fails the test.
func RequireSend[T any](t TB, ch chan<- T, v T, timeout time.Duration, format string, args ...any) {
	t.Helper()
	select {
	case ch <- v:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v sending %s", timeout, fmt.Sprintf(format, args...))
	}
}

// RequireClosed waits for ch to close (or deliver) within timeout or
// fails the test. Use it on done channels that signal by closing.
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, format string, args ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for %s", timeout, fmt.Sprintf(format, args...))
	}
}
