// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	if got := fake.Now(); !got.Equal(epoch) {
		t.Fatalf("Now: got %v, want %v", got, epoch)
	}
	fake.Advance(5 * time.Second)
	if got, want := fake.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now after Advance: got %v, want %v", got, want)
	}
}

func TestAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	ch := fake.After(3 * time.Second)

	fake.Advance(2 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case fired := <-ch:
		if want := epoch.Add(3 * time.Second); !fired.Equal(want) {
			t.Errorf("fire time: got %v, want %v", fired, want)
		}
	default:
		t.Fatal("did not fire at its deadline")
	}
}

func TestAfterNonPositiveFiresImmediately(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not deliver immediately")
	}
}

func TestAfterFuncRunsInDeadlineOrder(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	var order []string
	fake.AfterFunc(2*time.Second, func() { order = append(order, "late") })
	fake.AfterFunc(time.Second, func() { order = append(order, "early") })

	fake.Advance(5 * time.Second)
	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Errorf("callback order: got %v, want [early late]", order)
	}
}

func TestAfterFuncStop(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	var ran atomic.Bool
	timer := fake.AfterFunc(time.Second, func() { ran.Store(true) })

	if !timer.Stop() {
		t.Error("first Stop: got false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop: got true, want false")
	}
	fake.Advance(2 * time.Second)
	if ran.Load() {
		t.Error("stopped callback still ran")
	}
}

func TestAfterFuncStopAfterFire(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	timer := fake.AfterFunc(time.Second, func() {})
	fake.Advance(time.Second)
	if timer.Stop() {
		t.Error("Stop after firing: got true, want false")
	}
}

func TestAfterFuncNonPositiveRunsSynchronously(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	ran := false
	fake.AfterFunc(0, func() { ran = true })
	if !ran {
		t.Fatal("AfterFunc(0) did not run before returning")
	}
}

func TestTickerFiresPerPeriod(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	fake.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after one period")
	}

	// Two periods with no consumer in between: the second tick is
	// dropped by the capacity-1 buffer.
	fake.Advance(2 * time.Second)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("overflow tick was buffered")
	default:
	}
}

func TestTickerStop(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()
	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker ticked")
	default:
	}
}

func TestWaitForTimers(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	fired := make(chan time.Time, 1)
	go func() {
		fired <- <-fake.After(time.Second)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestPendingCount(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)
	if got := fake.PendingCount(); got != 0 {
		t.Fatalf("initial PendingCount: got %d, want 0", got)
	}
	timer := fake.AfterFunc(time.Second, func() {})
	fake.After(2 * time.Second)
	if got := fake.PendingCount(); got != 2 {
		t.Fatalf("PendingCount: got %d, want 2", got)
	}
	timer.Stop()
	if got := fake.PendingCount(); got != 1 {
		t.Fatalf("PendingCount after Stop: got %d, want 1", got)
	}
}
