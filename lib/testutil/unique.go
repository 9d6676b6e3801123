// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N drawn from a process-wide counter.
// Use it for card, column, and label ids in tests that run in parallel
// against shared fixtures.
//
//	cardID := testutil.UniqueID("card") // "card-1", "card-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
