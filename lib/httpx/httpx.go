// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpx bounds HTTP body reads for JSON APIs. Board entities
// are small; the cap only exists so a misbehaving peer cannot make a
// read allocate without limit. Streaming bodies (the change feed) are
// consumed incrementally and do not go through this package.
package httpx

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxBodySize is the bound on JSON body reads: 16 MB. A serialized
// board with hundreds of cards stays well under 1 MB.
const MaxBodySize int64 = 16 << 20

// ReadBody reads a JSON body up to MaxBodySize bytes. Use instead of
// io.ReadAll on HTTP bodies.
func ReadBody(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxBodySize))
}

// DecodeJSON reads a JSON body (up to MaxBodySize bytes) and decodes it
// into v.
func DecodeJSON(body io.Reader, v any) error {
	data, err := ReadBody(body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	return json.Unmarshal(data, v)
}
