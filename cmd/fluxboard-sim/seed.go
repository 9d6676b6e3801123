// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
)

// seedFile is the --seed file layout: the boards the simulator serves,
// each optionally protected by a password. Ids and positions may be
// left out; the simulator assigns them. The file may carry // comments
// and trailing commas.
type seedFile struct {
	Boards []seedBoard `json:"boards"`
}

type seedBoard struct {
	Board    board.Board `json:"board"`
	Password string      `json:"password,omitempty"`
}

// loadSeed reads the seed file, or falls back to the built-in demo
// board when no path is given.
func loadSeed(path string) (seedFile, error) {
	if path == "" {
		return defaultSeed(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return seedFile{}, fmt.Errorf("reading seed: %w", err)
	}
	// Strip comments and trailing commas before parsing as standard JSON.
	stripped := jsonc.ToJSON(data)
	var seed seedFile
	if err := json.Unmarshal(stripped, &seed); err != nil {
		return seedFile{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(seed.Boards) == 0 {
		return seedFile{}, fmt.Errorf("%s: no boards", path)
	}
	return seed, nil
}

// defaultSeed is a three-column board under the share token "demo".
// Label ids are fixed so the seeded cards can reference them.
func defaultSeed() seedFile {
	return seedFile{Boards: []seedBoard{{Board: board.Board{
		Title:      "Demo board",
		ShareToken: "demo",
		Columns: []board.Column{
			{Title: "Todo", Cards: []board.Card{
				{Title: "Sketch the onboarding flow"},
				{Title: "Wire presence cursors into the header", LabelIDs: []string{"label-polish"}},
			}},
			{Title: "Doing", Cards: []board.Card{
				{Title: "Ship the event feed", LabelIDs: []string{"label-core"}},
			}},
			{Title: "Done", Cards: []board.Card{
				{Title: "Pick a websocket library"},
			}},
		},
		Labels: []board.Label{
			{ID: "label-core", Name: "core", Color: "#4285f4"},
			{ID: "label-polish", Name: "polish", Color: "#e8549f"},
		},
	}}}}
}
