// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
)

// seedStore builds the fixture replica: two columns with three cards,
// two labels, l1 assigned to c1.
func seedStore(t *testing.T) *board.Store {
	t.Helper()
	store := board.NewStore()
	err := store.Replace(board.Board{
		ID:    "board-1",
		Title: "Launch plan",
		Columns: []board.Column{
			{ID: "col-a", Title: "Todo", Cards: []board.Card{
				{ID: "c1", Title: "Write draft", LabelIDs: []string{"l1"}},
				{ID: "c2", Title: "Review draft"},
			}},
			{ID: "col-b", Title: "Done", Cards: []board.Card{
				{ID: "c3", Title: "Kickoff"},
			}},
		},
		Labels: []board.Label{
			{ID: "l1", BoardID: "board-1", Name: "urgent", Color: "#ff0000"},
			{ID: "l2", BoardID: "board-1", Name: "design", Color: "#00aa55"},
		},
	})
	if err != nil {
		t.Fatalf("seed board: %v", err)
	}
	return store
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    Event
	}{
		{
			name:    EventBoardUpdated,
			payload: `{"id":"board-1","title":"Renamed","locked":true,"channel":5}`,
			want:    BoardUpdated{Board: board.Board{ID: "board-1", Title: "Renamed", Locked: true, Channel: 5}},
		},
		{
			name:    EventColumnCreated,
			payload: `{"id":"col-c","board_id":"board-1","title":"Blocked","position":2}`,
			want:    ColumnCreated{Column: board.Column{ID: "col-c", BoardID: "board-1", Title: "Blocked", Position: 2}},
		},
		{
			name:    EventColumnDeleted,
			payload: `{"id":"col-a"}`,
			want:    ColumnDeleted{ColumnID: "col-a"},
		},
		{
			name:    EventColumnsReordered,
			payload: `{"column_ids":["col-b","col-a"]}`,
			want:    ColumnsReordered{ColumnIDs: []string{"col-b", "col-a"}},
		},
		{
			name:    EventCardCreated,
			payload: `{"id":"c9","column_id":"col-b","title":"Retro notes","position":1,"label_ids":["l1"]}`,
			want:    CardCreated{Card: board.Card{ID: "c9", ColumnID: "col-b", Title: "Retro notes", Position: 1, LabelIDs: []string{"l1"}}},
		},
		{
			name:    EventCardDeleted,
			payload: `{"id":"c2"}`,
			want:    CardDeleted{CardID: "c2"},
		},
		{
			name:    EventCardMoved,
			payload: `{"card_id":"c1","to_column_id":"col-b","new_position":0}`,
			want:    CardMoved{CardID: "c1", ToColumnID: "col-b", NewPosition: 0},
		},
		{
			name:    EventCardsReordered,
			payload: `{"column_id":"col-a","card_ids":["c2","c1"]}`,
			want:    CardsReordered{ColumnID: "col-a", CardIDs: []string{"c2", "c1"}},
		},
		{
			name:    EventLabelCreated,
			payload: `{"id":"l3","board_id":"board-1","name":"ops","color":"#0000ff"}`,
			want:    LabelCreated{Label: board.Label{ID: "l3", BoardID: "board-1", Name: "ops", Color: "#0000ff"}},
		},
		{
			name:    EventLabelDeleted,
			payload: `{"id":"l1"}`,
			want:    LabelDeleted{LabelID: "l1"},
		},
		{
			name:    EventLabelAssigned,
			payload: `{"card_id":"c2","label_id":"l2"}`,
			want:    LabelAssigned{CardID: "c2", LabelID: "l2"},
		},
		{
			name:    EventLabelUnassigned,
			payload: `{"card_id":"c1","label_id":"l1"}`,
			want:    LabelUnassigned{CardID: "c1", LabelID: "l1"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseEvent(test.name, []byte(test.payload))
			if err != nil {
				t.Fatalf("ParseEvent(%s): %v", test.name, err)
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("ParseEvent(%s):\n got %#v\nwant %#v", test.name, got, test.want)
			}
		})
	}
}

func TestParseEventUnknownName(t *testing.T) {
	t.Parallel()
	_, err := ParseEvent("board_archived", []byte(`{"id":"board-1"}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("ParseEvent(board_archived): got %v, want ErrUnknownEvent", err)
	}
}

func TestParseEventMalformedPayload(t *testing.T) {
	t.Parallel()
	_, err := ParseEvent(EventCardMoved, []byte(`{"card_id":`))
	if err == nil {
		t.Fatal("ParseEvent with truncated payload: got nil error")
	}
	if errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("ParseEvent with truncated payload: got ErrUnknownEvent, want decode error")
	}
}

// Applying any event a second time must leave the replica exactly where
// the first application put it. Deletions and moves may report the
// entity as missing the second time around; the state still matches.
func TestApplyTwiceConverges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event Event
	}{
		{"board_updated", BoardUpdated{Board: board.Board{ID: "board-1", Title: "Renamed", Locked: true}}},
		{"column_created", ColumnCreated{Column: board.Column{ID: "col-c", Title: "Blocked", Position: 1}}},
		{"column_updated", ColumnUpdated{Column: board.Column{ID: "col-a", Title: "Backlog"}}},
		{"column_deleted", ColumnDeleted{ColumnID: "col-a"}},
		{"column_reordered", ColumnsReordered{ColumnIDs: []string{"col-b", "col-a"}}},
		{"card_created", CardCreated{Card: board.Card{ID: "c4", ColumnID: "col-b", Title: "Retro", Position: 0}}},
		{"card_updated", CardUpdated{Card: board.Card{ID: "c1", ColumnID: "col-a", Title: "Ship draft", LabelIDs: []string{"l1", "l2"}}}},
		{"card_deleted", CardDeleted{CardID: "c2"}},
		{"card_moved", CardMoved{CardID: "c1", ToColumnID: "col-b", NewPosition: 0}},
		{"card_reordered", CardsReordered{ColumnID: "col-a", CardIDs: []string{"c2", "c1"}}},
		{"label_created", LabelCreated{Label: board.Label{ID: "l3", Name: "ops", Color: "#0000ff"}}},
		{"label_updated", LabelUpdated{Label: board.Label{ID: "l1", Name: "blocker", Color: "#aa0000"}}},
		{"label_deleted", LabelDeleted{LabelID: "l1"}},
		{"label_assigned", LabelAssigned{CardID: "c2", LabelID: "l2"}},
		{"label_unassigned", LabelUnassigned{CardID: "c1", LabelID: "l1"}},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			store := seedStore(t)
			if err := Apply(store, test.event); err != nil {
				t.Fatalf("first Apply: %v", err)
			}
			want := store.Board()
			if err := Apply(store, test.event); err != nil && !errors.Is(err, board.ErrNotFound) {
				t.Fatalf("second Apply: %v", err)
			}
			if got := store.Board(); !reflect.DeepEqual(got, want) {
				t.Errorf("replica diverged after second Apply:\n got %#v\nwant %#v", got, want)
			}
		})
	}
}

func TestApplyCardMovedAcrossColumns(t *testing.T) {
	t.Parallel()
	store := seedStore(t)

	if err := Apply(store, CardMoved{CardID: "c1", ToColumnID: "col-b", NewPosition: 0}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	b := store.Board()
	colA, colB := b.Columns[0], b.Columns[1]
	if len(colA.Cards) != 1 || colA.Cards[0].ID != "c2" || colA.Cards[0].Position != 0 {
		t.Errorf("source column: got %#v, want [c2] at position 0", colA.Cards)
	}
	if len(colB.Cards) != 2 || colB.Cards[0].ID != "c1" || colB.Cards[1].ID != "c3" {
		t.Fatalf("destination column: got %#v, want [c1 c3]", colB.Cards)
	}
	if colB.Cards[0].Position != 0 || colB.Cards[1].Position != 1 {
		t.Errorf("destination positions: got %d,%d, want 0,1", colB.Cards[0].Position, colB.Cards[1].Position)
	}
	if got := colB.Cards[0].ColumnID; got != "col-b" {
		t.Errorf("moved card ColumnID: got %q, want %q", got, "col-b")
	}
}

func TestApplyColumnDeletedDropsCards(t *testing.T) {
	t.Parallel()
	store := seedStore(t)

	if err := Apply(store, ColumnDeleted{ColumnID: "col-a"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	b := store.Board()
	if len(b.Columns) != 1 || b.Columns[0].ID != "col-b" {
		t.Fatalf("columns: got %#v, want [col-b]", b.Columns)
	}
	if b.Columns[0].Position != 0 {
		t.Errorf("remaining column position: got %d, want 0", b.Columns[0].Position)
	}
}

func TestApplyStaleDeleteReportsNotFound(t *testing.T) {
	t.Parallel()
	store := seedStore(t)

	err := Apply(store, CardDeleted{CardID: "gone"})
	if !errors.Is(err, board.ErrNotFound) {
		t.Fatalf("Apply stale delete: got %v, want ErrNotFound", err)
	}
}

func TestApplyCreatedEventUpdatesExistingEntity(t *testing.T) {
	t.Parallel()
	store := seedStore(t)

	// A redelivered creation for an entity we already hold must not
	// duplicate it.
	if err := Apply(store, CardCreated{Card: board.Card{ID: "c3", ColumnID: "col-b", Title: "Kickoff recap", Position: 0}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	b := store.Board()
	if got := len(b.Columns[1].Cards); got != 1 {
		t.Fatalf("card count in col-b: got %d, want 1", got)
	}
	if got := b.Columns[1].Cards[0].Title; got != "Kickoff recap" {
		t.Errorf("card title: got %q, want %q", got, "Kickoff recap")
	}
}
