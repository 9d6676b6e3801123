// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package mutation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
)

var errRejected = errors.New("service said no")

// fakeService records calls and fails them all with err when set. onCall
// runs before the error is returned, letting tests change the world
// between the optimistic apply and the rejection.
type fakeService struct {
	err    error
	onCall func()
	calls  []string
}

func (f *fakeService) record(op string) error {
	f.calls = append(f.calls, op)
	if f.onCall != nil {
		f.onCall()
	}
	return f.err
}

func (f *fakeService) UpdateBoard(context.Context, board.BoardPatch) (board.Board, error) {
	return board.Board{}, f.record("update_board")
}
func (f *fakeService) CreateColumn(_ context.Context, column board.Column) (board.Column, error) {
	return column, f.record("create_column")
}
func (f *fakeService) UpdateColumn(context.Context, string, board.ColumnPatch) (board.Column, error) {
	return board.Column{}, f.record("update_column")
}
func (f *fakeService) DeleteColumn(context.Context, string) error {
	return f.record("delete_column")
}
func (f *fakeService) MoveColumn(context.Context, string, int) error {
	return f.record("move_column")
}
func (f *fakeService) ReorderColumns(context.Context, []string) error {
	return f.record("reorder_columns")
}
func (f *fakeService) CreateCard(_ context.Context, card board.Card) (board.Card, error) {
	return card, f.record("create_card")
}
func (f *fakeService) UpdateCard(context.Context, string, board.CardPatch) (board.Card, error) {
	return board.Card{}, f.record("update_card")
}
func (f *fakeService) DeleteCard(context.Context, string) error {
	return f.record("delete_card")
}
func (f *fakeService) MoveCard(context.Context, string, string, int) error {
	return f.record("move_card")
}
func (f *fakeService) ReorderCards(context.Context, string, []string) error {
	return f.record("reorder_cards")
}
func (f *fakeService) CreateLabel(_ context.Context, label board.Label) (board.Label, error) {
	return label, f.record("create_label")
}
func (f *fakeService) UpdateLabel(context.Context, string, board.LabelPatch) (board.Label, error) {
	return board.Label{}, f.record("update_label")
}
func (f *fakeService) DeleteLabel(context.Context, string) error {
	return f.record("delete_label")
}
func (f *fakeService) AssignLabel(context.Context, string, string) error {
	return f.record("assign_label")
}
func (f *fakeService) UnassignLabel(context.Context, string, string) error {
	return f.record("unassign_label")
}

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

func newCoordinator(t *testing.T, service *fakeService) (*Coordinator, *board.Store) {
	t.Helper()
	store := seedStore(t)
	coordinator := New(Config{
		Store:   store,
		Service: service,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return coordinator, store
}

func TestMoveCardAppliesOptimistically(t *testing.T) {
	t.Parallel()
	service := &fakeService{}
	coordinator, store := newCoordinator(t, service)

	if err := coordinator.MoveCard(context.Background(), "c1", "col-b", 0); err != nil {
		t.Fatalf("MoveCard: %v", err)
	}

	b := store.Board()
	if got := b.Columns[1].Cards[0].ID; got != "c1" {
		t.Errorf("col-b head: got %q, want %q", got, "c1")
	}
	if got := b.Columns[1].Cards[0].ColumnID; got != "col-b" {
		t.Errorf("moved card ColumnID: got %q, want %q", got, "col-b")
	}
	if want := []string{"move_card"}; !reflect.DeepEqual(service.calls, want) {
		t.Errorf("service calls: got %v, want %v", service.calls, want)
	}
}

func TestMoveCardRejectedRollsBackBothColumns(t *testing.T) {
	t.Parallel()
	service := &fakeService{err: errRejected}
	coordinator, store := newCoordinator(t, service)
	before := store.Board()

	err := coordinator.MoveCard(context.Background(), "c1", "col-b", 0)
	if !errors.Is(err, errRejected) {
		t.Fatalf("MoveCard: got %v, want wrapped errRejected", err)
	}

	if got := store.Board(); !reflect.DeepEqual(got, before) {
		t.Errorf("replica after rollback:\n got %#v\nwant %#v", got, before)
	}
}

func TestUpdateLabelRejectedRevertsRename(t *testing.T) {
	t.Parallel()
	service := &fakeService{err: errRejected}
	coordinator, store := newCoordinator(t, service)

	name := "blocker"
	err := coordinator.UpdateLabel(context.Background(), "l1", board.LabelPatch{Name: &name})
	if !errors.Is(err, errRejected) {
		t.Fatalf("UpdateLabel: got %v, want wrapped errRejected", err)
	}

	if got := store.Board().Labels[0].Name; got != "urgent" {
		t.Errorf("label name after rollback: got %q, want %q", got, "urgent")
	}
}

func TestDeleteLabelRejectedRestoresAssignments(t *testing.T) {
	t.Parallel()
	service := &fakeService{err: errRejected}
	coordinator, store := newCoordinator(t, service)
	before := store.Board()

	err := coordinator.DeleteLabel(context.Background(), "l1")
	if !errors.Is(err, errRejected) {
		t.Fatalf("DeleteLabel: got %v, want wrapped errRejected", err)
	}

	if got := store.Board(); !reflect.DeepEqual(got, before) {
		t.Errorf("replica after rollback:\n got %#v\nwant %#v", got, before)
	}
}

func TestDeleteColumnRejectedRestoresCards(t *testing.T) {
	t.Parallel()
	service := &fakeService{err: errRejected}
	coordinator, store := newCoordinator(t, service)
	before := store.Board()

	err := coordinator.DeleteColumn(context.Background(), "col-a")
	if !errors.Is(err, errRejected) {
		t.Fatalf("DeleteColumn: got %v, want wrapped errRejected", err)
	}

	if got := store.Board(); !reflect.DeepEqual(got, before) {
		t.Errorf("replica after rollback:\n got %#v\nwant %#v", got, before)
	}
}

func TestReorderColumnsRejectedRollsBack(t *testing.T) {
	t.Parallel()
	service := &fakeService{err: errRejected}
	coordinator, store := newCoordinator(t, service)
	before := store.Board()

	err := coordinator.ReorderColumns(context.Background(), []string{"col-b", "col-a"})
	if !errors.Is(err, errRejected) {
		t.Fatalf("ReorderColumns: got %v, want wrapped errRejected", err)
	}

	if got := store.Board(); !reflect.DeepEqual(got, before) {
		t.Errorf("replica after rollback:\n got %#v\nwant %#v", got, before)
	}
}

func TestCreateCardAppendsAndMintsID(t *testing.T) {
	t.Parallel()
	service := &fakeService{}
	coordinator, store := newCoordinator(t, service)

	first, err := coordinator.CreateCard(context.Background(), "col-b", "Retro")
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	second, err := coordinator.CreateCard(context.Background(), "col-b", "Retro notes")
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Errorf("card ids: got %q and %q, want distinct non-empty", first.ID, second.ID)
	}
	cards := store.Board().Columns[1].Cards
	if len(cards) != 3 || cards[1].ID != first.ID || cards[2].ID != second.ID {
		t.Errorf("col-b after creates: got %#v, want kickoff then both new cards", cards)
	}
}

func TestCreateCardRejectedRemovesOptimisticCard(t *testing.T) {
	t.Parallel()
	service := &fakeService{err: errRejected}
	coordinator, store := newCoordinator(t, service)
	before := store.Board()

	_, err := coordinator.CreateCard(context.Background(), "col-b", "Retro")
	if !errors.Is(err, errRejected) {
		t.Fatalf("CreateCard: got %v, want wrapped errRejected", err)
	}

	if got := store.Board(); !reflect.DeepEqual(got, before) {
		t.Errorf("replica after rollback:\n got %#v\nwant %#v", got, before)
	}
}

func TestUnknownEntitySkipsService(t *testing.T) {
	t.Parallel()
	service := &fakeService{}
	coordinator, _ := newCoordinator(t, service)

	err := coordinator.MoveCard(context.Background(), "ghost", "col-b", 0)
	if !errors.Is(err, board.ErrNotFound) {
		t.Fatalf("MoveCard(ghost): got %v, want ErrNotFound", err)
	}
	if len(service.calls) != 0 {
		t.Errorf("service calls: got %v, want none", service.calls)
	}
}

func TestAssignLabelAlreadyAssignedSkipsRollback(t *testing.T) {
	t.Parallel()
	service := &fakeService{err: errRejected}
	coordinator, store := newCoordinator(t, service)

	// l1 is already on c1. The optimistic apply changes nothing, so the
	// rejection must not strip the existing assignment.
	err := coordinator.AssignLabel(context.Background(), "c1", "l1")
	if !errors.Is(err, errRejected) {
		t.Fatalf("AssignLabel: got %v, want wrapped errRejected", err)
	}

	if got := store.Board().Columns[0].Cards[0].LabelIDs; len(got) != 1 || got[0] != "l1" {
		t.Errorf("c1 labels: got %v, want [l1]", got)
	}
}

func TestRollbackAfterTeardownIsDropped(t *testing.T) {
	t.Parallel()
	var store *board.Store
	service := &fakeService{err: errRejected}
	service.onCall = func() { store.Close() }
	coordinator, s := newCoordinator(t, service)
	store = s

	err := coordinator.MoveCard(context.Background(), "c1", "col-b", 0)
	if !errors.Is(err, errRejected) {
		t.Fatalf("MoveCard: got %v, want wrapped errRejected", err)
	}
	// The rollback hit a closed store; the final state keeps the
	// optimistic move and must still be readable.
	if got := store.Board().Columns[1].Cards[0].ID; got != "c1" {
		t.Errorf("col-b head after dropped rollback: got %q, want %q", got, "c1")
	}
}
