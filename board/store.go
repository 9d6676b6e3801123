// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrNotFound reports a mutation aimed at an entity the replica does not
// hold. Feed appliers treat it as an already-converged no-op; optimistic
// callers surface it.
var ErrNotFound = errors.New("entity not found")

// ErrClosed reports a mutation against a torn-down store. A rollback
// arriving after teardown hits this and is logged, not retried.
var ErrClosed = errors.New("store closed")

// Store holds the in-memory replica of one board. It is written by two
// parties, the mutation coordinator (optimistic) and the change feed
// applier (authoritative), so every operation locks the whole replica for
// its duration: callers never observe a board whose positions are not the
// contiguous sequence 0..n-1.
//
// Mutations return the displaced previous state (previous entity, inverse
// patch, or previous placement) captured under the same lock, which is
// exactly what an optimistic caller needs for a later rollback.
//
// Construct with [NewStore]. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	board  Board
	closed bool
}

// NewStore returns an empty store. Callers populate it with [Store.Replace]
// once the initial board state is known.
func NewStore() *Store {
	return &Store{}
}

// Replace installs a wholesale snapshot of the board, discarding the
// current replica. Used after initial load and after a full resync.
func (s *Store) Replace(b Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("board: replace: %w", ErrClosed)
	}
	s.board = b.Clone()
	s.reindexColumns()
	for i := range s.board.Columns {
		s.reindexCards(&s.board.Columns[i])
	}
	slices.SortStableFunc(s.board.Labels, func(a, b Label) int {
		return strings.Compare(a.ID, b.ID)
	})
	for i := range s.board.Columns {
		for j := range s.board.Columns[i].Cards {
			slices.Sort(s.board.Columns[i].Cards[j].LabelIDs)
		}
	}
	return nil
}

// Board returns a deep copy of the current replica.
func (s *Store) Board() Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// Close tears the store down. Further mutations fail with [ErrClosed];
// reads continue to serve the final state.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// PatchBoard applies a partial update to the board's own fields and
// returns the inverse patch restoring the previous values.
func (s *Store) PatchBoard(patch BoardPatch) (BoardPatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return BoardPatch{}, fmt.Errorf("board: patch board: %w", ErrClosed)
	}
	var previous BoardPatch
	if patch.Title != nil {
		prev := s.board.Title
		previous.Title = &prev
		s.board.Title = *patch.Title
	}
	if patch.Locked != nil {
		prev := s.board.Locked
		previous.Locked = &prev
		s.board.Locked = *patch.Locked
	}
	return previous, nil
}

// AddColumn inserts a column at its carried Position, clamped into the
// board's column list, and reindexes. If the column id is already present
// the call degrades to a field update in place, which keeps authoritative
// creation events idempotent.
func (s *Store) AddColumn(column Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("board: add column %q: %w", column.ID, ErrClosed)
	}
	if existing := s.findColumn(column.ID); existing != nil {
		existing.Title = column.Title
		existing.BoardID = column.BoardID
		return nil
	}
	inserted := column.clone()
	inserted.BoardID = s.board.ID
	for i := range inserted.Cards {
		inserted.Cards[i].ColumnID = inserted.ID
		slices.Sort(inserted.Cards[i].LabelIDs)
	}
	index := clamp(inserted.Position, 0, len(s.board.Columns))
	s.board.Columns = slices.Insert(s.board.Columns, index, inserted)
	s.reindexColumns()
	s.reindexCards(&s.board.Columns[index])
	return nil
}

// PatchColumn applies a partial update to a column and returns the
// inverse patch.
func (s *Store) PatchColumn(columnID string, patch ColumnPatch) (ColumnPatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ColumnPatch{}, fmt.Errorf("board: patch column %q: %w", columnID, ErrClosed)
	}
	column := s.findColumn(columnID)
	if column == nil {
		return ColumnPatch{}, fmt.Errorf("board: patch column %q: %w", columnID, ErrNotFound)
	}
	var previous ColumnPatch
	if patch.Title != nil {
		prev := column.Title
		previous.Title = &prev
		column.Title = *patch.Title
	}
	return previous, nil
}

// RemoveColumn deletes a column and its cards, reindexes the remaining
// columns, and returns the removed column (cards included) for undo.
func (s *Store) RemoveColumn(columnID string) (Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Column{}, fmt.Errorf("board: remove column %q: %w", columnID, ErrClosed)
	}
	index := s.findColumnIndex(columnID)
	if index < 0 {
		return Column{}, fmt.Errorf("board: remove column %q: %w", columnID, ErrNotFound)
	}
	removed := s.board.Columns[index]
	s.board.Columns = slices.Delete(s.board.Columns, index, index+1)
	s.reindexColumns()
	return removed, nil
}

// MoveColumn lifts a column out of the list and reinserts it at
// newPosition, clamped to the valid range. Uninvolved columns keep their
// relative order. Returns the column's previous position; moving it back
// there restores the prior order exactly.
func (s *Store) MoveColumn(columnID string, newPosition int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("board: move column %q: %w", columnID, ErrClosed)
	}
	index := s.findColumnIndex(columnID)
	if index < 0 {
		return 0, fmt.Errorf("board: move column %q: %w", columnID, ErrNotFound)
	}
	column := s.board.Columns[index]
	s.board.Columns = slices.Delete(s.board.Columns, index, index+1)
	target := clamp(newPosition, 0, len(s.board.Columns))
	s.board.Columns = slices.Insert(s.board.Columns, target, column)
	s.reindexColumns()
	return index, nil
}

// ReorderColumns rearranges the column list to match orderedIDs. Known
// ids appear in the given order; ids the replica does not hold are
// skipped and columns missing from the list keep their relative order
// after the listed ones. Returns the previous ordering for undo.
func (s *Store) ReorderColumns(orderedIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("board: reorder columns: %w", ErrClosed)
	}
	previous := make([]string, len(s.board.Columns))
	for i, column := range s.board.Columns {
		previous[i] = column.ID
	}
	s.board.Columns = reorderByID(s.board.Columns, orderedIDs, func(c Column) string { return c.ID })
	s.reindexColumns()
	return previous, nil
}

// AddCard inserts a card into its carried ColumnID at its carried
// Position, clamped, and reindexes that column. A card id already present
// degrades to a content update in place, keeping authoritative creation
// events idempotent.
func (s *Store) AddCard(card Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("board: add card %q: %w", card.ID, ErrClosed)
	}
	if _, _, existing := s.findCard(card.ID); existing != nil {
		existing.Title = card.Title
		existing.Description = card.Description
		existing.LabelIDs = append([]string(nil), card.LabelIDs...)
		slices.Sort(existing.LabelIDs)
		return nil
	}
	column := s.findColumn(card.ColumnID)
	if column == nil {
		return fmt.Errorf("board: add card %q to column %q: %w", card.ID, card.ColumnID, ErrNotFound)
	}
	inserted := card.clone()
	inserted.ColumnID = column.ID
	slices.Sort(inserted.LabelIDs)
	index := clamp(inserted.Position, 0, len(column.Cards))
	column.Cards = slices.Insert(column.Cards, index, inserted)
	s.reindexCards(column)
	return nil
}

// PatchCard applies a partial update to a card's content fields and
// returns the inverse patch.
func (s *Store) PatchCard(cardID string, patch CardPatch) (CardPatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CardPatch{}, fmt.Errorf("board: patch card %q: %w", cardID, ErrClosed)
	}
	_, _, card := s.findCard(cardID)
	if card == nil {
		return CardPatch{}, fmt.Errorf("board: patch card %q: %w", cardID, ErrNotFound)
	}
	var previous CardPatch
	if patch.Title != nil {
		prev := card.Title
		previous.Title = &prev
		card.Title = *patch.Title
	}
	if patch.Description != nil {
		prev := card.Description
		previous.Description = &prev
		card.Description = *patch.Description
	}
	if patch.LabelIDs != nil {
		prev := append([]string(nil), card.LabelIDs...)
		previous.LabelIDs = &prev
		card.LabelIDs = append([]string(nil), *patch.LabelIDs...)
		slices.Sort(card.LabelIDs)
	}
	return previous, nil
}

// RemoveCard deletes a card from its column, reindexes the column, and
// returns the removed card for undo.
func (s *Store) RemoveCard(cardID string) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Card{}, fmt.Errorf("board: remove card %q: %w", cardID, ErrClosed)
	}
	columnIndex, cardIndex, card := s.findCard(cardID)
	if card == nil {
		return Card{}, fmt.Errorf("board: remove card %q: %w", cardID, ErrNotFound)
	}
	removed := *card
	column := &s.board.Columns[columnIndex]
	column.Cards = slices.Delete(column.Cards, cardIndex, cardIndex+1)
	s.reindexCards(column)
	return removed, nil
}

// MoveCard moves a card to newPosition in the named column, clamped. A
// move within one column is an in-list reorder; a cross-column move
// removes the card from its source, inserts it into the destination, and
// reindexes both columns in the same atomic step. The card's ColumnID is
// updated with the move, so the field and the containing list never
// disagree.
//
// Returns the card's previous column and position; issuing the inverse
// move restores the prior order of both columns exactly.
func (s *Store) MoveCard(cardID, toColumnID string, newPosition int) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", 0, fmt.Errorf("board: move card %q: %w", cardID, ErrClosed)
	}
	columnIndex, cardIndex, card := s.findCard(cardID)
	if card == nil {
		return "", 0, fmt.Errorf("board: move card %q: %w", cardID, ErrNotFound)
	}
	destination := s.findColumn(toColumnID)
	if destination == nil {
		return "", 0, fmt.Errorf("board: move card %q to column %q: %w", cardID, toColumnID, ErrNotFound)
	}
	source := &s.board.Columns[columnIndex]
	previousColumnID := source.ID
	previousPosition := cardIndex

	moved := *card
	source.Cards = slices.Delete(source.Cards, cardIndex, cardIndex+1)
	moved.ColumnID = destination.ID
	target := clamp(newPosition, 0, len(destination.Cards))
	destination.Cards = slices.Insert(destination.Cards, target, moved)
	s.reindexCards(source)
	if destination != source {
		s.reindexCards(destination)
	}
	return previousColumnID, previousPosition, nil
}

// ReorderCards rearranges one column's card list to match orderedIDs,
// with the same unknown-id tolerance as [Store.ReorderColumns]. Returns
// the previous ordering for undo.
func (s *Store) ReorderCards(columnID string, orderedIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("board: reorder cards in column %q: %w", columnID, ErrClosed)
	}
	column := s.findColumn(columnID)
	if column == nil {
		return nil, fmt.Errorf("board: reorder cards in column %q: %w", columnID, ErrNotFound)
	}
	previous := make([]string, len(column.Cards))
	for i, card := range column.Cards {
		previous[i] = card.ID
	}
	column.Cards = reorderByID(column.Cards, orderedIDs, func(c Card) string { return c.ID })
	s.reindexCards(column)
	return previous, nil
}

// AddLabel inserts a label into the board's label set. Labels are kept
// sorted by id, the set's canonical order, so removing and re-adding a
// label restores the identical board. An existing id degrades to a field
// update in place.
func (s *Store) AddLabel(label Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("board: add label %q: %w", label.ID, ErrClosed)
	}
	if existing := s.findLabel(label.ID); existing != nil {
		existing.Name = label.Name
		existing.Color = label.Color
		existing.BoardID = label.BoardID
		return nil
	}
	label.BoardID = s.board.ID
	index, _ := slices.BinarySearchFunc(s.board.Labels, label.ID, func(l Label, id string) int {
		return strings.Compare(l.ID, id)
	})
	s.board.Labels = slices.Insert(s.board.Labels, index, label)
	return nil
}

// PatchLabel applies a partial update to a label and returns the inverse
// patch.
func (s *Store) PatchLabel(labelID string, patch LabelPatch) (LabelPatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return LabelPatch{}, fmt.Errorf("board: patch label %q: %w", labelID, ErrClosed)
	}
	label := s.findLabel(labelID)
	if label == nil {
		return LabelPatch{}, fmt.Errorf("board: patch label %q: %w", labelID, ErrNotFound)
	}
	var previous LabelPatch
	if patch.Name != nil {
		prev := label.Name
		previous.Name = &prev
		label.Name = *patch.Name
	}
	if patch.Color != nil {
		prev := label.Color
		previous.Color = &prev
		label.Color = *patch.Color
	}
	return previous, nil
}

// RemoveLabel deletes a label from the board and unassigns it from every
// card. Returns the removed label and the ids of the cards that carried
// it; undo re-adds the label and replays those assignments.
func (s *Store) RemoveLabel(labelID string) (Label, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Label{}, nil, fmt.Errorf("board: remove label %q: %w", labelID, ErrClosed)
	}
	index := -1
	for i, label := range s.board.Labels {
		if label.ID == labelID {
			index = i
			break
		}
	}
	if index < 0 {
		return Label{}, nil, fmt.Errorf("board: remove label %q: %w", labelID, ErrNotFound)
	}
	removed := s.board.Labels[index]
	s.board.Labels = slices.Delete(s.board.Labels, index, index+1)

	var assigned []string
	for i := range s.board.Columns {
		column := &s.board.Columns[i]
		for j := range column.Cards {
			card := &column.Cards[j]
			if position, found := slices.BinarySearch(card.LabelIDs, labelID); found {
				card.LabelIDs = slices.Delete(card.LabelIDs, position, position+1)
				assigned = append(assigned, card.ID)
			}
		}
	}
	return removed, assigned, nil
}

// AssignLabel adds a label to a card's label set. Reports whether the set
// changed; assigning an already-assigned label is a no-op.
func (s *Store) AssignLabel(cardID, labelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("board: assign label %q to card %q: %w", labelID, cardID, ErrClosed)
	}
	_, _, card := s.findCard(cardID)
	if card == nil {
		return false, fmt.Errorf("board: assign label %q to card %q: %w", labelID, cardID, ErrNotFound)
	}
	position, found := slices.BinarySearch(card.LabelIDs, labelID)
	if found {
		return false, nil
	}
	card.LabelIDs = slices.Insert(card.LabelIDs, position, labelID)
	return true, nil
}

// UnassignLabel removes a label from a card's label set. Reports whether
// the set changed; unassigning an absent label is a no-op.
func (s *Store) UnassignLabel(cardID, labelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("board: unassign label %q from card %q: %w", labelID, cardID, ErrClosed)
	}
	_, _, card := s.findCard(cardID)
	if card == nil {
		return false, fmt.Errorf("board: unassign label %q from card %q: %w", labelID, cardID, ErrNotFound)
	}
	position, found := slices.BinarySearch(card.LabelIDs, labelID)
	if !found {
		return false, nil
	}
	card.LabelIDs = slices.Delete(card.LabelIDs, position, position+1)
	return true, nil
}

// findColumn returns the column with the given id, or nil. Must be called
// with s.mu held; the pointer is into live store state.
func (s *Store) findColumn(columnID string) *Column {
	index := s.findColumnIndex(columnID)
	if index < 0 {
		return nil
	}
	return &s.board.Columns[index]
}

// findColumnIndex returns the index of the column with the given id, or
// -1. Must be called with s.mu held.
func (s *Store) findColumnIndex(columnID string) int {
	for i := range s.board.Columns {
		if s.board.Columns[i].ID == columnID {
			return i
		}
	}
	return -1
}

// findCard locates a card anywhere on the board. Returns the indexes of
// its column and list slot plus a pointer into live store state, or
// (-1, -1, nil). Must be called with s.mu held.
func (s *Store) findCard(cardID string) (int, int, *Card) {
	for i := range s.board.Columns {
		cards := s.board.Columns[i].Cards
		for j := range cards {
			if cards[j].ID == cardID {
				return i, j, &cards[j]
			}
		}
	}
	return -1, -1, nil
}

// findLabel returns the label with the given id, or nil. Must be called
// with s.mu held.
func (s *Store) findLabel(labelID string) *Label {
	for i := range s.board.Labels {
		if s.board.Labels[i].ID == labelID {
			return &s.board.Labels[i]
		}
	}
	return nil
}

// reindexColumns rewrites every column's Position to its list index.
// Must be called with s.mu held.
func (s *Store) reindexColumns() {
	for i := range s.board.Columns {
		s.board.Columns[i].Position = i
	}
}

// reindexCards rewrites every card's Position to its list index and its
// ColumnID to the containing column. Must be called with s.mu held.
func (s *Store) reindexCards(column *Column) {
	for i := range column.Cards {
		column.Cards[i].Position = i
		column.Cards[i].ColumnID = column.ID
	}
}

// reorderByID rebuilds entities in the order given by orderedIDs,
// appending entities missing from the list in their current relative
// order. Ids with no matching entity are skipped.
func reorderByID[E any](entities []E, orderedIDs []string, id func(E) string) []E {
	index := make(map[string]int, len(entities))
	for i, entity := range entities {
		index[id(entity)] = i
	}
	reordered := make([]E, 0, len(entities))
	taken := make(map[string]bool, len(orderedIDs))
	for _, entityID := range orderedIDs {
		if taken[entityID] {
			continue
		}
		if i, ok := index[entityID]; ok {
			reordered = append(reordered, entities[i])
			taken[entityID] = true
		}
	}
	for _, entity := range entities {
		if !taken[id(entity)] {
			reordered = append(reordered, entity)
		}
	}
	return reordered
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
