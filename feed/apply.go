// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"fmt"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
)

// Apply folds one authoritative event into the replica. Events carry
// absolute values, so applying the same event twice converges on the
// same state: entity creations degrade to in-place updates, repeated
// moves land where the first one did.
//
// Deletions and moves aimed at entities the replica no longer holds
// return an error wrapping [board.ErrNotFound]; the consumer treats
// that as already converged rather than a fault.
func Apply(store *board.Store, event Event) error {
	switch e := event.(type) {
	case BoardUpdated:
		_, err := store.PatchBoard(board.BoardPatch{Title: &e.Board.Title, Locked: &e.Board.Locked})
		return err
	case ColumnCreated:
		return store.AddColumn(e.Column)
	case ColumnUpdated:
		return store.AddColumn(e.Column)
	case ColumnDeleted:
		_, err := store.RemoveColumn(e.ColumnID)
		return err
	case ColumnsReordered:
		_, err := store.ReorderColumns(e.ColumnIDs)
		return err
	case CardCreated:
		return store.AddCard(e.Card)
	case CardUpdated:
		return store.AddCard(e.Card)
	case CardDeleted:
		_, err := store.RemoveCard(e.CardID)
		return err
	case CardMoved:
		_, _, err := store.MoveCard(e.CardID, e.ToColumnID, e.NewPosition)
		return err
	case CardsReordered:
		_, err := store.ReorderCards(e.ColumnID, e.CardIDs)
		return err
	case LabelCreated:
		return store.AddLabel(e.Label)
	case LabelUpdated:
		return store.AddLabel(e.Label)
	case LabelDeleted:
		_, _, err := store.RemoveLabel(e.LabelID)
		return err
	case LabelAssigned:
		_, err := store.AssignLabel(e.CardID, e.LabelID)
		return err
	case LabelUnassigned:
		_, err := store.UnassignLabel(e.CardID, e.LabelID)
		return err
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}
}
