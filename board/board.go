// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package board holds the client's in-memory replica of one kanban board
// and the mutation operations that keep it consistent.
//
// The package is organized around the replica's two writers:
//
//   - board.go: entity types shared with the Board Service wire format
//   - store.go: the synchronized Store with positional reindexing and
//     undo-reporting mutations
//
// Columns on a board and cards in a column always carry the contiguous
// positions 0..n-1 in list order; every Store operation restores that
// property before returning. Mutations report the displaced previous
// state so an optimistic caller can undo them exactly.
package board

// Board is one kanban board with its columns and labels. Channel is the
// board's presence wire channel number, assigned by the service.
type Board struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	ShareToken string   `json:"share_token"`
	Locked     bool     `json:"locked"`
	Channel    uint16   `json:"channel"`
	Columns    []Column `json:"columns"`
	Labels     []Label  `json:"labels"`
}

// Column is an ordered list of cards on a board. Position is the column's
// index within the board's column list.
type Column struct {
	ID       string `json:"id"`
	BoardID  string `json:"board_id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
	Cards    []Card `json:"cards"`
}

// Card is a single kanban card. Position is the card's index within its
// column; ColumnID always names the column whose list contains the card.
// LabelIDs is the card's assigned label set, kept sorted.
type Card struct {
	ID          string   `json:"id"`
	ColumnID    string   `json:"column_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Position    int      `json:"position"`
	LabelIDs    []string `json:"label_ids"`
}

// Label is a board-scoped label assignable to any card on the board.
// Color is the display color in "#rrggbb" form.
type Label struct {
	ID      string `json:"id"`
	BoardID string `json:"board_id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}

// BoardPatch is a partial update to a board's own fields. Nil fields are
// left unchanged.
type BoardPatch struct {
	Title  *string `json:"title,omitempty"`
	Locked *bool   `json:"locked,omitempty"`
}

// ColumnPatch is a partial update to a column's own fields.
type ColumnPatch struct {
	Title *string `json:"title,omitempty"`
}

// CardPatch is a partial update to a card's content fields. Moving a card
// is not a patch; it goes through [Store.MoveCard].
type CardPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	LabelIDs    *[]string `json:"label_ids,omitempty"`
}

// LabelPatch is a partial update to a label.
type LabelPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Clone returns a deep copy of the board. Slice sub-state is copied all
// the way down so the copy shares no memory with the original.
func (b Board) Clone() Board {
	copied := b
	copied.Columns = nil
	if b.Columns != nil {
		copied.Columns = make([]Column, len(b.Columns))
		for i, column := range b.Columns {
			copied.Columns[i] = column.clone()
		}
	}
	copied.Labels = append([]Label(nil), b.Labels...)
	return copied
}

func (c Column) clone() Column {
	copied := c
	copied.Cards = nil
	if c.Cards != nil {
		copied.Cards = make([]Card, len(c.Cards))
		for i, card := range c.Cards {
			copied.Cards[i] = card.clone()
		}
	}
	return copied
}

func (c Card) clone() Card {
	copied := c
	copied.LabelIDs = append([]string(nil), c.LabelIDs...)
	return copied
}
