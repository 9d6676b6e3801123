// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
)

// Change feed event names as they appear on the stream.
const (
	EventBoardUpdated     = "board_updated"
	EventColumnCreated    = "column_created"
	EventColumnUpdated    = "column_updated"
	EventColumnDeleted    = "column_deleted"
	EventColumnsReordered = "column_reordered"
	EventCardCreated      = "card_created"
	EventCardUpdated      = "card_updated"
	EventCardDeleted      = "card_deleted"
	EventCardMoved        = "card_moved"
	EventCardsReordered   = "card_reordered"
	EventLabelCreated     = "board_label_created"
	EventLabelUpdated     = "board_label_updated"
	EventLabelDeleted     = "board_label_deleted"
	EventLabelAssigned    = "card_label_assigned"
	EventLabelUnassigned  = "card_label_unassigned"
)

// ErrUnknownEvent reports a feed event name this client does not
// recognize. The consumer logs and skips these; newer servers may ship
// event types an older client has no use for.
var ErrUnknownEvent = errors.New("feed: unknown event")

// Event is one canonical change notification. Every variant carries the
// server's absolute post-mutation values, never a delta. The concrete
// types are the *Created/*Updated entity events, the *Deleted identity
// events, [CardMoved], the reorder events, and the label relation
// events.
type Event interface {
	feedEvent()
}

// BoardUpdated carries the board's own canonical fields.
type BoardUpdated struct {
	Board board.Board
}

// ColumnCreated carries the full new column.
type ColumnCreated struct {
	Column board.Column
}

// ColumnUpdated carries the full updated column.
type ColumnUpdated struct {
	Column board.Column
}

// ColumnDeleted identifies a deleted column; its cards go with it.
type ColumnDeleted struct {
	ColumnID string
}

// ColumnsReordered carries the board's complete new column order.
type ColumnsReordered struct {
	ColumnIDs []string
}

// CardCreated carries the full new card.
type CardCreated struct {
	Card board.Card
}

// CardUpdated carries the full updated card.
type CardUpdated struct {
	Card board.Card
}

// CardDeleted identifies a deleted card.
type CardDeleted struct {
	CardID string
}

// CardMoved carries a card's new placement.
type CardMoved struct {
	CardID      string
	ToColumnID  string
	NewPosition int
}

// CardsReordered carries one column's complete new card order.
type CardsReordered struct {
	ColumnID string
	CardIDs  []string
}

// LabelCreated carries the full new label.
type LabelCreated struct {
	Label board.Label
}

// LabelUpdated carries the full updated label.
type LabelUpdated struct {
	Label board.Label
}

// LabelDeleted identifies a deleted label.
type LabelDeleted struct {
	LabelID string
}

// LabelAssigned adds a label to a card's set.
type LabelAssigned struct {
	CardID  string
	LabelID string
}

// LabelUnassigned removes a label from a card's set.
type LabelUnassigned struct {
	CardID  string
	LabelID string
}

func (BoardUpdated) feedEvent()     {}
func (ColumnCreated) feedEvent()    {}
func (ColumnUpdated) feedEvent()    {}
func (ColumnDeleted) feedEvent()    {}
func (ColumnsReordered) feedEvent() {}
func (CardCreated) feedEvent()      {}
func (CardUpdated) feedEvent()      {}
func (CardDeleted) feedEvent()      {}
func (CardMoved) feedEvent()        {}
func (CardsReordered) feedEvent()   {}
func (LabelCreated) feedEvent()     {}
func (LabelUpdated) feedEvent()     {}
func (LabelDeleted) feedEvent()     {}
func (LabelAssigned) feedEvent()    {}
func (LabelUnassigned) feedEvent()  {}

// Wire payload shapes for events that carry identifiers rather than
// full entities.
type deletedPayload struct {
	ID string `json:"id"`
}

type cardMovedPayload struct {
	CardID      string `json:"card_id"`
	ToColumnID  string `json:"to_column_id"`
	NewPosition int    `json:"new_position"`
}

type columnsReorderedPayload struct {
	ColumnIDs []string `json:"column_ids"`
}

type cardsReorderedPayload struct {
	ColumnID string   `json:"column_id"`
	CardIDs  []string `json:"card_ids"`
}

type labelRelationPayload struct {
	CardID  string `json:"card_id"`
	LabelID string `json:"label_id"`
}

// ParseEvent decodes one feed frame into its typed event. Unknown names
// return [ErrUnknownEvent]; malformed payloads return a decode error.
func ParseEvent(name string, data []byte) (Event, error) {
	decode := func(v any) error {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("feed: decode %s payload: %w", name, err)
		}
		return nil
	}

	switch name {
	case EventBoardUpdated:
		var b board.Board
		if err := decode(&b); err != nil {
			return nil, err
		}
		return BoardUpdated{Board: b}, nil
	case EventColumnCreated:
		var c board.Column
		if err := decode(&c); err != nil {
			return nil, err
		}
		return ColumnCreated{Column: c}, nil
	case EventColumnUpdated:
		var c board.Column
		if err := decode(&c); err != nil {
			return nil, err
		}
		return ColumnUpdated{Column: c}, nil
	case EventColumnDeleted:
		var p deletedPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return ColumnDeleted{ColumnID: p.ID}, nil
	case EventColumnsReordered:
		var p columnsReorderedPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return ColumnsReordered{ColumnIDs: p.ColumnIDs}, nil
	case EventCardCreated:
		var c board.Card
		if err := decode(&c); err != nil {
			return nil, err
		}
		return CardCreated{Card: c}, nil
	case EventCardUpdated:
		var c board.Card
		if err := decode(&c); err != nil {
			return nil, err
		}
		return CardUpdated{Card: c}, nil
	case EventCardDeleted:
		var p deletedPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return CardDeleted{CardID: p.ID}, nil
	case EventCardMoved:
		var p cardMovedPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return CardMoved{CardID: p.CardID, ToColumnID: p.ToColumnID, NewPosition: p.NewPosition}, nil
	case EventCardsReordered:
		var p cardsReorderedPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return CardsReordered{ColumnID: p.ColumnID, CardIDs: p.CardIDs}, nil
	case EventLabelCreated:
		var l board.Label
		if err := decode(&l); err != nil {
			return nil, err
		}
		return LabelCreated{Label: l}, nil
	case EventLabelUpdated:
		var l board.Label
		if err := decode(&l); err != nil {
			return nil, err
		}
		return LabelUpdated{Label: l}, nil
	case EventLabelDeleted:
		var p deletedPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return LabelDeleted{LabelID: p.ID}, nil
	case EventLabelAssigned:
		var p labelRelationPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return LabelAssigned{CardID: p.CardID, LabelID: p.LabelID}, nil
	case EventLabelUnassigned:
		var p labelRelationPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return LabelUnassigned{CardID: p.CardID, LabelID: p.LabelID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}
