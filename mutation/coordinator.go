// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package mutation coordinates optimistic board mutations. Every intent
// applies to the local replica first, capturing the displaced state,
// then goes to the Board Service; a rejection rolls the replica back to
// the captured pre-image. A success changes nothing further: the
// service's own change feed event is the confirmation.
package mutation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
)

// Service is the Board Service surface the coordinator mutates through.
// The REST client in boardapi implements it; tests substitute fakes.
// Creates and updates return the canonical entity; the coordinator
// discards it and lets the change feed confirm, so the replica never
// diverges between an intent's response and its feed event.
type Service interface {
	UpdateBoard(ctx context.Context, patch board.BoardPatch) (board.Board, error)
	CreateColumn(ctx context.Context, column board.Column) (board.Column, error)
	UpdateColumn(ctx context.Context, columnID string, patch board.ColumnPatch) (board.Column, error)
	DeleteColumn(ctx context.Context, columnID string) error
	MoveColumn(ctx context.Context, columnID string, newPosition int) error
	ReorderColumns(ctx context.Context, orderedIDs []string) error
	CreateCard(ctx context.Context, card board.Card) (board.Card, error)
	UpdateCard(ctx context.Context, cardID string, patch board.CardPatch) (board.Card, error)
	DeleteCard(ctx context.Context, cardID string) error
	MoveCard(ctx context.Context, cardID, toColumnID string, newPosition int) error
	ReorderCards(ctx context.Context, columnID string, orderedIDs []string) error
	CreateLabel(ctx context.Context, label board.Label) (board.Label, error)
	UpdateLabel(ctx context.Context, labelID string, patch board.LabelPatch) (board.Label, error)
	DeleteLabel(ctx context.Context, labelID string) error
	AssignLabel(ctx context.Context, cardID, labelID string) error
	UnassignLabel(ctx context.Context, cardID, labelID string) error
}

// Config carries the coordinator's dependencies.
type Config struct {
	Store   *board.Store
	Service Service

	// Logger receives rollback diagnostics. Defaults to [slog.Default].
	Logger *slog.Logger
}

// Coordinator routes user intents through the optimistic apply,
// service call, rollback-on-rejection sequence.
//
// Intents are not serialized against each other: two in-flight intents
// touching the same neighborhood can interleave with each other's
// rollbacks and transiently disturb ordering. The feed's absolute
// events converge the replica afterwards.
//
// Construct with [New]. Safe for concurrent use; each intent's
// optimistic apply and each rollback is a single atomic store
// operation.
type Coordinator struct {
	store   *board.Store
	service Service
	logger  *slog.Logger
}

// New returns a coordinator mutating config.Store through
// config.Service.
func New(config Config) *Coordinator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   config.Store,
		service: config.Service,
		logger:  logger,
	}
}

// rollback undoes a rejected optimistic apply. A rollback that cannot
// land, because the store was torn down or a feed event displaced the
// entity in the meantime, is logged and dropped; the next authoritative
// event or resync converges the replica.
func (c *Coordinator) rollback(op string, undo func() error) {
	if err := undo(); err != nil {
		c.logger.Warn("rollback not applied", "op", op, "error", err)
	}
}

// UpdateBoard patches the board's own fields.
func (c *Coordinator) UpdateBoard(ctx context.Context, patch board.BoardPatch) error {
	previous, err := c.store.PatchBoard(patch)
	if err != nil {
		return err
	}
	if _, err := c.service.UpdateBoard(ctx, patch); err != nil {
		c.rollback("update board", func() error {
			_, e := c.store.PatchBoard(previous)
			return e
		})
		return fmt.Errorf("mutation: update board rejected: %w", err)
	}
	return nil
}

// CreateColumn appends a new column with a client-minted id and returns
// the optimistic column. The service's creation event later upserts
// onto the same id.
func (c *Coordinator) CreateColumn(ctx context.Context, title string) (board.Column, error) {
	column := board.Column{
		ID:       uuid.NewString(),
		Title:    title,
		Position: len(c.store.Board().Columns),
	}
	if err := c.store.AddColumn(column); err != nil {
		return board.Column{}, err
	}
	if _, err := c.service.CreateColumn(ctx, column); err != nil {
		c.rollback("create column", func() error {
			_, e := c.store.RemoveColumn(column.ID)
			return e
		})
		return board.Column{}, fmt.Errorf("mutation: create column rejected: %w", err)
	}
	return column, nil
}

// UpdateColumn patches a column's fields.
func (c *Coordinator) UpdateColumn(ctx context.Context, columnID string, patch board.ColumnPatch) error {
	previous, err := c.store.PatchColumn(columnID, patch)
	if err != nil {
		return err
	}
	if _, err := c.service.UpdateColumn(ctx, columnID, patch); err != nil {
		c.rollback("update column", func() error {
			_, e := c.store.PatchColumn(columnID, previous)
			return e
		})
		return fmt.Errorf("mutation: update column rejected: %w", err)
	}
	return nil
}

// DeleteColumn removes a column and its cards.
func (c *Coordinator) DeleteColumn(ctx context.Context, columnID string) error {
	removed, err := c.store.RemoveColumn(columnID)
	if err != nil {
		return err
	}
	if err := c.service.DeleteColumn(ctx, columnID); err != nil {
		c.rollback("delete column", func() error {
			return c.store.AddColumn(removed)
		})
		return fmt.Errorf("mutation: delete column rejected: %w", err)
	}
	return nil
}

// MoveColumn moves a column to newPosition.
func (c *Coordinator) MoveColumn(ctx context.Context, columnID string, newPosition int) error {
	previousPosition, err := c.store.MoveColumn(columnID, newPosition)
	if err != nil {
		return err
	}
	if err := c.service.MoveColumn(ctx, columnID, newPosition); err != nil {
		c.rollback("move column", func() error {
			_, e := c.store.MoveColumn(columnID, previousPosition)
			return e
		})
		return fmt.Errorf("mutation: move column rejected: %w", err)
	}
	return nil
}

// ReorderColumns installs a complete new column order.
func (c *Coordinator) ReorderColumns(ctx context.Context, orderedIDs []string) error {
	previous, err := c.store.ReorderColumns(orderedIDs)
	if err != nil {
		return err
	}
	if err := c.service.ReorderColumns(ctx, orderedIDs); err != nil {
		c.rollback("reorder columns", func() error {
			_, e := c.store.ReorderColumns(previous)
			return e
		})
		return fmt.Errorf("mutation: reorder columns rejected: %w", err)
	}
	return nil
}

// CreateCard appends a new card to the named column with a
// client-minted id and returns the optimistic card.
func (c *Coordinator) CreateCard(ctx context.Context, columnID, title string) (board.Card, error) {
	position := 0
	for _, column := range c.store.Board().Columns {
		if column.ID == columnID {
			position = len(column.Cards)
			break
		}
	}
	card := board.Card{
		ID:       uuid.NewString(),
		ColumnID: columnID,
		Title:    title,
		Position: position,
	}
	if err := c.store.AddCard(card); err != nil {
		return board.Card{}, err
	}
	if _, err := c.service.CreateCard(ctx, card); err != nil {
		c.rollback("create card", func() error {
			_, e := c.store.RemoveCard(card.ID)
			return e
		})
		return board.Card{}, fmt.Errorf("mutation: create card rejected: %w", err)
	}
	return card, nil
}

// UpdateCard patches a card's content fields.
func (c *Coordinator) UpdateCard(ctx context.Context, cardID string, patch board.CardPatch) error {
	previous, err := c.store.PatchCard(cardID, patch)
	if err != nil {
		return err
	}
	if _, err := c.service.UpdateCard(ctx, cardID, patch); err != nil {
		c.rollback("update card", func() error {
			_, e := c.store.PatchCard(cardID, previous)
			return e
		})
		return fmt.Errorf("mutation: update card rejected: %w", err)
	}
	return nil
}

// DeleteCard removes a card.
func (c *Coordinator) DeleteCard(ctx context.Context, cardID string) error {
	removed, err := c.store.RemoveCard(cardID)
	if err != nil {
		return err
	}
	if err := c.service.DeleteCard(ctx, cardID); err != nil {
		c.rollback("delete card", func() error {
			return c.store.AddCard(removed)
		})
		return fmt.Errorf("mutation: delete card rejected: %w", err)
	}
	return nil
}

// MoveCard moves a card to newPosition in the named column, possibly
// across columns.
func (c *Coordinator) MoveCard(ctx context.Context, cardID, toColumnID string, newPosition int) error {
	previousColumnID, previousPosition, err := c.store.MoveCard(cardID, toColumnID, newPosition)
	if err != nil {
		return err
	}
	if err := c.service.MoveCard(ctx, cardID, toColumnID, newPosition); err != nil {
		c.rollback("move card", func() error {
			_, _, e := c.store.MoveCard(cardID, previousColumnID, previousPosition)
			return e
		})
		return fmt.Errorf("mutation: move card rejected: %w", err)
	}
	return nil
}

// ReorderCards installs a complete new card order for one column.
func (c *Coordinator) ReorderCards(ctx context.Context, columnID string, orderedIDs []string) error {
	previous, err := c.store.ReorderCards(columnID, orderedIDs)
	if err != nil {
		return err
	}
	if err := c.service.ReorderCards(ctx, columnID, orderedIDs); err != nil {
		c.rollback("reorder cards", func() error {
			_, e := c.store.ReorderCards(columnID, previous)
			return e
		})
		return fmt.Errorf("mutation: reorder cards rejected: %w", err)
	}
	return nil
}

// CreateLabel adds a new board label with a client-minted id and
// returns the optimistic label.
func (c *Coordinator) CreateLabel(ctx context.Context, name, color string) (board.Label, error) {
	label := board.Label{
		ID:    uuid.NewString(),
		Name:  name,
		Color: color,
	}
	if err := c.store.AddLabel(label); err != nil {
		return board.Label{}, err
	}
	if _, err := c.service.CreateLabel(ctx, label); err != nil {
		c.rollback("create label", func() error {
			_, _, e := c.store.RemoveLabel(label.ID)
			return e
		})
		return board.Label{}, fmt.Errorf("mutation: create label rejected: %w", err)
	}
	return label, nil
}

// UpdateLabel patches a label's fields.
func (c *Coordinator) UpdateLabel(ctx context.Context, labelID string, patch board.LabelPatch) error {
	previous, err := c.store.PatchLabel(labelID, patch)
	if err != nil {
		return err
	}
	if _, err := c.service.UpdateLabel(ctx, labelID, patch); err != nil {
		c.rollback("update label", func() error {
			_, e := c.store.PatchLabel(labelID, previous)
			return e
		})
		return fmt.Errorf("mutation: update label rejected: %w", err)
	}
	return nil
}

// DeleteLabel removes a label from the board and from every card
// carrying it.
func (c *Coordinator) DeleteLabel(ctx context.Context, labelID string) error {
	removed, assignedCardIDs, err := c.store.RemoveLabel(labelID)
	if err != nil {
		return err
	}
	if err := c.service.DeleteLabel(ctx, labelID); err != nil {
		c.rollback("delete label", func() error {
			if err := c.store.AddLabel(removed); err != nil {
				return err
			}
			for _, cardID := range assignedCardIDs {
				if _, err := c.store.AssignLabel(cardID, labelID); err != nil {
					return err
				}
			}
			return nil
		})
		return fmt.Errorf("mutation: delete label rejected: %w", err)
	}
	return nil
}

// AssignLabel adds a label to a card's set.
func (c *Coordinator) AssignLabel(ctx context.Context, cardID, labelID string) error {
	changed, err := c.store.AssignLabel(cardID, labelID)
	if err != nil {
		return err
	}
	if err := c.service.AssignLabel(ctx, cardID, labelID); err != nil {
		if changed {
			c.rollback("assign label", func() error {
				_, e := c.store.UnassignLabel(cardID, labelID)
				return e
			})
		}
		return fmt.Errorf("mutation: assign label rejected: %w", err)
	}
	return nil
}

// UnassignLabel removes a label from a card's set.
func (c *Coordinator) UnassignLabel(ctx context.Context, cardID, labelID string) error {
	changed, err := c.store.UnassignLabel(cardID, labelID)
	if err != nil {
		return err
	}
	if err := c.service.UnassignLabel(ctx, cardID, labelID); err != nil {
		if changed {
			c.rollback("unassign label", func() error {
				_, e := c.store.AssignLabel(cardID, labelID)
				return e
			})
		}
		return fmt.Errorf("mutation: unassign label rejected: %w", err)
	}
	return nil
}
