// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
	"github.com/Dasi-Technology/fluxboard-sub000/feed"
	"github.com/Dasi-Technology/fluxboard-sub000/presence"
)

// logListener narrates session notifications to the structured log.
// Cursor traffic goes to Debug; everything else is Info or louder.
type logListener struct {
	logger *slog.Logger
}

func (l *logListener) BoardResynced(b board.Board) {
	cards := 0
	for _, column := range b.Columns {
		cards += len(column.Cards)
	}
	l.logger.Info("board state loaded",
		"board_id", b.ID,
		"title", b.Title,
		"columns", len(b.Columns),
		"cards", cards,
		"labels", len(b.Labels),
	)
}

func (l *logListener) BoardApplied(event feed.Event) {
	switch e := event.(type) {
	case feed.BoardUpdated:
		l.logger.Info("board updated", "title", e.Board.Title)
	case feed.ColumnCreated:
		l.logger.Info("column created", "column_id", e.Column.ID, "title", e.Column.Title)
	case feed.ColumnUpdated:
		l.logger.Info("column updated", "column_id", e.Column.ID, "title", e.Column.Title)
	case feed.ColumnDeleted:
		l.logger.Info("column deleted", "column_id", e.ColumnID)
	case feed.ColumnsReordered:
		l.logger.Info("columns reordered", "order", e.ColumnIDs)
	case feed.CardCreated:
		l.logger.Info("card created", "card_id", e.Card.ID, "column_id", e.Card.ColumnID, "title", e.Card.Title)
	case feed.CardUpdated:
		l.logger.Info("card updated", "card_id", e.Card.ID, "title", e.Card.Title)
	case feed.CardDeleted:
		l.logger.Info("card deleted", "card_id", e.CardID)
	case feed.CardMoved:
		l.logger.Info("card moved", "card_id", e.CardID, "to_column_id", e.ToColumnID, "position", e.NewPosition)
	case feed.CardsReordered:
		l.logger.Info("cards reordered", "column_id", e.ColumnID, "order", e.CardIDs)
	case feed.LabelCreated:
		l.logger.Info("label created", "label_id", e.Label.ID, "name", e.Label.Name)
	case feed.LabelUpdated:
		l.logger.Info("label updated", "label_id", e.Label.ID, "name", e.Label.Name)
	case feed.LabelDeleted:
		l.logger.Info("label deleted", "label_id", e.LabelID)
	case feed.LabelAssigned:
		l.logger.Info("label assigned", "card_id", e.CardID, "label_id", e.LabelID)
	case feed.LabelUnassigned:
		l.logger.Info("label unassigned", "card_id", e.CardID, "label_id", e.LabelID)
	default:
		l.logger.Info("feed event applied", "event", event)
	}
}

func (l *logListener) FeedFailed(err error) {
	l.logger.Error("feed failed, board state is frozen until restart", "error", err)
}

func (l *logListener) PresenceFailed(err error) {
	l.logger.Error("presence failed, roster is stale until restart", "error", err)
}

func (l *logListener) UserJoined(user presence.User) {
	l.logger.Info("user joined", "user_id", user.ID, "username", user.Name)
}

func (l *logListener) UserLeft(user presence.User) {
	l.logger.Info("user left", "user_id", user.ID, "username", user.Name)
}

func (l *logListener) CursorMoved(user presence.User) {
	l.logger.Debug("cursor moved", "user_id", user.ID, "x", user.CursorX, "y", user.CursorY)
}

func (l *logListener) PresenceCountChanged(count int) {
	l.logger.Info("presence count changed", "count", count)
}
