// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
	"github.com/Dasi-Technology/fluxboard-sub000/feed"
)

// The REST surface mirrors what the boardapi client expects: mutations
// land in the board's store, the canonical post-mutation state goes
// back in the response, and the same change is broadcast on the feed
// with absolute values. Clients that issued the mutation see their own
// event echoed; their replica applies it idempotently.

func (s *simulator) getBoard(writer http.ResponseWriter, request *http.Request) {
	b, _ := s.authorize(writer, request)
	if b == nil {
		return
	}
	writeJSON(writer, http.StatusOK, b.store.Board())
}

func (s *simulator) patchBoard(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var patch board.BoardPatch
	if !decodeBody(writer, request, &patch) {
		return
	}
	if _, err := b.store.PatchBoard(patch); err != nil {
		writeStoreError(writer, err)
		return
	}
	canonical := b.store.Board()
	s.feed.publish(token, feed.EventBoardUpdated, canonical)
	writeJSON(writer, http.StatusOK, canonical)
}

func (s *simulator) createColumn(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var column board.Column
	if !decodeBody(writer, request, &column) {
		return
	}
	if column.ID == "" {
		column.ID = uuid.NewString()
	}
	if err := b.store.AddColumn(column); err != nil {
		writeStoreError(writer, err)
		return
	}
	canonical, _ := findColumn(b.store.Board(), column.ID)
	s.feed.publish(token, feed.EventColumnCreated, canonical)
	writeJSON(writer, http.StatusCreated, canonical)
}

func (s *simulator) patchColumn(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var patch board.ColumnPatch
	if !decodeBody(writer, request, &patch) {
		return
	}
	id := mux.Vars(request)["id"]
	if _, err := b.store.PatchColumn(id, patch); err != nil {
		writeStoreError(writer, err)
		return
	}
	canonical, _ := findColumn(b.store.Board(), id)
	s.feed.publish(token, feed.EventColumnUpdated, canonical)
	writeJSON(writer, http.StatusOK, canonical)
}

func (s *simulator) deleteColumn(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	id := mux.Vars(request)["id"]
	if _, err := b.store.RemoveColumn(id); err != nil {
		writeStoreError(writer, err)
		return
	}
	s.feed.publish(token, feed.EventColumnDeleted, map[string]string{"id": id})
	writer.WriteHeader(http.StatusNoContent)
}

func (s *simulator) moveColumn(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var body struct {
		Position int `json:"position"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}
	id := mux.Vars(request)["id"]
	if _, err := b.store.MoveColumn(id, body.Position); err != nil {
		writeStoreError(writer, err)
		return
	}
	s.feed.publish(token, feed.EventColumnsReordered, map[string]any{
		"column_ids": columnIDs(b.store.Board()),
	})
	writer.WriteHeader(http.StatusNoContent)
}

func (s *simulator) reorderColumns(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var body struct {
		ColumnIDs []string `json:"column_ids"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}
	if _, err := b.store.ReorderColumns(body.ColumnIDs); err != nil {
		writeStoreError(writer, err)
		return
	}
	s.feed.publish(token, feed.EventColumnsReordered, map[string]any{
		"column_ids": columnIDs(b.store.Board()),
	})
	writer.WriteHeader(http.StatusNoContent)
}

func (s *simulator) createCard(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var card board.Card
	if !decodeBody(writer, request, &card) {
		return
	}
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if err := b.store.AddCard(card); err != nil {
		writeStoreError(writer, err)
		return
	}
	canonical, _ := findCard(b.store.Board(), card.ID)
	s.feed.publish(token, feed.EventCardCreated, canonical)
	writeJSON(writer, http.StatusCreated, canonical)
}

func (s *simulator) patchCard(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var patch board.CardPatch
	if !decodeBody(writer, request, &patch) {
		return
	}
	id := mux.Vars(request)["id"]
	if _, err := b.store.PatchCard(id, patch); err != nil {
		writeStoreError(writer, err)
		return
	}
	canonical, _ := findCard(b.store.Board(), id)
	s.feed.publish(token, feed.EventCardUpdated, canonical)
	writeJSON(writer, http.StatusOK, canonical)
}

func (s *simulator) deleteCard(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	id := mux.Vars(request)["id"]
	if _, err := b.store.RemoveCard(id); err != nil {
		writeStoreError(writer, err)
		return
	}
	s.feed.publish(token, feed.EventCardDeleted, map[string]string{"id": id})
	writer.WriteHeader(http.StatusNoContent)
}

func (s *simulator) moveCard(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var body struct {
		ToColumnID  string `json:"to_column_id"`
		NewPosition int    `json:"new_position"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}
	id := mux.Vars(request)["id"]
	if _, _, err := b.store.MoveCard(id, body.ToColumnID, body.NewPosition); err != nil {
		writeStoreError(writer, err)
		return
	}
	// The store clamps the requested position; broadcast where the
	// card actually landed.
	canonical, _ := findCard(b.store.Board(), id)
	s.feed.publish(token, feed.EventCardMoved, map[string]any{
		"card_id":      canonical.ID,
		"to_column_id": canonical.ColumnID,
		"new_position": canonical.Position,
	})
	writer.WriteHeader(http.StatusNoContent)
}

func (s *simulator) reorderCards(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var body struct {
		CardIDs []string `json:"card_ids"`
	}
	if !decodeBody(writer, request, &body) {
		return
	}
	id := mux.Vars(request)["id"]
	if _, err := b.store.ReorderCards(id, body.CardIDs); err != nil {
		writeStoreError(writer, err)
		return
	}
	s.feed.publish(token, feed.EventCardsReordered, map[string]any{
		"column_id": id,
		"card_ids":  cardIDs(b.store.Board(), id),
	})
	writer.WriteHeader(http.StatusNoContent)
}

func (s *simulator) createLabel(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var label board.Label
	if !decodeBody(writer, request, &label) {
		return
	}
	if label.ID == "" {
		label.ID = uuid.NewString()
	}
	if err := b.store.AddLabel(label); err != nil {
		writeStoreError(writer, err)
		return
	}
	canonical, _ := findLabel(b.store.Board(), label.ID)
	s.feed.publish(token, feed.EventLabelCreated, canonical)
	writeJSON(writer, http.StatusCreated, canonical)
}

func (s *simulator) patchLabel(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	var patch board.LabelPatch
	if !decodeBody(writer, request, &patch) {
		return
	}
	id := mux.Vars(request)["id"]
	if _, err := b.store.PatchLabel(id, patch); err != nil {
		writeStoreError(writer, err)
		return
	}
	canonical, _ := findLabel(b.store.Board(), id)
	s.feed.publish(token, feed.EventLabelUpdated, canonical)
	writeJSON(writer, http.StatusOK, canonical)
}

func (s *simulator) deleteLabel(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	id := mux.Vars(request)["id"]
	if _, _, err := b.store.RemoveLabel(id); err != nil {
		writeStoreError(writer, err)
		return
	}
	// Receivers cascade the unassignments from the delete itself.
	s.feed.publish(token, feed.EventLabelDeleted, map[string]string{"id": id})
	writer.WriteHeader(http.StatusNoContent)
}

func (s *simulator) assignLabel(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	vars := mux.Vars(request)
	changed, err := b.store.AssignLabel(vars["card"], vars["label"])
	if err != nil {
		writeStoreError(writer, err)
		return
	}
	if changed {
		s.feed.publish(token, feed.EventLabelAssigned, map[string]string{
			"card_id":  vars["card"],
			"label_id": vars["label"],
		})
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (s *simulator) unassignLabel(writer http.ResponseWriter, request *http.Request) {
	b, token := s.authorize(writer, request)
	if b == nil {
		return
	}
	vars := mux.Vars(request)
	changed, err := b.store.UnassignLabel(vars["card"], vars["label"])
	if err != nil {
		writeStoreError(writer, err)
		return
	}
	if changed {
		s.feed.publish(token, feed.EventLabelUnassigned, map[string]string{
			"card_id":  vars["card"],
			"label_id": vars["label"],
		})
	}
	writer.WriteHeader(http.StatusNoContent)
}

func findColumn(b board.Board, id string) (board.Column, bool) {
	for _, column := range b.Columns {
		if column.ID == id {
			return column, true
		}
	}
	return board.Column{}, false
}

func findCard(b board.Board, id string) (board.Card, bool) {
	for _, column := range b.Columns {
		for _, card := range column.Cards {
			if card.ID == id {
				return card, true
			}
		}
	}
	return board.Card{}, false
}

func findLabel(b board.Board, id string) (board.Label, bool) {
	for _, label := range b.Labels {
		if label.ID == id {
			return label, true
		}
	}
	return board.Label{}, false
}

func columnIDs(b board.Board) []string {
	ids := make([]string, len(b.Columns))
	for i, column := range b.Columns {
		ids[i] = column.ID
	}
	return ids
}

func cardIDs(b board.Board, columnID string) []string {
	column, ok := findColumn(b, columnID)
	if !ok {
		return nil
	}
	ids := make([]string, len(column.Cards))
	for i, card := range column.Cards {
		ids[i] = card.ID
	}
	return ids
}
