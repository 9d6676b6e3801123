// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
	"github.com/Dasi-Technology/fluxboard-sub000/boardapi"
)

// simulator owns every board the sim serves. Authoritative state lives
// in one [board.Store] per board; REST handlers mutate the store and
// broadcast the canonical result on the feed, so clients see exactly
// the absolute-value events a production service would send.
type simulator struct {
	logger *slog.Logger
	feed   *feedBroker
	hub    *presenceHub

	mu          sync.Mutex
	boards      map[string]*simBoard
	nextChannel uint16
}

type simBoard struct {
	store    *board.Store
	password string
}

func newSimulator(logger *slog.Logger) *simulator {
	return &simulator{
		logger:      logger,
		feed:        newFeedBroker(logger),
		hub:         newPresenceHub(logger),
		boards:      make(map[string]*simBoard),
		nextChannel: 1,
	}
}

// addBoard registers a board under its share token, assigning ids,
// the presence channel number, and contiguous positions where the
// fixture left them out.
func (s *simulator) addBoard(b board.Board, password string) (board.Board, error) {
	if b.ShareToken == "" {
		return board.Board{}, fmt.Errorf("board has no share token")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	for i := range b.Columns {
		if b.Columns[i].ID == "" {
			b.Columns[i].ID = uuid.NewString()
		}
		for j := range b.Columns[i].Cards {
			if b.Columns[i].Cards[j].ID == "" {
				b.Columns[i].Cards[j].ID = uuid.NewString()
			}
		}
	}
	for i := range b.Labels {
		if b.Labels[i].ID == "" {
			b.Labels[i].ID = uuid.NewString()
		}
	}
	b.Locked = password != ""

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.boards[b.ShareToken]; exists {
		return board.Board{}, fmt.Errorf("share token %q is already taken", b.ShareToken)
	}
	b.Channel = s.nextChannel
	s.nextChannel++

	store := board.NewStore()
	if err := store.Replace(b); err != nil {
		return board.Board{}, err
	}
	s.boards[b.ShareToken] = &simBoard{store: store, password: password}
	return store.Board(), nil
}

// install registers every route on the router. The event stream and
// presence endpoints are ordinary routes; their handlers hold the
// connection open.
func (s *simulator) install(router *mux.Router) {
	boards := "/api/boards/{token}"
	router.Methods(http.MethodGet).Path(boards).HandlerFunc(s.getBoard)
	router.Methods(http.MethodPatch).Path(boards).HandlerFunc(s.patchBoard)
	router.Methods(http.MethodGet).Path(boards + "/events").HandlerFunc(s.streamEvents)

	router.Methods(http.MethodPost).Path(boards + "/columns").HandlerFunc(s.createColumn)
	router.Methods(http.MethodPatch).Path(boards + "/columns/{id}").HandlerFunc(s.patchColumn)
	router.Methods(http.MethodDelete).Path(boards + "/columns/{id}").HandlerFunc(s.deleteColumn)
	router.Methods(http.MethodPut).Path(boards + "/columns/{id}/position").HandlerFunc(s.moveColumn)
	router.Methods(http.MethodPut).Path(boards + "/columns/order").HandlerFunc(s.reorderColumns)
	router.Methods(http.MethodPut).Path(boards + "/columns/{id}/cards/order").HandlerFunc(s.reorderCards)

	router.Methods(http.MethodPost).Path(boards + "/cards").HandlerFunc(s.createCard)
	router.Methods(http.MethodPatch).Path(boards + "/cards/{id}").HandlerFunc(s.patchCard)
	router.Methods(http.MethodDelete).Path(boards + "/cards/{id}").HandlerFunc(s.deleteCard)
	router.Methods(http.MethodPut).Path(boards + "/cards/{id}/position").HandlerFunc(s.moveCard)
	router.Methods(http.MethodPut).Path(boards + "/cards/{card}/labels/{label}").HandlerFunc(s.assignLabel)
	router.Methods(http.MethodDelete).Path(boards + "/cards/{card}/labels/{label}").HandlerFunc(s.unassignLabel)

	router.Methods(http.MethodPost).Path(boards + "/labels").HandlerFunc(s.createLabel)
	router.Methods(http.MethodPatch).Path(boards + "/labels/{id}").HandlerFunc(s.patchLabel)
	router.Methods(http.MethodDelete).Path(boards + "/labels/{id}").HandlerFunc(s.deleteLabel)

	router.Path("/presence").HandlerFunc(s.hub.handle)
}

// authorize resolves the request's board and enforces the password on
// locked boards. A nil board means the response is already written.
func (s *simulator) authorize(writer http.ResponseWriter, request *http.Request) (*simBoard, string) {
	token := mux.Vars(request)["token"]
	s.mu.Lock()
	b, ok := s.boards[token]
	s.mu.Unlock()
	if !ok {
		writeAPIError(writer, http.StatusNotFound, boardapi.ErrCodeNotFound, fmt.Sprintf("no board with share token %q", token))
		return nil, ""
	}
	if b.password != "" && request.Header.Get(boardapi.PasswordHeader) != b.password {
		writeAPIError(writer, http.StatusForbidden, boardapi.ErrCodeLocked, "this board requires a password")
		return nil, ""
	}
	return b, token
}

func writeJSON(writer http.ResponseWriter, status int, v any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		slog.Debug("encode response", "error", err)
	}
}

func writeAPIError(writer http.ResponseWriter, status int, code, message string) {
	writeJSON(writer, status, boardapi.APIError{Code: code, Message: message})
}

// writeStoreError maps a store failure onto the service error shape.
func writeStoreError(writer http.ResponseWriter, err error) {
	if errors.Is(err, board.ErrNotFound) {
		writeAPIError(writer, http.StatusNotFound, boardapi.ErrCodeNotFound, err.Error())
		return
	}
	writeAPIError(writer, http.StatusUnprocessableEntity, boardapi.ErrCodeInvalid, err.Error())
}

func decodeBody(writer http.ResponseWriter, request *http.Request, v any) bool {
	if err := json.NewDecoder(request.Body).Decode(v); err != nil {
		writeAPIError(writer, http.StatusBadRequest, boardapi.ErrCodeInvalid, fmt.Sprintf("malformed request body: %v", err))
		return false
	}
	return true
}
