// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package boardapi is the REST client for the Board Service, the
// authoritative owner of boards, columns, cards, and labels.
//
// Every path is scoped by the board's share token, which both names and
// authorizes the board. A locked board additionally requires the board
// password, sent on every request in the X-Board-Password header.
// Mutations return the canonical post-mutation entity; the service
// separately broadcasts the same change on the board's change feed.
package boardapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Dasi-Technology/fluxboard-sub000/board"
	"github.com/Dasi-Technology/fluxboard-sub000/lib/httpx"
	"github.com/Dasi-Technology/fluxboard-sub000/mutation"
)

// PasswordHeader carries the board password on requests against a
// locked board. The feed stream accepts the same header.
const PasswordHeader = "X-Board-Password"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the Board Service root (e.g. "http://localhost:4100").
	BaseURL string
	// ShareToken scopes and authorizes every request.
	ShareToken string
	// Password is sent in the [PasswordHeader] header when set; locked
	// boards reject requests without it.
	Password string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Client talks to the Board Service for one board.
type Client struct {
	baseURL    string
	boardPath  string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ mutation.Service = (*Client)(nil)

// NewClient validates config and returns a client scoped to the
// configured board.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("boardapi: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("boardapi: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if config.ShareToken == "" {
		return nil, fmt.Errorf("boardapi: ShareToken is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		boardPath:  "/api/boards/" + url.PathEscape(config.ShareToken),
		password:   config.Password,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections drops pooled connections. Call after a network
// disruption so the next request dials fresh instead of reusing a
// poisoned connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// FetchBoard retrieves the full canonical board: entity fields, columns
// with their cards, and labels. The initial load and every post-outage
// resync go through here.
func (c *Client) FetchBoard(ctx context.Context) (board.Board, error) {
	var b board.Board
	if err := c.doRequest(ctx, http.MethodGet, "", nil, &b); err != nil {
		return board.Board{}, fmt.Errorf("boardapi: fetch board: %w", err)
	}
	c.logger.Info("fetched board",
		"board_id", b.ID,
		"columns", len(b.Columns),
		"labels", len(b.Labels))
	return b, nil
}

// UpdateBoard patches the board's own fields.
func (c *Client) UpdateBoard(ctx context.Context, patch board.BoardPatch) (board.Board, error) {
	var b board.Board
	if err := c.doRequest(ctx, http.MethodPatch, "", patch, &b); err != nil {
		return board.Board{}, fmt.Errorf("boardapi: update board: %w", err)
	}
	return b, nil
}

// CreateColumn creates a column. The request carries the client-minted
// id; the service either adopts it or rejects the request.
func (c *Client) CreateColumn(ctx context.Context, column board.Column) (board.Column, error) {
	var created board.Column
	if err := c.doRequest(ctx, http.MethodPost, "/columns", column, &created); err != nil {
		return board.Column{}, fmt.Errorf("boardapi: create column: %w", err)
	}
	return created, nil
}

// UpdateColumn patches a column.
func (c *Client) UpdateColumn(ctx context.Context, columnID string, patch board.ColumnPatch) (board.Column, error) {
	var updated board.Column
	if err := c.doRequest(ctx, http.MethodPatch, "/columns/"+url.PathEscape(columnID), patch, &updated); err != nil {
		return board.Column{}, fmt.Errorf("boardapi: update column %s: %w", columnID, err)
	}
	return updated, nil
}

// DeleteColumn deletes a column and every card in it.
func (c *Client) DeleteColumn(ctx context.Context, columnID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/columns/"+url.PathEscape(columnID), nil, nil); err != nil {
		return fmt.Errorf("boardapi: delete column %s: %w", columnID, err)
	}
	return nil
}

// MoveColumn places a column at newPosition.
func (c *Client) MoveColumn(ctx context.Context, columnID string, newPosition int) error {
	body := map[string]int{"position": newPosition}
	if err := c.doRequest(ctx, http.MethodPut, "/columns/"+url.PathEscape(columnID)+"/position", body, nil); err != nil {
		return fmt.Errorf("boardapi: move column %s: %w", columnID, err)
	}
	return nil
}

// ReorderColumns installs a complete column order.
func (c *Client) ReorderColumns(ctx context.Context, orderedIDs []string) error {
	body := map[string][]string{"column_ids": orderedIDs}
	if err := c.doRequest(ctx, http.MethodPut, "/columns/order", body, nil); err != nil {
		return fmt.Errorf("boardapi: reorder columns: %w", err)
	}
	return nil
}

// CreateCard creates a card in the column named by card.ColumnID.
func (c *Client) CreateCard(ctx context.Context, card board.Card) (board.Card, error) {
	var created board.Card
	if err := c.doRequest(ctx, http.MethodPost, "/cards", card, &created); err != nil {
		return board.Card{}, fmt.Errorf("boardapi: create card: %w", err)
	}
	return created, nil
}

// UpdateCard patches a card's content fields.
func (c *Client) UpdateCard(ctx context.Context, cardID string, patch board.CardPatch) (board.Card, error) {
	var updated board.Card
	if err := c.doRequest(ctx, http.MethodPatch, "/cards/"+url.PathEscape(cardID), patch, &updated); err != nil {
		return board.Card{}, fmt.Errorf("boardapi: update card %s: %w", cardID, err)
	}
	return updated, nil
}

// DeleteCard deletes a card.
func (c *Client) DeleteCard(ctx context.Context, cardID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/cards/"+url.PathEscape(cardID), nil, nil); err != nil {
		return fmt.Errorf("boardapi: delete card %s: %w", cardID, err)
	}
	return nil
}

// MoveCard places a card at newPosition in the named column.
func (c *Client) MoveCard(ctx context.Context, cardID, toColumnID string, newPosition int) error {
	body := map[string]any{"to_column_id": toColumnID, "new_position": newPosition}
	if err := c.doRequest(ctx, http.MethodPut, "/cards/"+url.PathEscape(cardID)+"/position", body, nil); err != nil {
		return fmt.Errorf("boardapi: move card %s: %w", cardID, err)
	}
	return nil
}

// ReorderCards installs a complete card order for one column.
func (c *Client) ReorderCards(ctx context.Context, columnID string, orderedIDs []string) error {
	body := map[string][]string{"card_ids": orderedIDs}
	if err := c.doRequest(ctx, http.MethodPut, "/columns/"+url.PathEscape(columnID)+"/cards/order", body, nil); err != nil {
		return fmt.Errorf("boardapi: reorder cards in %s: %w", columnID, err)
	}
	return nil
}

// CreateLabel creates a board label.
func (c *Client) CreateLabel(ctx context.Context, label board.Label) (board.Label, error) {
	var created board.Label
	if err := c.doRequest(ctx, http.MethodPost, "/labels", label, &created); err != nil {
		return board.Label{}, fmt.Errorf("boardapi: create label: %w", err)
	}
	return created, nil
}

// UpdateLabel patches a label.
func (c *Client) UpdateLabel(ctx context.Context, labelID string, patch board.LabelPatch) (board.Label, error) {
	var updated board.Label
	if err := c.doRequest(ctx, http.MethodPatch, "/labels/"+url.PathEscape(labelID), patch, &updated); err != nil {
		return board.Label{}, fmt.Errorf("boardapi: update label %s: %w", labelID, err)
	}
	return updated, nil
}

// DeleteLabel deletes a label and unassigns it everywhere.
func (c *Client) DeleteLabel(ctx context.Context, labelID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/labels/"+url.PathEscape(labelID), nil, nil); err != nil {
		return fmt.Errorf("boardapi: delete label %s: %w", labelID, err)
	}
	return nil
}

// AssignLabel adds a label to a card.
func (c *Client) AssignLabel(ctx context.Context, cardID, labelID string) error {
	path := "/cards/" + url.PathEscape(cardID) + "/labels/" + url.PathEscape(labelID)
	if err := c.doRequest(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("boardapi: assign label %s to card %s: %w", labelID, cardID, err)
	}
	return nil
}

// UnassignLabel removes a label from a card.
func (c *Client) UnassignLabel(ctx context.Context, cardID, labelID string) error {
	path := "/cards/" + url.PathEscape(cardID) + "/labels/" + url.PathEscape(labelID)
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("boardapi: unassign label %s from card %s: %w", labelID, cardID, err)
	}
	return nil
}

// doRequest performs one JSON round-trip against a board-scoped path.
// A 2xx response is decoded into responseBody when non-nil; any other
// status decodes the service's error shape into an *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody, responseBody any) error {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+c.boardPath+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.password != "" {
		request.Header.Set(PasswordHeader, c.password)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	raw, err := httpx.ReadBody(response.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		if responseBody == nil {
			return nil
		}
		if err := json.Unmarshal(raw, responseBody); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
		return nil
	}

	var apiErr APIError
	if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr != nil || apiErr.Code == "" {
		// Not the service's error shape; surface the raw body.
		return fmt.Errorf("unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(raw))
	}
	apiErr.StatusCode = response.StatusCode
	return &apiErr
}
