// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

package boardapi

import (
	"errors"
	"fmt"
)

// APIError is a structured error response from the Board Service.
// Callers can use errors.As to extract the structured information:
//
//	var apiErr *boardapi.APIError
//	if errors.As(err, &apiErr) {
//	    if apiErr.Code == boardapi.ErrCodeLocked { ... }
//	}
type APIError struct {
	// Code is the service's machine-readable error code.
	Code string `json:"code"`
	// Message is the human-readable description from the service.
	Message string `json:"message"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("boardapi: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Error codes the Board Service returns.
const (
	ErrCodeNotFound  = "not_found"
	ErrCodeForbidden = "forbidden"
	ErrCodeLocked    = "board_locked"
	ErrCodeInvalid   = "invalid_request"
	ErrCodeConflict  = "conflict"
)

// IsAPIError reports whether err is an *APIError with the given code.
func IsAPIError(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
