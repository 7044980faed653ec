// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotConfigured is returned when the client has no base URL.
var ErrNotConfigured = errors.New("chat backend not configured")

// StatusError is returned when the backend answers with a non-2xx status
// before any stream body is consumed.
type StatusError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("chat backend returned status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("chat backend returned status %d", e.Status)
}

// StreamError is returned when a stream fails after some tokens were
// already received. Partial preserves the content seen before the error
// so callers never lose tokens that were applied.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}
