// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines all Bubble Tea message types used by the chat interface.
// Messages flow from the send orchestrator and the state store into the
// Update loop.
package chat

import (
	"time"

	"github.com/jeranaias/chatdeck/internal/chatapi"
	"github.com/jeranaias/chatdeck/internal/send"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamTickMsg drives batched token rendering at a capped frame rate.
type StreamTickMsg struct {
	Time time.Time
}

// StreamCompleteMsg signals that the orchestrator finished a send. Err holds
// rejections that happened before any state was touched (empty text, rate
// limit, send already in flight); stream outcomes live in Result.
type StreamCompleteMsg struct {
	Result *send.Result
	Err    error
}

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// SessionsLoadedMsg signals that the state store finished its initial load.
type SessionsLoadedMsg struct {
	Err error
}

// MessagesLoadedMsg signals that a session's lazy message load finished.
type MessagesLoadedMsg struct {
	SessionID string
	Err       error
}

// SessionDeletedMsg signals that a session delete finished.
type SessionDeletedMsg struct {
	SessionID string
	Err       error
}

// =============================================================================
// MODEL CATALOG MESSAGES
// =============================================================================

// ModelsLoadedMsg carries the backend's model catalog.
type ModelsLoadedMsg struct {
	Models []chatapi.ModelInfo
	Err    error
}

// =============================================================================
// UI MESSAGES
// =============================================================================

// ErrorMsg surfaces a transient error in the status bar.
type ErrorMsg struct {
	Err error
}

// ErrorDismissMsg clears the status bar error.
type ErrorDismissMsg struct{}
