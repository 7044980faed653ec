// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import "time"

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatRequest is the JSON body of both the streaming and non-streaming
// chat endpoints.
type ChatRequest struct {
	Message         string `json:"message"`
	Model           string `json:"model"`
	Stream          bool   `json:"stream"`
	DocumentContext string `json:"documentContext,omitempty"`
}

// ChatResponse is the body returned by the non-streaming chat endpoint.
type ChatResponse struct {
	Response string `json:"response"`
	Model    string `json:"model,omitempty"`
}

// ModelInfo describes one model advertised by the backend.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// wireEvent is the decoded payload of a single "data:" line.
// The backend emits {"type":"token","content":...} and {"type":"done"}.
type wireEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

const (
	wireTypeToken = "token"
	wireTypeDone  = "done"
)

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind discriminates StreamEvent values.
type EventKind int

const (
	// EventToken carries one incremental content fragment.
	EventToken EventKind = iota
	// EventDone signals graceful completion. No further events follow.
	EventDone
	// EventError signals a transport or request failure. No further
	// events follow.
	EventError
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventToken:
		return "token"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamEvent is one element of a decoded token stream. Exactly one of
// Content (for EventToken) or Err (for EventError) is meaningful.
type StreamEvent struct {
	Kind    EventKind
	Content string
	Err     error
}

// =============================================================================
// STREAM STATS
// =============================================================================

// StreamStats holds timing statistics collected while consuming a stream.
type StreamStats struct {
	FirstTokenTime time.Duration // Time from request start to first token
	TotalTime      time.Duration
	TokenCount     int
	Model          string
}
