// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDuplicateWindow is the timestamp tolerance used when deciding
// whether an incoming remote message is a re-delivery of an optimistic
// local one. Wide enough to absorb round-trip and streaming latency.
const DefaultDuplicateWindow = 10 * time.Second

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a session.
//
// The ID starts out as a client-generated provisional value and is replaced
// with the backend-assigned one if durable persistence succeeds. Callers
// must therefore never hold a Message's ID across a persistence boundary.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content grows append-only while IsStreaming is true, and is frozen
	// once the stream completes or fails.
	Content     string `json:"content"`
	IsStreaming bool   `json:"is_streaming,omitempty"`

	// RespondingTo carries the id of the user message an assistant reply
	// answers, set at placeholder creation so the correlation survives id
	// replacement on either side.
	RespondingTo string `json:"responding_to,omitempty"`

	// Metadata holds free-form annotations, e.g. an attached-document
	// reference ("document_name", "document_id").
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewMessage creates a new message with a provisional generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        provisionalID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantPlaceholder creates an empty streaming assistant message
// correlated to the user message it responds to.
func NewAssistantPlaceholder(respondingTo string) *Message {
	return &Message{
		ID:           provisionalID(),
		Role:         RoleAssistant,
		Timestamp:    time.Now(),
		IsStreaming:  true,
		RespondingTo: respondingTo,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendToken appends a streamed content fragment. Fragments arriving after
// the message has been finalized are dropped.
func (m *Message) AppendToken(token string) {
	if m.IsStreaming {
		m.Content += token
	}
}

// Finalize freezes the message content and clears the streaming flag.
func (m *Message) Finalize() {
	m.IsStreaming = false
}

// SetMeta sets a metadata annotation, allocating the map on first use.
func (m *Message) SetMeta(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// HasAttachment reports whether the message carries a document reference.
func (m *Message) HasAttachment() bool {
	return m.Metadata["document_name"] != "" || m.Metadata["document_id"] != ""
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	return string(runes[:maxLen]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Clone returns a copy of the message with its own metadata map.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// =============================================================================
// DUPLICATE SUPPRESSION
// =============================================================================

// IsDuplicate reports whether incoming is a re-delivery of existing. The
// check is deliberately heuristic: provisional and authoritative ids differ,
// so identity is judged by role, exact content, and timestamp proximity.
func IsDuplicate(existing, incoming *Message, window time.Duration) bool {
	if existing == nil || incoming == nil {
		return false
	}
	if existing.Role != incoming.Role || existing.Content != incoming.Content {
		return false
	}
	delta := existing.Timestamp.Sub(incoming.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= window
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// provisionalID creates a client-side message ID. Replaced by the backend
// id once the message is durably persisted.
func provisionalID() string {
	return "msg_" + uuid.NewString()
}
