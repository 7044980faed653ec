// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// TitleMaxRunes bounds the auto-derived session title length.
const TitleMaxRunes = 40

// =============================================================================
// LOAD STATE
// =============================================================================

// LoadState tracks whether a session's message history has been fetched.
// A session with zero messages and LoadPending must never be presented as
// empty; the history simply has not been loaded yet.
type LoadState int

const (
	// LoadPending means the session exists but messages were never fetched.
	LoadPending LoadState = iota
	// LoadInFlight means a fetch is currently running.
	LoadInFlight
	// LoadDone means messages were fetched (the result may be empty).
	LoadDone
)

// String returns the load state name for logging.
func (s LoadState) String() string {
	switch s {
	case LoadPending:
		return "pending"
	case LoadInFlight:
		return "in-flight"
	case LoadDone:
		return "done"
	default:
		return "unknown"
	}
}

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds a chat session with its message history and metadata.
type Session struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages in insertion order, which is chronological order.
	// Never reordered; edits replace content in place.
	Messages []*Message `json:"messages"`

	// Metadata
	IsFavorite    bool   `json:"is_favorite"`
	SelectedModel string `json:"selected_model,omitempty"`

	// Lazy-load marker, not persisted.
	MessagesLoaded LoadState `json:"-"`
}

// NewSession creates a new session with a generated ID. A brand-new session
// has no history to fetch, so it starts with MessagesLoaded done.
func NewSession(title, modelID string) *Session {
	now := time.Now()
	return &Session{
		ID:             "sess_" + uuid.NewString(),
		Title:          title,
		CreatedAt:      now,
		UpdatedAt:      now,
		Messages:       make([]*Message, 0),
		SelectedModel:  modelID,
		MessagesLoaded: LoadDone,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and bumps UpdatedAt. If the session is
// untitled and this is a user message, the title is derived from it.
func (s *Session) AddMessage(msg *Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
	if s.Title == "" && msg.Role == RoleUser {
		s.Title = TitleFromContent(msg.Content)
	}
}

// MergeRemote appends a message arriving from the authoritative backend,
// unless an existing message matches it under the duplicate heuristic.
// Returns true if the message was appended.
func (s *Session) MergeRemote(msg *Message, window time.Duration) bool {
	for _, existing := range s.Messages {
		if IsDuplicate(existing, msg, window) {
			return false
		}
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
	return true
}

// GetMessage returns a message by ID, or nil.
func (s *Session) GetMessage(id string) *Message {
	for _, msg := range s.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// MessageIndex returns the position of a message by ID, or -1.
func (s *Session) MessageIndex(id string) int {
	for i, msg := range s.Messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// RemoveMessage removes a message by ID. Returns true if found.
func (s *Session) RemoveMessage(id string) bool {
	for i, msg := range s.Messages {
		if msg.ID == id {
			s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
			s.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// LastMessage returns the most recent message, or nil if empty.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// StreamingMessage returns the single in-flight assistant message, or nil.
// At most one assistant message may stream per session at any time.
func (s *Session) StreamingMessage() *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].IsStreaming {
			return s.Messages[i]
		}
	}
	return nil
}

// ReplyTo returns the assistant message correlated to a user message id,
// or nil.
func (s *Session) ReplyTo(userMessageID string) *Message {
	for _, msg := range s.Messages {
		if msg.Role == RoleAssistant && msg.RespondingTo == userMessageID {
			return msg
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// IsEmpty returns true if the session has a loaded but empty history.
// A session whose history was never fetched is not empty, just unknown.
func (s *Session) IsEmpty() bool {
	return s.MessagesLoaded == LoadDone && len(s.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// TitleFromContent derives a session title from message content,
// truncating to TitleMaxRunes with an ellipsis marker.
func TitleFromContent(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleMaxRunes {
		return content
	}
	return string(runes[:TitleMaxRunes]) + "..."
}

// SetTitle manually sets the session title.
func (s *Session) SetTitle(title string) {
	s.Title = title
	s.UpdatedAt = time.Now()
}

// GetTitle returns the session title or a default.
func (s *Session) GetTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New Chat"
}

// =============================================================================
// SERIALIZATION HELPERS
// =============================================================================

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Messages = make([]*Message, len(s.Messages))
	for i, msg := range s.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}

// Meta returns lightweight metadata for listing.
func (s *Session) Meta() SessionMeta {
	return SessionMeta{
		ID:           s.ID,
		Title:        s.GetTitle(),
		Model:        s.SelectedModel,
		MessageCount: len(s.Messages),
		IsFavorite:   s.IsFavorite,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// SessionMeta holds lightweight metadata for listing.
type SessionMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	IsFavorite   bool      `json:"is_favorite"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
