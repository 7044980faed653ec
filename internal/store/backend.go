// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jeranaias/chatdeck/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMessageNotFound is returned when a message id is unknown.
	ErrMessageNotFound = errors.New("message not found")
)

// =============================================================================
// PATCH TYPES
// =============================================================================

// SessionPatch carries a partial session update. Nil fields are untouched.
type SessionPatch struct {
	Title         *string
	IsFavorite    *bool
	SelectedModel *string
}

// Apply merges the patch into a session and bumps UpdatedAt if anything
// changed. Returns true if a field was applied.
func (p SessionPatch) Apply(s *model.Session) bool {
	changed := false
	if p.Title != nil {
		s.Title = *p.Title
		changed = true
	}
	if p.IsFavorite != nil {
		s.IsFavorite = *p.IsFavorite
		changed = true
	}
	if p.SelectedModel != nil {
		s.SelectedModel = *p.SelectedModel
		changed = true
	}
	if changed {
		s.UpdatedAt = time.Now()
	}
	return changed
}

// MessagePatch carries a partial message update. Nil fields are untouched.
type MessagePatch struct {
	Content     *string
	IsStreaming *bool
	Metadata    map[string]string
}

// Apply merges the patch into a message. Returns true if a field was applied.
func (p MessagePatch) Apply(m *model.Message) bool {
	changed := false
	if p.Content != nil {
		m.Content = *p.Content
		changed = true
	}
	if p.IsStreaming != nil {
		m.IsStreaming = *p.IsStreaming
		changed = true
	}
	for k, v := range p.Metadata {
		m.SetMeta(k, v)
		changed = true
	}
	return changed
}

// =============================================================================
// SEARCH FILTERS
// =============================================================================

// Filters narrows a session search beyond the text query.
type Filters struct {
	FavoriteOnly   bool
	HasMessages    bool
	HasAttachments bool
	After          time.Time // zero = unbounded
	Before         time.Time // zero = unbounded
}

// matchTime reports whether t falls inside the filter's date range.
func (f Filters) matchTime(t time.Time) bool {
	if !f.After.IsZero() && t.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && t.After(f.Before) {
		return false
	}
	return true
}

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// Backend is the durable storage strategy behind State. Implementations
// must be safe for use from multiple goroutines.
//
// Create and save operations return the authoritative id the backend
// assigned; callers replace their provisional id with it.
type Backend interface {
	// Sessions
	CreateSession(ctx context.Context, s *model.Session) (string, error)
	DeleteSession(ctx context.Context, id string) error
	UpdateSession(ctx context.Context, id string, patch SessionPatch) error
	ListSessions(ctx context.Context) ([]*model.Session, error)

	// Messages
	SaveMessage(ctx context.Context, sessionID string, msg *model.Message) (string, error)
	UpdateMessage(ctx context.Context, sessionID, messageID string, patch MessagePatch) error
	DeleteMessage(ctx context.Context, sessionID, messageID string) error
	LoadMessages(ctx context.Context, sessionID string) ([]*model.Message, error)

	// Search matches query against session titles and message content.
	Search(ctx context.Context, query string, f Filters) ([]model.SessionMeta, error)

	Close() error
}
