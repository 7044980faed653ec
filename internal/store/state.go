// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatdeck/internal/model"
)

// =============================================================================
// STATE
// =============================================================================

// State owns the canonical in-memory session list. Every mutation updates
// memory first and best-effort forwards to the backend; a backend failure
// is logged and absorbed whenever the memory mutation alone is a sensible
// outcome, and surfaced only where it is not (Load, LoadMessages).
//
// The session list is kept most-recent-first. Intra-session message order
// is append-only.
//
// Query methods hand out deep copies, never the live sessions. Mutations
// run under the lock on whichever goroutine drives a send, so a caller
// holding a live pointer would read torn message content mid-stream.
// Snapshots go stale instead, and callers re-query to see newer state.
type State struct {
	mu        sync.RWMutex
	backend   Backend
	logger    *slog.Logger
	dupWindow time.Duration

	sessions []*model.Session
	activeID string
}

// Option configures a State.
type Option func(*State)

// WithDuplicateWindow overrides the duplicate-suppression tolerance.
func WithDuplicateWindow(d time.Duration) Option {
	return func(s *State) { s.dupWindow = d }
}

// NewState creates a State over a backend.
func NewState(backend Backend, logger *slog.Logger, opts ...Option) *State {
	if logger == nil {
		logger = slog.Default()
	}
	s := &State{
		backend:   backend,
		logger:    logger,
		dupWindow: model.DefaultDuplicateWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the initial session list from the backend. This is the one
// mutation with no local fallback, so the error is surfaced.
func (st *State) Load(ctx context.Context) error {
	sessions, err := st.backend.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("initial session load: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions = sessions
	if st.activeID == "" && len(sessions) > 0 {
		st.activeID = sessions[0].ID
	}
	return nil
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// CreateSession creates a session at the head of the list and makes it
// active. The backend-assigned id replaces the provisional one on success;
// on failure the session stays memory-only with its provisional id.
func (st *State) CreateSession(ctx context.Context, title, modelID string) *model.Session {
	session := model.NewSession(title, modelID)

	st.mu.Lock()
	st.sessions = append([]*model.Session{session}, st.sessions...)
	st.activeID = session.ID
	st.mu.Unlock()

	id, err := st.backend.CreateSession(ctx, session)

	st.mu.Lock()
	defer st.mu.Unlock()
	if err != nil {
		st.logger.Warn("session create not persisted, keeping local",
			"session", session.ID, "error", err)
		return session.Clone()
	}
	if st.activeID == session.ID {
		st.activeID = id
	}
	session.ID = id
	return session.Clone()
}

// DeleteSession removes a session from memory and best-effort from the
// backend. If the deleted session was active, the first remaining session
// becomes active, or none.
func (st *State) DeleteSession(ctx context.Context, id string) error {
	st.mu.Lock()
	idx := st.indexLocked(id)
	if idx < 0 {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	st.sessions = append(st.sessions[:idx], st.sessions[idx+1:]...)
	if st.activeID == id {
		st.activeID = ""
		if len(st.sessions) > 0 {
			st.activeID = st.sessions[0].ID
		}
	}
	st.mu.Unlock()

	if err := st.backend.DeleteSession(ctx, id); err != nil {
		st.logger.Warn("session delete not persisted", "session", id, "error", err)
	}
	return nil
}

// DeleteSessions removes several sessions. Individual failures do not
// abort the batch; they are aggregated and reported once at the end.
func (st *State) DeleteSessions(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := st.DeleteSession(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// UpdateSessionFields merges a partial update into a session and bumps
// UpdatedAt. Backend failure is absorbed.
func (st *State) UpdateSessionFields(ctx context.Context, id string, patch SessionPatch) error {
	st.mu.Lock()
	session := st.findLocked(id)
	if session == nil {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	patch.Apply(session)
	st.mu.Unlock()

	if err := st.backend.UpdateSession(ctx, id, patch); err != nil {
		st.logger.Warn("session update not persisted", "session", id, "error", err)
	}
	return nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AppendMessage appends a message to a session optimistically, then
// forwards to the backend. On success the message adopts the authoritative
// id; on failure it keeps the provisional one.
func (st *State) AppendMessage(ctx context.Context, sessionID string, msg *model.Message) error {
	st.mu.Lock()
	session := st.findLocked(sessionID)
	if session == nil {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	session.AddMessage(msg)
	st.mu.Unlock()

	id, err := st.backend.SaveMessage(ctx, sessionID, msg)
	if err != nil {
		st.logger.Warn("message not persisted, keeping provisional",
			"session", sessionID, "message", msg.ID, "error", err)
		return nil
	}

	st.mu.Lock()
	// Fix up any reply correlation pointing at the provisional id.
	for _, m := range session.Messages {
		if m.RespondingTo == msg.ID {
			m.RespondingTo = id
		}
	}
	msg.ID = id
	st.mu.Unlock()
	return nil
}

// AppendLocal appends a message to memory only, with no persistence
// attempt. Used for streaming placeholders, which are persisted once
// their content is final.
func (st *State) AppendLocal(sessionID string, msg *model.Message) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	session := st.findLocked(sessionID)
	if session == nil {
		return ErrSessionNotFound
	}
	session.AddMessage(msg)
	return nil
}

// PatchMessage applies a partial update to one message, leaving the rest
// of the session untouched. Backend failure is absorbed.
func (st *State) PatchMessage(ctx context.Context, sessionID, messageID string, patch MessagePatch) error {
	st.mu.Lock()
	session := st.findLocked(sessionID)
	if session == nil {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	msg := session.GetMessage(messageID)
	if msg == nil {
		st.mu.Unlock()
		return ErrMessageNotFound
	}
	if patch.Apply(msg) {
		session.UpdatedAt = time.Now()
	}
	st.mu.Unlock()

	if err := st.backend.UpdateMessage(ctx, sessionID, messageID, patch); err != nil {
		st.logger.Warn("message patch not persisted",
			"session", sessionID, "message", messageID, "error", err)
	}
	return nil
}

// PatchLocal applies a partial update in memory only. Token-by-token
// streaming updates go through here; one durable write happens at stream
// end instead of one per token.
func (st *State) PatchLocal(sessionID, messageID string, patch MessagePatch) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	session := st.findLocked(sessionID)
	if session == nil {
		return ErrSessionNotFound
	}
	msg := session.GetMessage(messageID)
	if msg == nil {
		return ErrMessageNotFound
	}
	patch.Apply(msg)
	return nil
}

// AppendToken appends a streamed fragment to a message in memory.
func (st *State) AppendToken(sessionID, messageID, token string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	session := st.findLocked(sessionID)
	if session == nil {
		return ErrSessionNotFound
	}
	msg := session.GetMessage(messageID)
	if msg == nil {
		return ErrMessageNotFound
	}
	msg.AppendToken(token)
	return nil
}

// PersistMessage durably saves a message that so far exists in memory
// only, adopting the backend id on success. Used for finalized streaming
// placeholders. Failure is logged and absorbed: the message is already
// visible and correct locally, re-persistence can happen on a later sync.
func (st *State) PersistMessage(ctx context.Context, sessionID, messageID string) {
	st.mu.RLock()
	var snapshot *model.Message
	if session := st.findLocked(sessionID); session != nil {
		if msg := session.GetMessage(messageID); msg != nil {
			snapshot = msg.Clone()
		}
	}
	st.mu.RUnlock()
	if snapshot == nil {
		return
	}

	id, err := st.backend.SaveMessage(ctx, sessionID, snapshot)
	if err != nil {
		st.logger.Warn("final message not persisted",
			"session", sessionID, "message", messageID, "error", err)
		return
	}

	// Re-resolve: the session may have gone away during the save.
	st.mu.Lock()
	if session := st.findLocked(sessionID); session != nil {
		if msg := session.GetMessage(messageID); msg != nil {
			msg.ID = id
		}
	}
	st.mu.Unlock()
}

// DeleteMessage removes a message from memory and best-effort from the
// backend.
func (st *State) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	st.mu.Lock()
	session := st.findLocked(sessionID)
	if session == nil {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	if !session.RemoveMessage(messageID) {
		st.mu.Unlock()
		return ErrMessageNotFound
	}
	st.mu.Unlock()

	if err := st.backend.DeleteMessage(ctx, sessionID, messageID); err != nil {
		st.logger.Warn("message delete not persisted",
			"session", sessionID, "message", messageID, "error", err)
	}
	return nil
}

// LoadMessages lazily fetches a session's history. Remote messages are
// merged through the duplicate filter so optimistic local copies are not
// doubled. On failure MessagesLoaded stays pending so a retry is possible,
// and the error is surfaced.
func (st *State) LoadMessages(ctx context.Context, sessionID string) error {
	st.mu.Lock()
	session := st.findLocked(sessionID)
	if session == nil {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	if session.MessagesLoaded == model.LoadDone {
		st.mu.Unlock()
		return nil
	}
	session.MessagesLoaded = model.LoadInFlight
	st.mu.Unlock()

	messages, err := st.backend.LoadMessages(ctx, sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()
	if err != nil {
		session.MessagesLoaded = model.LoadPending
		return fmt.Errorf("load messages: %w", err)
	}
	for _, msg := range messages {
		session.MergeRemote(msg, st.dupWindow)
	}
	session.MessagesLoaded = model.LoadDone
	return nil
}

// MergeRemote merges one authoritative message into a session through the
// duplicate filter. Returns true if it was appended.
func (st *State) MergeRemote(sessionID string, msg *model.Message) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	session := st.findLocked(sessionID)
	if session == nil {
		return false, ErrSessionNotFound
	}
	return session.MergeRemote(msg, st.dupWindow), nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Sessions returns a snapshot of the session list, most-recent-first.
func (st *State) Sessions() []*model.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*model.Session, len(st.sessions))
	for i, s := range st.sessions {
		out[i] = s.Clone()
	}
	return out
}

// Session returns a snapshot of a session by id, or nil.
func (st *State) Session(id string) *model.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if s := st.findLocked(id); s != nil {
		return s.Clone()
	}
	return nil
}

// ActiveSession returns a snapshot of the active session, or nil.
func (st *State) ActiveSession() *model.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.activeID == "" {
		return nil
	}
	if s := st.findLocked(st.activeID); s != nil {
		return s.Clone()
	}
	return nil
}

// SetActive switches the active session.
func (st *State) SetActive(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.findLocked(id) == nil {
		return ErrSessionNotFound
	}
	st.activeID = id
	return nil
}

// Grouped returns the session list bucketed for sidebar display.
func (st *State) Grouped(now time.Time) []model.SessionGroup {
	return model.GroupSessions(st.Sessions(), now)
}

// Search queries the backend; if it fails, the resident list is filtered
// instead so search keeps working offline.
func (st *State) Search(ctx context.Context, query string, f Filters) []model.SessionMeta {
	results, err := st.backend.Search(ctx, query, f)
	if err == nil {
		return results
	}
	st.logger.Warn("backend search failed, searching memory", "error", err)
	return st.searchMemory(query, f)
}

// searchMemory filters the in-memory session list.
func (st *State) searchMemory(query string, f Filters) []model.SessionMeta {
	st.mu.RLock()
	defer st.mu.RUnlock()

	query = strings.ToLower(query)
	var results []model.SessionMeta
	for _, s := range st.sessions {
		if f.FavoriteOnly && !s.IsFavorite {
			continue
		}
		if f.HasMessages && len(s.Messages) == 0 {
			continue
		}
		if f.HasAttachments && !sessionHasAttachment(s) {
			continue
		}
		if !f.matchTime(s.UpdatedAt) {
			continue
		}
		if query != "" && !sessionMatches(s, query) {
			continue
		}
		results = append(results, s.Meta())
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].UpdatedAt.After(results[j].UpdatedAt)
	})
	return results
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// findLocked returns a session by id. Caller holds the lock.
func (st *State) findLocked(id string) *model.Session {
	for _, s := range st.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// indexLocked returns a session's position, or -1. Caller holds the lock.
func (st *State) indexLocked(id string) int {
	for i, s := range st.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}
