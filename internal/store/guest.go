// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/util"
)

// guestDebounce coalesces rapid file change events before a reload.
const guestDebounce = 500 * time.Millisecond

// =============================================================================
// GUEST BACKEND
// =============================================================================

// GuestBackend persists the whole session list as a single JSON blob for
// users without an account. Every mutation rewrites the blob atomically.
// Message history is always resident, so LoadMessages never goes remote.
type GuestBackend struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger

	sessions []*model.Session

	// File watching for external modification of the blob.
	watcher   *fsnotify.Watcher
	onChange  func([]*model.Session)
	lastFlush time.Time
	done      chan struct{}
}

// guestBlob is the on-disk shape of the session list.
type guestBlob struct {
	Version  int              `json:"version"`
	Sessions []*model.Session `json:"sessions"`
}

// OpenGuest loads (or initializes) the guest blob at path.
// A corrupt blob is logged and replaced with an empty list rather than
// failing: guest data is best-effort by definition.
func OpenGuest(path string, logger *slog.Logger) (*GuestBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &GuestBackend{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run, nothing stored yet.
	case err != nil:
		return nil, err
	default:
		var blob guestBlob
		if jsonErr := json.Unmarshal(data, &blob); jsonErr != nil {
			logger.Warn("guest blob corrupt, starting empty",
				"path", path, "error", jsonErr)
		} else {
			b.sessions = blob.Sessions
			for _, s := range b.sessions {
				s.MessagesLoaded = model.LoadDone
			}
		}
	}
	return b, nil
}

// Watch starts watching the blob file for external modification. onChange
// receives the freshly loaded session list after each external write.
func (b *GuestBackend) Watch(onChange func([]*model.Session)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: atomic writes replace the file by rename, and
	// a watch on the old inode would be lost.
	if err := watcher.Add(filepath.Dir(b.path)); err != nil {
		watcher.Close()
		return err
	}

	b.mu.Lock()
	b.watcher = watcher
	b.onChange = onChange
	b.mu.Unlock()

	go b.watchLoop()
	return nil
}

// watchLoop debounces change events and reloads the blob.
func (b *GuestBackend) watchLoop() {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(b.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(guestDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			b.reloadExternal()
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("guest blob watcher error", "error", err)
		case <-b.done:
			return
		}
	}
}

// reloadExternal reloads the blob unless the change was our own flush.
func (b *GuestBackend) reloadExternal() {
	b.mu.Lock()
	if time.Since(b.lastFlush) < 2*guestDebounce {
		b.mu.Unlock()
		return
	}
	onChange := b.onChange
	b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if err != nil {
		b.logger.Warn("guest blob reload failed", "error", err)
		return
	}
	var blob guestBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		b.logger.Warn("guest blob reload: corrupt data", "error", err)
		return
	}

	b.mu.Lock()
	b.sessions = blob.Sessions
	for _, s := range b.sessions {
		s.MessagesLoaded = model.LoadDone
	}
	b.mu.Unlock()

	if onChange != nil {
		onChange(blob.Sessions)
	}
}

// Close stops the watcher.
func (b *GuestBackend) Close() error {
	close(b.done)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher != nil {
		return b.watcher.Close()
	}
	return nil
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// CreateSession stores a session. Guests have no server, so the provisional
// id is already authoritative; one is generated only if missing.
func (b *GuestBackend) CreateSession(ctx context.Context, s *model.Session) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := s.Clone()
	if stored.ID == "" {
		stored.ID = "sess_" + uuid.NewString()
	}
	stored.MessagesLoaded = model.LoadDone
	b.sessions = append([]*model.Session{stored}, b.sessions...)
	return stored.ID, b.flushLocked()
}

// DeleteSession removes a session and its messages.
func (b *GuestBackend) DeleteSession(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.sessions {
		if s.ID == id {
			b.sessions = append(b.sessions[:i], b.sessions[i+1:]...)
			return b.flushLocked()
		}
	}
	return ErrSessionNotFound
}

// UpdateSession applies a partial update.
func (b *GuestBackend) UpdateSession(ctx context.Context, id string, patch SessionPatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.findLocked(id)
	if s == nil {
		return ErrSessionNotFound
	}
	patch.Apply(s)
	return b.flushLocked()
}

// ListSessions returns all sessions, most recently updated first.
func (b *GuestBackend) ListSessions(ctx context.Context) ([]*model.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*model.Session, len(b.sessions))
	for i, s := range b.sessions {
		out[i] = s.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// SaveMessage appends a message to a stored session.
func (b *GuestBackend) SaveMessage(ctx context.Context, sessionID string, msg *model.Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.findLocked(sessionID)
	if s == nil {
		return "", ErrSessionNotFound
	}

	stored := msg.Clone()
	if stored.ID == "" {
		stored.ID = "msg_" + uuid.NewString()
	}
	stored.IsStreaming = false
	s.Messages = append(s.Messages, stored)
	s.UpdatedAt = time.Now()
	return stored.ID, b.flushLocked()
}

// UpdateMessage applies a partial update to a stored message.
func (b *GuestBackend) UpdateMessage(ctx context.Context, sessionID, messageID string, patch MessagePatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.findLocked(sessionID)
	if s == nil {
		return ErrSessionNotFound
	}
	msg := s.GetMessage(messageID)
	if msg == nil {
		return ErrMessageNotFound
	}
	patch.Apply(msg)
	msg.IsStreaming = false
	s.UpdatedAt = time.Now()
	return b.flushLocked()
}

// DeleteMessage removes a single message.
func (b *GuestBackend) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.findLocked(sessionID)
	if s == nil {
		return ErrSessionNotFound
	}
	if !s.RemoveMessage(messageID) {
		return ErrMessageNotFound
	}
	return b.flushLocked()
}

// LoadMessages returns a session's messages. Guest history is always
// resident, so this never touches the disk.
func (b *GuestBackend) LoadMessages(ctx context.Context, sessionID string) ([]*model.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.findLocked(sessionID)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	out := make([]*model.Message, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = m.Clone()
	}
	return out, nil
}

// =============================================================================
// SEARCH
// =============================================================================

// Search filters the resident session list.
func (b *GuestBackend) Search(ctx context.Context, query string, f Filters) ([]model.SessionMeta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	query = strings.ToLower(query)
	var results []model.SessionMeta

	for _, s := range b.sessions {
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
	return results, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// findLocked returns the stored session by id. Caller holds the lock.
func (b *GuestBackend) findLocked(id string) *model.Session {
	for _, s := range b.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// flushLocked rewrites the blob atomically. Caller holds the lock.
func (b *GuestBackend) flushLocked() error {
	blob := guestBlob{Version: SchemaVersion, Sessions: b.sessions}
	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return err
	}
	b.lastFlush = time.Now()
	return util.AtomicWriteFile(b.path, data, 0644)
}

func sessionMatches(s *model.Session, loweredQuery string) bool {
	if strings.Contains(strings.ToLower(s.Title), loweredQuery) {
		return true
	}
	for _, m := range s.Messages {
		if strings.Contains(strings.ToLower(m.Content), loweredQuery) {
			return true
		}
	}
	return false
}

func sessionHasAttachment(s *model.Session) bool {
	for _, m := range s.Messages {
		if m.HasAttachment() {
			return true
		}
	}
	return false
}
