// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/chatdeck/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// SQLITE BACKEND
// =============================================================================

// SQLiteBackend stores sessions and messages in a local SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the database at path and
// initializes the schema.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// CreateSession inserts a session and returns the authoritative id.
func (b *SQLiteBackend) CreateSession(ctx context.Context, s *model.Session) (string, error) {
	id := "sess_" + uuid.NewString()
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, model, is_favorite, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, s.Title, s.SelectedModel, boolToInt(s.IsFavorite),
		s.CreatedAt.UnixMilli(), s.UpdatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// DeleteSession removes a session; its messages cascade.
func (b *SQLiteBackend) DeleteSession(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateSession applies a partial update and bumps updated_at.
func (b *SQLiteBackend) UpdateSession(ctx context.Context, id string, patch SessionPatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UnixMilli()}

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.IsFavorite != nil {
		sets = append(sets, "is_favorite = ?")
		args = append(args, boolToInt(*patch.IsFavorite))
	}
	if patch.SelectedModel != nil {
		sets = append(sets, "model = ?")
		args = append(args, *patch.SelectedModel)
	}
	args = append(args, id)

	res, err := b.db.ExecContext(ctx,
		"UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListSessions returns all sessions, most recently updated first, without
// their messages. Callers lazily load history via LoadMessages.
func (b *SQLiteBackend) ListSessions(ctx context.Context) ([]*model.Session, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, title, model, is_favorite, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		var (
			s            model.Session
			fav          int
			created, upd int64
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.SelectedModel, &fav, &created, &upd); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.IsFavorite = fav != 0
		s.CreatedAt = time.UnixMilli(created)
		s.UpdatedAt = time.UnixMilli(upd)
		s.MessagesLoaded = model.LoadPending
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// SaveMessage inserts a message and returns the authoritative id.
func (b *SQLiteBackend) SaveMessage(ctx context.Context, sessionID string, msg *model.Message) (string, error) {
	var metaJSON any
	if len(msg.Metadata) > 0 {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = string(data)
	}

	id := "msg_" + uuid.NewString()
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, responding_to, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, msg.Role.String(), msg.Content,
		nullable(msg.RespondingTo), metaJSON, msg.Timestamp.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("save message: %w", err)
	}

	// Message mutations also touch the session.
	b.touchSession(ctx, sessionID)
	return id, nil
}

// UpdateMessage applies a partial update to a stored message.
func (b *SQLiteBackend) UpdateMessage(ctx context.Context, sessionID, messageID string, patch MessagePatch) error {
	var sets []string
	var args []any

	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if len(patch.Metadata) > 0 {
		data, err := json.Marshal(patch.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(data))
	}
	// IsStreaming is transient state and is not persisted.
	if len(sets) == 0 {
		return nil
	}
	args = append(args, messageID, sessionID)

	res, err := b.db.ExecContext(ctx,
		"UPDATE messages SET "+strings.Join(sets, ", ")+" WHERE id = ? AND session_id = ?", args...)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}

	b.touchSession(ctx, sessionID)
	return nil
}

// DeleteMessage removes a single message.
func (b *SQLiteBackend) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = ? AND session_id = ?`, messageID, sessionID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// LoadMessages returns a session's messages in chronological order.
func (b *SQLiteBackend) LoadMessages(ctx context.Context, sessionID string) ([]*model.Message, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, role, content, responding_to, metadata, timestamp
		 FROM messages WHERE session_id = ? ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var (
			m          model.Message
			role       string
			responding sql.NullString
			meta       sql.NullString
			ts         int64
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &responding, &meta, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = model.Role(role)
		m.RespondingTo = responding.String
		m.Timestamp = time.UnixMilli(ts)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &m.Metadata); err != nil {
				// Corrupt metadata is not worth failing the whole load.
				m.Metadata = nil
			}
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// =============================================================================
// SEARCH
// =============================================================================

// Search matches query (case-insensitive) against session titles and
// message content, then applies the structured filters.
func (b *SQLiteBackend) Search(ctx context.Context, query string, f Filters) ([]model.SessionMeta, error) {
	like := "%" + strings.ToLower(query) + "%"
	// Attachment detection mirrors model.Message.HasAttachment: one of the
	// document keys must be present and non-empty, arbitrary metadata does
	// not count.
	rows, err := b.db.QueryContext(ctx,
		`SELECT s.id, s.title, s.model, s.is_favorite, s.created_at, s.updated_at,
		        COUNT(m.id) AS message_count,
		        MAX(CASE WHEN COALESCE(json_extract(m.metadata, '$.document_name'), '') <> ''
		                   OR COALESCE(json_extract(m.metadata, '$.document_id'), '') <> ''
		                 THEN 1 ELSE 0 END) AS has_attachments
		 FROM sessions s
		 LEFT JOIN messages m ON m.session_id = s.id
		 GROUP BY s.id
		 HAVING (? = '' OR LOWER(s.title) LIKE ?
		         OR SUM(CASE WHEN LOWER(m.content) LIKE ? THEN 1 ELSE 0 END) > 0)
		 ORDER BY s.updated_at DESC`,
		strings.ToLower(query), like, like)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var results []model.SessionMeta
	for rows.Next() {
		var (
			meta            model.SessionMeta
			fav, attach     int
			created, upd    int64
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Model, &fav,
			&created, &upd, &meta.MessageCount, &attach); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		meta.IsFavorite = fav != 0
		meta.CreatedAt = time.UnixMilli(created)
		meta.UpdatedAt = time.UnixMilli(upd)

		if f.FavoriteOnly && !meta.IsFavorite {
			continue
		}
		if f.HasMessages && meta.MessageCount == 0 {
			continue
		}
		if f.HasAttachments && attach == 0 {
			continue
		}
		if !f.matchTime(meta.UpdatedAt) {
			continue
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// touchSession bumps a session's updated_at. Best-effort.
func (b *SQLiteBackend) touchSession(ctx context.Context, id string) {
	b.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UnixMilli(), id)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
