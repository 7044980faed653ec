// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/send"
	"github.com/jeranaias/chatdeck/internal/store"
	"github.com/jeranaias/chatdeck/internal/ui/styles"
)

func newTestModel(t *testing.T) Model {
	t.Helper()

	backend, err := store.OpenGuest(filepath.Join(t.TempDir(), "guest.json"), nil)
	if err != nil {
		t.Fatalf("OpenGuest: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	st := store.NewState(backend, nil)
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	return New(styles.NewThemeForMode(true), st, nil, nil, Options{})
}

// =============================================================================
// SIDEBAR TESTS
// =============================================================================

func TestRebuildSidebarSkipsLabels(t *testing.T) {
	m := newTestModel(t)

	ctx := context.Background()
	m.state.CreateSession(ctx, "first chat", "")
	m.state.CreateSession(ctx, "second chat", "")
	m.rebuildSidebar()

	// Row 0 is the group label; the selection must land on a session.
	row := m.selectedRow()
	if row == nil || row.session == nil {
		t.Fatal("selection should snap to a session row")
	}

	m.moveSidebar(1)
	next := m.selectedRow()
	if next == nil || next.session == nil {
		t.Fatal("moveSidebar should land on a session row")
	}
	if next.session.ID == row.session.ID {
		t.Error("moveSidebar(1) should select a different session")
	}

	// Moving past the end stays put.
	m.moveSidebar(1)
	if got := m.selectedRow(); got == nil || got.session == nil {
		t.Fatal("selection fell off the list")
	}
}

func TestRebuildSidebarEmptyState(t *testing.T) {
	m := newTestModel(t)
	m.rebuildSidebar()

	if len(m.rows) != 0 {
		t.Errorf("expected no rows for empty state, got %d", len(m.rows))
	}
	if m.selectedRow() != nil {
		t.Error("selectedRow should be nil with no sessions")
	}
}

func TestFavoriteSessionsGroupFirst(t *testing.T) {
	m := newTestModel(t)

	ctx := context.Background()
	m.state.CreateSession(ctx, "plain", "")
	fav := m.state.CreateSession(ctx, "starred", "")
	isFav := true
	m.state.UpdateSessionFields(ctx, fav.ID, store.SessionPatch{IsFavorite: &isFav})
	m.rebuildSidebar()

	if len(m.rows) == 0 || m.rows[0].session != nil {
		t.Fatal("first row should be a group label")
	}
	if m.rows[0].label != model.GroupFavorites {
		t.Errorf("first group = %q, want %q", m.rows[0].label, model.GroupFavorites)
	}
	if m.rows[1].session == nil || m.rows[1].session.ID != fav.ID {
		t.Error("favorite session should lead the sidebar")
	}
}

// =============================================================================
// FAILURE MARKER TESTS
// =============================================================================

func TestIsFailureReply(t *testing.T) {
	tests := []struct {
		name    string
		role    model.Role
		content string
		want    bool
	}{
		{"rejected request", model.RoleAssistant, send.FailedRequestMarker, true},
		{"broken stream", model.RoleAssistant, "partial text" + send.StreamBrokenMarker, true},
		{"normal reply", model.RoleAssistant, "hello there", false},
		{"user message with marker text", model.RoleUser, send.FailedRequestMarker, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &model.Message{Role: tt.role, Content: tt.content}
			if got := isFailureReply(msg); got != tt.want {
				t.Errorf("isFailureReply() = %v, want %v", got, tt.want)
			}
		})
	}
}
