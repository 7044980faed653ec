// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"
)

// =============================================================================
// THEME CREATION TESTS
// =============================================================================

func TestNewTheme(t *testing.T) {
	theme := NewTheme()

	if theme == nil {
		t.Fatal("NewTheme() returned nil")
	}

	// Verify styles are initialized by rendering a test string
	if theme.App.Render("test") == "" {
		t.Error("NewTheme() should initialize App style")
	}
	if theme.UserBubble.Render("hi") == "" {
		t.Error("NewTheme() should initialize UserBubble style")
	}
	if theme.SessionItemSelected.Render("session") == "" {
		t.Error("NewTheme() should initialize SessionItemSelected style")
	}
}

func TestNewThemeForMode(t *testing.T) {
	dark := NewThemeForMode(true)
	if !dark.IsDark {
		t.Error("NewThemeForMode(true) should be dark")
	}

	light := NewThemeForMode(false)
	if light.IsDark {
		t.Error("NewThemeForMode(false) should be light")
	}
	if light.StatusBar.Render("ready") == "" {
		t.Error("pinned theme should still initialize styles")
	}
}

// =============================================================================
// LAYOUT MODE TESTS
// =============================================================================

func TestGetLayoutMode(t *testing.T) {
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutCompact},
		{79, LayoutCompact},
		{80, LayoutNormal},
		{119, LayoutNormal},
		{120, LayoutWide},
		{200, LayoutWide},
	}

	theme := NewTheme()
	for _, tt := range tests {
		theme.SetSize(tt.width, 40)
		if got := theme.GetLayoutMode(); got != tt.want {
			t.Errorf("GetLayoutMode() at width %d = %v, want %v", tt.width, got, tt.want)
		}
	}
}
