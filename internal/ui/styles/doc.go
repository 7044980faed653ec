// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the chatdeck TUI application.

This package defines the color palette and styled components used throughout
the application. All colors use Lip Gloss AdaptiveColor for automatic
light/dark terminal detection.

# Color System (colors.go)

## Primary Accent Colors

  - Purple - Primary accent for assistant messages and selections
  - Cyan - Brand color for info and user highlights
  - Emerald - Success states and connected indicator
  - Amber - Warnings, favorites, and in-flight state
  - Rose - Errors and failed sends

## Semantic Colors

Message bubbles and sidebar elements use semantic color tokens:

	UserBubbleBg      - Background for user messages
	UserBubbleFg      - Text color for user messages
	AssistantBubbleBg - Background for assistant messages
	AssistantBubbleFg - Text color for assistant messages
	SelectionBg       - Selected session row in the sidebar

# Theme (theme.go)

Theme bundles the configured lipgloss styles for every component: header,
message bubbles, session sidebar, input area, status bar, and spinner.
NewTheme detects terminal capabilities; NewThemeForMode pins light or dark
when the config says so. GetLayoutMode maps terminal width to a layout
(compact hides the sidebar).
*/
package styles
