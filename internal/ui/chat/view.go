// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file renders the chat interface: session sidebar, message viewport,
// input area, and status bar.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/send"
	"github.com/jeranaias/chatdeck/internal/ui/styles"
	"github.com/jeranaias/chatdeck/internal/util"
)

const (
	// sidebarWidth is the fixed width of the session sidebar.
	sidebarWidth = 28

	// inputHeight is the fixed height of the input textarea.
	inputHeight = 3
)

// View renders the full chat interface.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	chat := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.renderInput(),
	)

	if m.theme.GetLayoutMode() == styles.LayoutCompact {
		b.WriteString(chat)
	} else {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderSidebar(),
			chat,
		))
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := "chatdeck"
	if s := m.state.ActiveSession(); s != nil {
		title = s.GetTitle()
	}
	header := m.theme.HeaderTitle.Render("chatdeck") + "  " +
		m.theme.HeaderSubtitle.Render(util.TruncateRunes(title, 60))
	return m.theme.Header.Width(m.width).Render(header)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar() string {
	inner := sidebarWidth - 2
	var lines []string

	active := ""
	if s := m.state.ActiveSession(); s != nil {
		active = s.ID
	}

	for i, row := range m.rows {
		if row.session == nil {
			lines = append(lines, m.theme.GroupLabel.Render(row.label))
			continue
		}

		s := row.session
		title := util.TruncateWidth(s.GetTitle(), inner-3)
		prefix := "  "
		if s.IsFavorite {
			prefix = m.theme.FavoriteMark.Render("★ ")
		}

		line := prefix + title
		switch {
		case m.focus == focusSidebar && i == m.sidebarIndex:
			line = m.theme.SessionItemSelected.Width(inner).Render(line)
		case s.ID == active:
			line = m.theme.SessionItem.Bold(true).Render(line)
		default:
			line = m.theme.SessionItem.Render(line)
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		lines = append(lines, m.theme.SessionMeta.Render("no chats yet"))
	}

	body := strings.Join(lines, "\n")
	return m.theme.Sidebar.
		Width(sidebarWidth).
		Height(m.viewport.Height + inputHeight + 1).
		Render(body)
}

// =============================================================================
// MESSAGES
// =============================================================================

// updateViewport re-renders the active session's messages into the viewport.
func (m *Model) updateViewport() {
	s := m.state.ActiveSession()
	if s == nil {
		m.viewport.SetContent(m.theme.SessionMeta.Render("Press C-n to start a new chat."))
		return
	}
	if s.MessagesLoaded == model.LoadInFlight {
		m.viewport.SetContent(m.theme.ThinkingText.Render("loading messages..."))
		return
	}

	atBottom := m.viewport.AtBottom()

	var blocks []string
	for i := range s.Messages {
		blocks = append(blocks, m.renderMessage(s.Messages[i]))
	}
	m.viewport.SetContent(strings.Join(blocks, "\n\n"))

	// Follow the stream unless the user scrolled away.
	if atBottom || m.uiState == StateStreaming {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderMessage(msg *model.Message) string {
	width := m.viewport.Width - 4
	if width < 10 {
		width = 10
	}

	content := msg.Content
	if msg.IsStreaming && m.uiState == StateStreaming && m.streamingText != "" {
		content = m.streamingText
	}

	var bubble string
	switch {
	case msg.Role == model.RoleUser:
		bubble = m.theme.UserBubble.MaxWidth(width).Render(content)

	case isFailureReply(msg):
		bubble = m.theme.ErrorBubble.MaxWidth(width).Render(content)

	case msg.IsStreaming:
		body := content
		if body == "" {
			body = m.theme.ThinkingText.Render("thinking")
		}
		bubble = m.theme.AssistantBubble.MaxWidth(width).Render(
			body + " " + m.spin.View())

	default:
		bubble = m.theme.AssistantBubble.MaxWidth(width).Render(
			m.renderMarkdown(content))
	}

	var meta []string
	if m.opts.ShowTimestamps {
		meta = append(meta, m.theme.Timestamp.Render(msg.Timestamp.Format("15:04")))
	}
	if name, ok := msg.Metadata["document_name"]; ok && name != "" {
		meta = append(meta, m.theme.Attachment.Render("📎 "+name))
	}
	if len(meta) > 0 {
		bubble += "\n" + strings.Join(meta, "  ")
	}

	if msg.Role == model.RoleUser {
		return lipgloss.PlaceHorizontal(m.viewport.Width, lipgloss.Right, bubble)
	}
	return bubble
}

// renderMarkdown renders completed assistant replies through glamour.
// Falls back to plain text when no renderer is available.
func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// isFailureReply reports whether an assistant message carries a send
// failure marker and should get the error treatment.
func isFailureReply(msg *model.Message) bool {
	if msg.Role != model.RoleAssistant {
		return false
	}
	return msg.Content == send.FailedRequestMarker ||
		strings.HasSuffix(msg.Content, send.StreamBrokenMarker)
}

// =============================================================================
// INPUT AND STATUS BAR
// =============================================================================

func (m Model) renderInput() string {
	return m.theme.InputContainer.
		Width(m.chatWidth() - 2).
		Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	var parts []string

	if m.uiState == StateStreaming {
		parts = append(parts, m.spin.View()+m.theme.ThinkingText.Render(" streaming"))
	}

	if name := m.CurrentModel(); name != "" {
		parts = append(parts, m.theme.ModelBadge.Render(name))
	}
	if m.opts.GuestMode {
		parts = append(parts, m.theme.GuestBadge.Render("guest"))
	}

	if m.lastErr != nil {
		parts = append(parts, m.theme.ErrorStyle.Render(
			util.TruncateRunes(m.lastErr.Error(), 60)))
	} else {
		var hints []string
		for _, b := range m.keys.ShortHelp() {
			hints = append(hints, fmt.Sprintf("%s %s",
				m.theme.ShortcutKey.Render(b.Help().Key),
				m.theme.ShortcutDesc.Render(b.Help().Desc)))
		}
		parts = append(parts, strings.Join(hints, "  "))
	}

	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}
