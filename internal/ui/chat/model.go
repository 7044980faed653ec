// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file implements the main Bubble Tea model: state machine, update
// loop, and the commands that bridge the send orchestrator and state store
// into the UI.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/chatdeck/internal/chatapi"
	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/send"
	"github.com/jeranaias/chatdeck/internal/store"
	"github.com/jeranaias/chatdeck/internal/ui/styles"
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State represents the chat interface state.
type State int

const (
	// StateLoading - initial session load in progress
	StateLoading State = iota
	// StateReady - idle, accepting input
	StateReady
	// StateStreaming - a reply is streaming in
	StateStreaming
)

// focusArea identifies which pane has keyboard focus.
type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

// sidebarRow is one rendered line in the session sidebar: either a group
// label or a selectable session.
type sidebarRow struct {
	label   string
	session *model.Session
}

// =============================================================================
// MODEL
// =============================================================================

// Options configures the chat model.
type Options struct {
	GuestMode      bool
	ShowTimestamps bool
	CompactMode    bool
}

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	theme *styles.Theme
	keys  KeyMap
	opts  Options

	state  *store.State
	orch   *send.Orchestrator
	client *chatapi.Client

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model

	renderer *glamour.TermRenderer

	uiState State
	focus    focusArea

	// Sidebar
	rows         []sidebarRow
	sidebarIndex int

	// Model catalog
	models     []chatapi.ModelInfo
	modelIndex int

	// Streaming
	buffer        *StreamingBuffer
	streamingText string

	// Edit-and-resend: non-empty when the input holds a prior user message
	editingID string

	width  int
	height int

	lastErr error
}

// New creates a chat model wired to the given state store and orchestrator.
func New(theme *styles.Theme, st *store.State, orch *send.Orchestrator, client *chatapi.Client, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.ShowLineNumbers = false
	ta.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	return Model{
		theme:    theme,
		keys:     DefaultKeyMap(),
		opts:     opts,
		state:    st,
		orch:     orch,
		client:   client,
		viewport: vp,
		input:    ta,
		spin:     sp,
		uiState:  StateLoading,
		buffer:   NewStreamingBuffer(),
	}
}

// Init starts the initial session load and the event loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spin.Tick,
		m.loadSessionsCmd(),
		m.loadModelsCmd(),
	)
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) loadSessionsCmd() tea.Cmd {
	st := m.state
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return SessionsLoadedMsg{Err: st.Load(ctx)}
	}
}

func (m Model) loadModelsCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		models, err := client.Models(ctx)
		return ModelsLoadedMsg{Models: models, Err: err}
	}
}

func (m Model) loadMessagesCmd(sessionID string) tea.Cmd {
	st := m.state
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return MessagesLoadedMsg{SessionID: sessionID, Err: st.LoadMessages(ctx, sessionID)}
	}
}

func (m Model) deleteSessionCmd(sessionID string) tea.Cmd {
	st := m.state
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return SessionDeletedMsg{SessionID: sessionID, Err: st.DeleteSession(ctx, sessionID)}
	}
}

// sendCmd runs the orchestrator in a goroutine-backed command. Tokens land
// in the streaming buffer; the command resolves with the final result.
func (m Model) sendCmd(text, editID string) tea.Cmd {
	sessionID := ""
	if s := m.state.ActiveSession(); s != nil {
		sessionID = s.ID
	}
	modelName := ""
	if len(m.models) > 0 {
		modelName = m.models[m.modelIndex].ID
	}

	buf := m.buffer
	orch := m.orch
	req := send.Request{
		SessionID: sessionID,
		Text:      text,
		Model:     modelName,
		OnToken:   func(tok string) { buf.Write(tok) },
	}

	return func() tea.Msg {
		var res *send.Result
		var err error
		if editID != "" {
			res, err = orch.EditAndResend(context.Background(), editID, req)
		} else {
			res, err = orch.Send(context.Background(), req)
		}
		return StreamCompleteMsg{Result: res, Err: err}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SessionsLoadedMsg:
		m.uiState = StateReady
		if msg.Err != nil {
			m.lastErr = msg.Err
		}
		m.rebuildSidebar()
		m.updateViewport()
		if s := m.state.ActiveSession(); s != nil && s.MessagesLoaded != model.LoadDone {
			return m, m.loadMessagesCmd(s.ID)
		}
		return m, nil

	case MessagesLoadedMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err
		}
		m.updateViewport()
		return m, nil

	case SessionDeletedMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err
		}
		m.rebuildSidebar()
		m.updateViewport()
		return m, nil

	case ModelsLoadedMsg:
		if msg.Err == nil {
			m.models = msg.Models
			m.modelIndex = 0
		}
		return m, nil

	case StreamTickMsg:
		return m.handleStreamTick()

	case StreamCompleteMsg:
		return m.handleStreamComplete(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case ErrorMsg:
		m.lastErr = msg.Err
		return m, nil

	case ErrorDismissMsg:
		m.lastErr = nil
		return m, nil
	}

	return m.updateComponents(msg)
}

// updateComponents forwards unhandled messages to the focused components.
func (m Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	if m.focus == focusInput {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	chatWidth := m.chatWidth()
	m.viewport.Width = chatWidth
	m.viewport.Height = msg.Height - inputHeight - 4
	m.input.SetWidth(chatWidth - 2)

	// Glamour wraps at render width; rebuild on every resize.
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(chatWidth-4),
	)
	if err == nil {
		m.renderer = renderer
	}

	m.updateViewport()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.uiState == StateStreaming {
			if s := m.state.ActiveSession(); s != nil {
				m.orch.Cancel(s.ID)
			}
			return m, nil
		}
		m.lastErr = nil
		m.editingID = ""
		return m, nil

	case key.Matches(msg, m.keys.FocusNext):
		if m.focus == focusInput {
			m.focus = focusSidebar
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		return m.newSession()

	case key.Matches(msg, m.keys.CycleModel):
		if len(m.models) > 1 {
			m.modelIndex = (m.modelIndex + 1) % len(m.models)
			return m.persistModelChoice()
		}
		return m, nil

	case key.Matches(msg, m.keys.Favorite):
		return m.toggleFavorite()

	case key.Matches(msg, m.keys.ResendEdit):
		return m.beginEdit()
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}

	if key.Matches(msg, m.keys.Submit) {
		return m.submit()
	}

	return m.updateComponents(msg)
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveSidebar(-1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.moveSidebar(1)
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.selectSidebarSession()

	case key.Matches(msg, m.keys.DeleteSess):
		if row := m.selectedRow(); row != nil && row.session != nil {
			return m, m.deleteSessionCmd(row.session.ID)
		}
		return m, nil
	}
	return m, nil
}

// =============================================================================
// SIDEBAR
// =============================================================================

// rebuildSidebar flattens the grouped session list into renderable rows.
func (m *Model) rebuildSidebar() {
	groups := m.state.Grouped(time.Now())
	rows := make([]sidebarRow, 0, len(groups)*4)
	for _, g := range groups {
		rows = append(rows, sidebarRow{label: g.Label})
		for i := range g.Sessions {
			rows = append(rows, sidebarRow{session: g.Sessions[i]})
		}
	}
	m.rows = rows

	if m.sidebarIndex >= len(rows) {
		m.sidebarIndex = 0
	}
	m.snapToSession(1)
}

// moveSidebar moves the selection over session rows, skipping labels.
func (m *Model) moveSidebar(dir int) {
	if len(m.rows) == 0 {
		return
	}
	i := m.sidebarIndex + dir
	for i >= 0 && i < len(m.rows) && m.rows[i].session == nil {
		i += dir
	}
	if i >= 0 && i < len(m.rows) {
		m.sidebarIndex = i
	}
}

// snapToSession moves the selection onto the nearest session row.
func (m *Model) snapToSession(dir int) {
	if len(m.rows) == 0 {
		return
	}
	if m.sidebarIndex < 0 || m.sidebarIndex >= len(m.rows) {
		m.sidebarIndex = 0
	}
	if m.rows[m.sidebarIndex].session == nil {
		m.moveSidebar(dir)
	}
}

func (m Model) selectedRow() *sidebarRow {
	if m.sidebarIndex < 0 || m.sidebarIndex >= len(m.rows) {
		return nil
	}
	return &m.rows[m.sidebarIndex]
}

func (m Model) selectSidebarSession() (tea.Model, tea.Cmd) {
	row := m.selectedRow()
	if row == nil || row.session == nil {
		return m, nil
	}
	m.state.SetActive(row.session.ID)
	m.focus = focusInput
	m.input.Focus()
	m.updateViewport()

	if row.session.MessagesLoaded != model.LoadDone {
		return m, m.loadMessagesCmd(row.session.ID)
	}
	return m, nil
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m Model) newSession() (tea.Model, tea.Cmd) {
	st := m.state
	modelName := ""
	if len(m.models) > 0 {
		modelName = m.models[m.modelIndex].ID
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st.CreateSession(ctx, "", modelName)
	m.rebuildSidebar()
	m.updateViewport()
	m.focus = focusInput
	m.input.Focus()
	return m, nil
}

func (m Model) toggleFavorite() (tea.Model, tea.Cmd) {
	s := m.state.ActiveSession()
	if s == nil {
		return m, nil
	}
	fav := !s.IsFavorite
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.state.UpdateSessionFields(ctx, s.ID, store.SessionPatch{IsFavorite: &fav})
	m.rebuildSidebar()
	return m, nil
}

func (m Model) persistModelChoice() (tea.Model, tea.Cmd) {
	s := m.state.ActiveSession()
	if s == nil || len(m.models) == 0 {
		return m, nil
	}
	name := m.models[m.modelIndex].ID
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.state.UpdateSessionFields(ctx, s.ID, store.SessionPatch{SelectedModel: &name})
	return m, nil
}

// beginEdit pulls the last user message into the input for edit-and-resend.
func (m Model) beginEdit() (tea.Model, tea.Cmd) {
	s := m.state.ActiveSession()
	if s == nil || m.uiState == StateStreaming {
		return m, nil
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == model.RoleUser {
			m.editingID = s.Messages[i].ID
			m.input.SetValue(s.Messages[i].Content)
			m.focus = focusInput
			m.input.Focus()
			break
		}
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.uiState == StateStreaming {
		return m, nil
	}

	editID := m.editingID
	m.editingID = ""
	m.input.Reset()
	m.buffer.Reset()
	m.streamingText = ""
	m.uiState = StateStreaming
	m.lastErr = nil

	return m, tea.Batch(
		m.sendCmd(text, editID),
		streamTickCmd(),
		m.spin.Tick,
	)
}

// =============================================================================
// STREAMING HANDLERS
// =============================================================================

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if m.uiState != StateStreaming {
		return m, nil
	}
	if content, ok := m.buffer.Flush(); ok {
		m.streamingText += content
		m.updateViewport()
	}
	return m, streamTickCmd()
}

func (m Model) handleStreamComplete(msg StreamCompleteMsg) (tea.Model, tea.Cmd) {
	m.uiState = StateReady
	m.buffer.Reset()
	m.streamingText = ""

	switch {
	case msg.Err != nil:
		// Rejected before any state changed.
		m.lastErr = msg.Err
	case msg.Result != nil && msg.Result.Err != nil && !msg.Result.Completed:
		m.lastErr = msg.Result.Err
	}

	// The store holds the final content, markers included.
	m.rebuildSidebar()
	m.updateViewport()
	m.viewport.GotoBottom()
	return m, nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// IsStreaming reports whether a reply is currently streaming.
func (m Model) IsStreaming() bool {
	return m.uiState == StateStreaming
}

// GetState returns the current interface state.
func (m Model) GetState() State {
	return m.uiState
}

// CurrentModel returns the selected model id, or "" before the catalog loads.
func (m Model) CurrentModel() string {
	if len(m.models) == 0 {
		return ""
	}
	return m.models[m.modelIndex].ID
}

func (m Model) chatWidth() int {
	if m.theme.GetLayoutMode() == styles.LayoutCompact {
		return m.width
	}
	return m.width - sidebarWidth - 1
}
