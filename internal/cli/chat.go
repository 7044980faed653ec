// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// USABILITY: Supports arrow keys for history navigation and line editing.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/model"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	cli := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession holds the REPL's mutable state.
type ChatSession struct {
	App       *App
	Input     *ChatCLI
	SessionID string
	Turns     int
	Started   time.Time
}

// HandleChatCommand handles the interactive chat command.
func HandleChatCommand(args Args) error {
	if !CanPrompt() {
		return NewCommandError("chat", "start", "interactive chat requires a terminal", nil)
	}

	app, err := BuildApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.Client.IsConfigured() {
		return NewCommandError("chat", "connect", "no backend URL configured", nil)
	}

	ctx := context.Background()
	if err := app.State.Load(ctx); err != nil {
		return WrapError(err, "failed to load sessions")
	}

	session := &ChatSession{
		App:     app,
		Input:   NewChatCLI(),
		Started: time.Now(),
	}
	defer session.Input.Close()

	if args.Session != "" {
		id, err := resolveSessionArg(app, args.Session)
		if err != nil {
			return err
		}
		session.SessionID = id
		if err := app.State.LoadMessages(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "%s could not load history: %v\n",
				WarningStyle.Render("[WARN]"), err)
		}
	}

	printWelcome(session)

	// Main REPL loop using liner for input history
	for {
		input, err := session.Input.ReadInput(PromptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C or Ctrl+D - exit gracefully
			fmt.Println()
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldContinue, err := handleSlashCommand(input, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !shouldContinue {
				printExitSummary(session)
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(session)
			return nil
		}

		if err := processMessage(session, input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends one message and streams the reply to stdout.
func processMessage(session *ChatSession, input string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	result, err := session.App.Orch.Send(ctx,
		sendRequest(session.SessionID, input, "", func(tok string) {
			fmt.Print(tok)
		}))
	if err != nil {
		return err
	}

	fmt.Println()
	session.SessionID = result.SessionID
	session.Turns++

	if result.Err != nil {
		return result.Err
	}

	fmt.Fprintln(os.Stderr, DimStyle.Render(
		fmt.Sprintf("(%s)", formatDuration(time.Since(start)))))
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes REPL slash commands. Returns false when the
// REPL should exit.
func handleSlashCommand(cmd string, session *ChatSession) (bool, error) {
	parts := strings.Fields(cmd)

	switch parts[0] {
	case "/help", "/?":
		printChatHelp()
		return true, nil

	case "/quit", "/exit", "/q":
		return false, nil

	case "/new":
		s := session.App.State.CreateSession(context.Background(), "", "")
		session.SessionID = s.ID
		fmt.Println(SuccessStyle.Render("Started a new chat."))
		return true, nil

	case "/sessions", "/list":
		return true, printSessionList(session.App)

	case "/switch":
		if len(parts) < 2 {
			return true, ErrMissingArgument("session", "/switch sess_42")
		}
		id, err := resolveSessionArg(session.App, parts[1])
		if err != nil {
			return true, err
		}
		if err := session.App.State.LoadMessages(context.Background(), id); err != nil {
			return true, err
		}
		session.SessionID = id
		fmt.Println(SuccessStyle.Render("Switched to " + id))
		return true, nil

	case "/model":
		return true, handleModelCommand(session, parts[1:])

	case "/fav":
		if session.SessionID == "" {
			return true, fmt.Errorf("no active session")
		}
		s := session.App.State.Session(session.SessionID)
		if s == nil {
			return true, ErrNotFound("session", session.SessionID)
		}
		fav := !s.IsFavorite
		err := session.App.State.UpdateSessionFields(context.Background(),
			session.SessionID, sessionFavoritePatch(fav))
		if err == nil {
			if fav {
				fmt.Println(SuccessStyle.Render("Marked favorite."))
			} else {
				fmt.Println(SuccessStyle.Render("Unmarked favorite."))
			}
		}
		return true, err

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", parts[0])
	}
}

// handleModelCommand shows or switches the active model.
func handleModelCommand(session *ChatSession, args []string) error {
	if len(args) == 0 {
		fmt.Printf("%s %s\n", RenderLabel("Current model"),
			ValueStyle.Render(session.App.Client.Model()))
		return nil
	}

	name := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	models, err := session.App.Client.Models(ctx)
	if err == nil {
		found := false
		for _, mi := range models {
			if mi.ID == name {
				found = true
				break
			}
		}
		if !found {
			return ErrNotFound("model", name)
		}
	}

	session.App.Client.SetModel(name)
	if session.SessionID != "" {
		session.App.State.UpdateSessionFields(context.Background(),
			session.SessionID, sessionModelPatch(name))
	}
	fmt.Println(SuccessStyle.Render("Model set to " + name))
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func printWelcome(session *ChatSession) {
	fmt.Println(TitleStyle.Render("chatdeck chat"))
	fmt.Printf("%s %s\n", RenderLabel("Backend"),
		ValueStyle.Render(session.App.Cfg.API.BaseURL))
	fmt.Printf("%s %s\n", RenderLabel("Model"),
		ValueStyle.Render(session.App.Client.Model()))
	if session.App.Guest {
		fmt.Printf("%s %s\n", RenderLabel("Storage"),
			WarningStyle.Render("guest mode (local JSON file)"))
	}
	fmt.Println(DimStyle.Render("Type /help for commands, /quit to exit."))
	fmt.Println()
}

func printChatHelp() {
	fmt.Println(SectionStyle.Render("Commands"))
	fmt.Println("  /new            start a new chat")
	fmt.Println("  /sessions       list saved chats")
	fmt.Println("  /switch <id>    continue a saved chat")
	fmt.Println("  /model [name]   show or switch the model")
	fmt.Println("  /fav            toggle favorite on the active chat")
	fmt.Println("  /quit           exit")
}

func printExitSummary(session *ChatSession) {
	if session.Turns == 0 {
		return
	}
	fmt.Println(DimStyle.Render(fmt.Sprintf("%d message(s) in %s",
		session.Turns, formatDuration(time.Since(session.Started)))))
}

// printSessionList prints a compact grouped session listing.
func printSessionList(app *App) error {
	groups := app.State.Grouped(time.Now())
	if len(groups) == 0 {
		fmt.Println(DimStyle.Render("No saved chats."))
		return nil
	}
	now := time.Now()
	for _, g := range groups {
		fmt.Println(SectionStyle.Render(g.Label))
		for _, s := range g.Sessions {
			printSessionRow(s, now)
		}
	}
	return nil
}

func printSessionRow(s *model.Session, now time.Time) {
	star := "  "
	if s.IsFavorite {
		star = FavoriteStyle.Render("★ ")
	}
	fmt.Printf("  %s%s  %s  %s\n",
		star,
		DimStyle.Render(s.ID),
		ValueStyle.Render(s.GetTitle()),
		DimStyle.Render(formatRelativeTime(s.UpdatedAt, now)))
}
