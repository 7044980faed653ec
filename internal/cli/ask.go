// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Streams the reply to stdout token by token, then re-renders it as
// markdown when stdout is a terminal. Piped output stays plain so the
// command composes with other tools.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer is the shared glamour renderer for CLI markdown output.
var markdownRenderer *glamour.TermRenderer

func init() {
	wrap := GetTerminalWidth()
	if wrap > 100 {
		wrap = 100
	}
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		markdownRenderer = nil
	}
}

// renderMarkdown renders content as markdown, falling back to plain text.
func renderMarkdown(content string) string {
	if markdownRenderer == nil || !IsStdoutTTY() {
		return content
	}
	out, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// HandleAskCommand handles the ask command.
func HandleAskCommand(args Args) error {
	question := strings.TrimSpace(args.Query)
	if question == "" {
		return ErrMissingArgument("question", `chatdeck ask "explain goroutines"`)
	}

	app, err := BuildApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.Client.IsConfigured() {
		return NewCommandError("ask", "connect", "no backend URL configured", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C cancels the stream; the partial reply stays in the session.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := app.State.Load(ctx); err != nil {
		return WrapError(err, "failed to load sessions")
	}

	sessionID := ""
	if args.Session != "" {
		sessionID, err = resolveSessionArg(app, args.Session)
		if err != nil {
			return err
		}
	}

	// Stream tokens straight to stdout while the reply arrives.
	streamed := false
	result, err := app.Orch.Send(ctx, sendRequest(sessionID, question, args.Model, func(tok string) {
		streamed = true
		fmt.Print(tok)
	}))
	if err != nil {
		return WrapError(err, "send rejected")
	}

	if streamed {
		fmt.Println()
	}

	if result.Err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("[Cancelled]"))
			return nil
		}
		return WrapError(result.Err, "stream failed")
	}

	// Re-render the complete reply as markdown on a terminal.
	if IsStdoutTTY() && result.Content != "" {
		fmt.Println()
		fmt.Print(renderMarkdown(result.Content))
	}

	if !args.Quiet {
		fmt.Fprintf(os.Stderr, "%s\n",
			DimStyle.Render(fmt.Sprintf("session %s", result.SessionID)))
	}
	return nil
}
