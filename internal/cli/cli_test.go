// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli_test.go - tests for argument parsing and command routing.
package cli

import (
	"errors"
	"testing"
	"time"
)

// =============================================================================
// COMMAND ROUTING TESTS
// =============================================================================

func TestParse_CommandRouting(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want Command
	}{
		{"no args defaults to TUI", nil, CmdTUI},
		{"explicit tui", []string{"tui"}, CmdTUI},
		{"ask", []string{"ask", "hello"}, CmdAsk},
		{"chat", []string{"chat"}, CmdChat},
		{"sessions", []string{"sessions"}, CmdSessions},
		{"session singular alias", []string{"session", "list"}, CmdSessions},
		{"models", []string{"models"}, CmdModels},
		{"model singular alias", []string{"model"}, CmdModels},
		{"config", []string{"config", "show"}, CmdConfig},
		{"version", []string{"version"}, CmdVersion},
		{"version flag", []string{"--version"}, CmdVersion},
		{"help", []string{"help"}, CmdHelp},
		{"help short flag", []string{"-h"}, CmdHelp},
		{"uppercase command", []string{"ASK", "hi"}, CmdAsk},
		{"unknown falls back to help", []string{"frobnicate"}, CmdHelp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _ := parse(tt.argv)
			if cmd != tt.want {
				t.Errorf("parse(%v) = %v, want %v", tt.argv, cmd, tt.want)
			}
		})
	}
}

// =============================================================================
// GLOBAL FLAG TESTS
// =============================================================================

func TestParse_GlobalFlags(t *testing.T) {
	cmd, args := parse([]string{"--json", "--guest", "-q", "sessions", "list"})
	if cmd != CmdSessions {
		t.Fatalf("cmd = %v, want CmdSessions", cmd)
	}
	if !args.JSON {
		t.Error("JSON should be true")
	}
	if !args.Guest {
		t.Error("Guest should be true")
	}
	if !args.Quiet {
		t.Error("Quiet should be true")
	}
}

func TestParse_FlagsAfterCommand(t *testing.T) {
	// Global flags are stripped regardless of position.
	_, args := parse([]string{"ask", "--guest", "what", "is", "a", "channel"})
	if !args.Guest {
		t.Error("Guest should be true")
	}
	if args.Query != "what is a channel" {
		t.Errorf("Query = %q, want %q", args.Query, "what is a channel")
	}
}

func TestParse_ModelFlag(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"long form", []string{"--model", "llama3", "ask", "hi"}, "llama3"},
		{"short form", []string{"-m", "llama3", "ask", "hi"}, "llama3"},
		{"equals form", []string{"--model=llama3", "ask", "hi"}, "llama3"},
		{"dangling takes no value", []string{"ask", "hi", "--model"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, args := parse(tt.argv)
			if args.Model != tt.want {
				t.Errorf("Model = %q, want %q", args.Model, tt.want)
			}
		})
	}
}

// =============================================================================
// COMMAND-SPECIFIC ARG TESTS
// =============================================================================

func TestParseAskArgs(t *testing.T) {
	_, args := parse([]string{"ask", "-s", "sess_42", "explain", "goroutines"})
	if args.Session != "sess_42" {
		t.Errorf("Session = %q, want sess_42", args.Session)
	}
	if args.Query != "explain goroutines" {
		t.Errorf("Query = %q, want %q", args.Query, "explain goroutines")
	}
}

func TestParseAskArgs_SessionEquals(t *testing.T) {
	_, args := parse([]string{"ask", "--session=sess_7", "hi"})
	if args.Session != "sess_7" {
		t.Errorf("Session = %q, want sess_7", args.Session)
	}
	if args.Query != "hi" {
		t.Errorf("Query = %q, want hi", args.Query)
	}
}

func TestParseChatArgs(t *testing.T) {
	_, args := parse([]string{"chat", "--session", "sess_9"})
	if args.Session != "sess_9" {
		t.Errorf("Session = %q, want sess_9", args.Session)
	}
}

func TestParseSessionsArgs(t *testing.T) {
	tests := []struct {
		name      string
		argv      []string
		wantSub   string
		wantQuery string
	}{
		{"bare defaults to list", []string{"sessions"}, "list", ""},
		{"explicit list", []string{"sessions", "list"}, "list", ""},
		{"search joins query", []string{"sessions", "search", "rate", "limiting"}, "search", "rate limiting"},
		{"delete with id", []string{"sessions", "delete", "sess_3"}, "delete", "sess_3"},
		{"favorite", []string{"sessions", "favorite", "sess_3"}, "favorite", "sess_3"},
		{"subcommand lowercased", []string{"sessions", "DELETE", "sess_3"}, "delete", "sess_3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, args := parse(tt.argv)
			if args.Subcommand != tt.wantSub {
				t.Errorf("Subcommand = %q, want %q", args.Subcommand, tt.wantSub)
			}
			if args.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", args.Query, tt.wantQuery)
			}
		})
	}
}

func TestParseConfigSubcommand(t *testing.T) {
	_, args := parse([]string{"config", "path"})
	if args.Subcommand != "path" {
		t.Errorf("Subcommand = %q, want path", args.Subcommand)
	}
}

// =============================================================================
// ERROR TYPE TESTS (errors.go)
// =============================================================================

func TestCommandError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewCommandError("ask", "sending message", "backend unreachable", inner)

	if !errors.Is(err, inner) {
		t.Error("CommandError should unwrap to the inner error")
	}
	msg := err.Error()
	if msg == "" {
		t.Fatal("Error() returned empty string")
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation error", &ValidationError{Field: "model", Reason: "empty"}, ExitUsageError},
		{"not found", &NotFoundError{Resource: "session", ID: "x"}, ExitNotFoundError},
		{"network-ish message", errors.New("dial tcp: connection refused"), ExitNetworkError},
		{"timeout message", errors.New("context deadline exceeded"), ExitTimeoutError},
		{"generic", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetExitCode_WrappedNotFound(t *testing.T) {
	err := WrapError(&NotFoundError{Resource: "session", ID: "sess_1"}, "sessions")
	if got := GetExitCode(err); got != ExitNotFoundError {
		t.Errorf("GetExitCode(wrapped) = %d, want %d", got, ExitNotFoundError)
	}
}

// =============================================================================
// HELPER TESTS (helpers.go)
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{65 * time.Second, "1m"},
		{time.Hour + 100*time.Second, "1h"},
		{25 * time.Hour, "1d"},
	}

	for _, tt := range tests {
		got := formatDuration(tt.d)
		if got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := formatRelativeTime(now.Add(-5*time.Minute), now); got != "5m ago" {
		t.Errorf("formatRelativeTime = %q, want %q", got, "5m ago")
	}
	if got := formatRelativeTime(time.Time{}, now); got != "never" {
		t.Errorf("formatRelativeTime(zero) = %q, want %q", got, "never")
	}
}
