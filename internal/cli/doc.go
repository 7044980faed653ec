// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements chatdeck's command-line surface: argument
// parsing, command handlers, and terminal output helpers.
//
// Parsing is intentionally hand-rolled rather than flag-package based so
// that global flags (--model, --guest, --json, -q, -v) can appear on
// either side of the command word, the way people actually type them.
// Parse returns a Command constant plus an Args struct; main routes on
// the constant and each Handle*Command function receives the Args.
//
// Commands:
//
//	ask       one-shot question, streams tokens to stdout, renders
//	          markdown when stdout is a TTY
//	chat      interactive REPL with line editing and /slash commands
//	sessions  list / search / delete / favorite saved sessions
//	models    list models offered by the backend
//	config    show, print path, or write a starter config file
//
// Application wiring lives in BuildApp: config load, logger, storage
// backend selection (SQLite or guest JSON), API client, state store,
// and send orchestrator, shared by every command and the TUI.
//
// Errors flow through the typed errors in errors.go; GetExitCode maps
// them to stable exit codes so scripts can branch on failure class.
package cli
