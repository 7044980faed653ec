// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for chatdeck.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdSessions
	CmdModels
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool
	Guest   bool // Use the local guest store instead of the database
	Model   string

	// Command-specific
	Query      string
	Session    string
	Subcommand string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `chatdeck - streaming chat client for the terminal

Chatdeck talks to a chat backend over SSE streaming, keeps your sessions
in a local SQLite database (or a guest-mode JSON file), and renders
replies as markdown.

Usage:
  chatdeck                     Start TUI (default)
  chatdeck ask "question"      Ask a single question
  chatdeck chat                Interactive chat REPL
  chatdeck sessions [subcommand]  Manage saved sessions
  chatdeck models              List available models
  chatdeck config [show|path]  Configuration
  chatdeck version             Show version
  chatdeck help                Show this help

Session subcommands:
  sessions list            List sessions grouped by recency (default)
  sessions search <query>  Full-text search across sessions
  sessions delete <id>     Delete a session
  sessions favorite <id>   Toggle favorite

Global flags:
  --model <name>    Override the model for this invocation
  --guest           Use the guest store (no database)
  --json            JSON output where supported
  -q, --quiet       Less output
  -v, --verbose     More output

Environment:
  CHATDECK_API_URL     Backend base URL
  CHATDECK_MODEL       Default model
  CHATDECK_DATA_DIR    Data directory (default ~/.chatdeck)
  CHATDECK_GUEST       Force guest mode (true/false)

Examples:
  chatdeck ask "explain goroutines"
  chatdeck ask --model llama3 "summarize this"
  chatdeck sessions search "postgres"
  chatdeck sessions delete sess_42
`

// PrintUsage prints the usage text.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("chatdeck %s (%s, %s, %s/%s)\n",
		Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}

// Parse parses os.Args into a command and its arguments.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

// parse is the testable core of Parse.
func parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	// No command means TUI
	if len(remaining) == 0 {
		return CmdTUI, args
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, args

	case "ask":
		parseAskArgs(&args, remaining)
		return CmdAsk, args

	case "chat":
		parseChatArgs(&args, remaining)
		return CmdChat, args

	case "session", "sessions":
		parseSessionsArgs(&args, remaining)
		return CmdSessions, args

	case "models", "model":
		return CmdModels, args

	case "config":
		if len(remaining) > 0 {
			args.Subcommand = strings.ToLower(remaining[0])
		}
		return CmdConfig, args

	case "version", "--version":
		return CmdVersion, args

	case "help", "-h", "--help":
		return CmdHelp, args

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		return CmdHelp, args
	}
}

// parseGlobalFlags strips global flags and returns the remaining args.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	i := 0
	for i < len(argv) {
		arg := argv[i]

		switch arg {
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--json":
			args.JSON = true
		case "--guest":
			args.Guest = true
		case "--model", "-m":
			if i+1 < len(argv) {
				i++
				args.Model = argv[i]
			}
		default:
			if strings.HasPrefix(arg, "--model=") {
				args.Model = strings.TrimPrefix(arg, "--model=")
			} else {
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, args
}

// parseAskArgs collects the question text and ask-specific flags.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	i := 0
	for i < len(remaining) {
		arg := remaining[i]
		switch {
		case arg == "-s" || arg == "--session":
			if i+1 < len(remaining) {
				i++
				args.Session = remaining[i]
			}
		case strings.HasPrefix(arg, "--session="):
			args.Session = strings.TrimPrefix(arg, "--session=")
		default:
			query = append(query, arg)
		}
		i++
	}

	args.Query = strings.Join(query, " ")
}

// parseChatArgs collects chat-specific flags.
func parseChatArgs(args *Args, remaining []string) {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		switch {
		case arg == "-s" || arg == "--session":
			if i+1 < len(remaining) {
				i++
				args.Session = remaining[i]
			}
		case strings.HasPrefix(arg, "--session="):
			args.Session = strings.TrimPrefix(arg, "--session=")
		}
	}
}

// parseSessionsArgs parses the sessions subcommand and its target.
func parseSessionsArgs(args *Args, remaining []string) {
	if len(remaining) == 0 {
		args.Subcommand = "list"
		return
	}
	args.Subcommand = strings.ToLower(remaining[0])
	if len(remaining) > 1 {
		args.Query = strings.Join(remaining[1:], " ")
	}
}

// HandleVersion handles the version command.
func HandleVersion(args Args) {
	if args.JSON {
		outputJSON(map[string]string{
			"version":    Version,
			"git_commit": GitCommit,
			"build_date": BuildDate,
			"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		})
		return
	}
	PrintVersion()
}

// HandleHelp handles the help command.
func HandleHelp() {
	PrintUsage()
}
