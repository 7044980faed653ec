// chatdeck - A terminal interface for streaming chat with a local model server.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatdeck/internal/cli"
	"github.com/jeranaias/chatdeck/internal/ui/chat"
	"github.com/jeranaias/chatdeck/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		runTUI(args)
	case cli.CmdAsk:
		cli.HandleErrorAndExit(cli.HandleAskCommand(args), args.JSON)
	case cli.CmdChat:
		cli.HandleErrorAndExit(cli.HandleChatCommand(args), args.JSON)
	case cli.CmdSessions:
		cli.HandleErrorAndExit(cli.HandleSessionsCommand(args), args.JSON)
	case cli.CmdModels:
		cli.HandleErrorAndExit(cli.HandleModelsCommand(args), args.JSON)
	case cli.CmdConfig:
		cli.HandleErrorAndExit(cli.HandleConfigCommand(args), args.JSON)
	case cli.CmdVersion:
		cli.HandleVersion(args)
	case cli.CmdHelp:
		cli.HandleHelp()
	default:
		runTUI(args)
	}
}

// runTUI starts the full-screen chat interface.
func runTUI(args cli.Args) {
	app, err := cli.BuildApp(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// Hydrate session metadata before the first frame so the sidebar
	// renders immediately instead of flashing an empty list.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := app.State.Load(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Error: loading sessions: %v\n", err)
		os.Exit(1)
	}
	cancel()

	var theme *styles.Theme
	switch app.Cfg.UI.Theme {
	case "light":
		theme = styles.NewThemeForMode(false)
	case "dark":
		theme = styles.NewThemeForMode(true)
	default:
		theme = styles.NewTheme()
	}

	m := chat.New(theme, app.State, app.Orch, app.Client, chat.Options{
		GuestMode:      app.Guest,
		ShowTimestamps: app.Cfg.UI.ShowTimestamps,
		CompactMode:    app.Cfg.UI.CompactMode,
	})

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running chatdeck: %v\n", err)
		os.Exit(1)
	}
}
