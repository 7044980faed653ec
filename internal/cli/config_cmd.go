// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration inspection command.
package cli

import (
	"fmt"
	"os"

	"github.com/jeranaias/chatdeck/internal/config"
)

// HandleConfigCommand shows or initializes the configuration.
func HandleConfigCommand(args Args) error {
	switch args.Subcommand {
	case "show", "":
		return configShow(args)
	case "path":
		return configPath(args)
	case "init":
		return configInit()
	default:
		return &ValidationError{
			Field:   "subcommand",
			Value:   args.Subcommand,
			Reason:  "unknown config subcommand",
			Example: "chatdeck config [show|path|init]",
		}
	}
}

func configShow(args Args) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if args.JSON {
		return outputJSON(cfg)
	}

	fmt.Println(TitleStyle.Render("chatdeck configuration"))
	fmt.Printf("%s %s\n", RenderLabel("Backend URL"), ValueStyle.Render(cfg.API.BaseURL))
	fmt.Printf("%s %s\n", RenderLabel("Default model"), ValueStyle.Render(cfg.API.DefaultModel))
	fmt.Printf("%s %ds\n", RenderLabel("Request timeout"), cfg.API.RequestTimeoutSecs)

	dataDir, _ := cfg.ResolvedDataDir()
	fmt.Printf("%s %s\n", RenderLabel("Data directory"), ValueStyle.Render(dataDir))
	storage := "sqlite (" + cfg.Storage.DatabaseFile + ")"
	if cfg.Storage.GuestMode {
		storage = "guest (" + cfg.Storage.GuestFile + ")"
	}
	fmt.Printf("%s %s\n", RenderLabel("Storage"), ValueStyle.Render(storage))

	fmt.Printf("%s %ds\n", RenderLabel("Duplicate window"), cfg.Chat.DuplicateWindowSecs)
	fmt.Printf("%s %s\n", RenderLabel("Theme"), ValueStyle.Render(cfg.UI.Theme))
	fmt.Printf("%s %s\n", RenderLabel("Log level"), ValueStyle.Render(cfg.Log.Level))
	return nil
}

func configPath(args Args) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if args.JSON {
		return outputJSON(map[string]string{"path": path})
	}
	fmt.Println(path)
	return nil
}

// configInit writes a config file with defaults if none exists.
func configInit() error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("%s config already exists at %s\n", WarningStyle.Render("[WARN]"), path)
		return nil
	}

	if err := config.Save(config.Default()); err != nil {
		return WrapError(err, "failed to write config")
	}
	fmt.Printf("%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}
