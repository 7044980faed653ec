// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - Shared application wiring for CLI commands and the TUI.
//
// Every entry point needs the same stack: config, chat client, storage
// backend, state store, and send orchestrator. BuildApp assembles it once.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/chatdeck/internal/chatapi"
	"github.com/jeranaias/chatdeck/internal/config"
	"github.com/jeranaias/chatdeck/internal/send"
	"github.com/jeranaias/chatdeck/internal/store"
)

// App bundles the wired components every command needs.
type App struct {
	Cfg    *config.Config
	Client *chatapi.Client
	State  *store.State
	Orch   *send.Orchestrator
	Logger *slog.Logger

	// Guest reports which backend was opened.
	Guest bool

	backend store.Backend
	logFile *os.File
}

// BuildApp loads the config and wires the full application stack.
// The --guest flag and CHATDECK_GUEST both select the JSON blob backend.
func BuildApp(args Args) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapError(err, "configuration")
	}

	logger, logFile := buildLogger(cfg)

	guest := cfg.Storage.GuestMode || args.Guest
	backend, err := openBackend(cfg, guest, logger)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	modelName := cfg.API.DefaultModel
	if args.Model != "" {
		modelName = args.Model
	}
	client := chatapi.NewClient(cfg.API.BaseURL, modelName)

	st := store.NewState(backend, logger,
		store.WithDuplicateWindow(time.Duration(cfg.Chat.DuplicateWindowSecs)*time.Second))

	var opts []send.Option
	if cfg.Chat.SendIntervalMillis > 0 {
		opts = append(opts, send.WithRateLimit(
			time.Duration(cfg.Chat.SendIntervalMillis)*time.Millisecond,
			cfg.Chat.SendBurst))
	}
	orch := send.New(st, client, logger, opts...)

	return &App{
		Cfg:     cfg,
		Client:  client,
		State:   st,
		Orch:    orch,
		Logger:  logger,
		Guest:   guest,
		backend: backend,
		logFile: logFile,
	}, nil
}

// Close drains pending persistence writes, then releases the backend and
// log file. One-shot commands exit right after their send returns; without
// the drain the final assistant content would race the backend close.
func (a *App) Close() error {
	a.Orch.Drain()
	err := a.backend.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

// openBackend opens the configured storage backend.
func openBackend(cfg *config.Config, guest bool, logger *slog.Logger) (store.Backend, error) {
	if guest {
		path, err := cfg.GuestPath()
		if err != nil {
			return nil, err
		}
		backend, err := store.OpenGuest(path, logger)
		if err != nil {
			return nil, WrapError(err, "failed to open guest store")
		}
		return backend, nil
	}

	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	backend, err := store.OpenSQLite(path)
	if err != nil {
		return nil, WrapError(err, "failed to open database")
	}
	return backend, nil
}

// buildLogger creates the application logger. Logs go to a file so they
// never corrupt the TUI; a broken log path degrades to a discarded logger.
func buildLogger(cfg *config.Config) (*slog.Logger, *os.File) {
	level := parseLogLevel(cfg.Log.Level)

	path := cfg.Log.File
	if path == "" {
		dir, err := cfg.ResolvedDataDir()
		if err != nil {
			return discardLogger(level), nil
		}
		path = filepath.Join(dir, "chatdeck.log")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return discardLogger(level), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return discardLogger(level), nil
	}

	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), f
}

func discardLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level}))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// sessionFavoritePatch builds a favorite-toggle patch.
func sessionFavoritePatch(fav bool) store.SessionPatch {
	return store.SessionPatch{IsFavorite: &fav}
}

// sessionModelPatch builds a model-selection patch.
func sessionModelPatch(name string) store.SessionPatch {
	return store.SessionPatch{SelectedModel: &name}
}

// sendRequest builds the orchestrator request shared by ask and chat.
func sendRequest(sessionID, text, model string, onToken func(string)) send.Request {
	return send.Request{
		SessionID: sessionID,
		Text:      text,
		Model:     model,
		OnToken:   onToken,
	}
}

// resolveSessionArg maps a user-supplied session reference (full id or
// unique prefix) to a session id.
func resolveSessionArg(app *App, ref string) (string, error) {
	if ref == "" {
		return "", ErrMissingArgument("session", "chatdeck sessions delete sess_42")
	}

	var match string
	for _, s := range app.State.Sessions() {
		if s.ID == ref {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("session reference %q is ambiguous", ref)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", ErrNotFound("session", ref)
	}
	return match, nil
}
