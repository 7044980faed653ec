// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - Session management command.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/chatdeck/internal/model"
	"github.com/jeranaias/chatdeck/internal/store"
	"github.com/jeranaias/chatdeck/internal/util"
)

// HandleSessionsCommand dispatches the sessions subcommands.
func HandleSessionsCommand(args Args) error {
	app, err := BuildApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.State.Load(ctx); err != nil {
		return WrapError(err, "failed to load sessions")
	}

	switch args.Subcommand {
	case "list", "":
		return sessionsList(app, args)
	case "search":
		return sessionsSearch(ctx, app, args)
	case "delete", "rm":
		return sessionsDelete(ctx, app, args)
	case "favorite", "fav":
		return sessionsFavorite(ctx, app, args)
	default:
		return &ValidationError{
			Field:   "subcommand",
			Value:   args.Subcommand,
			Reason:  "unknown sessions subcommand",
			Example: "chatdeck sessions [list|search|delete|favorite]",
		}
	}
}

// sessionsList prints all sessions grouped by recency.
func sessionsList(app *App, args Args) error {
	if args.JSON {
		metas := make([]model.SessionMeta, 0)
		for _, s := range app.State.Sessions() {
			metas = append(metas, s.Meta())
		}
		return outputJSON(metas)
	}

	groups := app.State.Grouped(time.Now())
	if len(groups) == 0 {
		fmt.Println(DimStyle.Render("No saved chats."))
		return nil
	}

	now := time.Now()
	fmt.Println(TitleStyle.Render("Saved chats"))
	for _, g := range groups {
		fmt.Println(SectionStyle.Render(g.Label))
		for _, s := range g.Sessions {
			printSessionTableRow(s, now)
		}
	}
	return nil
}

// printSessionTableRow prints one aligned session row.
func printSessionTableRow(s *model.Session, now time.Time) {
	star := " "
	if s.IsFavorite {
		star = FavoriteStyle.Render("★")
	}
	modelName := s.SelectedModel
	if modelName == "" {
		modelName = "-"
	}
	fmt.Printf("  %s %s %s %s %s\n",
		star,
		DimStyle.Render(util.PadRight(s.ID, 14)),
		ValueStyle.Render(util.PadRight(util.TruncateWidth(s.GetTitle(), 40), 42)),
		DimStyle.Render(util.PadRight(modelName, 16)),
		DimStyle.Render(formatRelativeTime(s.UpdatedAt, now)))
}

// sessionsSearch runs a full-text search across sessions.
func sessionsSearch(ctx context.Context, app *App, args Args) error {
	if args.Query == "" {
		return ErrMissingArgument("query", `chatdeck sessions search "postgres"`)
	}

	metas := app.State.Search(ctx, args.Query, store.Filters{})
	if args.JSON {
		return outputJSON(metas)
	}

	if len(metas) == 0 {
		fmt.Println(DimStyle.Render("No matches."))
		return nil
	}

	fmt.Println(TitleStyle.Render(fmt.Sprintf("%d match(es)", len(metas))))
	now := time.Now()
	for _, meta := range metas {
		fmt.Printf("  %s %s %s\n",
			DimStyle.Render(util.PadRight(meta.ID, 14)),
			ValueStyle.Render(util.PadRight(util.TruncateWidth(meta.Title, 40), 42)),
			DimStyle.Render(formatRelativeTime(meta.UpdatedAt, now)))
	}
	return nil
}

// sessionsDelete removes a session and all its messages.
func sessionsDelete(ctx context.Context, app *App, args Args) error {
	id, err := resolveSessionArg(app, args.Query)
	if err != nil {
		return err
	}

	if err := app.State.DeleteSession(ctx, id); err != nil {
		return NewCommandError("sessions", "delete", "backend rejected delete", err)
	}

	if args.JSON {
		return outputJSON(map[string]any{"deleted": id, "success": true})
	}
	fmt.Printf("%s deleted %s\n", SuccessStyle.Render("[OK]"), id)
	return nil
}

// sessionsFavorite toggles a session's favorite flag.
func sessionsFavorite(ctx context.Context, app *App, args Args) error {
	id, err := resolveSessionArg(app, args.Query)
	if err != nil {
		return err
	}

	s := app.State.Session(id)
	if s == nil {
		return ErrNotFound("session", id)
	}

	fav := !s.IsFavorite
	if err := app.State.UpdateSessionFields(ctx, id, sessionFavoritePatch(fav)); err != nil {
		return NewCommandError("sessions", "favorite", "backend rejected update", err)
	}

	if args.JSON {
		return outputJSON(map[string]any{"id": id, "favorite": fav, "success": true})
	}
	if fav {
		fmt.Printf("%s %s is now a favorite\n", SuccessStyle.Render("[OK]"), id)
	} else {
		fmt.Printf("%s %s is no longer a favorite\n", SuccessStyle.Render("[OK]"), id)
	}
	return nil
}
