// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model catalog command.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/chatdeck/internal/util"
)

// HandleModelsCommand lists the models the backend offers.
func HandleModelsCommand(args Args) error {
	app, err := BuildApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.Client.IsConfigured() {
		return NewCommandError("models", "connect", "no backend URL configured", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	models, err := app.Client.Models(ctx)
	if err != nil {
		return WrapError(err, "failed to fetch models")
	}

	if args.JSON {
		return outputJSON(models)
	}

	if len(models) == 0 {
		fmt.Println(DimStyle.Render("Backend reports no models."))
		return nil
	}

	current := app.Client.Model()
	fmt.Println(TitleStyle.Render("Available models"))
	for _, mi := range models {
		marker := "  "
		if mi.ID == current {
			marker = SuccessStyle.Render("* ")
		}
		name := mi.Name
		if name == "" {
			name = mi.ID
		}
		fmt.Printf("%s%s %s\n",
			marker,
			ValueStyle.Render(util.PadRight(name, 28)),
			DimStyle.Render(mi.Description))
	}
	if !args.Quiet {
		fmt.Println()
		fmt.Println(DimStyle.Render("* currently selected (use --model or /model to switch)"))
	}
	return nil
}
