// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model listing command.
//
// Command: models
// Short:   List models available on OpenRouter
//
// Examples:
//   chatstream models
//   chatstream models claude      Filter by substring
//
// When OpenRouter cannot be reached the built-in model list is shown.

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/util"
)

// modelsTimeout bounds the model list request.
const modelsTimeout = 15 * time.Second

// modelLister is the part of the OpenRouter client the models command uses.
type modelLister interface {
	ListModels(ctx context.Context, apiKey string) ([]openrouter.ModelInfo, error)
}

// HandleModelsCommand handles the "models" command.
func HandleModelsCommand(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), modelsTimeout)
	defer cancel()

	client := NewClient(cfg, args.Verbose)
	return runModels(ctx, client, cfg.OpenRouter.APIKey, cfg.Chat.Model, args.Query, os.Stdout, os.Stderr)
}

// runModels writes the model table for models whose ID or name contains
// filter. current is marked.
func runModels(ctx context.Context, lister modelLister, apiKey, current, filter string, out, errOut io.Writer) error {
	models, err := lister.ListModels(ctx, apiKey)
	if err != nil {
		log.Printf("MODELS_FETCH_FAILED | error=%v", err)
		fmt.Fprintf(errOut, "%s Could not fetch models (%s); showing built-in list\n",
			WarningStyle.Render("[WARN]"), FormatError(err))
		models = builtinModels()
	}

	filter = strings.ToLower(strings.TrimSpace(filter))
	var shown []openrouter.ModelInfo
	for _, m := range models {
		if filter == "" || strings.Contains(strings.ToLower(m.ID), filter) || strings.Contains(strings.ToLower(m.Name), filter) {
			shown = append(shown, m)
		}
	}
	sort.SliceStable(shown, func(i, j int) bool { return shown[i].ID < shown[j].ID })

	if len(shown) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No models match."))
		return nil
	}

	fmt.Fprintln(out, SectionStyle.Render(fmt.Sprintf("Models (%s)", formatNumber(len(shown)))))
	fmt.Fprintln(out, RenderSeparator(40))
	for _, m := range shown {
		marker := "  "
		if m.ID == current {
			marker = "* "
		}
		line := fmt.Sprintf("%s%-45s", marker, m.ID)
		if m.ContextSize > 0 {
			line += fmt.Sprintf(" %9s ctx", formatNumber(m.ContextSize))
		}
		if m.Name != "" && m.Name != m.ID {
			line += "  " + DimStyle.Render(util.TruncateWidth(m.Name, 40))
		}
		fmt.Fprintln(out, line)
	}

	if aliases := aliasList(); aliases != "" {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%s %s\n", DimStyle.Render("Aliases:"), aliases)
	}
	return nil
}

func builtinModels() []openrouter.ModelInfo {
	models := make([]openrouter.ModelInfo, 0, len(openrouter.KnownModels))
	for _, id := range openrouter.KnownModels {
		models = append(models, openrouter.ModelInfo{ID: id})
	}
	return models
}

func aliasList() string {
	names := make([]string, 0, len(openrouter.ModelAliases))
	for alias := range openrouter.ModelAliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
