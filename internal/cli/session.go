// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session.go - Builds the session every command works against.

package cli

import (
	"log"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/storage"
)

// Runtime bundles what a command needs: the loaded config, the session
// state and the history store backing it.
type Runtime struct {
	Config  *config.Config
	Client  *openrouter.Client
	State   *session.State
	History *storage.HistoryStore
}

// Close releases the history store.
func (r *Runtime) Close() error {
	if r.History == nil {
		return nil
	}
	return r.History.Close()
}

// LoadConfig loads the config file and applies the session flags from args
// on top of it.
func LoadConfig(args Args) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	ApplyOverrides(cfg, args)
	return cfg, nil
}

// ApplyOverrides copies command-line session flags into cfg. --template sets
// the system prompt unless --system is also given.
func ApplyOverrides(cfg *config.Config, args Args) {
	if args.Model != "" {
		cfg.Chat.Model = openrouter.ResolveModel(args.Model)
	}
	if args.Temperature != nil {
		cfg.Chat.Temperature = *args.Temperature
	}
	if args.MaxTokens != nil {
		cfg.Chat.MaxTokens = *args.MaxTokens
	}
	if args.SystemPrompt != nil {
		cfg.Chat.SystemPrompt = *args.SystemPrompt
	} else if args.Template != "" {
		if t, ok := session.LookupTemplate(args.Template); ok {
			cfg.Chat.SystemPrompt = t.SystemPrompt
		}
	}
	if args.Context != nil {
		cfg.Chat.Context = *args.Context
	}
	if args.Addr != "" {
		cfg.Server.Addr = args.Addr
	}
}

// NewClient creates an OpenRouter client from the connection settings.
func NewClient(cfg *config.Config, verbose bool) *openrouter.Client {
	return openrouter.NewClient().
		WithBaseURL(cfg.OpenRouter.BaseURL).
		WithSiteURL(cfg.OpenRouter.SiteURL).
		WithSiteName(cfg.OpenRouter.SiteName).
		WithReadTimeout(cfg.OpenRouter.ReadTimeout()).
		WithVerbose(verbose)
}

// NewRuntime builds the session for cfg. A template named in args replaces
// the system prompt unless --system was also given.
func NewRuntime(cfg *config.Config, args Args) (*Runtime, error) {
	settings := session.SettingsFromConfig(cfg)
	if err := settings.ValidateRanges(); err != nil {
		return nil, err
	}

	history, err := storage.NewHistoryStore()
	if err != nil {
		return nil, WrapError(err, "open history")
	}

	client := NewClient(cfg, args.Verbose)
	st := session.NewState(settings, client, history)

	if args.Template != "" {
		t, ok := session.LookupTemplate(args.Template)
		if !ok {
			history.Close()
			return nil, NewValidationErrorWithExample("template", args.Template, "unknown template", templateNames())
		}
		// An explicit --system wins, so the template is not loaded.
		if args.SystemPrompt == nil {
			if _, err := st.LoadTemplate(t.Name); err != nil {
				history.Close()
				return nil, err
			}
			log.Printf("TEMPLATE_LOADED | name=%s", t.Name)
		}
	}

	log.Printf("SESSION_READY | model=%s key=%s", settings.Model, openrouter.MaskKey(settings.APIKey))
	return &Runtime{Config: cfg, Client: client, State: st, History: history}, nil
}

func templateNames() string {
	var names []string
	for _, t := range session.Templates() {
		names = append(names, t.Name)
	}
	return joinQuoted(names)
}
