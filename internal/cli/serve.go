// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - Local web page command.
//
// Command: serve
// Short:   Serve the chat page on a local address
// Aliases: web
//
// Examples:
//   chatstream serve
//   chatstream serve --addr 127.0.0.1:9000
//
// Edits to the config file are applied to the running session; flags given
// on the command line keep winning.

package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/server"
	"github.com/jeranaias/chatstream/internal/session"
)

// HandleServeCommand handles the "serve" command.
func HandleServeCommand(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	rt, err := NewRuntime(cfg, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := server.New(rt.State, server.Options{
		Addr:         cfg.Server.Addr,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		HistoryLimit: cfg.UI.HistoryLimit,
		Export:       &export.Options{OutputDir: cfg.UI.ExportDir, IncludeMetadata: true},
	})

	if path, err := config.ConfigPath(); err == nil {
		w, err := config.Watch(path, config.DefaultWatchDebounce, func(next *config.Config, err error) {
			applyReload(rt.State, next, err, args)
		})
		if err != nil {
			log.Printf("CONFIG_WATCH_FAILED | error=%v", err)
		} else {
			defer w.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, func(addr string) {
		if args.Quiet {
			return
		}
		fmt.Fprintf(os.Stderr, "%s Serving on %s\n", SuccessStyle.Render("[OK]"), CommandStyle.Render("http://"+addr))
		fmt.Fprintln(os.Stderr, DimStyle.Render("Press Ctrl+C to stop."))
	})
}

// applyReload replaces the session settings with a reloaded config. Flags
// are applied again first. The key set in the page survives when the file
// has none, and a template loaded in the page keeps its prompt.
func applyReload(st *session.State, next *config.Config, err error, args Args) {
	if err != nil {
		log.Printf("CONFIG_RELOAD_FAILED | error=%v", err)
		return
	}
	ApplyOverrides(next, args)
	err = st.ReloadSettings(session.SettingsFromConfig(next))
	if err != nil {
		log.Printf("CONFIG_RELOAD_REJECTED | error=%s", openrouter.UserMessage(err))
		return
	}
	log.Printf("CONFIG_RELOADED | model=%s template=%q", st.Settings().Model, st.TemplateName())
}
