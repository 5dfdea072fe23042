// chatstream - Streaming chat client for OpenRouter.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatstream/internal/cli"
	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/ui/chat"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Global program reference for config reloads
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

// logFileName is the TUI log inside the config directory.
const logFileName = "chatstream.log"

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	closeLog := setupLogging(cmd, args)
	defer closeLog()
	log.Printf("COMMAND_START | cmd=%s version=%s", cmd, Version)

	var err error
	switch cmd {
	case cli.CmdTUI:
		err = runTUI(args)
	case cli.CmdAsk:
		err = cli.HandleAskCommand(args)
	case cli.CmdChat:
		err = cli.HandleChatCommand(args)
	case cli.CmdServe:
		err = cli.HandleServeCommand(args)
	case cli.CmdModels:
		err = cli.HandleModelsCommand(args)
	case cli.CmdSetup:
		err = cli.HandleSetup(args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.HandleVersion()
	case cli.CmdHelp:
		cli.HandleHelp()
	}

	if err != nil {
		closeLog()
		cli.Exit(err)
	}
}

// setupLogging routes the standard logger. The TUI owns the terminal, so it
// logs to a file. serve logs to stderr. The other commands keep stderr for
// the answer's status lines and log only with --verbose.
func setupLogging(cmd cli.Command, args cli.Args) func() {
	log.SetFlags(log.LstdFlags)

	switch {
	case cmd == cli.CmdTUI:
		f, err := openLogFile()
		if err != nil {
			log.SetOutput(io.Discard)
			return func() {}
		}
		log.SetOutput(f)
		return func() { f.Close() }
	case args.Quiet:
		log.SetOutput(io.Discard)
	case cmd == cli.CmdServe || args.Verbose:
		log.SetOutput(os.Stderr)
	default:
		log.SetOutput(io.Discard)
	}
	return func() {}
}

func openLogFile() (*os.File, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, err
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// runTUI starts the full-screen chat.
func runTUI(args cli.Args) error {
	cfg, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}
	rt, err := cli.NewRuntime(cfg, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	m := chat.New(chat.Options{
		State:        rt.State,
		Theme:        styles.NewTheme(),
		ExportDir:    cfg.UI.ExportDir,
		HistoryLimit: cfg.UI.HistoryLimit,
		Markdown:     cfg.UI.Markdown && !args.Plain,
		Version:      Version,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	// Config edits reach the model as messages; flags keep winning.
	if path, err := config.ConfigPath(); err == nil {
		w, err := config.Watch(path, config.DefaultWatchDebounce, func(next *config.Config, err error) {
			if next != nil {
				cli.ApplyOverrides(next, args)
			}
			sendToProgram(chat.ConfigReloadedMsg{Config: next, Err: err})
		})
		if err != nil {
			log.Printf("CONFIG_WATCH_FAILED | error=%v", err)
		} else {
			defer w.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running chatstream: %w", err)
	}
	// Quitting mid-stream leaves nothing running.
	rt.State.Cancel()
	return nil
}

// sendToProgram delivers msg to the running program, if any.
func sendToProgram(msg tea.Msg) {
	programMu.Lock()
	p := programRef
	programMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}
