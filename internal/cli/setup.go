// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - First-run setup command.
//
// Command: setup
// Short:   Store the OpenRouter API key and default model
// Aliases: init
//
// Examples:
//   chatstream setup
//
// The key is read without echo and saved to the config file with
// owner-only permissions. Keys are created at https://openrouter.ai/keys.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/openrouter"
)

// HandleSetup handles the "setup" command.
func HandleSetup(args Args) error {
	if err := RequiresTTY("setup"); err != nil {
		return err
	}
	path, err := config.ConfigPath()
	if err != nil {
		return NewCommandError("config", "locate", "could not resolve the config path", err)
	}
	if err := config.EnsureConfigDir(); err != nil {
		return NewCommandError("config", "create", "could not create the config directory", err)
	}

	in := bufio.NewReader(os.Stdin)
	return runSetup(in, readSecret, os.Stdout, path)
}

// readSecret reads one line from the terminal without echo.
func readSecret() (string, error) {
	inputMu.Lock()
	defer inputMu.Unlock()

	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// runSetup walks through the key and model prompts and saves the result to
// path. Values already in the file are kept when the answer is empty.
func runSetup(in *bufio.Reader, secret func() (string, error), out io.Writer, path string) error {
	cfg, err := loadFileConfig(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, TitleStyle.Render("chatstream setup"))
	fmt.Fprintln(out, RenderSeparator(30))
	fmt.Fprintln(out, DimStyle.Render("Create a key at https://openrouter.ai/keys"))
	fmt.Fprintln(out)

	// API key
	if cfg.OpenRouter.APIKey != "" {
		fmt.Fprintf(out, "%s%s %s\n", RenderLabel("Current key:"), openrouter.MaskKey(cfg.OpenRouter.APIKey),
			DimStyle.Render("(press Enter to keep)"))
	}
	fmt.Fprint(out, PromptStyle.Render("OpenRouter API key: "))
	key, err := secret()
	if err != nil {
		return NewCommandError("setup", "read key", "could not read the API key", err)
	}
	switch {
	case key != "":
		if !openrouter.LooksLikeAPIKey(key) {
			fmt.Fprintf(out, "%s Key does not look like an OpenRouter key (sk-or-...); saving anyway\n",
				WarningStyle.Render("[WARN]"))
		}
		cfg.OpenRouter.APIKey = key
	case cfg.OpenRouter.APIKey == "":
		return ErrMissingArgument("API key", "sk-or-v1-...")
	}

	// Model
	answer, err := promptLine(in, out, PromptStyle.Render(fmt.Sprintf("Default model [%s]: ", cfg.Chat.Model)))
	if err != nil && !errors.Is(err, io.EOF) {
		return NewCommandError("setup", "read model", "could not read the model", err)
	}
	if answer != "" {
		cfg.Chat.Model = openrouter.ResolveModel(answer)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return NewCommandError("config", "create", "could not create the config directory", err)
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return NewCommandError("config", "save", "could not write the config file", err)
	}
	log.Printf("SETUP_COMPLETE | model=%s key=%s", cfg.Chat.Model, openrouter.KeyFingerprint(cfg.OpenRouter.APIKey))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s Saved %s\n", SuccessStyle.Render("[OK]"), path)
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Key:"), openrouter.MaskKey(cfg.OpenRouter.APIKey))
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Model:"), cfg.Chat.Model)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Try: %s\n", CommandStyle.Render(`chatstream ask "Hello!"`))
	return nil
}
