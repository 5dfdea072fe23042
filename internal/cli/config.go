// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and modify configuration
// Aliases: cfg
//
// Subcommands:
//   show (default)      Display current configuration (API key masked)
//   get <key>           Print one value
//   set <key> <value>   Set a configuration value
//   keys                List settable keys
//   reset               Reset to default configuration (keeps the API key)
//   path                Show configuration file path
//
// Examples:
//   chatstream config
//   chatstream config set chat.model anthropic/claude-3.5-sonnet
//   chatstream config set chat.temperature 0.3
//   chatstream config get chat.max_tokens
//
// "show" prints the effective configuration, environment overrides
// included. "set" edits the file only, so environment values never leak
// into it.

package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/openrouter"
)

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	path, err := config.ConfigPath()
	if err != nil {
		return NewCommandError("config", "locate", "could not resolve the config path", err)
	}
	return runConfig(args, path, os.Stdout)
}

func runConfig(args Args, path string, out io.Writer) error {
	switch args.Subcommand {
	case "", "show":
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n\n", DimStyle.Render("#"), DimStyle.Render(path))
		fmt.Fprint(out, cfg.String())
		return nil

	case "get":
		if args.ConfigKey == "" {
			return ErrMissingArgument("key", "chatstream config get chat.model")
		}
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return err
		}
		v, err := cfg.Get(args.ConfigKey)
		if err != nil {
			return NewValidationErrorWithExample("key", args.ConfigKey, err.Error(), "chatstream config keys")
		}
		if args.ConfigKey == "openrouter.api_key" {
			v = openrouter.MaskKey(cfg.OpenRouter.APIKey)
		}
		fmt.Fprintln(out, v)
		return nil

	case "set":
		return configSet(path, args.ConfigKey, args.ConfigVal, out)

	case "keys":
		for _, k := range config.AllKeys() {
			fmt.Fprintln(out, k)
		}
		return nil

	case "reset":
		old, err := loadFileConfig(path)
		if err != nil {
			return err
		}
		cfg := config.Default()
		cfg.OpenRouter.APIKey = old.OpenRouter.APIKey
		if err := saveFileConfig(cfg, path); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Configuration reset to defaults\n", SuccessStyle.Render("[OK]"))
		return nil

	case "path":
		fmt.Fprintln(out, path)
		return nil

	default:
		return NewValidationErrorWithExample("config subcommand", args.Subcommand, "unknown subcommand", "show, get, set, keys, reset, path")
	}
}

// configSet updates one key in the file at path.
func configSet(path, key, value string, out io.Writer) error {
	if key == "" {
		return ErrMissingArgument("key", "chatstream config set chat.model openai/gpt-4o")
	}
	cfg, err := loadFileConfig(path)
	if err != nil {
		return err
	}

	if key == "chat.model" {
		value = openrouter.ResolveModel(value)
	}
	if err := cfg.Set(key, value); err != nil {
		return NewCommandError("config", "set", fmt.Sprintf("could not set %s", key), err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := saveFileConfig(cfg, path); err != nil {
		return err
	}
	log.Printf("CONFIG_SET | key=%s", key)

	shown := value
	if key == "openrouter.api_key" {
		shown = openrouter.MaskKey(value)
	}
	fmt.Fprintf(out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, shown)
	return nil
}

// loadFileConfig reads the config file over the defaults without applying
// environment overrides. A missing file yields the defaults.
func loadFileConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return nil, NewCommandError("config", "load", "could not read "+path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, NewCommandError("config", "load", "could not read "+path, err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

func saveFileConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return NewCommandError("config", "save", "could not create the config directory", err)
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return NewCommandError("config", "save", "could not write "+path, err)
	}
	return nil
}
