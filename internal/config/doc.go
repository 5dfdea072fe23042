// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatstream.
//
// Configuration is read from ~/.chatstream/config.toml (CHATSTREAM_HOME moves
// the directory), then .env files, then environment overrides.
//
// # Key Types
//
//   - Config: complete configuration with openrouter, chat, ui and server sections
//   - Watcher: reloads the config file when it changes on disk
//   - ValidateErrors: every problem Validate found, joined
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	_ = cfg.Set("chat.temperature", "0.2")
//	err = config.Save(cfg)
//
// # Environment Variables
//
//   - OPENROUTER_API_KEY: API key
//   - CHATSTREAM_MODEL: default model (aliases such as "sonnet" are expanded)
//   - CHATSTREAM_BASE_URL: API base URL
//   - CHATSTREAM_ADDR: listen address for the web page
//   - CHATSTREAM_HOME: configuration directory
package config
