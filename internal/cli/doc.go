// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the non-TUI commands.
//
// # Key Types
//
//   - Command: Enumeration of the CLI commands
//   - Args: Parsed global flags and command arguments
//   - Runtime: Config, client, session state and history for one run
//   - REPL: The interactive chat loop behind "chat"
//
// # Usage
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdAsk:
//	    cli.Exit(cli.HandleAskCommand(args))
//	case cli.CmdChat:
//	    cli.Exit(cli.HandleChatCommand(args))
//	// ... other commands
//	}
//
// # Commands Overview
//
//   - ask: One question, streamed to stdout
//   - chat: Interactive chat with slash commands
//   - serve: Local web page
//   - models: List OpenRouter models
//   - setup: Store the API key
//   - config: Show and edit the config file
//
// Errors are shown with DisplayError and mapped to exit codes by
// GetExitCode, so every command fails the same way.
package cli
