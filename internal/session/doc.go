// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the application state of a chat session.
//
// State is the single owner of the current conversation, the question being
// composed, the history list and the active settings. Every surface (TUI,
// REPL, web page) mutates it only through its command methods, so there are
// no package-level variables to keep in sync.
//
// # Key Types
//
//   - State: mutex-guarded session state and its commands
//   - Settings: model, sampling parameters, prompts and behavior flags
//   - Template: a named system prompt preset
//   - QuickPrompt: a named question starter
//
// # Usage
//
//	history, _ := storage.NewHistoryStore()
//	st := session.NewState(session.SettingsFromConfig(cfg), client, history)
//
//	rec, err := st.Submit(ctx, "Explain goroutines", func(delta string) {
//	    fmt.Print(delta)
//	})
//
// Only one submission runs at a time; a concurrent Submit returns ErrBusy.
// A failed or cancelled submission records nothing.
package session
