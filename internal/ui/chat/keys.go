// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/charmbracelet/bubbles/key"

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat interface.
type KeyMap struct {
	Submit      key.Binding
	Cancel      key.Binding
	Quit        key.Binding
	Clear       key.Binding
	Template    key.Binding
	QuickPrompt key.Binding
	Model       key.Binding
	Export      key.Binding
	Copy        key.Binding
	History     key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Help        key.Binding

	// History pane navigation
	Up    key.Binding
	Down  key.Binding
	Load  key.Binding
	Close key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "submit"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "cancel/quit"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("C-q", "quit"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "new conversation"),
		),
		Template: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("C-t", "template"),
		),
		QuickPrompt: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("C-p", "quick prompt"),
		),
		Model: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "next model"),
		),
		Export: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "export"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("C-y", "copy"),
		),
		History: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("C-r", "history"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "more keys"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "previous"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "next"),
		),
		Load: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "load"),
		),
		Close: key.NewBinding(
			key.WithKeys("esc", "ctrl+r"),
			key.WithHelp("Esc", "close"),
		),
	}
}

// ShortHelp returns the bindings shown in the one-line help.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Cancel, k.Clear, k.History, k.Help}
}

// FullHelp returns the bindings shown in the expanded help.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Cancel, k.Quit},
		{k.Clear, k.Template, k.QuickPrompt, k.Model},
		{k.Export, k.Copy, k.History},
		{k.PageUp, k.PageDown, k.Help},
	}
}

// historyKeys is the help shown while the history pane has focus.
type historyKeys struct {
	k KeyMap
}

func (h historyKeys) ShortHelp() []key.Binding {
	return []key.Binding{h.k.Up, h.k.Down, h.k.Load, h.k.Close}
}

func (h historyKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{h.ShortHelp()}
}
