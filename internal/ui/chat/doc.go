// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen terminal interface for chatstream.

The Model is a Bubble Tea model over a session.State. It renders one
question and its streamed response, a composer, a status line and an
optional history pane listing the ten most recent conversations.

# Key Components

## Model (model.go)

Holds widgets (textarea, viewport, spinner, help) and view state. All
conversation data lives in session.State; the model only mirrors it.

## Streaming (streaming.go)

Deltas from the submission goroutine land in a StreamingBuffer. A 30fps
tick flushes it into the viewport, so rendering cost does not scale with
the token rate. Markdown is rendered with glamour once the stream ends.

## Keys (keys.go)

	Enter       submit            Alt+Enter  newline
	Ctrl+C      cancel / quit     Ctrl+L     new conversation
	Ctrl+T      next template     Ctrl+P     next quick prompt
	Ctrl+N      next model        Ctrl+S     export response
	Ctrl+Y      copy response     Ctrl+R     toggle history
	PgUp/PgDn   scroll response

# Usage

	m := chat.New(chat.Options{State: st, Theme: styles.NewTheme()})
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
*/
package chat
