// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for the chatstream CLI.
//
// An answer written to a terminal is rendered as markdown; an answer piped to
// another program is written raw, delta by delta, with no escape sequences.
// NO_COLOR and FORCE_COLOR are honored.

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jeranaias/chatstream/internal/config"
)

const (
	fallbackWidth  = 80
	narrowestWidth = 40

	// MaxRenderWidth caps markdown word wrap on very wide terminals.
	MaxRenderWidth = 120
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// OUTPUT MODE
// =============================================================================

// outputMode is how ask and chat write answers for the current terminal.
type outputMode struct {
	Markdown bool // stdout is a terminal and rendering is on
	Progress bool // stderr can show a live character counter
	Width    int  // markdown word wrap
}

// detectOutput resolves the output mode from the flags, the [ui] config
// section and the attached terminals.
func detectOutput(args Args, cfg *config.Config) outputMode {
	return outputMode{
		Markdown: !args.Plain && cfg.UI.Markdown && isTerminal(os.Stdout),
		Progress: !args.Quiet && isTerminal(os.Stderr),
		Width:    RenderWidth(),
	}
}

// RenderWidth is the word-wrap width for rendered markdown: the stdout
// width less a margin, between narrowestWidth and MaxRenderWidth.
func RenderWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = fallbackWidth
	}
	return min(max(width, narrowestWidth)-2, MaxRenderWidth)
}

// =============================================================================
// COLOR
// =============================================================================

var colorProfile = sync.OnceValue(func() termenv.Profile {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return termenv.Ascii
	case os.Getenv("FORCE_COLOR") != "":
		return termenv.ColorProfile()
	case !isTerminal(os.Stdout):
		return termenv.Ascii
	default:
		return termenv.ColorProfile()
	}
})

// GetColorProfile returns the termenv profile for CLI output. Piped output
// and NO_COLOR get Ascii.
func GetColorProfile() termenv.Profile {
	return colorProfile()
}

// =============================================================================
// INTERACTIVE COMMANDS
// =============================================================================

// TTYRequiredError is returned by commands that prompt when stdin is not a
// terminal.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	return "stdin is not a terminal; " + e.Operation + " needs an interactive session"
}

// RequiresTTY fails with *TTYRequiredError unless stdin is a terminal.
func RequiresTTY(operation string) error {
	if isTerminal(os.Stdin) {
		return nil
	}
	return &TTYRequiredError{Operation: operation}
}
