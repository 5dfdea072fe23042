// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"log"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// markdownRenderer renders completed responses with glamour. The glamour
// renderer is rebuilt only when the wrap width changes.
type markdownRenderer struct {
	enabled bool
	style   string
	width   int
	tr      *glamour.TermRenderer
}

func newMarkdownRenderer(enabled, dark bool) *markdownRenderer {
	style := "light"
	if dark {
		style = "dark"
	}
	return &markdownRenderer{enabled: enabled, style: style}
}

// Render returns text formatted for width columns. It falls back to plain
// wrapping when markdown is disabled or glamour fails.
func (r *markdownRenderer) Render(text string, width int) string {
	if width < 10 {
		width = 10
	}
	if !r.enabled || strings.TrimSpace(text) == "" {
		return wrapPlain(text, width)
	}
	if r.tr == nil || r.width != width {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			log.Printf("MARKDOWN_RENDERER_FAILED | error=%v", err)
			r.enabled = false
			return wrapPlain(text, width)
		}
		r.tr, r.width = tr, width
	}
	out, err := r.tr.Render(text)
	if err != nil {
		return wrapPlain(text, width)
	}
	return strings.Trim(out, "\n")
}

// wrapPlain soft-wraps text to width columns.
func wrapPlain(text string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(text)
}
