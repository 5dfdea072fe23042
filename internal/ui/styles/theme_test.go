// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestNewThemeStylesRender(t *testing.T) {
	theme := NewTheme()
	if theme == nil {
		t.Fatal("NewTheme() returned nil")
	}

	styles := []struct {
		name  string
		style lipgloss.Style
	}{
		{"Header", theme.Header},
		{"QuestionBox", theme.QuestionBox},
		{"ResponseBox", theme.ResponseBox},
		{"InputContainer", theme.InputContainer},
		{"StatusBar", theme.StatusBar},
		{"HistoryPane", theme.HistoryPane},
		{"ErrorBox", theme.ErrorBox},
	}
	for _, s := range styles {
		if !strings.Contains(s.style.Render("test"), "test") {
			t.Errorf("%s style lost its content", s.name)
		}
	}
}

func TestGetLayoutMode(t *testing.T) {
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{59, LayoutNarrow},
		{60, LayoutMedium},
		{99, LayoutMedium},
		{100, LayoutWide},
		{200, LayoutWide},
	}
	theme := NewTheme()
	for _, tt := range tests {
		theme.SetSize(tt.width, 40)
		if got := theme.GetLayoutMode(); got != tt.want {
			t.Errorf("width %d: GetLayoutMode() = %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestRenderStatusIndicators(t *testing.T) {
	tests := []struct {
		render    func(string) string
		indicator string
	}{
		{RenderSuccess, "[OK]"},
		{RenderError, "[X]"},
		{RenderWarning, "[!]"},
		{RenderInfo, "[i]"},
	}
	for _, tt := range tests {
		out := tt.render("message")
		if !strings.Contains(out, tt.indicator) || !strings.Contains(out, "message") {
			t.Errorf("rendered %q, want indicator %s and message", out, tt.indicator)
		}
	}
}
