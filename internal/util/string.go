// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"
)

// Ellipsis is appended to truncated display strings.
const Ellipsis = "..."

// UNICODE: Truncation works on composed characters so that an accent is
// never split from its base letter.

// TruncateRunes truncates s to at most maxRunes characters, ending with
// Ellipsis when something was cut.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(norm.NFC.String(s))
	if len(runes) <= maxRunes {
		return string(runes)
	}
	if maxRunes <= len(Ellipsis) {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-len(Ellipsis)]) + Ellipsis
}

// TruncateWidth truncates s to at most maxWidth terminal columns.
// Wide characters (CJK, most emoji) count as two columns.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	s = norm.NFC.String(s)
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(Ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, Ellipsis)
}

// StringWidth returns the display width of s in terminal columns.
func StringWidth(s string) int {
	return runewidth.StringWidth(norm.NFC.String(s))
}

// SingleLine collapses all whitespace runs, including newlines, to one space.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
