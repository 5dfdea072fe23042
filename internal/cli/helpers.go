// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared helper functions for CLI commands.

package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// inputMu serializes prompts that share one reader.
var inputMu sync.Mutex

// promptLine prints prompt to w and reads one trimmed line from r.
func promptLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	inputMu.Lock()
	defer inputMu.Unlock()

	fmt.Fprint(w, prompt)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// formatNumber formats an integer with thousands separators.
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// joinQuoted joins names as "a", "b", "c".
func joinQuoted(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
