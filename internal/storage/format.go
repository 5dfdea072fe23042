// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"strings"

	"github.com/jeranaias/chatstream/internal/util"
)

// FormatHistoryList renders records as a numbered table, one line each.
// Callers pass records in display order (usually Recent).
func FormatHistoryList(records []ConversationRecord) string {
	if len(records) == 0 {
		return "No conversations yet."
	}

	var sb strings.Builder
	sb.WriteString("Recent Conversations\n")
	sb.WriteString(strings.Repeat("=", 72))
	sb.WriteString("\n\n")

	for i, rec := range records {
		// UNICODE: pad by display width so CJK questions line up
		question := rec.QuestionPreview()
		pad := QuestionPreviewWidth - util.StringWidth(question)
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(&sb, "  %2d. %s%s  %s\n", i+1, question, strings.Repeat(" ", pad), rec.DateLabel())
	}
	return sb.String()
}
