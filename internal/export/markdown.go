// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/storage"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports a record as a Markdown document.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a record to Markdown format.
func (e *MarkdownExporter) Export(rec storage.ConversationRecord) ([]byte, error) {
	var sb strings.Builder

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(util.TruncateRunes(util.SingleLine(rec.Question), 80)))
		if rec.Model != "" {
			fmt.Fprintf(&sb, "model: %s\n", rec.Model)
		}
		if !rec.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "date: %s\n", rec.Timestamp.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "words: %d\n", util.WordCount(rec.Response))
		sb.WriteString("generator: chatstream\n")
		sb.WriteString("---\n\n")

		sb.WriteString("## Question\n\n")
		sb.WriteString(strings.TrimSpace(rec.Question))
		sb.WriteString("\n\n")

		if strings.TrimSpace(rec.SystemPrompt) != "" {
			sb.WriteString("**System prompt**: ")
			sb.WriteString(escapeMarkdown(util.SingleLine(rec.SystemPrompt)))
			sb.WriteString("\n\n")
		}
		if strings.TrimSpace(rec.Context) != "" {
			sb.WriteString("**Context**:\n\n")
			sb.WriteString(quote(rec.Context))
			sb.WriteString("\n\n")
		}
		sb.WriteString("## Response\n\n")
	}

	// Response is already Markdown from the model
	sb.WriteString(strings.TrimSpace(rec.Response))
	sb.WriteString("\n")

	if e.options.IncludeMetadata {
		sb.WriteString("\n---\n\n")
		fmt.Fprintf(&sb, "*Exported from chatstream, answered %s*\n", formatTimestamp(rec.Timestamp))
	}
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// quote prefixes every line with a Markdown blockquote marker.
func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes a YAML scalar when it contains special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
