// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"

	"github.com/jeranaias/chatstream/internal/storage"
	"github.com/jeranaias/chatstream/internal/util"
)

// highlightStyle is the chroma style used for fenced code.
const highlightStyle = "monokai"

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports a record as a standalone HTML page. Fenced code in the
// response is syntax highlighted with inline styles.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a record to an HTML page.
func (e *HTMLExporter) Export(rec storage.ConversationRecord) ([]byte, error) {
	var sb strings.Builder

	title := util.TruncateRunes(util.SingleLine(rec.Question), 80)
	if title == "" {
		title = "chatstream response"
	}

	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(title))
	sb.WriteString("<style>body{font-family:sans-serif;max-width:50rem;margin:2rem auto;line-height:1.5}" +
		"pre{padding:.75rem;overflow-x:auto;border-radius:4px}.meta{color:#666;font-size:.9rem}</style>\n")
	sb.WriteString("</head>\n<body>\n")

	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "<h2>Question</h2>\n<p>%s</p>\n", paragraph(rec.Question))
		if strings.TrimSpace(rec.SystemPrompt) != "" {
			fmt.Fprintf(&sb, "<p class=\"meta\"><strong>System prompt:</strong> %s</p>\n",
				html.EscapeString(util.SingleLine(rec.SystemPrompt)))
		}
		if strings.TrimSpace(rec.Context) != "" {
			fmt.Fprintf(&sb, "<blockquote>%s</blockquote>\n", paragraph(rec.Context))
		}
		sb.WriteString("<h2>Response</h2>\n")
	}

	if err := writeResponseHTML(&sb, rec.Response); err != nil {
		return nil, err
	}

	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "<p class=\"meta\">%s &middot; %s</p>\n",
			html.EscapeString(rec.Model), formatTimestamp(rec.Timestamp))
	}
	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// writeResponseHTML writes prose blocks as paragraphs and fenced blocks as
// highlighted code.
func writeResponseHTML(sb *strings.Builder, response string) error {
	var (
		prose  []string
		code   []string
		lang   string
		inCode bool
	)

	flushProse := func() {
		text := strings.TrimSpace(strings.Join(prose, "\n"))
		prose = prose[:0]
		if text == "" {
			return
		}
		for _, block := range strings.Split(text, "\n\n") {
			if block = strings.TrimSpace(block); block != "" {
				fmt.Fprintf(sb, "<p>%s</p>\n", paragraph(block))
			}
		}
	}

	for _, line := range strings.Split(strings.TrimRight(response, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inCode {
				if err := highlightHTML(sb, strings.Join(code, "\n"), lang); err != nil {
					return err
				}
				code = code[:0]
				inCode = false
				continue
			}
			flushProse()
			lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			inCode = true
			continue
		}
		if inCode {
			code = append(code, line)
		} else {
			prose = append(prose, line)
		}
	}

	// An unclosed fence still renders as code.
	if inCode {
		if err := highlightHTML(sb, strings.Join(code, "\n"), lang); err != nil {
			return err
		}
	}
	flushProse()
	return nil
}

// highlightHTML writes code as a highlighted <pre> block.
func highlightHTML(sb *strings.Builder, code, language string) error {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get(highlightStyle)
	if style == nil {
		style = chromaStyles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return fmt.Errorf("highlight %s: %w", language, err)
	}
	formatter := chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4))
	if err := formatter.Format(sb, style, iterator); err != nil {
		return fmt.Errorf("highlight %s: %w", language, err)
	}
	sb.WriteString("\n")
	return nil
}

// paragraph escapes text and keeps its line breaks.
func paragraph(s string) string {
	return strings.ReplaceAll(html.EscapeString(strings.TrimSpace(s)), "\n", "<br>\n")
}
