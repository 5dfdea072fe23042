// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"log"
	"sync"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	rendererMu    sync.Mutex
	renderer      *glamour.TermRenderer
	rendererWidth int
)

// renderMarkdown renders content for terminal display at the given wrap
// width. The original content is returned if rendering fails.
func renderMarkdown(content string, width int) string {
	rendererMu.Lock()
	defer rendererMu.Unlock()

	if renderer == nil || width != rendererWidth {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			log.Printf("MARKDOWN_RENDERER_FAILED | error=%v", err)
			return content
		}
		renderer, rendererWidth = r, width
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
