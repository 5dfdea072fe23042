// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import "github.com/jeranaias/chatstream/internal/storage"

// TextExporter writes the response text exactly as received.
type TextExporter struct{}

// NewTextExporter creates a plain-text exporter. Options are accepted for
// consistency with the other exporters.
func NewTextExporter(_ *Options) *TextExporter {
	return &TextExporter{}
}

// Export returns the response bytes.
func (e *TextExporter) Export(rec storage.ConversationRecord) ([]byte, error) {
	return []byte(rec.Response), nil
}

// FileExtension returns the file extension for plain text.
func (e *TextExporter) FileExtension() string {
	return ".txt"
}

// MimeType returns the MIME type for plain text.
func (e *TextExporter) MimeType() string {
	return "text/plain; charset=utf-8"
}
