// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation's response to a file.
//
// The default artifact is a plain-text file named
// ai_response_YYYYMMDD_HHMMSS.txt holding the response text only. Markdown
// and JSON exporters include the full record (prompts, question, model).
//
// # Key Types
//
//   - Exporter: converts a record to bytes for one format
//   - TextExporter, MarkdownExporter, JSONExporter
//   - Options: output directory and metadata switch
//
// # Usage
//
//	path, err := export.ExportToFile(rec, export.NewTextExporter(nil), nil, time.Now())
//
// Files are written atomically with 0644 permissions.
package export
