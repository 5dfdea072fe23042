// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/storage"
	"github.com/jeranaias/chatstream/internal/util"
)

// FilePrefix and TimestampLayout make up export file names.
const (
	FilePrefix      = "ai_response_"
	TimestampLayout = "20060102_150405"
)

// ErrNothingToExport is returned when the record has no response.
var ErrNothingToExport = errors.New("no response to export")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for response exporters.
type Exporter interface {
	// Export converts a record to the target format and returns the content.
	Export(rec storage.ConversationRecord) ([]byte, error)

	// FileExtension returns the file extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	// Default: current working directory
	OutputDir string

	// IncludeMetadata adds the question, prompts and model to formats that
	// support it. The plain-text format ignores it.
	IncludeMetadata bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:       ".",
		IncludeMetadata: true,
	}
}

// ExporterFor returns the exporter for a format name: "txt" (or empty),
// "md", "json" or "html".
func ExporterFor(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "", "txt", "text":
		return NewTextExporter(opts), nil
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unknown export format %q (use txt, md, json or html)", format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// Filename returns the export file name for a given time and extension.
func Filename(now time.Time, ext string) string {
	return FilePrefix + now.Format(TimestampLayout) + ext
}

// ExportToFile writes rec using exporter and returns the output path.
func ExportToFile(rec storage.ConversationRecord, exporter Exporter, opts *Options, now time.Time) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if strings.TrimSpace(rec.Response) == "" {
		return "", ErrNothingToExport
	}

	content, err := exporter.Export(rec)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	outputPath, err := availablePath(dir, now, exporter.FileExtension())
	if err != nil {
		return "", err
	}
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// maxNameAttempts bounds the numbered names tried within one second.
const maxNameAttempts = 1000

// availablePath returns the export path for now in dir. A name already taken
// by an earlier export in the same second gets a numbered suffix:
// ai_response_20250102_030405_2.txt.
func availablePath(dir string, now time.Time, ext string) (string, error) {
	base := strings.TrimSuffix(Filename(now, ext), ext)
	for n := 1; n <= maxNameAttempts; n++ {
		name := base + ext
		if n > 1 {
			name = fmt.Sprintf("%s_%d%s", base, n, ext)
		}
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("check %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("no free export name for %s%s", base, ext)
}

// ExportText writes the plain-text response file.
func ExportText(rec storage.ConversationRecord, opts *Options, now time.Time) (string, error) {
	return ExportToFile(rec, NewTextExporter(opts), opts, now)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04:05")
}
