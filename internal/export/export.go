// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders cached conversation transcripts to portable
// formats: Markdown, JSON, and standalone HTML.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tutordeck/tutordeck-tui/internal/model"
	"github.com/tutordeck/tutordeck-tui/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a transcript to one target format.
type Exporter interface {
	// Export renders the transcript and returns the file content.
	Export(transcript *model.Transcript) ([]byte, error)

	// FileExtension returns the output extension (e.g. ".md").
	FileExtension() string
}

// ErrUnknownFormat indicates an unsupported export format name.
var ErrUnknownFormat = errors.New("unknown export format")

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory.
	OutputDir string

	// IncludeTimestamps includes per-message timestamps.
	IncludeTimestamps bool

	// Theme for HTML export: "light" or "dark".
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeTimestamps: true,
		Theme:             "dark",
	}
}

// =============================================================================
// FORMAT SELECTION
// =============================================================================

// ForFormat returns the exporter for a format name: "markdown" (or "md"),
// "json", "html".
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "html":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// ExportToFile renders the transcript and writes it under the output
// directory, returning the file path.
func ExportToFile(exporter Exporter, transcript *model.Transcript, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(transcript)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(opts.OutputDir, exportFileName(transcript)+exporter.FileExtension())
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

// exportFileName builds a filesystem-safe name from the conversation title
// and export time.
func exportFileName(transcript *model.Transcript) string {
	title := transcript.Title()
	var sb strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			sb.WriteByte('-')
		}
	}
	name := strings.Trim(sb.String(), "-")
	if name == "" {
		name = "conversation"
	}
	if len(name) > 40 {
		name = name[:40]
	}
	return fmt.Sprintf("%s-%s", name, time.Now().Format("2006-01-02-150405"))
}

// validateTranscript is the shared precondition for all exporters.
func validateTranscript(transcript *model.Transcript) error {
	if transcript == nil {
		return errors.New("transcript is nil")
	}
	if len(transcript.Messages) == 0 {
		return errors.New("transcript has no messages")
	}
	return nil
}
