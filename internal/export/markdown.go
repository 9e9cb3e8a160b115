// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/tutordeck/tutordeck-tui/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// Export renders the transcript to Markdown with YAML frontmatter.
func (e *MarkdownExporter) Export(transcript *model.Transcript) ([]byte, error) {
	if err := validateTranscript(transcript); err != nil {
		return nil, err
	}

	var sb strings.Builder

	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(transcript.Title())))
	sb.WriteString(fmt.Sprintf("tutor: %s\n", escapeYAML(transcript.Conversation.BotName)))
	sb.WriteString(fmt.Sprintf("conversation: %s\n", transcript.Conversation.ID))
	sb.WriteString(fmt.Sprintf("messages: %d\n", len(transcript.Messages)))
	sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
	sb.WriteString("generator: tutordeck\n")
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("# %s\n\n", transcript.Title()))

	for i, msg := range transcript.Messages {
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n",
				msg.Role.DisplayName(), msg.CreatedAt.Format("2006-01-02 15:04")))
		} else {
			sb.WriteString(fmt.Sprintf("### %s\n\n", msg.Role.DisplayName()))
		}

		sb.WriteString(msg.DisplayContent())
		sb.WriteString("\n\n")

		if i < len(transcript.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// escapeYAML quotes a value when it could break frontmatter parsing.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`") || strings.TrimSpace(s) != s {
		return fmt.Sprintf("%q", s)
	}
	return s
}
