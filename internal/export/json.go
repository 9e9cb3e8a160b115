// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/tutordeck/tutordeck-tui/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter renders transcripts to machine-readable JSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string { return ".json" }

// jsonDocument is the export envelope.
type jsonDocument struct {
	Conversation model.Conversation `json:"conversation"`
	Title        string             `json:"title"`
	ExportedAt   time.Time          `json:"exportedAt"`
	Generator    string             `json:"generator"`
	Messages     []jsonMessage      `json:"messages"`
}

type jsonMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Export renders the transcript as indented JSON.
func (e *JSONExporter) Export(transcript *model.Transcript) ([]byte, error) {
	if err := validateTranscript(transcript); err != nil {
		return nil, err
	}

	doc := jsonDocument{
		Conversation: transcript.Conversation,
		Title:        transcript.Title(),
		ExportedAt:   time.Now(),
		Generator:    "tutordeck",
		Messages:     make([]jsonMessage, 0, len(transcript.Messages)),
	}
	for _, msg := range transcript.Messages {
		doc.Messages = append(doc.Messages, jsonMessage{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Content:   msg.DisplayContent(),
			CreatedAt: msg.CreatedAt,
		})
	}

	return json.MarshalIndent(doc, "", "  ")
}
