// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutordeck/tutordeck-tui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleBot:
		return "Tutor"
	default:
		return string(r)
	}
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in a conversation transcript.
//
// A user message is complete and immutable from the moment it is created.
// A bot message starts empty and in flight: fragments are appended through
// AppendFragment until Freeze or Fail is called, after which the content is
// immutable too.
//
// The render loop reads an in-flight message while the response cycle
// goroutine appends to it, so the streaming state carries its own lock.
type Message struct {
	// Identity
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"createdAt"`

	// Content is final once the message is not in flight. Read it through
	// DisplayContent, or directly only after InFlight reports false.
	Content string `json:"content"`

	// Streaming state (not persisted)
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	mu            sync.RWMutex
	inFlight      bool
	streamContent strings.Builder
}

// NewUserMessage creates a complete user message.
func NewUserMessage(conversationID, content string) *Message {
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

// NewBotPlaceholder creates an empty in-flight bot message. Its content is
// filled incrementally as stream fragments arrive.
func NewBotPlaceholder(conversationID string) *Message {
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           RoleBot,
		CreatedAt:      time.Now(),
		inFlight:       true,
	}
}

// NewHistoryMessage restores a message loaded from the backend or the local
// cache. It is never in flight.
func NewHistoryMessage(id, conversationID string, role Role, content string, createdAt time.Time) *Message {
	if id == "" {
		id = uuid.NewString()
	}
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      createdAt,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// InFlight reports whether the message is still receiving stream fragments.
func (m *Message) InFlight() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inFlight
}

// AppendFragment appends a stream fragment to an in-flight bot message.
// Fragments arriving after Freeze or Fail are ignored.
func (m *Message) AppendFragment(fragment string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		m.streamContent.WriteString(fragment)
	}
}

// Freeze completes streaming: the accumulated fragments become the final
// content and the message stops accepting mutation.
func (m *Message) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inFlight {
		return
	}
	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.inFlight = false
}

// Fail freezes the message with replacement content, discarding any fragments
// received before the failure. Used by the failure recovery policy so a
// half-filled answer never survives in the transcript.
func (m *Message) Fail(replacement string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inFlight {
		return
	}
	m.streamContent.Reset()
	m.Content = replacement
	m.inFlight = false
}

// DisplayContent returns the content to render: the live accumulator while
// in flight, the final content afterwards.
func (m *Message) DisplayContent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.inFlight {
		return m.streamContent.String()
	}
	return m.Content
}

// Preview returns a one-line truncated preview of the message content.
func (m *Message) Preview(maxRunes int) string {
	return util.TruncateRunes(util.SingleLine(m.DisplayContent()), maxRunes)
}

// IsEmpty returns true if the message has no content yet.
func (m *Message) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Content) == 0 && m.streamContent.Len() == 0
}
