// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation identifies one chat thread between a student and a subject bot.
// The identifiers are immutable for the lifetime of the view; navigating to a
// different conversation replaces the whole value.
type Conversation struct {
	ID      string `json:"id"`
	BotID   string `json:"botId"`
	BotName string `json:"botName"`
	Title   string `json:"title,omitempty"`
	UserID  string `json:"userId"`
}

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript holds a conversation and its ordered, append-only message list.
//
// Ordering invariant: messages are never reordered or deleted once appended.
// Only the most recently appended bot message may be mutated, and only while
// it is in flight.
type Transcript struct {
	Conversation Conversation
	Messages     []*Message

	UpdatedAt time.Time
}

// NewTranscript creates an empty transcript for a conversation.
func NewTranscript(conv Conversation) *Transcript {
	return &Transcript{
		Conversation: conv,
		Messages:     make([]*Message, 0),
		UpdatedAt:    time.Now(),
	}
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(msg *Message) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now()
}

// AppendUserMessage creates and appends a user message.
func (t *Transcript) AppendUserMessage(content string) *Message {
	msg := NewUserMessage(t.Conversation.ID, content)
	t.Append(msg)
	return msg
}

// AppendBotPlaceholder creates and appends an empty in-flight bot message.
func (t *Transcript) AppendBotPlaceholder() *Message {
	msg := NewBotPlaceholder(t.Conversation.ID)
	t.Append(msg)
	return msg
}

// MessageByID returns the message with the given ID, or nil.
//
// Reconciliation addresses the in-flight placeholder by identity, never by
// position: messages appended by unrelated activity mid-stream must not
// divert fragments onto the wrong entry.
func (t *Transcript) MessageByID(id string) *Message {
	for _, msg := range t.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// LastMessage returns the most recent message, or nil if empty.
func (t *Transcript) LastMessage() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return t.Messages[len(t.Messages)-1]
}

// MessageCount returns the number of messages.
func (t *Transcript) MessageCount() int {
	return len(t.Messages)
}

// IsEmpty returns true if there are no messages.
func (t *Transcript) IsEmpty() bool {
	return len(t.Messages) == 0
}

// Title returns the conversation title, falling back to the first user
// message preview, then the bot name.
func (t *Transcript) Title() string {
	if t.Conversation.Title != "" {
		return t.Conversation.Title
	}
	for _, msg := range t.Messages {
		if msg.Role == RoleUser && !msg.IsEmpty() {
			return msg.Preview(50)
		}
	}
	if t.Conversation.BotName != "" {
		return t.Conversation.BotName
	}
	return "New Conversation"
}

// Preview returns a short one-line preview of the transcript.
func (t *Transcript) Preview() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleUser {
			return t.Messages[i].Preview(80)
		}
	}
	if len(t.Messages) > 0 {
		return t.Messages[0].Preview(80)
	}
	return "Empty conversation"
}
