// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import "time"

// Wire payloads for the tutordeck backend. Every response is decoded into an
// explicit struct at the transport boundary; nothing downstream handles raw
// JSON blobs.

// =============================================================================
// CHAT PAYLOADS
// =============================================================================

// MessagePayload is one transcript entry as the backend returns it.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	Sender         string    `json:"sender"` // "user" or "bot"
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationPayload is the response of GET /chat/{chatId}: conversation
// metadata plus the historical messages in transcript order.
type ConversationPayload struct {
	ID       string           `json:"id"`
	BotID    string           `json:"botId"`
	BotName  string           `json:"botName"`
	Title    string           `json:"title,omitempty"`
	UserID   string           `json:"userId"`
	Messages []MessagePayload `json:"messages"`
}

// GenerateRequest is the body of POST /chat/{chatId}/generate.
// UserMessage carries the submitted text; BotMessage is the placeholder
// identifier the backend persists the generated reply under.
type GenerateRequest struct {
	UserMessage string `json:"userMessage"`
	BotMessage  string `json:"botMessage"`
}

// =============================================================================
// AUTH PAYLOADS
// =============================================================================

// LoginRequest is the body of the POST /auth/*-login endpoints.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the body of the POST /auth/*-signup endpoints.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and signup: the bearer token plus the
// role payload for whichever side authenticated.
type AuthResponse struct {
	AccessToken string             `json:"accessToken"`
	Student     *StudentPayload    `json:"student,omitempty"`
	Instructor  *InstructorPayload `json:"instructor,omitempty"`
}

// =============================================================================
// PROFILE PAYLOADS
// =============================================================================

// StudentPayload is the student profile (GET /student/me).
type StudentPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// InstructorPayload is the instructor profile (GET /instructor/me).
type InstructorPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	AvatarURL   string   `json:"avatarUrl,omitempty"`
	Headline    string   `json:"headline,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	Subjects    []string `json:"subjects,omitempty"`
	HourlyRate  int      `json:"hourlyRate,omitempty"`
	TOTPEnabled bool     `json:"totpEnabled,omitempty"`
}

// =============================================================================
// ERROR PAYLOAD
// =============================================================================

// errorPayload is the backend's structured error body. Either field may be
// absent; extraction is best effort.
type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
