// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the conversation state of a tutoring session.
//
// A Session is the sole mutator of its transcript. Sending a message appends
// a user message and an empty bot placeholder, then runs the generation
// pipeline on a goroutine: fragments stream into the placeholder, addressed
// by message ID, until the stream completes, fails, or is cancelled. The
// surrounding UI observes mutations through a Notifier and never touches the
// transcript directly.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/tutordeck/tutordeck-tui/internal/api"
	"github.com/tutordeck/tutordeck-tui/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// FailureNotice replaces the placeholder content when a response cycle
// fails. It is a full replacement: partial fragments are discarded, never
// shown alongside it.
const FailureNotice = "Sorry, I ran into an error. Please try again."

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyMessage indicates a send of empty or whitespace-only text.
	// Nothing is mutated and nothing hits the network.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotLoaded indicates Send before a conversation was loaded or begun.
	// This is a caller bug, not a user-facing condition.
	ErrNotLoaded = errors.New("no conversation loaded")

	// ErrBusy indicates a send or load while a response cycle is in flight.
	// Overlapping sends are rejected, not queued.
	ErrBusy = errors.New("a response is already in progress")
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Backend is the slice of the transport client the session depends on.
// *api.Client satisfies it; tests supply fakes.
type Backend interface {
	FetchConversation(ctx context.Context, conversationID string) (*api.ConversationPayload, error)
	Generate(ctx context.Context, conversationID string, req api.GenerateRequest) (<-chan api.Fragment, error)
}

// Notifier receives session events. Implementations must be safe to call
// from the pipeline goroutine; the Bubble Tea UI forwards these as program
// messages, tests use a recorder.
type Notifier interface {
	// TranscriptUpdated fires after any transcript mutation.
	TranscriptUpdated()

	// StreamEnded fires once per response cycle when the placeholder is
	// final. err is nil on natural completion, the context error on
	// cancellation, and the failure cause otherwise.
	StreamEnded(messageID string, err error)

	// Toast surfaces a transient user-facing notice.
	Toast(message string)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) TranscriptUpdated()        {}
func (NopNotifier) StreamEnded(string, error) {}
func (NopNotifier) Toast(string)              {}

// =============================================================================
// SESSION
// =============================================================================

// Session holds one conversation's transcript and drives response cycles.
// All methods are safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	backend  Backend
	notifier Notifier

	transcript *model.Transcript
	awaiting   bool

	// cancel aborts the active response cycle; nil when idle.
	cancel context.CancelFunc
}

// NewSession creates a session over the given backend. notifier may be nil.
func NewSession(backend Backend, notifier Notifier) *Session {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Session{
		backend:  backend,
		notifier: notifier,
	}
}

// SetNotifier replaces the notifier. The UI installs its bridge when a
// program starts and removes it on exit, which can overlap a cycle that is
// still winding down; cycles therefore re-read the field under the session
// lock on every event.
func (s *Session) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// notify returns the current notifier under the lock. Events are emitted
// outside the lock so notifier implementations may call back into the
// session.
func (s *Session) notify() Notifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifier
}

// Awaiting reports whether a response cycle is in flight.
func (s *Session) Awaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting
}

// Loaded reports whether a conversation is present.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript != nil
}

// Conversation returns the loaded conversation metadata, zero if none.
func (s *Session) Conversation() model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcript == nil {
		return model.Conversation{}
	}
	return s.transcript.Conversation
}

// Messages returns a snapshot of the transcript ordering. The messages
// themselves are shared; the slice is the caller's.
func (s *Session) Messages() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcript == nil {
		return nil
	}
	out := make([]*model.Message, len(s.transcript.Messages))
	copy(out, s.transcript.Messages)
	return out
}

// Transcript returns the live transcript, nil if none is loaded. Intended
// for persistence and export after a cycle ends.
func (s *Session) Transcript() *model.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// =============================================================================
// LOAD / BEGIN
// =============================================================================

// Begin installs a fresh, empty conversation without a network round trip.
// Used when the user opens a chat that has no server-side history yet.
func (s *Session) Begin(conv model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaiting {
		return ErrBusy
	}
	s.transcript = model.NewTranscript(conv)
	return nil
}

// Load fetches a conversation and its history and makes it the session's
// transcript. Load is idempotent: loading the same conversation again
// replaces the transcript wholesale, never duplicating history. On failure
// the existing state is untouched and the error is surfaced as a toast.
func (s *Session) Load(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if s.awaiting {
		s.mu.Unlock()
		return ErrBusy
	}
	s.mu.Unlock()

	payload, err := s.backend.FetchConversation(ctx, conversationID)
	if err != nil {
		s.notify().Toast("Failed to load conversation")
		return fmt.Errorf("load conversation %s: %w", conversationID, err)
	}

	transcript := transcriptFromPayload(payload)

	s.mu.Lock()
	if s.awaiting {
		// A cycle started while we were fetching; don't yank the
		// transcript out from under it.
		s.mu.Unlock()
		return ErrBusy
	}
	s.transcript = transcript
	s.mu.Unlock()

	s.notify().TranscriptUpdated()
	return nil
}

// transcriptFromPayload builds a fresh transcript from the wire payload.
// Rebuilding from scratch is what makes Load idempotent.
func transcriptFromPayload(payload *api.ConversationPayload) *model.Transcript {
	transcript := model.NewTranscript(model.Conversation{
		ID:      payload.ID,
		BotID:   payload.BotID,
		BotName: payload.BotName,
		Title:   payload.Title,
		UserID:  payload.UserID,
	})
	for _, m := range payload.Messages {
		role := model.RoleBot
		if m.Sender == string(model.RoleUser) {
			role = model.RoleUser
		}
		transcript.Append(model.NewHistoryMessage(m.ID, m.ConversationID, role, m.Content, m.CreatedAt))
	}
	return transcript
}

// =============================================================================
// SEND
// =============================================================================

// Send submits user text and starts a response cycle. It returns after the
// user message and bot placeholder are appended; the stream runs on a
// goroutine. Empty or whitespace-only text is a no-op returning
// ErrEmptyMessage. A send while a cycle is in flight returns ErrBusy.
func (s *Session) Send(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.transcript == nil {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if s.awaiting {
		s.mu.Unlock()
		return ErrBusy
	}

	conversationID := s.transcript.Conversation.ID
	userMsg := s.transcript.AppendUserMessage(trimmed)
	placeholder := s.transcript.AppendBotPlaceholder()

	cycleCtx, cancel := context.WithCancel(ctx)
	s.awaiting = true
	s.cancel = cancel
	s.mu.Unlock()

	s.notify().TranscriptUpdated()

	go s.runCycle(cycleCtx, conversationID, userMsg.Content, placeholder.ID)
	return nil
}

// Cancel aborts the active response cycle, if any. The placeholder freezes
// with whatever content already arrived; no error text, no toast. Safe to
// call when idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// RESPONSE CYCLE
// =============================================================================

// runCycle drives one generation stream into the placeholder message.
// RELIABILITY: a panic anywhere in the cycle is converted into the normal
// failure path rather than crashing the view loop.
func (s *Session) runCycle(ctx context.Context, conversationID, userText, placeholderID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("chat: response cycle panic: %v", r)
			s.failCycle(placeholderID, fmt.Errorf("response cycle panic: %v", r))
		}
	}()

	fragments, err := s.backend.Generate(ctx, conversationID, api.GenerateRequest{
		UserMessage: userText,
		BotMessage:  placeholderID,
	})
	if err != nil {
		if ctx.Err() != nil {
			s.freezeCycle(placeholderID, ctx.Err())
			return
		}
		s.failCycle(placeholderID, err)
		return
	}

	for frag := range fragments {
		if frag.Err != nil {
			if errors.Is(frag.Err, context.Canceled) || errors.Is(frag.Err, context.DeadlineExceeded) {
				s.freezeCycle(placeholderID, frag.Err)
			} else {
				s.failCycle(placeholderID, frag.Err)
			}
			return
		}
		if !s.applyFragment(ctx, placeholderID, frag.Text) {
			s.freezeCycle(placeholderID, ctx.Err())
			return
		}
	}

	// A cancelled stream may close without a terminal fragment; that is a
	// freeze, not a completion.
	if ctx.Err() != nil {
		s.freezeCycle(placeholderID, ctx.Err())
		return
	}

	// Natural end of stream.
	s.completeCycle(placeholderID)
}

// applyFragment appends one fragment to the placeholder, located by ID so
// unrelated appends mid-stream cannot divert it. Returns false when the
// cycle's context was cancelled, in which case nothing was mutated.
func (s *Session) applyFragment(ctx context.Context, placeholderID, text string) bool {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if msg := s.transcript.MessageByID(placeholderID); msg != nil {
		msg.AppendFragment(text)
	}
	s.mu.Unlock()

	s.notify().TranscriptUpdated()
	return true
}

// completeCycle freezes the placeholder with the accumulated content.
func (s *Session) completeCycle(placeholderID string) {
	s.mu.Lock()
	if msg := s.transcript.MessageByID(placeholderID); msg != nil {
		msg.Freeze()
	}
	s.awaiting = false
	s.cancel = nil
	s.mu.Unlock()

	s.notify().TranscriptUpdated()
	s.notify().StreamEnded(placeholderID, nil)
}

// freezeCycle ends a cancelled cycle silently: partial content stays as-is,
// no error text, no toast.
func (s *Session) freezeCycle(placeholderID string, cause error) {
	s.mu.Lock()
	if msg := s.transcript.MessageByID(placeholderID); msg != nil {
		msg.Freeze()
	}
	s.awaiting = false
	s.cancel = nil
	s.mu.Unlock()

	s.notify().TranscriptUpdated()
	s.notify().StreamEnded(placeholderID, cause)
}

// failCycle replaces the placeholder content with the fixed failure notice.
// Partial fragments are discarded; the user sees the notice alone.
func (s *Session) failCycle(placeholderID string, cause error) {
	log.Printf("chat: response cycle failed: %v", cause)

	s.mu.Lock()
	if msg := s.transcript.MessageByID(placeholderID); msg != nil {
		msg.Fail(FailureNotice)
	}
	s.awaiting = false
	s.cancel = nil
	s.mu.Unlock()

	s.notify().TranscriptUpdated()
	s.notify().StreamEnded(placeholderID, cause)
	s.notify().Toast("The tutor could not respond")
}
