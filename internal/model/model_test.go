// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage_Complete(t *testing.T) {
	msg := NewUserMessage("conv-1", "What is a hash map?")

	if msg.ID == "" {
		t.Fatal("Expected generated ID")
	}
	if msg.Role != RoleUser {
		t.Errorf("Expected role user, got %s", msg.Role)
	}
	if msg.InFlight() {
		t.Error("User messages must never be in flight")
	}
	if msg.Content != "What is a hash map?" {
		t.Errorf("Unexpected content: %q", msg.Content)
	}
}

func TestBotPlaceholder_StreamLifecycle(t *testing.T) {
	msg := NewBotPlaceholder("conv-1")

	if !msg.InFlight() {
		t.Fatal("Placeholder should start in flight")
	}
	if !msg.IsEmpty() {
		t.Error("Placeholder should start empty")
	}

	msg.AppendFragment("A ")
	msg.AppendFragment("hash ")
	msg.AppendFragment("map.")

	if msg.DisplayContent() != "A hash map." {
		t.Errorf("Expected accumulated content, got %q", msg.DisplayContent())
	}

	msg.Freeze()
	if msg.InFlight() {
		t.Error("Freeze should end streaming")
	}
	if msg.Content != "A hash map." {
		t.Errorf("Frozen content = %q", msg.Content)
	}

	// Fragments after freeze are ignored.
	msg.AppendFragment(" extra")
	if msg.Content != "A hash map." {
		t.Errorf("Frozen message mutated: %q", msg.Content)
	}
}

func TestBotPlaceholder_FailReplacesContent(t *testing.T) {
	msg := NewBotPlaceholder("conv-1")
	msg.AppendFragment("Sure, ")

	msg.Fail("Sorry, I ran into an error. Please try again.")

	// Full replacement, not partial-plus-suffix.
	if msg.Content != "Sorry, I ran into an error. Please try again." {
		t.Errorf("Fail should replace content, got %q", msg.Content)
	}
	if msg.InFlight() {
		t.Error("Fail should end streaming")
	}

	// Fail on a frozen message is a no-op.
	msg.Fail("other")
	if msg.Content != "Sorry, I ran into an error. Please try again." {
		t.Errorf("Fail on frozen message mutated content: %q", msg.Content)
	}
}

func TestBotPlaceholder_SplitMultibyteAcceptsFragments(t *testing.T) {
	// Fragments are already-decoded text; the transcript just concatenates.
	msg := NewBotPlaceholder("conv-1")
	msg.AppendFragment("日本")
	msg.AppendFragment("語")
	msg.Freeze()

	if msg.Content != "日本語" {
		t.Errorf("Expected 日本語, got %q", msg.Content)
	}
}

func TestBotPlaceholder_ConcurrentReadWhileStreaming(t *testing.T) {
	// The render loop reads an in-flight message while the response cycle
	// appends to it. Run under -race this catches any unguarded access.
	msg := NewBotPlaceholder("conv-1")

	const fragments = 2000
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = msg.DisplayContent()
				_ = msg.InFlight()
				_ = msg.IsEmpty()
			}
		}
	}()

	for i := 0; i < fragments; i++ {
		msg.AppendFragment("x")
	}
	msg.Freeze()
	close(done)
	wg.Wait()

	if msg.Content != strings.Repeat("x", fragments) {
		t.Errorf("Content length = %d, want %d", len(msg.Content), fragments)
	}
	if msg.DisplayContent() != msg.Content {
		t.Error("DisplayContent should equal final content after Freeze")
	}
}

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestTranscript_AppendOrdering(t *testing.T) {
	tr := NewTranscript(Conversation{ID: "conv-1", BotID: "bot-algebra"})

	user := tr.AppendUserMessage("hello")
	bot := tr.AppendBotPlaceholder()

	if tr.MessageCount() != 2 {
		t.Fatalf("Expected 2 messages, got %d", tr.MessageCount())
	}
	if tr.Messages[0] != user || tr.Messages[1] != bot {
		t.Error("User message must precede its paired bot placeholder")
	}
	if bot.ConversationID != "conv-1" {
		t.Errorf("Placeholder conversation ID = %q", bot.ConversationID)
	}
}

func TestTranscript_MessageByID(t *testing.T) {
	tr := NewTranscript(Conversation{ID: "conv-1"})
	tr.AppendUserMessage("one")
	bot := tr.AppendBotPlaceholder()
	tr.AppendUserMessage("unrelated append mid-stream")

	found := tr.MessageByID(bot.ID)
	if found != bot {
		t.Fatal("MessageByID must locate the placeholder regardless of position")
	}
	if tr.MessageByID("missing") != nil {
		t.Error("Unknown ID should return nil")
	}
}

func TestTranscript_Title(t *testing.T) {
	tr := NewTranscript(Conversation{ID: "c", BotName: "Algebra Tutor"})
	if tr.Title() != "Algebra Tutor" {
		t.Errorf("Empty transcript title = %q", tr.Title())
	}

	tr.AppendUserMessage("Explain the quadratic formula please")
	if tr.Title() != "Explain the quadratic formula please" {
		t.Errorf("Title from first user message = %q", tr.Title())
	}

	tr.Conversation.Title = "Quadratics"
	if tr.Title() != "Quadratics" {
		t.Errorf("Explicit title wins, got %q", tr.Title())
	}
}

func TestNewHistoryMessage_GeneratesIDWhenMissing(t *testing.T) {
	msg := NewHistoryMessage("", "conv-1", RoleBot, "cached", time.Now())
	if msg.ID == "" {
		t.Error("Expected generated ID for history message without one")
	}
	if msg.InFlight() {
		t.Error("History messages are never in flight")
	}
}
