// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutordeck/tutordeck-tui/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTranscript(id string) *model.Transcript {
	transcript := model.NewTranscript(model.Conversation{
		ID:      id,
		BotID:   "bot-1",
		BotName: "Algebra Tutor",
	})
	transcript.Append(model.NewHistoryMessage("m1", id, model.RoleUser, "what is 2+2?", time.Now()))
	transcript.Append(model.NewHistoryMessage("m2", id, model.RoleBot, "The answer is 4.", time.Now()))
	return transcript
}

func TestPutAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, sampleTranscript("conv-1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Conversation.BotName != "Algebra Tutor" {
		t.Errorf("BotName = %q", got.Conversation.BotName)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != model.RoleUser || got.Messages[1].Role != model.RoleBot {
		t.Errorf("roles = %s, %s", got.Messages[0].Role, got.Messages[1].Role)
	}
	if got.Messages[1].Content != "The answer is 4." {
		t.Errorf("content = %q", got.Messages[1].Content)
	}
}

func TestPutIsUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, sampleTranscript("conv-1")); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	// Cache the same conversation again, now with an extra exchange.
	transcript := sampleTranscript("conv-1")
	transcript.Append(model.NewHistoryMessage("m3", "conv-1", model.RoleUser, "and 3+3?", time.Now()))
	if err := store.Put(ctx, transcript); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := store.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Errorf("len(messages) = %d, want 3 (no duplicates)", len(got.Messages))
	}
}

func TestPutSkipsInFlightMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	transcript := sampleTranscript("conv-1")
	placeholder := transcript.AppendBotPlaceholder()
	placeholder.AppendFragment("partial")

	if err := store.Put(ctx, transcript); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := store.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Errorf("len(messages) = %d, want 2 (in-flight skipped)", len(got.Messages))
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, sampleTranscript("conv-1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "conv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "conv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestRecentOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"conv-a", "conv-b", "conv-c"} {
		if err := store.Put(ctx, sampleTranscript(id)); err != nil {
			t.Fatalf("Put(%s) failed: %v", id, err)
		}
		// Distinct updated_at values at nanosecond granularity.
		time.Sleep(time.Millisecond)
	}

	entries, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Conversation.ID != "conv-c" || entries[1].Conversation.ID != "conv-b" {
		t.Errorf("order = %s, %s; want conv-c, conv-b",
			entries[0].Conversation.ID, entries[1].Conversation.ID)
	}
	if entries[0].MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", entries[0].MessageCount)
	}
}
