// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// collect drains a fragment channel into accumulated text and the terminal
// error, if any.
func collect(t *testing.T, fragments <-chan Fragment) (string, error) {
	t.Helper()
	var sb strings.Builder
	for frag := range fragments {
		if frag.Err != nil {
			return sb.String(), frag.Err
		}
		sb.WriteString(frag.Text)
	}
	return sb.String(), nil
}

func TestGenerateStreamsInOrder(t *testing.T) {
	chunks := []string{"The ", "quadratic ", "formula ", "solves it."}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/conv-1/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticToken("tok"))
	fragments, err := client.Generate(context.Background(), "conv-1",
		GenerateRequest{UserMessage: "solve x^2=4", BotMessage: "m-bot"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	got, streamErr := collect(t, fragments)
	if streamErr != nil {
		t.Fatalf("stream error: %v", streamErr)
	}
	want := strings.Join(chunks, "")
	if got != want {
		t.Errorf("accumulated = %q, want %q", got, want)
	}
}

func TestGenerateMultibyteSplitAcrossChunks(t *testing.T) {
	// "答案是√2" encoded, deliberately cut inside the middle of a rune.
	full := []byte("答案是√2")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < len(full); i += 2 {
			end := i + 2
			if end > len(full) {
				end = len(full)
			}
			w.Write(full[i:end])
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticToken("tok"))
	fragments, err := client.Generate(context.Background(), "conv-1", GenerateRequest{UserMessage: "?", BotMessage: "m"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var sb strings.Builder
	for frag := range fragments {
		if frag.Err != nil {
			t.Fatalf("stream error: %v", frag.Err)
		}
		if !utf8.ValidString(frag.Text) {
			t.Errorf("fragment %q is not valid UTF-8", frag.Text)
		}
		sb.WriteString(frag.Text)
	}
	if sb.String() != string(full) {
		t.Errorf("accumulated = %q, want %q", sb.String(), string(full))
	}
}

func TestGenerateNonSuccessIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"model offline"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticToken("tok"))
	fragments, err := client.Generate(context.Background(), "conv-1", GenerateRequest{UserMessage: "q", BotMessage: "m"})
	if fragments != nil {
		t.Error("expected nil channel on pre-stream failure")
	}
	if !errors.Is(err, ErrStreamUnavailable) {
		t.Fatalf("expected ErrStreamUnavailable, got %v", err)
	}

	var unavailable *StreamUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected *StreamUnavailableError, got %T", err)
	}
	if unavailable.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", unavailable.Status)
	}
	if unavailable.Message != "model offline" {
		t.Errorf("Message = %q", unavailable.Message)
	}
}

func TestGenerateTransportFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(server.URL, StaticToken("tok"))
	_, err := client.Generate(context.Background(), "conv-1", GenerateRequest{UserMessage: "q", BotMessage: "m"})
	if !errors.Is(err, ErrStreamUnavailable) {
		t.Fatalf("expected ErrStreamUnavailable, got %v", err)
	}
}

func TestGenerateMidStreamInterruption(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000") // promise more than delivered
		w.Write([]byte("partial answer"))
		w.(http.Flusher).Flush()
		// Drop the connection before the promised body completes.
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticToken("tok"))
	fragments, err := client.Generate(context.Background(), "conv-1", GenerateRequest{UserMessage: "q", BotMessage: "m"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	got, streamErr := collect(t, fragments)
	if streamErr == nil {
		t.Fatal("expected a terminal stream error")
	}
	if !errors.Is(streamErr, ErrStreamInterrupted) {
		t.Errorf("expected ErrStreamInterrupted, got %v", streamErr)
	}
	if got != "partial answer" {
		t.Errorf("fragments before interruption = %q, want %q", got, "partial answer")
	}
}

func TestGenerateContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("first "))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL, StaticToken("tok"))
	fragments, err := client.Generate(ctx, "conv-1", GenerateRequest{UserMessage: "q", BotMessage: "m"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Receive the first fragment, then cancel while the server stalls.
	select {
	case frag := <-fragments:
		if frag.Err != nil {
			t.Fatalf("unexpected early error: %v", frag.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first fragment")
	}
	cancel()

	_, streamErr := collect(t, fragments)
	if !errors.Is(streamErr, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", streamErr)
	}
}

func TestGenerateAbandonedAfterCancelEndsDecoder(t *testing.T) {
	// A consumer that cancels may stop draining entirely. The decoder must
	// still exit (and close the response body) once the channel buffer is
	// full, instead of parking on the send forever.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := []byte(strings.Repeat("a", 4096))
		flusher := w.(http.Flusher)
		for {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			default:
			}
		}
	}))
	defer server.Close()

	before := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL, StaticToken("tok"))
	fragments, err := client.Generate(ctx, "conv-1", GenerateRequest{UserMessage: "q", BotMessage: "m"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Take one fragment so the stream is demonstrably live, then cancel
	// and never read again.
	select {
	case frag := <-fragments:
		if frag.Err != nil {
			t.Fatalf("unexpected early error: %v", frag.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first fragment")
	}
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("decoder goroutine leaked after cancel: %d goroutines, baseline %d",
		runtime.NumGoroutine(), before)
}

func TestGenerateRequiresConversationID(t *testing.T) {
	client := NewClient("http://localhost:0", nil)
	if _, err := client.Generate(context.Background(), "", GenerateRequest{}); err == nil {
		t.Error("expected error for empty conversation id")
	}
}

func TestSplitCompleteRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		complete string
		rest     string
	}{
		{"ascii", "hello", "hello", ""},
		{"complete multibyte", "héllo", "héllo", ""},
		{"split two-byte", "h\xc3", "h", "\xc3"},
		{"split three-byte", "x\xe7\xad", "x", "\xe7\xad"},
		{"split four-byte", "y\xf0\x9f\x98", "y", "\xf0\x9f\x98"},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			complete, rest := splitCompleteRunes([]byte(tt.input))
			if string(complete) != tt.complete {
				t.Errorf("complete = %q, want %q", complete, tt.complete)
			}
			if string(rest) != tt.rest {
				t.Errorf("rest = %q, want %q", rest, tt.rest)
			}
		})
	}
}
