// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tutordeck/tutordeck-tui/internal/api"
	"github.com/tutordeck/tutordeck-tui/internal/model"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type endEvent struct {
	messageID string
	err       error
}

// recorder captures notifier events for assertions.
type recorder struct {
	mu     sync.Mutex
	toasts []string
	ended  chan endEvent
}

func newRecorder() *recorder {
	return &recorder{ended: make(chan endEvent, 4)}
}

func (r *recorder) TranscriptUpdated() {}

func (r *recorder) StreamEnded(messageID string, err error) {
	r.ended <- endEvent{messageID: messageID, err: err}
}

func (r *recorder) Toast(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, message)
}

func (r *recorder) toastCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.toasts)
}

// waitEnd blocks until the cycle reports its end.
func (r *recorder) waitEnd(t *testing.T) endEvent {
	t.Helper()
	select {
	case ev := <-r.ended:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream end")
		return endEvent{}
	}
}

// fakeBackend scripts FetchConversation and Generate.
type fakeBackend struct {
	payload     *api.ConversationPayload
	fetchErr    error
	fetchCalls  int32
	generateErr error
	fragments   <-chan api.Fragment
	genCalls    int32
	gotReq      api.GenerateRequest
}

func (f *fakeBackend) FetchConversation(ctx context.Context, conversationID string) (*api.ConversationPayload, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.payload, nil
}

func (f *fakeBackend) Generate(ctx context.Context, conversationID string, req api.GenerateRequest) (<-chan api.Fragment, error) {
	atomic.AddInt32(&f.genCalls, 1)
	f.gotReq = req
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.fragments, nil
}

// scripted returns a pre-filled, closed fragment channel.
func scripted(frags ...api.Fragment) <-chan api.Fragment {
	ch := make(chan api.Fragment, len(frags))
	for _, frag := range frags {
		ch <- frag
	}
	close(ch)
	return ch
}

func readySession(backend *fakeBackend, notifier Notifier) *Session {
	s := NewSession(backend, notifier)
	s.Begin(model.Conversation{ID: "conv-1", BotID: "bot-1", BotName: "Algebra Tutor"})
	return s
}

// =============================================================================
// SEND
// =============================================================================

func TestSendAppendsUserThenPlaceholder(t *testing.T) {
	backend := &fakeBackend{fragments: scripted()}
	rec := newRecorder()
	s := readySession(backend, rec)

	if err := s.Send(context.Background(), "what is 2+2?"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "what is 2+2?" {
		t.Errorf("first message = %s %q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != model.RoleBot {
		t.Errorf("second message role = %s, want bot", msgs[1].Role)
	}
	rec.waitEnd(t)
}

func TestSendStreamsFragmentsInOrder(t *testing.T) {
	backend := &fakeBackend{fragments: scripted(
		api.Fragment{Text: "The answer "},
		api.Fragment{Text: "is "},
		api.Fragment{Text: "4."},
	)}
	rec := newRecorder()
	s := readySession(backend, rec)

	if err := s.Send(context.Background(), "what is 2+2?"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	ev := rec.waitEnd(t)
	if ev.err != nil {
		t.Fatalf("stream ended with error: %v", ev.err)
	}

	msgs := s.Messages()
	bot := msgs[len(msgs)-1]
	if bot.DisplayContent() != "The answer is 4." {
		t.Errorf("bot content = %q", bot.DisplayContent())
	}
	if bot.InFlight() {
		t.Error("placeholder still in flight after completion")
	}
	if s.Awaiting() {
		t.Error("session still awaiting after completion")
	}
	if backend.gotReq.UserMessage != "what is 2+2?" {
		t.Errorf("request user message = %q", backend.gotReq.UserMessage)
	}
	if backend.gotReq.BotMessage != bot.ID {
		t.Errorf("request bot message = %q, want placeholder id %q", backend.gotReq.BotMessage, bot.ID)
	}
}

func TestSendEmptyTextIsNoOp(t *testing.T) {
	backend := &fakeBackend{}
	s := readySession(backend, nil)

	for _, text := range []string{"", "   ", "\n\t "} {
		if err := s.Send(context.Background(), text); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) = %v, want ErrEmptyMessage", text, err)
		}
	}
	if len(s.Messages()) != 0 {
		t.Errorf("transcript mutated by empty send: %d messages", len(s.Messages()))
	}
	if atomic.LoadInt32(&backend.genCalls) != 0 {
		t.Error("empty send reached the network")
	}
}

func TestSendWithoutConversation(t *testing.T) {
	s := NewSession(&fakeBackend{}, nil)
	if err := s.Send(context.Background(), "hello"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Send = %v, want ErrNotLoaded", err)
	}
}

func TestSendWhileAwaitingIsRejected(t *testing.T) {
	// The stream never produces, keeping the cycle in flight.
	hung := make(chan api.Fragment)
	backend := &fakeBackend{fragments: hung}
	rec := newRecorder()
	s := readySession(backend, rec)

	if err := s.Send(context.Background(), "first"); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := s.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping Send = %v, want ErrBusy", err)
	}
	if len(s.Messages()) != 2 {
		t.Errorf("rejected send mutated the transcript: %d messages", len(s.Messages()))
	}
	if atomic.LoadInt32(&backend.genCalls) != 1 {
		t.Errorf("backend called %d times, want 1", backend.genCalls)
	}

	s.Cancel()
	close(hung)
	rec.waitEnd(t)
}

// =============================================================================
// FAILURE POLICY
// =============================================================================

func TestMidStreamFailureReplacesContent(t *testing.T) {
	backend := &fakeBackend{fragments: scripted(
		api.Fragment{Text: "Sure, let me "},
		api.Fragment{Text: "think about"},
		api.Fragment{Err: &api.StreamInterruptedError{Err: errors.New("connection reset")}},
	)}
	rec := newRecorder()
	s := readySession(backend, rec)

	if err := s.Send(context.Background(), "hard question"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	ev := rec.waitEnd(t)
	if !errors.Is(ev.err, api.ErrStreamInterrupted) {
		t.Errorf("end error = %v, want ErrStreamInterrupted", ev.err)
	}

	bot := s.Messages()[1]
	if bot.DisplayContent() != FailureNotice {
		t.Errorf("bot content = %q, want exactly the failure notice", bot.DisplayContent())
	}
	if bot.InFlight() {
		t.Error("placeholder still in flight after failure")
	}
	if s.Awaiting() {
		t.Error("session still awaiting after failure")
	}
	if rec.toastCount() == 0 {
		t.Error("failure produced no toast")
	}
}

func TestPreStreamFailureShowsNoticeOnly(t *testing.T) {
	backend := &fakeBackend{generateErr: &api.StreamUnavailableError{Status: 500, Message: "boom"}}
	rec := newRecorder()
	s := readySession(backend, rec)

	if err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	ev := rec.waitEnd(t)
	if !errors.Is(ev.err, api.ErrStreamUnavailable) {
		t.Errorf("end error = %v, want ErrStreamUnavailable", ev.err)
	}

	bot := s.Messages()[1]
	if bot.DisplayContent() != FailureNotice {
		t.Errorf("bot content = %q, want exactly the failure notice", bot.DisplayContent())
	}
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancelFreezesSilently(t *testing.T) {
	frags := make(chan api.Fragment, 4)
	backend := &fakeBackend{fragments: frags}
	rec := newRecorder()
	s := readySession(backend, rec)

	if err := s.Send(context.Background(), "tell me a long story"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	frags <- api.Fragment{Text: "Once upon "}
	frags <- api.Fragment{Text: "a time"}

	// Let both fragments land before cancelling.
	deadline := time.Now().Add(5 * time.Second)
	for s.Messages()[1].DisplayContent() != "Once upon a time" {
		if time.Now().After(deadline) {
			t.Fatal("fragments never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Cancel()
	frags <- api.Fragment{Err: context.Canceled}
	close(frags)

	ev := rec.waitEnd(t)
	if !errors.Is(ev.err, context.Canceled) {
		t.Errorf("end error = %v, want context.Canceled", ev.err)
	}

	bot := s.Messages()[1]
	if bot.DisplayContent() != "Once upon a time" {
		t.Errorf("bot content = %q, want the partial text preserved", bot.DisplayContent())
	}
	if bot.InFlight() {
		t.Error("placeholder still in flight after cancel")
	}
	if s.Awaiting() {
		t.Error("session still awaiting after cancel")
	}
	if rec.toastCount() != 0 {
		t.Errorf("cancellation produced toasts: %v", rec.toasts)
	}
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestFragmentsAddressPlaceholderByIdentity(t *testing.T) {
	frags := make(chan api.Fragment, 4)
	backend := &fakeBackend{fragments: frags}
	rec := newRecorder()
	s := readySession(backend, rec)

	if err := s.Send(context.Background(), "question"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	frags <- api.Fragment{Text: "first half "}

	deadline := time.Now().Add(5 * time.Second)
	for s.Messages()[1].DisplayContent() != "first half " {
		if time.Now().After(deadline) {
			t.Fatal("fragment never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// An unrelated message lands mid-stream; remaining fragments must keep
	// flowing into the original placeholder.
	s.Transcript().Append(model.NewHistoryMessage("sys-1", "conv-1", model.RoleBot, "unrelated notice", time.Now()))

	frags <- api.Fragment{Text: "second half"}
	close(frags)
	rec.waitEnd(t)

	msgs := s.Messages()
	if msgs[1].DisplayContent() != "first half second half" {
		t.Errorf("placeholder content = %q", msgs[1].DisplayContent())
	}
	if msgs[2].Content != "unrelated notice" {
		t.Errorf("unrelated message content = %q", msgs[2].Content)
	}
}

// =============================================================================
// LOAD
// =============================================================================

func historyPayload() *api.ConversationPayload {
	return &api.ConversationPayload{
		ID:      "conv-1",
		BotID:   "bot-1",
		BotName: "Algebra Tutor",
		Messages: []api.MessagePayload{
			{ID: "m1", ConversationID: "conv-1", Sender: "user", Content: "hi"},
			{ID: "m2", ConversationID: "conv-1", Sender: "bot", Content: "hello!"},
		},
	}
}

func TestLoadPopulatesHistory(t *testing.T) {
	backend := &fakeBackend{payload: historyPayload()}
	s := NewSession(backend, nil)

	if err := s.Load(context.Background(), "conv-1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := s.Conversation().BotName; got != "Algebra Tutor" {
		t.Errorf("BotName = %q", got)
	}
	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[1].Role != model.RoleBot {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].InFlight() {
		t.Error("history message marked in flight")
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	backend := &fakeBackend{payload: historyPayload()}
	s := NewSession(backend, nil)

	if err := s.Load(context.Background(), "conv-1"); err != nil {
		t.Fatalf("first Load failed: %v", err)
	}
	if err := s.Load(context.Background(), "conv-1"); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}

	if got := len(s.Messages()); got != 2 {
		t.Errorf("len(messages) after double load = %d, want 2", got)
	}
	if atomic.LoadInt32(&backend.fetchCalls) != 2 {
		t.Errorf("fetch calls = %d, want 2", backend.fetchCalls)
	}
}

func TestLoadFailureLeavesStateUntouched(t *testing.T) {
	backend := &fakeBackend{payload: historyPayload()}
	rec := newRecorder()
	s := NewSession(backend, rec)

	if err := s.Load(context.Background(), "conv-1"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	backend.fetchErr = errors.New("backend down")
	if err := s.Load(context.Background(), "conv-1"); err == nil {
		t.Fatal("expected error from failed load")
	}

	if got := len(s.Messages()); got != 2 {
		t.Errorf("failed load mutated transcript: %d messages", got)
	}
	if s.Awaiting() {
		t.Error("awaiting set by failed load")
	}
	if rec.toastCount() == 0 {
		t.Error("failed load produced no toast")
	}
}

// =============================================================================
// NOTIFIER SWAP
// =============================================================================

func TestSetNotifierDuringCycle(t *testing.T) {
	// The UI removes its notifier bridge when the program exits, which can
	// overlap a cycle still emitting events. Run under -race this catches
	// any unguarded access to the notifier field.
	frags := make(chan api.Fragment, 4)
	backend := &fakeBackend{fragments: frags}
	rec := newRecorder()
	s := readySession(backend, rec)

	if err := s.Send(context.Background(), "keep talking"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.SetNotifier(rec)
			s.SetNotifier(nil)
		}
		s.SetNotifier(rec)
	}()

	for i := 0; i < 50; i++ {
		frags <- api.Fragment{Text: "x"}
	}
	<-done
	close(frags)

	ev := rec.waitEnd(t)
	if ev.err != nil {
		t.Errorf("end error = %v, want nil", ev.err)
	}
	if s.Awaiting() {
		t.Error("session still awaiting after cycle end")
	}
}

func TestCancelledStreamClosingWithoutTerminalFragmentFreezes(t *testing.T) {
	// A cancelled decoder may close the channel without delivering a
	// terminal fragment. That is a freeze of the partial answer, never a
	// completion and never the failure notice.
	frags := make(chan api.Fragment, 4)
	backend := &fakeBackend{fragments: frags}
	rec := newRecorder()
	s := readySession(backend, rec)

	if err := s.Send(context.Background(), "tell me more"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	frags <- api.Fragment{Text: "partial answer"}

	deadline := time.Now().Add(5 * time.Second)
	for s.Messages()[1].DisplayContent() != "partial answer" {
		if time.Now().After(deadline) {
			t.Fatal("fragment never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Cancel()
	close(frags)

	ev := rec.waitEnd(t)
	if !errors.Is(ev.err, context.Canceled) {
		t.Errorf("end error = %v, want context.Canceled", ev.err)
	}

	bot := s.Messages()[1]
	if bot.DisplayContent() != "partial answer" {
		t.Errorf("bot content = %q, want the partial text preserved", bot.DisplayContent())
	}
	if bot.InFlight() {
		t.Error("placeholder still in flight")
	}
	if rec.toastCount() != 0 {
		t.Errorf("cancellation produced %d toasts, want none", rec.toastCount())
	}
}
