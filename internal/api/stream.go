// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// STREAMING: The generation endpoint returns a raw byte stream of text.
// Bytes are decoded incrementally with a stateful decoder so multi-byte
// characters split across chunk boundaries decode correctly, and the decoded
// text is yielded strictly in arrival order. The resulting sequence is lazy,
// finite and non-restartable: fragments are appended, never replayed.

// =============================================================================
// CONSTANTS
// =============================================================================

// streamReadSize is the read buffer for the generation stream.
const streamReadSize = 4096

// fragmentChanBuffer decouples network reads from the consumer briefly
// without reordering anything.
const fragmentChanBuffer = 64

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrStreamUnavailable indicates the stream failed before yielding any
	// fragment: non-success status or a response with no streamable body.
	ErrStreamUnavailable = errors.New("generation stream unavailable")

	// ErrStreamInterrupted indicates a failure while reading an already-open
	// stream. Fragments delivered before the interruption remain valid.
	ErrStreamInterrupted = errors.New("generation stream interrupted")
)

// StreamUnavailableError carries the HTTP detail of a pre-stream failure.
type StreamUnavailableError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *StreamUnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("generation stream unavailable (HTTP %d): %s", e.Status, e.Message)
	}
	return "generation stream unavailable: " + e.Message
}

// Is allows errors.Is(err, ErrStreamUnavailable).
func (e *StreamUnavailableError) Is(target error) bool {
	return target == ErrStreamUnavailable
}

// StreamInterruptedError wraps the read failure of an open stream.
type StreamInterruptedError struct {
	Err error
}

// Error implements the error interface.
func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("generation stream interrupted: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamInterruptedError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrStreamInterrupted).
func (e *StreamInterruptedError) Is(target error) bool {
	return target == ErrStreamInterrupted
}

// =============================================================================
// FRAGMENT
// =============================================================================

// Fragment is one decoded text increment from the generation stream.
// A Fragment with Err set is terminal: the channel closes after it and Text
// is empty.
type Fragment struct {
	Text string
	Err  error
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate opens the streamed generation request for a conversation and
// returns an ordered channel of decoded fragments.
//
// Failure before the first fragment (transport error, non-success status,
// missing body) is returned synchronously as a stream-unavailable error and
// no channel is created. Failures after the stream opens are delivered as a
// terminal Fragment carrying a stream-interrupted error. Cancelling ctx ends
// the stream with ctx.Err().
func (c *Client) Generate(ctx context.Context, conversationID string, req GenerateRequest) (<-chan Fragment, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/"+conversationID+"/generate", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/plain")
	httpReq.Header.Set("Cache-Control", "no-cache")

	// Streaming client: no timeout, lifetime controlled by ctx.
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, &StreamUnavailableError{Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := c.errorFromResponse(resp)
		resp.Body.Close()
		var apiErr *APIError
		if errors.As(detail, &apiErr) {
			return nil, &StreamUnavailableError{Status: apiErr.Status, Message: apiErr.Message}
		}
		return nil, &StreamUnavailableError{Status: resp.StatusCode, Message: detail.Error()}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		resp.Body.Close()
		return nil, &StreamUnavailableError{Status: resp.StatusCode, Message: "response carried no streamable body"}
	}

	fragments := make(chan Fragment, fragmentChanBuffer)
	go c.decodeStream(ctx, resp.Body, fragments)
	return fragments, nil
}

// decodeStream pumps the response body through the stateful UTF-8 decoder
// and emits fragments in arrival order until EOF, error, or cancellation.
func (c *Client) decodeStream(ctx context.Context, body io.ReadCloser, fragments chan<- Fragment) {
	defer close(fragments)
	defer body.Close()

	// The decoder carries state across reads: a multi-byte character split
	// across network chunks is reassembled, and invalid sequences become
	// U+FFFD instead of garbage.
	decoded := unicode.UTF8.NewDecoder().Reader(body)

	// pending holds trailing bytes of a rune the read boundary cut in half,
	// so every emitted fragment is itself valid UTF-8.
	var pending []byte
	buf := make([]byte, streamReadSize)

	// send blocks until the fragment is delivered or ctx ends. A consumer
	// that cancelled may stop draining entirely; blocking unconditionally
	// would park this goroutine forever and leak the response body.
	send := func(f Fragment) bool {
		select {
		case fragments <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}
	// trySend is the terminal-fragment variant once ctx is already done:
	// deliver if there is room, never block.
	trySend := func(f Fragment) {
		select {
		case fragments <- f:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			trySend(Fragment{Err: ctx.Err()})
			return
		default:
		}

		n, err := decoded.Read(buf)
		if n > 0 {
			chunk := append(pending, buf[:n]...)
			emit, rest := splitCompleteRunes(chunk)
			pending = rest
			if len(emit) > 0 && !send(Fragment{Text: string(emit)}) {
				trySend(Fragment{Err: ctx.Err()})
				return
			}
		}

		if err != nil {
			if err == io.EOF {
				if len(pending) > 0 {
					send(Fragment{Text: string(pending)})
				}
				return
			}
			if ctx.Err() != nil {
				trySend(Fragment{Err: ctx.Err()})
				return
			}
			send(Fragment{Err: &StreamInterruptedError{Err: err}})
			return
		}
	}
}

// splitCompleteRunes splits b into a prefix of complete UTF-8 runes and a
// remainder holding the leading bytes of an unfinished rune (at most 3).
func splitCompleteRunes(b []byte) (complete, rest []byte) {
	for back := 1; back <= utf8.UTFMax && back <= len(b); back++ {
		i := len(b) - back
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], append([]byte(nil), b[i:]...)
	}
	return b, nil
}
