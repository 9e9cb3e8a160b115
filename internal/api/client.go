// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP transport client for the tutordeck backend.
//
// The client issues authenticated JSON requests, normalizes error responses
// into a single *APIError, and exposes the streamed generation endpoint as an
// ordered channel of decoded text fragments.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout is the timeout for request/response calls.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps response bodies.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// MaxErrorBodySize caps how much of an error body is read for parsing.
	MaxErrorBodySize = 64 * 1024

	// defaultRequestsPerSecond is the client-side rate limit. Generous for
	// interactive use; it exists to keep a runaway loop from hammering the
	// backend.
	defaultRequestsPerSecond = 10
	defaultBurst             = 20
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotAuthenticated indicates a request needing authorization was issued
// with no stored credential.
var ErrNotAuthenticated = errors.New("not authenticated: run 'tutordeck login'")

// APIError represents a non-success response from the backend, carrying the
// best available human-readable message.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
}

// =============================================================================
// TOKEN SOURCE
// =============================================================================

// TokenSource supplies the current bearer token. An empty string means no
// credential is present and the request goes out unauthenticated.
//
// auth.CredentialStore satisfies this; tests supply a literal.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource for tests and one-shot calls.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token() string {
	return string(t)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client communicates with the tutordeck backend.
type Client struct {
	baseURL string
	creds   TokenSource
	limiter *rate.Limiter

	// httpClient serves request/response calls with a hard timeout.
	httpClient *http.Client

	// streamClient serves streaming calls: no timeout, context-controlled.
	streamClient *http.Client
}

// NewClient creates a backend client. creds may be nil for endpoints that
// never need authorization (login, signup).
func NewClient(baseURL string, creds TokenSource) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		creds:   creds,
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   DefaultTimeout,
		},
		streamClient: &http.Client{
			Transport: transport,
			// No timeout for streaming; controlled via context.
		},
	}
}

// WithTimeout sets the request/response timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithRateLimit overrides the client-side request rate limit.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// CORE REQUEST PATH
// =============================================================================

// Do issues one JSON request. body may be nil; it is serialized to JSON
// otherwise. out may be nil to discard the response. A 2xx response with no
// content leaves out untouched — an explicit "no value" result rather than a
// parse attempt on an empty body.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// Success with no content: explicit no-value result.
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Get issues a GET request (the default read method).
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// setHeaders attaches the standard headers and, when a credential is
// present, the bearer token.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// errorFromResponse normalizes a non-success response into *APIError.
// Message extraction is best effort: the parsed "message" field, else the
// "error" field, else a status-derived fallback. A malformed error body
// still yields the fallback rather than a parse failure.
func (c *Client) errorFromResponse(resp *http.Response) error {
	apiErr := &APIError{
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("request failed with status %d", resp.StatusCode),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
	if err != nil {
		return apiErr
	}

	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apiErr
	}
	if payload.Message != "" {
		apiErr.Message = payload.Message
	} else if payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}

// =============================================================================
// CHAT ENDPOINTS
// =============================================================================

// FetchConversation retrieves a conversation and its historical messages.
func (c *Client) FetchConversation(ctx context.Context, conversationID string) (*ConversationPayload, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}

	var payload ConversationPayload
	if err := c.Get(ctx, "/chat/"+conversationID, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

// StudentLogin authenticates a student account.
func (c *Client) StudentLogin(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.login(ctx, "/auth/student-login", email, password)
}

// InstructorLogin authenticates an instructor account.
func (c *Client) InstructorLogin(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.login(ctx, "/auth/instructor-login", email, password)
}

func (c *Client) login(ctx context.Context, path, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.Post(ctx, path, LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &APIError{Status: http.StatusOK, Message: "login response carried no access token"}
	}
	return &resp, nil
}

// StudentSignup registers a student account.
func (c *Client) StudentSignup(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	return c.signup(ctx, "/auth/student-signup", name, email, password)
}

// InstructorSignup registers an instructor account.
func (c *Client) InstructorSignup(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	return c.signup(ctx, "/auth/instructor-signup", name, email, password)
}

func (c *Client) signup(ctx context.Context, path, name, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.Post(ctx, path, SignupRequest{Name: name, Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// PROFILE ENDPOINTS
// =============================================================================

// StudentProfile fetches the signed-in student's profile.
func (c *Client) StudentProfile(ctx context.Context) (*StudentPayload, error) {
	if c.creds == nil || c.creds.Token() == "" {
		return nil, ErrNotAuthenticated
	}
	var payload StudentPayload
	if err := c.Get(ctx, "/student/me", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// InstructorProfile fetches the signed-in instructor's profile.
func (c *Client) InstructorProfile(ctx context.Context) (*InstructorPayload, error) {
	if c.creds == nil || c.creds.Token() == "" {
		return nil, ErrNotAuthenticated
	}
	var payload InstructorPayload
	if err := c.Get(ctx, "/instructor/me", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
