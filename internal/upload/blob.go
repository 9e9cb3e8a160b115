// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// BLOB STORE INTERFACE
// =============================================================================

// ErrBlobNotFound indicates a delete of a key the store does not hold.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is the storage collaborator behind the upload proxy. Put
// overwrites; Delete of a missing key returns ErrBlobNotFound, which the
// proxy treats as a non-error when clearing a previous avatar.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// =============================================================================
// HTTP BLOB STORE
// =============================================================================

// HTTPBlobStore talks to a blob service over HTTP: PUT /{key} stores,
// DELETE /{key} removes.
type HTTPBlobStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBlobStore creates a store against the given base URL.
func NewHTTPBlobStore(baseURL string) *HTTPBlobStore {
	return &HTTPBlobStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Put stores a blob under key.
func (s *HTTPBlobStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+"/"+key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("blob put failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("blob put failed with status %d", resp.StatusCode)
	}
	return nil
}

// Delete removes the blob under key.
func (s *HTTPBlobStore) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/"+key, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("blob delete failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusNotFound {
		return ErrBlobNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("blob delete failed with status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// MEMORY BLOB STORE
// =============================================================================

// MemoryBlobStore is an in-process BlobStore for tests.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	contentType string
	data        []byte
}

// NewMemoryBlobStore creates an empty in-memory store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]memoryBlob)}
}

// Put stores a blob under key.
func (s *MemoryBlobStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = memoryBlob{contentType: contentType, data: append([]byte(nil), data...)}
	return nil
}

// Delete removes the blob under key.
func (s *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Get returns a stored blob for assertions.
func (s *MemoryBlobStore) Get(key string) (contentType string, data []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[key]
	return blob.contentType, blob.data, ok
}

// Len returns the number of stored blobs.
func (s *MemoryBlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
