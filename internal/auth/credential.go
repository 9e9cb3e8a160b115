// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth manages the access credential for the tutordeck backend.
//
// The credential is an opaque bearer token: written on successful login,
// read on every authorized request, cleared on logout. It is an explicit
// store injected into the transport client at construction time, never
// ambient package-level state, so the client stays testable without a
// real storage medium.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tutordeck/tutordeck-tui/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// credentialFile is the fixed key under which the token is persisted,
	// relative to the tutordeck config directory.
	credentialFile = "credential"

	// keyFile holds the random key material used to encrypt the credential.
	keyFile = "credential.key"

	// keySize is the AES-256 key size.
	keySize = 32

	// saltSize is the salt length for key derivation.
	saltSize = 16

	// nonceSize is the AES-GCM nonce length.
	nonceSize = 12

	// pbkdf2Iterations stretches the stored key material.
	// OWASP-recommended floor for PBKDF2-SHA-256.
	pbkdf2Iterations = 600000
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoCredential indicates no token is stored.
	ErrNoCredential = errors.New("no credential stored: run 'tutordeck login'")

	// ErrCorruptCredential indicates the credential file failed to decrypt.
	ErrCorruptCredential = errors.New("credential file is corrupt: run 'tutordeck login' again")
)

// =============================================================================
// CREDENTIAL STORE INTERFACE
// =============================================================================

// CredentialStore holds the current access credential.
// Single-writer-at-a-time semantics: login writes, logout clears.
type CredentialStore interface {
	// Set stores the bearer token.
	Set(token string) error
	// Get returns the stored token, or ErrNoCredential.
	Get() (string, error)
	// Clear removes the stored token. Clearing an empty store is not an error.
	Clear() error
	// Token returns the stored token or "" when absent. It satisfies the
	// transport client's TokenSource without forcing error handling on the
	// request path.
	Token() string
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore is an in-memory credential store for tests and one-shot use.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Set stores the token in memory.
func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Get returns the stored token.
func (s *MemoryStore) Get() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

// Clear removes the token.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// Token returns the stored token or "".
func (s *MemoryStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore persists the credential encrypted at rest.
//
// SECURITY: The token is encrypted with AES-256-GCM under a key derived
// (PBKDF2-SHA-256) from random key material kept in a separate 0600 file.
// File layout: salt | nonce | ciphertext.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a credential store rooted at dir (usually the
// tutordeck config directory). The directory is created with 0700.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Set encrypts and persists the token.
func (s *FileStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.loadOrCreateKeyMaterial()
	if err != nil {
		return err
	}
	defer zeroBytes(key)

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := newAEAD(key, salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(token), nil)

	blob := make([]byte, 0, saltSize+nonceSize+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)

	// RELIABILITY: Atomic write with fsync prevents a torn credential file.
	return util.AtomicWriteFileWithDir(s.path(), blob, 0600, 0700)
}

// Get decrypts and returns the stored token.
func (s *FileStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Clear removes the credential file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}

// Token returns the stored token or "" when absent or unreadable.
func (s *FileStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.read()
	if err != nil {
		return ""
	}
	return token
}

// read decrypts the credential file. Caller holds the lock.
func (s *FileStore) read() (string, error) {
	blob, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("failed to read credential: %w", err)
	}

	if len(blob) < saltSize+nonceSize+1 {
		return "", ErrCorruptCredential
	}

	key, err := s.loadOrCreateKeyMaterial()
	if err != nil {
		return "", err
	}
	defer zeroBytes(key)

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	sealed := blob[saltSize+nonceSize:]

	aead, err := newAEAD(key, salt)
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrCorruptCredential
	}
	return string(plain), nil
}

// loadOrCreateKeyMaterial returns the random key material, creating it on
// first use. Caller holds the lock.
func (s *FileStore) loadOrCreateKeyMaterial() ([]byte, error) {
	keyPath := filepath.Join(s.dir, keyFile)

	material, err := os.ReadFile(keyPath)
	if err == nil && len(material) == keySize {
		return material, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key material: %w", err)
	}

	material = make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(keyPath, material, 0600, 0700); err != nil {
		return nil, fmt.Errorf("failed to store key material: %w", err)
	}
	return material, nil
}

// path returns the credential file path.
func (s *FileStore) path() string {
	return filepath.Join(s.dir, credentialFile)
}

// =============================================================================
// HELPERS
// =============================================================================

// newAEAD derives the encryption key and builds the AES-GCM cipher.
func newAEAD(material, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(material, salt, pbkdf2Iterations, keySize, sha256.New)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}
	return aead, nil
}

// zeroBytes zeros key material to limit exposure in crash dumps.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
