// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upload is the avatar upload proxy: it validates instructor
// avatar images before they reach blob storage.
//
// Validation is strict: the image type is sniffed from the bytes, never
// trusted from the multipart header, and the size ceiling is enforced
// before anything is forwarded. A rejected upload leaves the store
// untouched.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// DefaultMaxSize is the avatar size ceiling.
const DefaultMaxSize = 2 * 1024 * 1024 // 2MB

// avatarPrefix is the blob key namespace for avatars.
const avatarPrefix = "avatars"

// allowedTypes maps sniffed content types to their canonical extension.
var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// =============================================================================
// SERVER
// =============================================================================

// Server is the upload proxy HTTP server.
type Server struct {
	addr    string
	store   BlobStore
	maxSize int64
	router  *http.ServeMux
	server  *http.Server
}

// NewServer creates an upload proxy listening on addr, forwarding accepted
// avatars to store.
func NewServer(addr string, store BlobStore) *Server {
	s := &Server{
		addr:    addr,
		store:   store,
		maxSize: DefaultMaxSize,
		router:  http.NewServeMux(),
	}
	s.router.HandleFunc("POST /upload", s.handleUpload)
	s.router.HandleFunc("GET /health", s.handleHealth)
	return s
}

// WithMaxSize overrides the upload size ceiling.
func (s *Server) WithMaxSize(maxSize int64) *Server {
	s.maxSize = maxSize
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until it fails or Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("upload: proxy listening on %s", s.addr)
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// =============================================================================
// HANDLERS
// =============================================================================

// uploadResponse is the success payload.
type uploadResponse struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart form with fields:
//
//	file    — the image
//	ownerID — the instructor the avatar belongs to
//	prevExt — extension of the previous avatar to delete (optional)
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Hard cap the whole request before parsing anything.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxSize+64*1024)

	if err := r.ParseMultipartForm(s.maxSize); err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}
	defer r.MultipartForm.RemoveAll()

	ownerID := strings.TrimSpace(r.FormValue("ownerID"))
	if ownerID == "" {
		s.writeError(w, http.StatusBadRequest, "ownerID is required")
		return
	}
	// Owner IDs become blob key segments; refuse anything path-like.
	if strings.ContainsAny(ownerID, "/\\.") {
		s.writeError(w, http.StatusBadRequest, "ownerID contains invalid characters")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxSize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if int64(len(data)) > s.maxSize {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d byte limit", s.maxSize))
		return
	}
	if len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	// SECURITY: sniff the real content type; the part header is
	// attacker-controlled.
	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		log.Printf("upload: rejected %q (claimed %q, sniffed %q)",
			header.Filename, header.Header.Get("Content-Type"), contentType)
		s.writeError(w, http.StatusUnsupportedMediaType,
			"only JPEG, PNG, and WebP images are accepted")
		return
	}

	ctx := r.Context()

	// Clear the previous avatar first so a replaced extension doesn't
	// leave an orphan blob behind.
	if prevExt := sanitizeExt(r.FormValue("prevExt")); prevExt != "" {
		prevKey := path.Join(avatarPrefix, ownerID+"."+prevExt)
		if err := s.store.Delete(ctx, prevKey); err != nil && !errors.Is(err, ErrBlobNotFound) {
			s.writeError(w, http.StatusBadGateway, "failed to remove previous avatar")
			return
		}
	}

	key := path.Join(avatarPrefix, ownerID+"."+ext)
	if err := s.store.Put(ctx, key, contentType, data); err != nil {
		log.Printf("upload: store put failed: %v", err)
		s.writeError(w, http.StatusBadGateway, "failed to store avatar")
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
	})
}

// sanitizeExt keeps only a plain lowercase extension.
func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
	for _, r := range ext {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return ext
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"message": message})
}
