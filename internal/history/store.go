// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history caches conversation transcripts in a local SQLite
// database so `sessions` and `export` work without the backend.
//
// The cache stores frozen messages only. Put replaces a conversation's
// messages wholesale, which keeps repeated loads of the same conversation
// from duplicating history.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/tutordeck/tutordeck-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound      = errors.New("conversation not in history")
	ErrDatabaseError = errors.New("history database error")
)

// =============================================================================
// STORE
// =============================================================================

// Store is the local history cache. Safe for concurrent use; SQLite only
// supports one writer, so the connection pool is capped at one.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITE PATH
// =============================================================================

// Put caches a transcript, replacing any previous copy of the same
// conversation. In-flight messages are skipped; only frozen content is
// durable.
func (s *Store) Put(ctx context.Context, transcript *model.Transcript) error {
	if transcript == nil || transcript.Conversation.ID == "" {
		return errors.New("transcript has no conversation id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	conv := transcript.Conversation
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, bot_id, bot_name, title, user_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bot_id = excluded.bot_id,
			bot_name = excluded.bot_name,
			title = excluded.title,
			user_id = excluded.user_id,
			updated_at = excluded.updated_at`,
		conv.ID, conv.BotID, conv.BotName, conv.Title, conv.UserID, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	// Replace messages wholesale so a re-cache never duplicates history.
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, conversation_id, position, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	position := 0
	for _, msg := range transcript.Messages {
		if msg.InFlight() {
			continue
		}
		_, err := stmt.ExecContext(ctx, msg.ID, conv.ID, position,
			string(msg.Role), msg.Content, msg.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		position++
	}

	return tx.Commit()
}

// Delete removes a cached conversation and its messages.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// READ PATH
// =============================================================================

// Get retrieves a cached transcript by conversation ID.
func (s *Store) Get(ctx context.Context, conversationID string) (*model.Transcript, error) {
	var conv model.Conversation
	var title, userID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, bot_id, bot_name, title, user_id
		FROM conversations WHERE id = ?`, conversationID).
		Scan(&conv.ID, &conv.BotID, &conv.BotName, &title, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	conv.Title = title.String
	conv.UserID = userID.String

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY position`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	transcript := model.NewTranscript(conv)
	for rows.Next() {
		var id, role, content string
		var createdAt int64
		if err := rows.Scan(&id, &role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		transcript.Append(model.NewHistoryMessage(id, conversationID,
			model.Role(role), content, time.Unix(createdAt, 0)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return transcript, nil
}

// Entry is one row of the session list.
type Entry struct {
	Conversation model.Conversation
	UpdatedAt    time.Time
	MessageCount int
}

// Recent lists cached conversations, most recently updated first. n <= 0
// means no limit.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	query := `
		SELECT c.id, c.bot_id, c.bot_name, c.title, c.user_id, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.updated_at DESC`
	args := []interface{}{}
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var title, userID sql.NullString
		var updatedAt int64
		err := rows.Scan(&e.Conversation.ID, &e.Conversation.BotID,
			&e.Conversation.BotName, &title, &userID, &updatedAt, &e.MessageCount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		e.Conversation.Title = title.String
		e.Conversation.UserID = userID.String
		e.UpdatedAt = time.Unix(0, updatedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return entries, nil
}
