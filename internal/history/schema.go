// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

// Schema is the local history cache schema.
const Schema = `
-- Conversations table: one row per cached conversation
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    bot_id TEXT NOT NULL,
    bot_name TEXT NOT NULL,
    title TEXT,
    user_id TEXT,
    updated_at INTEGER NOT NULL  -- Unix nanoseconds
) WITHOUT ROWID;

-- Messages table: frozen transcript messages, ordered by position
CREATE TABLE IF NOT EXISTS messages (
    id TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    role TEXT NOT NULL,          -- user, bot
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL, -- Unix timestamp
    PRIMARY KEY (conversation_id, position),
    FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);
`
