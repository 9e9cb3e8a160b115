// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Conversation identifies one chat thread with a subject bot. A Transcript
// owns the ordered, append-only message list for that conversation. Messages
// have exactly two roles, user and bot; the only mutable message is the most
// recently appended bot placeholder, and only while its stream is in flight.
package model
