// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions shared across the tutordeck client.
//
// String helpers truncate by rune or by terminal display width (via
// go-runewidth) so transcript previews never split multi-byte characters.
// AtomicWriteFile performs crash-safe writes with fsync and is used for the
// credential store and the config file.
package util
