// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tutordeck/tutordeck-tui/internal/config"
)

// =============================================================================
// PROGRAM MESSAGES
// =============================================================================

// transcriptUpdatedMsg signals the session mutated the transcript.
type transcriptUpdatedMsg struct{}

// streamEndedMsg signals a response cycle finished.
type streamEndedMsg struct {
	messageID string
	err       error
}

// toastMsg carries a transient user-facing notice.
type toastMsg struct {
	text string
}

// toastExpiredMsg clears a displayed toast.
type toastExpiredMsg struct{}

// configReloadedMsg carries freshly reloaded UI preferences from the
// config file watcher.
type configReloadedMsg struct {
	ui config.UIConfig
}

// =============================================================================
// NOTIFIER BRIDGE
// =============================================================================

// programNotifier forwards session events into the Bubble Tea loop. The
// session calls these from its pipeline goroutine; Program.Send is safe for
// that.
type programNotifier struct {
	program *tea.Program
}

func (n *programNotifier) TranscriptUpdated() {
	n.program.Send(transcriptUpdatedMsg{})
}

func (n *programNotifier) StreamEnded(messageID string, err error) {
	n.program.Send(streamEndedMsg{messageID: messageID, err: err})
}

func (n *programNotifier) Toast(text string) {
	n.program.Send(toastMsg{text: text})
}
