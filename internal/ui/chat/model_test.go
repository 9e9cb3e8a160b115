// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tutordeck/tutordeck-tui/internal/chat"
	"github.com/tutordeck/tutordeck-tui/internal/config"
	"github.com/tutordeck/tutordeck-tui/internal/ui/styles"
)

// =============================================================================
// CONFIG HOT RELOAD
// =============================================================================

func TestConfigReloadAppliesUIPrefs(t *testing.T) {
	sess := chat.NewSession(nil, nil)
	m := New(sess, styles.New("dark"), config.UIConfig{
		Theme:     "dark",
		Markdown:  true,
		StreamFPS: 30,
	})
	m.resize(80, 24)

	updated, _ := m.Update(configReloadedMsg{ui: config.UIConfig{
		Theme:     "light",
		Markdown:  false,
		StreamFPS: 60,
	}})
	mm := updated.(*Model)

	if mm.uiCfg.StreamFPS != 60 {
		t.Errorf("StreamFPS = %d, want 60", mm.uiCfg.StreamFPS)
	}
	if mm.gate.Interval() != time.Second/60 {
		t.Errorf("gate interval = %v, want %v", mm.gate.Interval(), time.Second/60)
	}
	if mm.theme.IsDark {
		t.Error("theme should have switched to light")
	}
	if mm.renderer != nil {
		t.Error("disabling markdown should drop the renderer")
	}
}

func TestConfigReloadRebuildsMarkdownRenderer(t *testing.T) {
	sess := chat.NewSession(nil, nil)
	m := New(sess, styles.New("dark"), config.UIConfig{
		Theme:     "dark",
		Markdown:  false,
		StreamFPS: 30,
	})
	// Size arrives through the normal message path.
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	mm := updated.(*Model)
	if mm.renderer != nil {
		t.Fatal("renderer should be absent while markdown is off")
	}

	updated, _ = mm.Update(configReloadedMsg{ui: config.UIConfig{
		Theme:     "dark",
		Markdown:  true,
		StreamFPS: 30,
	}})
	mm = updated.(*Model)
	if mm.renderer == nil {
		t.Error("enabling markdown should build the renderer")
	}
}
