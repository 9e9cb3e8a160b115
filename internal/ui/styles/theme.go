// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the chat view. It detects the
// terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	// Message bubbles
	UserBubble  lipgloss.Style
	TutorBubble lipgloss.Style
	FailedText  lipgloss.Style
	RoleLabel   lipgloss.Style
	Timestamp   lipgloss.Style

	// Input area
	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// Status line
	StatusBar    lipgloss.Style
	Spinner      lipgloss.Style
	ThinkingText lipgloss.Style
	Toast        lipgloss.Style
}

// New builds a theme. forceMode pins the background assumption instead of
// querying the terminal: "dark", "light", or anything else for auto-detect.
func New(forceMode string) *Theme {
	profile := termenv.ColorProfile()

	var isDark bool
	switch forceMode {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	default:
		isDark = termenv.HasDarkBackground()
	}

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.build()
	return t
}

func (t *Theme) build() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(Indigo).
		Bold(true)
	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1)
	t.TutorBubble = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(TutorBubbleBorder).
		PaddingLeft(1)
	t.FailedText = lipgloss.NewStyle().
		Foreground(Rose).
		Italic(true)
	t.RoleLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true)
	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Sky).
		Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.Spinner = lipgloss.NewStyle().
		Foreground(Indigo)
	t.ThinkingText = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)
	t.Toast = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)
}
