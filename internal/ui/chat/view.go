// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tutordeck/tutordeck-tui/internal/chat"
	"github.com/tutordeck/tutordeck-tui/internal/model"
	"github.com/tutordeck/tutordeck-tui/internal/util"
)

// chromeHeight is the vertical space taken by header, input, and status.
const chromeHeight = 6

// contentWidth leaves room for the bubble border and padding.
func contentWidth(width int) int {
	w := width - 4
	if w < 20 {
		w = 20
	}
	return w
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	return sb.String()
}

// renderHeader shows the tutor name and conversation title.
func (m *Model) renderHeader() string {
	conv := m.session.Conversation()
	title := m.theme.HeaderTitle.Render(conv.BotName)
	meta := ""
	if t := m.session.Transcript(); t != nil {
		meta = m.theme.HeaderMeta.Render("  " + util.TruncateWidth(t.Title(), m.width/2))
	}
	return m.theme.Header.Width(m.width).Render(title + meta)
}

// renderStatus shows the spinner, a toast, or key hints.
func (m *Model) renderStatus() string {
	var status string
	switch {
	case m.toast != "":
		status = m.theme.Toast.Render(m.toast)
	case m.streaming:
		status = m.spin.View() + m.theme.ThinkingText.Render(" Tutor is thinking...")
	default:
		status = m.theme.HeaderMeta.Render("enter send · esc leave · pgup/pgdn scroll")
	}
	return m.theme.StatusBar.Width(m.width).Render(status)
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// refreshViewport re-renders the transcript. scrollToBottom keeps the view
// pinned to the newest message, which is where streaming happens.
func (m *Model) refreshViewport(scrollToBottom bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if scrollToBottom {
		m.viewport.GotoBottom()
	}
}

// renderTranscript renders every message, oldest first.
func (m *Model) renderTranscript() string {
	messages := m.session.Messages()
	if len(messages) == 0 {
		return m.theme.ThinkingText.Render("\n  Start the conversation below.")
	}

	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		blocks = append(blocks, m.renderMessage(msg))
	}
	return strings.Join(blocks, "\n\n")
}

// renderMessage renders one message bubble.
func (m *Model) renderMessage(msg *model.Message) string {
	label := m.theme.RoleLabel.Render(msg.Role.DisplayName())
	if m.uiCfg.ShowTimestamps && !msg.CreatedAt.IsZero() {
		label += m.theme.Timestamp.Render("  " + msg.CreatedAt.Format("15:04"))
	}

	content := msg.DisplayContent()
	width := contentWidth(m.width)

	switch {
	case msg.Role == model.RoleUser:
		body := lipgloss.NewStyle().Width(width).Render(content)
		return label + "\n" + m.theme.UserBubble.Render(body)

	case content == chat.FailureNotice:
		return label + "\n" + m.theme.TutorBubble.Render(m.theme.FailedText.Render(content))

	case msg.InFlight() && content == "":
		return label + "\n" + m.theme.TutorBubble.Render(m.theme.ThinkingText.Render("..."))

	default:
		return label + "\n" + m.theme.TutorBubble.Render(m.renderBotContent(content, msg.InFlight()))
	}
}

// renderBotContent renders tutor text, as markdown when configured. Content
// still streaming is shown raw; partial markdown renders misleadingly.
func (m *Model) renderBotContent(content string, inFlight bool) string {
	width := contentWidth(m.width)
	if m.renderer == nil || inFlight {
		return lipgloss.NewStyle().Width(width).Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return lipgloss.NewStyle().Width(width).Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}
