// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/tutordeck/tutordeck-tui/internal/chat"
	"github.com/tutordeck/tutordeck-tui/internal/config"
	"github.com/tutordeck/tutordeck-tui/internal/ui/styles"
)

// toastDuration is how long a transient notice stays visible.
const toastDuration = 3 * time.Second

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	session *chat.Session
	theme   *styles.Theme
	uiCfg   config.UIConfig

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer

	gate *RepaintGate

	// OnStreamEnd runs after each completed response cycle, streaming
	// state already cleared. The CLI uses it to persist the transcript.
	OnStreamEnd func()

	width     int
	height    int
	ready     bool
	streaming bool
	toast     string
}

// New creates the chat view over a loaded session.
func New(sess *chat.Session, theme *styles.Theme, uiCfg config.UIConfig) *Model {
	input := textinput.New()
	input.Placeholder = "Ask your tutor anything..."
	input.Prompt = theme.InputPrompt.Render("> ")
	input.CharLimit = 4000
	input.Focus()

	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	spin.Style = theme.Spinner

	return &Model{
		session: sess,
		theme:   theme,
		uiCfg:   uiCfg,
		input:   input,
		spin:    spin,
		gate:    NewRepaintGate(uiCfg.StreamFPS),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// =============================================================================
// RUN
// =============================================================================

// Run starts the chat view and blocks until the user leaves it. The session
// notifier is wired to the program for the duration, and UI preferences
// hot-reload when the config file changes on disk.
func Run(sess *chat.Session, theme *styles.Theme, uiCfg config.UIConfig, onStreamEnd func()) error {
	m := New(sess, theme, uiCfg)
	m.OnStreamEnd = onStreamEnd

	program := tea.NewProgram(m, tea.WithAltScreen())
	sess.SetNotifier(&programNotifier{program: program})
	defer sess.SetNotifier(nil)

	if path, err := config.ConfigPath(); err == nil {
		watcher, werr := config.NewWatcher(path, func(cfg *config.Config) {
			program.Send(configReloadedMsg{ui: cfg.UI})
		})
		if werr != nil {
			log.Printf("chat: config watch disabled: %v", werr)
		} else {
			defer watcher.Close()
		}
	}

	_, err := program.Run()
	return err
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refreshViewport(true)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case transcriptUpdatedMsg:
		m.gate.Note()
		if !m.streaming {
			// Outside streaming these are rare; repaint immediately.
			m.gate.Force()
			m.refreshViewport(true)
		}
		return m, nil

	case renderTickMsg:
		if m.gate.Due() {
			m.refreshViewport(true)
		}
		if m.streaming {
			return m, renderTick(m.gate.Interval())
		}
		return m, nil

	case streamEndedMsg:
		m.streaming = false
		m.gate.Force()
		m.refreshViewport(true)
		if m.OnStreamEnd != nil {
			m.OnStreamEnd()
		}
		return m, nil

	case toastMsg:
		m.toast = msg.text
		return m, tea.Tick(toastDuration, func(time.Time) tea.Msg {
			return toastExpiredMsg{}
		})

	case toastExpiredMsg:
		m.toast = ""
		return m, nil

	case configReloadedMsg:
		m.applyUIConfig(msg.ui)
		return m, nil

	case spinner.TickMsg:
		if !m.streaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey routes keyboard input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {

	case tea.KeyCtrlC:
		// Leaving mid-stream freezes the partial response silently.
		m.session.Cancel()
		return m, tea.Quit

	case tea.KeyEsc:
		if m.streaming {
			m.session.Cancel()
			return m, nil
		}
		m.session.Cancel()
		return m, tea.Quit

	case tea.KeyEnter:
		return m.submit()

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the typed text through the session.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	err := m.session.Send(context.Background(), m.input.Value())
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		// Nothing to do; input stays as typed.
		return m, nil
	case errors.Is(err, chat.ErrBusy):
		m.toast = "Wait for the tutor to finish"
		return m, tea.Tick(toastDuration, func(time.Time) tea.Msg {
			return toastExpiredMsg{}
		})
	case err != nil:
		m.toast = "Could not send message"
		return m, tea.Tick(toastDuration, func(time.Time) tea.Msg {
			return toastExpiredMsg{}
		})
	}

	m.input.Reset()
	m.streaming = true
	m.refreshViewport(true)
	return m, tea.Batch(m.spin.Tick, renderTick(m.gate.Interval()))
}

// applyUIConfig applies hot-reloaded UI preferences in place: theme,
// markdown rendering, streaming frame rate.
func (m *Model) applyUIConfig(ui config.UIConfig) {
	m.uiCfg = ui
	m.theme = styles.New(ui.Theme)
	m.input.Prompt = m.theme.InputPrompt.Render("> ")
	m.spin.Style = m.theme.Spinner
	m.gate = NewRepaintGate(ui.StreamFPS)

	if !ui.Markdown {
		m.renderer = nil
	}
	if m.ready {
		// resize rebuilds the markdown renderer when it is enabled.
		m.resize(m.width, m.height)
		m.refreshViewport(true)
	}
}

// =============================================================================
// LAYOUT
// =============================================================================

// resize recomputes layout and the markdown renderer for a new size.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	contentHeight := height - chromeHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, contentHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = contentHeight
	}
	m.input.Width = width - 6

	if m.uiCfg.Markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(contentWidth(width)),
		)
		if err == nil {
			m.renderer = renderer
		}
	}
}
