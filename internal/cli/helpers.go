// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared wiring and prompting helpers for CLI commands.
package cli

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/tutordeck/tutordeck-tui/internal/api"
	"github.com/tutordeck/tutordeck-tui/internal/auth"
	"github.com/tutordeck/tutordeck-tui/internal/config"
	"github.com/tutordeck/tutordeck-tui/internal/history"
	"github.com/tutordeck/tutordeck-tui/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Sky).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose)

	successStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)
)

// =============================================================================
// LOGGING
// =============================================================================

// SetupLogging routes the standard logger to a file under the config dir.
// Stderr logging would bleed through the full-screen UI, so interactive
// commands call this before starting Bubble Tea. Best effort: on failure
// the logger stays on stderr.
func SetupLogging() {
	dir, err := config.EnsureConfigDir()
	if err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "tutordeck.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return
	}
	log.SetOutput(f)
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env bundles the pieces every networked command needs: configuration,
// the credential store, and an API client wired to both.
type Env struct {
	Config *config.Config
	Creds  auth.CredentialStore
	Client *api.Client
}

// LoadEnv loads configuration and builds the credential store and API
// client. Commands that never touch the network should use config.Load
// directly instead.
func LoadEnv() (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dir, err := config.EnsureConfigDir()
	if err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}

	creds, err := auth.NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}

	client := api.NewClient(cfg.Backend.BaseURL, creds).
		WithTimeout(time.Duration(cfg.Backend.TimeoutSecs)*time.Second).
		WithRateLimit(cfg.Backend.RequestsPerSecond, cfg.Backend.Burst)

	return &Env{Config: cfg, Creds: creds, Client: client}, nil
}

// OpenHistory opens the local transcript cache, or returns (nil, nil)
// when history is disabled in configuration.
func (e *Env) OpenHistory() (*history.Store, error) {
	if !e.Config.History.Enabled {
		return nil, nil
	}
	path, err := e.Config.HistoryPath()
	if err != nil {
		return nil, fmt.Errorf("history path: %w", err)
	}
	store, err := history.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// =============================================================================
// PROMPTING
// =============================================================================

// readLine prompts on stdout and reads one line from stdin.
func readLine(prompt string) (string, error) {
	fmt.Print(promptStyle.Render(prompt))
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword prompts and reads a password without echoing it.
// SECURITY: term.ReadPassword keeps the password off the terminal.
func readPassword(prompt string) (string, error) {
	fmt.Print(promptStyle.Render(prompt))
	passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(passBytes)), nil
}

// printError writes a styled error line to stderr.
func printError(format string, a ...interface{}) {
	fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf(format, a...)))
}
