// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tutordeck.
//
// Configuration lives at ~/.tutordeck/config.toml with sensible defaults,
// environment variable overrides (TUTORDECK_*), and validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tutordeck/tutordeck-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tutordeck configuration.
type Config struct {
	// Backend connection settings
	Backend BackendConfig `toml:"backend"`

	// UI preferences
	UI UIConfig `toml:"ui"`

	// Local history cache
	History HistoryConfig `toml:"history"`

	// Avatar upload proxy
	Upload UploadConfig `toml:"upload"`
}

// BackendConfig contains backend connection configuration.
type BackendConfig struct {
	// BaseURL is the tutoring backend API base URL
	BaseURL string `toml:"base_url"`
	// TimeoutSecs is the request/response timeout in seconds. Streaming
	// calls are exempt and run under context control.
	TimeoutSecs int `toml:"timeout_secs"`
	// RequestsPerSecond is the client-side rate limit
	RequestsPerSecond float64 `toml:"requests_per_second"`
	// Burst is the rate limiter burst size
	Burst int `toml:"burst"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	// Theme is the color theme: "dark", "light", or "auto"
	Theme string `toml:"theme"`
	// Markdown renders bot messages as markdown when true
	Markdown bool `toml:"markdown"`
	// ShowTimestamps displays message timestamps in the transcript
	ShowTimestamps bool `toml:"show_timestamps"`
	// StreamFPS is the streaming render rate (frames per second)
	StreamFPS int `toml:"stream_fps"`
}

// HistoryConfig contains local history cache configuration.
type HistoryConfig struct {
	// Enabled toggles the local transcript cache
	Enabled bool `toml:"enabled"`
	// Path is the SQLite database path (empty = <config dir>/history.db)
	Path string `toml:"path"`
}

// UploadConfig contains the avatar upload proxy configuration.
type UploadConfig struct {
	// ListenAddr is the proxy listen address
	ListenAddr string `toml:"listen_addr"`
	// BlobBaseURL is the blob store endpoint the proxy forwards to
	BlobBaseURL string `toml:"blob_base_url"`
	// MaxSizeMB caps accepted avatar uploads
	MaxSizeMB int64 `toml:"max_size_mb"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:           "http://localhost:8080/api",
			TimeoutSecs:       30,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		UI: UIConfig{
			Theme:          "auto",
			Markdown:       true,
			ShowTimestamps: false,
			StreamFPS:      30,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Upload: UploadConfig{
			ListenAddr: "127.0.0.1:8090",
			MaxSizeMB:  2,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the tutordeck configuration directory (~/.tutordeck).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".tutordeck"), nil
}

// ConfigPath returns the path to config.toml.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// HistoryPath resolves the history database path, falling back to the
// config dir default.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// EnsureConfigDir creates the configuration directory with owner-only
// permissions and returns it.
func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the configuration from the default path, applying defaults,
// environment overrides, and validation. A missing file is not an error;
// defaults apply.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from an explicit path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default path atomically.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to an explicit path with owner-only
// permissions.
func SaveToPath(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies TUTORDECK_* environment variables on top of the
// loaded values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TUTORDECK_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("TUTORDECK_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backend.TimeoutSecs = n
		}
	}
	if v := os.Getenv("TUTORDECK_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("TUTORDECK_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("TUTORDECK_HISTORY_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.History.Enabled = !b
		}
	}
	if v := os.Getenv("TUTORDECK_UPLOAD_LISTEN"); v != "" {
		c.Upload.ListenAddr = v
	}
	if v := os.Getenv("TUTORDECK_BLOB_URL"); v != "" {
		c.Upload.BlobBaseURL = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config field %s: %s", e.Field, e.Message)
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{"backend.base_url", "must be an absolute URL"})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{"backend.base_url", "scheme must be http or https"})
	}

	if c.Backend.TimeoutSecs <= 0 {
		errs = append(errs, ValidationError{"backend.timeout_secs", "must be positive"})
	}
	if c.Backend.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{"backend.requests_per_second", "must not be negative"})
	}

	switch strings.ToLower(c.UI.Theme) {
	case "dark", "light", "auto":
	default:
		errs = append(errs, ValidationError{"ui.theme", "must be dark, light, or auto"})
	}

	if c.UI.StreamFPS < 1 || c.UI.StreamFPS > 120 {
		errs = append(errs, ValidationError{"ui.stream_fps", "must be between 1 and 120"})
	}

	if c.Upload.MaxSizeMB <= 0 {
		errs = append(errs, ValidationError{"upload.max_size_mb", "must be positive"})
	}

	return errors.Join(errs...)
}
