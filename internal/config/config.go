// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatdeck/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatdeck configuration.
type Config struct {
	// General settings
	Version string `toml:"version"`

	// API configuration
	API APIConfig `toml:"api"`

	// Storage configuration
	Storage StorageConfig `toml:"storage"`

	// Chat behavior configuration
	Chat ChatConfig `toml:"chat"`

	// UI configuration
	UI UIConfig `toml:"ui"`

	// Logging configuration
	Log LogConfig `toml:"log"`
}

// APIConfig contains chat backend configuration.
type APIConfig struct {
	// BaseURL is the chat backend base URL
	BaseURL string `toml:"base_url"`
	// DefaultModel is the model used when a session has none selected
	DefaultModel string `toml:"default_model"`
	// RequestTimeoutSecs bounds non-streaming requests
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
}

// StorageConfig contains persistence configuration.
type StorageConfig struct {
	// DataDir is where chatdeck keeps its database and guest blob
	// (empty = ~/.chatdeck)
	DataDir string `toml:"data_dir"`
	// GuestMode selects the JSON blob backend instead of SQLite
	GuestMode bool `toml:"guest_mode"`
	// DatabaseFile is the SQLite filename inside DataDir
	DatabaseFile string `toml:"database_file"`
	// GuestFile is the guest blob filename inside DataDir
	GuestFile string `toml:"guest_file"`
}

// ChatConfig contains chat behavior configuration.
type ChatConfig struct {
	// DuplicateWindowSecs is the timestamp tolerance for the duplicate
	// filter applied when remote history is merged
	DuplicateWindowSecs int `toml:"duplicate_window_secs"`
	// SendIntervalMillis spaces out sends; 0 disables the rate cap
	SendIntervalMillis int `toml:"send_interval_millis"`
	// SendBurst is how many sends may go through back to back
	SendBurst int `toml:"send_burst"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme selects the color theme: "dark" or "light"
	Theme string `toml:"theme"`
	// CompactMode reduces message padding
	CompactMode bool `toml:"compact_mode"`
	// ShowTimestamps displays a timestamp next to each message
	ShowTimestamps bool `toml:"show_timestamps"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error"
	Level string `toml:"level"`
	// File is the log file path (empty = DataDir/chatdeck.log)
	File string `toml:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		API: APIConfig{
			BaseURL:            "http://127.0.0.1:8787",
			DefaultModel:       "gpt-4o-mini",
			RequestTimeoutSecs: 60,
		},

		Storage: StorageConfig{
			DataDir:      "", // resolved to ~/.chatdeck
			GuestMode:    false,
			DatabaseFile: "chatdeck.db",
			GuestFile:    "guest_chats.json",
		},

		Chat: ChatConfig{
			DuplicateWindowSecs: 10,
			SendIntervalMillis:  0,
			SendBurst:           3,
		},

		UI: UIConfig{
			Theme:          "dark",
			CompactMode:    false,
			ShowTimestamps: true,
		},

		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatdeck configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatdeck"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ResolvedDataDir returns the storage directory, defaulting to the config
// directory when unset.
func (c *Config) ResolvedDataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	return ConfigDir()
}

// DatabasePath returns the full SQLite database path.
func (c *Config) DatabasePath() (string, error) {
	dir, err := c.ResolvedDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.DatabaseFile), nil
}

// GuestPath returns the full guest blob path.
func (c *Config) GuestPath() (string, error) {
	dir, err := c.ResolvedDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.GuestFile), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file, falling back to defaults
// when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := LoadTOML(cfg, path); err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.DefaultModel == "" {
		c.API.DefaultModel = defaults.API.DefaultModel
	}
	if c.API.RequestTimeoutSecs == 0 {
		c.API.RequestTimeoutSecs = defaults.API.RequestTimeoutSecs
	}
	if c.Storage.DatabaseFile == "" {
		c.Storage.DatabaseFile = defaults.Storage.DatabaseFile
	}
	if c.Storage.GuestFile == "" {
		c.Storage.GuestFile = defaults.Storage.GuestFile
	}
	if c.Chat.DuplicateWindowSecs == 0 {
		c.Chat.DuplicateWindowSecs = defaults.Chat.DuplicateWindowSecs
	}
	if c.Chat.SendBurst == 0 {
		c.Chat.SendBurst = defaults.Chat.SendBurst
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML path atomically.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file atomically.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config field %s: %s", e.Field, e.Message)
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ValidationError{Field: "api.base_url",
				Message: fmt.Sprintf("not a valid http(s) URL: %q", c.API.BaseURL)}
		}
	}
	if c.API.RequestTimeoutSecs < 0 {
		return ValidationError{Field: "api.request_timeout_secs", Message: "must not be negative"}
	}
	if c.Chat.DuplicateWindowSecs < 0 {
		return ValidationError{Field: "chat.duplicate_window_secs", Message: "must not be negative"}
	}
	if c.Chat.SendIntervalMillis < 0 {
		return ValidationError{Field: "chat.send_interval_millis", Message: "must not be negative"}
	}
	switch c.UI.Theme {
	case "", "dark", "light":
	default:
		return ValidationError{Field: "ui.theme",
			Message: fmt.Sprintf("unknown theme %q (want dark or light)", c.UI.Theme)}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return ValidationError{Field: "log.level",
			Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CHATDECK_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATDECK_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("CHATDECK_MODEL"); v != "" {
		c.API.DefaultModel = v
	}
	if v := os.Getenv("CHATDECK_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("CHATDECK_GUEST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Storage.GuestMode = b
		}
	}
	if v := os.Getenv("CHATDECK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CHATDECK_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// =============================================================================
// GLOBAL CONFIG
// =============================================================================

var (
	globalMu   sync.RWMutex
	globalCfg  *Config
	globalOnce sync.Once
)

// Global returns the process-wide configuration, loading it on first use.
// A load failure falls back to defaults.
func Global() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
			cfg.ApplyEnvOverrides()
		}
		globalMu.Lock()
		globalCfg = cfg
		globalMu.Unlock()
	})

	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalCfg
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalOnce.Do(func() {})
	globalMu.Lock()
	globalCfg = cfg
	globalMu.Unlock()
}

// ResetGlobalForTesting clears the global config so tests can reload.
func ResetGlobalForTesting() {
	globalMu.Lock()
	globalCfg = nil
	globalMu.Unlock()
	globalOnce = sync.Once{}
}
