// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for fluxboard clients.
//
// Configuration is loaded from a single file specified by:
//   - FLUXBOARD_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for a fluxboard client.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Server configures the service endpoints.
	Server ServerConfig `yaml:"server"`

	// Board identifies the board to join.
	Board BoardConfig `yaml:"board"`

	// Session configures the user-facing session behavior.
	Session SessionConfig `yaml:"session"`

	// Reconnect configures the channel reconnect policy.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Cache configures the local snapshot cache.
	Cache CacheConfig `yaml:"cache"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Session   *SessionConfig   `yaml:"session,omitempty"`
	Reconnect *ReconnectConfig `yaml:"reconnect,omitempty"`
	Cache     *CacheConfig     `yaml:"cache,omitempty"`
}

// ServerConfig configures the three service endpoints. The development
// simulator serves all three from one process, so the defaults share a
// host.
type ServerConfig struct {
	// BoardURL is the Board Service REST base URL.
	// Default: http://localhost:4100
	BoardURL string `yaml:"board_url"`

	// FeedURL is the Change Feed base URL. The per-board SSE path is
	// appended by the client.
	// Default: http://localhost:4100
	FeedURL string `yaml:"feed_url"`

	// PresenceURL is the Presence Service websocket URL.
	// Default: ws://localhost:4100/presence
	PresenceURL string `yaml:"presence_url"`
}

// BoardConfig identifies the board a session joins. The share token is
// the only addressing the services use; there is no separate board id
// on the wire.
type BoardConfig struct {
	// ShareToken addresses and authorizes the board.
	ShareToken string `yaml:"share_token"`

	// Password unlocks mutations on a locked board. Optional.
	Password string `yaml:"password"`
}

// SessionConfig configures user-facing session behavior.
type SessionConfig struct {
	// Username is the display name announced to the presence channel.
	// At most 32 UTF-8 bytes: that is all the join message can carry.
	Username string `yaml:"username"`

	// CursorInterval is the cursor broadcast throttle window.
	// Default: 50ms
	CursorInterval string `yaml:"cursor_interval"`

	// HeartbeatInterval is the presence keepalive cadence.
	// Default: 30s
	HeartbeatInterval string `yaml:"heartbeat_interval"`
}

// ReconnectConfig configures the reconnect policy shared by the feed
// and presence channels.
type ReconnectConfig struct {
	// MaxAttempts is how many consecutive connect attempts are made
	// before the channel gives up. Default: 5
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the first reconnect delay; each further attempt
	// doubles it. Default: 1s
	BaseDelay string `yaml:"base_delay"`
}

// CacheConfig configures the local snapshot cache.
type CacheConfig struct {
	// Dir is the directory holding snapshot files.
	// Default: ${HOME}/.cache/fluxboard
	Dir string `yaml:"dir"`

	// MaxAge is how old a snapshot may be and still seed a session
	// start. Default: 24h
	MaxAge string `yaml:"max_age"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Server: ServerConfig{
			BoardURL:    "http://localhost:4100",
			FeedURL:     "http://localhost:4100",
			PresenceURL: "ws://localhost:4100/presence",
		},
		Session: SessionConfig{
			CursorInterval:    "50ms",
			HeartbeatInterval: "30s",
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			BaseDelay:   "1s",
		},
		Cache: CacheConfig{
			Dir:    filepath.Join(homeDir, ".cache", "fluxboard"),
			MaxAge: "24h",
		},
	}
}

// Load loads configuration from the FLUXBOARD_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if FLUXBOARD_CONFIG is not set, this
// fails. This ensures deterministic, auditable configuration with no hidden
// overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("FLUXBOARD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FLUXBOARD_CONFIG environment variable not set; " +
			"set it to the path of your fluxboard.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar variables for
// portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.BoardURL != "" {
			c.Server.BoardURL = overrides.Server.BoardURL
		}
		if overrides.Server.FeedURL != "" {
			c.Server.FeedURL = overrides.Server.FeedURL
		}
		if overrides.Server.PresenceURL != "" {
			c.Server.PresenceURL = overrides.Server.PresenceURL
		}
	}

	if overrides.Session != nil {
		if overrides.Session.Username != "" {
			c.Session.Username = overrides.Session.Username
		}
		if overrides.Session.CursorInterval != "" {
			c.Session.CursorInterval = overrides.Session.CursorInterval
		}
		if overrides.Session.HeartbeatInterval != "" {
			c.Session.HeartbeatInterval = overrides.Session.HeartbeatInterval
		}
	}

	if overrides.Reconnect != nil {
		if overrides.Reconnect.MaxAttempts > 0 {
			c.Reconnect.MaxAttempts = overrides.Reconnect.MaxAttempts
		}
		if overrides.Reconnect.BaseDelay != "" {
			c.Reconnect.BaseDelay = overrides.Reconnect.BaseDelay
		}
	}

	if overrides.Cache != nil {
		if overrides.Cache.Dir != "" {
			c.Cache.Dir = overrides.Cache.Dir
		}
		if overrides.Cache.MaxAge != "" {
			c.Cache.MaxAge = overrides.Cache.MaxAge
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths
// and endpoint URLs.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Server.BoardURL = expandVars(c.Server.BoardURL, vars)
	c.Server.FeedURL = expandVars(c.Server.FeedURL, vars)
	c.Server.PresenceURL = expandVars(c.Server.PresenceURL, vars)
	c.Cache.Dir = expandVars(c.Cache.Dir, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if err := validateHTTPURL("server.board_url", c.Server.BoardURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateHTTPURL("server.feed_url", c.Server.FeedURL); err != nil {
		errs = append(errs, err)
	}
	if c.Server.PresenceURL == "" {
		errs = append(errs, fmt.Errorf("server.presence_url is required"))
	} else if parsed, err := url.Parse(c.Server.PresenceURL); err != nil {
		errs = append(errs, fmt.Errorf("server.presence_url: %w", err))
	} else if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("server.presence_url scheme must be ws or wss, got %q", parsed.Scheme))
	}

	if c.Board.ShareToken == "" {
		errs = append(errs, fmt.Errorf("board.share_token is required"))
	}

	if c.Session.Username == "" {
		errs = append(errs, fmt.Errorf("session.username is required"))
	} else if len(c.Session.Username) > 32 {
		errs = append(errs, fmt.Errorf("session.username is %d bytes, maximum is 32", len(c.Session.Username)))
	}
	if err := validateDuration("session.cursor_interval", c.Session.CursorInterval); err != nil {
		errs = append(errs, err)
	}
	if err := validateDuration("session.heartbeat_interval", c.Session.HeartbeatInterval); err != nil {
		errs = append(errs, err)
	}

	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("reconnect.max_attempts must be at least 1"))
	}
	if err := validateDuration("reconnect.base_delay", c.Reconnect.BaseDelay); err != nil {
		errs = append(errs, err)
	}

	if c.Cache.Dir == "" {
		errs = append(errs, fmt.Errorf("cache.dir is required"))
	}
	if err := validateDuration("cache.max_age", c.Cache.MaxAge); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateHTTPURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got %q", field, parsed.Scheme)
	}
	return nil
}

func validateDuration(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}

// EnsureCacheDir creates the snapshot cache directory if it doesn't exist.
func (c *Config) EnsureCacheDir() error {
	if c.Cache.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Cache.Dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Cache.Dir, err)
	}
	return nil
}
