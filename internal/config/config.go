// Package config provides configuration loading and defaults for the powerhook
// daemon.
//
// Configuration is loaded from a TOML file in the user's data directory.
// The package covers logging, the sleep/wake hook set, webhook delivery and
// daemon behavior, with defaults that run every script in the hook
// directories and nothing else.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/powerhook/internal/atomicfile"
	"tools.zach/dev/powerhook/internal/migrate"
	"tools.zach/dev/powerhook/internal/paths"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Hooks holds the commands and scripts run on sleep and wake.
	Hooks HooksConfig `toml:"hooks"`
	// Webhook holds HTTP notification settings.
	Webhook WebhookConfig `toml:"webhook"`
	// Daemon holds daemon behavior settings.
	Daemon DaemonConfig `toml:"daemon"`

	// Unknown lists keys present in the file that no field consumed,
	// usually typos. Filled by [Load].
	Unknown []string `toml:"-"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// HooksConfig holds the local hook set.
type HooksConfig struct {
	// TimeoutSeconds bounds each command or script.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// SleepCommands are shell command lines run before sleep, in order.
	SleepCommands []string `toml:"sleep_commands"`
	// WakeCommands are shell command lines run after wake, in order.
	WakeCommands []string `toml:"wake_commands"`
	// SleepScripts are glob patterns selecting files in hooks/sleep.d.
	SleepScripts []string `toml:"sleep_scripts"`
	// WakeScripts are glob patterns selecting files in hooks/wake.d.
	WakeScripts []string `toml:"wake_scripts"`
}

// WebhookConfig holds HTTP notification settings.
type WebhookConfig struct {
	// URLs receive a JSON POST for every sleep and wake event.
	URLs []string `toml:"urls"`
	// RetryMax is the number of retries per URL after the first attempt.
	RetryMax int `toml:"retry_max"`
	// TimeoutSeconds bounds each HTTP attempt.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// DaemonConfig holds daemon behavior settings.
type DaemonConfig struct {
	// WatchConfig reloads the hook set when config.toml changes.
	WatchConfig bool `toml:"watch_config"`
	// RecordState keeps state.json updated with sleep and wake history.
	RecordState bool `toml:"record_state"`
}

// Timeout returns the per-hook timeout.
func (h HooksConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// Timeout returns the per-attempt HTTP timeout.
func (w WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
		Hooks: HooksConfig{
			TimeoutSeconds: 30,
			SleepCommands:  []string{},
			WakeCommands:   []string{},
			SleepScripts:   []string{"*"},
			WakeScripts:    []string{"*"},
		},
		Webhook: WebhookConfig{
			URLs:           []string{},
			RetryMax:       2,
			TimeoutSeconds: 5,
		},
		Daemon: DaemonConfig{
			WatchConfig: true,
			RecordState: true,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns a Config suitable for generating config.default.toml.
// For this project all defaults are good examples.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// PeekVersion returns the schema version recorded in a config file. A file
// without one, or one that does not parse, counts as version 1.
func PeekVersion(data []byte) int {
	var head struct {
		Version int `toml:"version"`
	}
	if _, err := toml.Decode(string(data), &head); err != nil || head.Version < 1 {
		return 1
	}
	return head.Version
}

// Load returns the configuration in dataDir, layered over [DefaultConfig].
// A missing file yields the defaults. An older schema is migrated, the
// original kept as config.toml.bak and the upgraded file written back.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	upgraded, migrated, err := migrate.Config.Upgrade(data, PeekVersion(data))
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(upgraded), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion
	for _, k := range md.Undecoded() {
		cfg.Unknown = append(cfg.Unknown, k.String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if migrated {
		if err := atomicfile.Write(path+".bak", data, 0o644); err != nil {
			slog.Warn("config backup not written, leaving old file in place", "error", err)
			return cfg, nil
		}
		if err := cfg.Save(path); err != nil {
			slog.Warn("migrated config not saved", "error", err)
		}
	}
	return cfg, nil
}

// Seed writes defaultTOML to dataDir/config.toml unless a config file already
// exists. It reports whether the file was written. An existing file is never
// touched, even by a concurrent Seed.
func Seed(dataDir string, defaultTOML []byte) (bool, error) {
	err := atomicfile.Create(filepath.Join(dataDir, paths.ConfigFile), defaultTOML, 0o644)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, atomicfile.ErrExist):
		return false, nil
	default:
		return false, fmt.Errorf("seed config: %w", err)
	}
}

// Save writes c to path as TOML, replacing any existing file atomically.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Validate reports every out-of-range value, one joined error per key.
func (c *Config) Validate() error {
	var errs []error
	bad := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: "+format, append([]any{key}, args...)...))
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		bad("log.level", "%q is not one of %s", c.Log.Level, strings.Join(logLevels, ", "))
	}
	if c.Log.MaxSizeMB <= 0 {
		bad("log.max_size_mb", "must be positive, got %d", c.Log.MaxSizeMB)
	}
	if c.Hooks.TimeoutSeconds <= 0 {
		bad("hooks.timeout_seconds", "must be positive, got %d", c.Hooks.TimeoutSeconds)
	}

	checkPatterns := func(key string, patterns []string) {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				bad(key, "invalid pattern %q", p)
			}
		}
	}
	checkPatterns("hooks.sleep_scripts", c.Hooks.SleepScripts)
	checkPatterns("hooks.wake_scripts", c.Hooks.WakeScripts)

	checkCommands := func(key string, cmds []string) {
		for i, cmd := range cmds {
			if strings.TrimSpace(cmd) == "" {
				bad(key, "entry %d is blank", i)
			}
		}
	}
	checkCommands("hooks.sleep_commands", c.Hooks.SleepCommands)
	checkCommands("hooks.wake_commands", c.Hooks.WakeCommands)

	for _, raw := range c.Webhook.URLs {
		u, err := url.Parse(raw)
		switch {
		case err != nil:
			bad("webhook.urls", "%v", err)
		case u.Scheme != "http" && u.Scheme != "https":
			bad("webhook.urls", "%q must be an http or https url", raw)
		case u.Host == "":
			bad("webhook.urls", "%q has no host", raw)
		}
	}
	if c.Webhook.RetryMax < 0 {
		bad("webhook.retry_max", "must not be negative, got %d", c.Webhook.RetryMax)
	}
	if c.Webhook.TimeoutSeconds <= 0 {
		bad("webhook.timeout_seconds", "must be positive, got %d", c.Webhook.TimeoutSeconds)
	}

	return errors.Join(errs...)
}
