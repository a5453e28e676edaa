// Package config handles configuration loading, validation, and management for keyblast.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"keyblast/internal/logging"
	"keyblast/internal/macro"
)

// Version is the current configuration schema version.
const Version = 2

// Config holds the complete keyblast configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Playback tunes the execution engine.
	Playback PlaybackConfig `toml:"playback" json:"playback" yaml:"playback"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// History configures the run history database.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// Notifications configures desktop notifications.
	Notifications NotificationsConfig `toml:"notifications" json:"notifications" yaml:"notifications"`

	// Macros are the user's macro definitions.
	Macros []MacroDefinition `toml:"macros" json:"macros" yaml:"macros"`
}

// PlaybackConfig holds execution engine tuning.
type PlaybackConfig struct {
	// FastPathMaxSegments is the largest macro played synchronously when it
	// has no delays. -1 disables the fast path.
	FastPathMaxSegments int `toml:"fast_path_max_segments" json:"fast_path_max_segments" yaml:"fast_path_max_segments"`

	// ModifierSettleMs is the pause after releasing held modifiers.
	ModifierSettleMs int `toml:"modifier_settle_ms" json:"modifier_settle_ms" yaml:"modifier_settle_ms"`

	// PollIntervalMs bounds cancellation latency inside pauses.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// DrainIntervalMs is how often the controller drains worker commands.
	DrainIntervalMs int `toml:"drain_interval_ms" json:"drain_interval_ms" yaml:"drain_interval_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is where logs go: stdout, stderr, file, or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress"`
}

// HistoryConfig holds run history configuration.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// MaxRuns caps the stored runs; older runs are pruned. 0 keeps all.
	MaxRuns int `toml:"max_runs" json:"max_runs" yaml:"max_runs"`
}

// NotificationsConfig holds desktop notification configuration.
type NotificationsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// DebounceMs suppresses repeated notifications inside this window.
	// Permission notifications are never suppressed.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// MacroDefinition is a single user macro.
type MacroDefinition struct {
	// Name is the unique, human-readable macro name.
	Name string `toml:"name" json:"name" yaml:"name"`

	// Hotkey is a chord such as "ctrl+shift+k".
	Hotkey string `toml:"hotkey" json:"hotkey" yaml:"hotkey"`

	// Text is the macro source, with {Enter}, {Delay 500} and so on.
	Text string `toml:"text" json:"text" yaml:"text"`

	// DelayMs is the pause between segments. 0 types in bulk.
	DelayMs uint64 `toml:"delay_ms" json:"delay_ms" yaml:"delay_ms"`

	// Group is an optional category. Empty means ungrouped.
	Group string `toml:"group,omitempty" json:"group,omitempty" yaml:"group,omitempty"`
}

// Delay returns the inter-segment delay, saturating like an inline delay.
func (m MacroDefinition) Delay() time.Duration {
	return macro.Delay(m.DelayMs).Duration()
}

// GroupName returns the group, or "Ungrouped".
func (m MacroDefinition) GroupName() string {
	if m.Group == "" {
		return "Ungrouped"
	}
	return m.Group
}

// DefaultConfig returns a configuration with sensible defaults and no macros.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Playback: PlaybackConfig{
			FastPathMaxSegments: 10,
			ModifierSettleMs:    50,
			PollIntervalMs:      50,
			DrainIntervalMs:     10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   defaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 7,
			MaxAgeDays: 7,
			Compress:   true,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath(),
			MaxRuns: 1000,
		},
		Notifications: NotificationsConfig{
			Enabled:    true,
			DebounceMs: 3000,
		},
		Macros: []MacroDefinition{},
	}
}

func defaultLogPath() string {
	return filepath.Join(logging.DefaultLogDir(), "keyblast.log")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	if cfg.Version > Version {
		return nil, &UnsupportedVersionError{Version: cfg.Version}
	}

	cfg.ApplyEnvOverrides()
	MigrateConfig(cfg)
	return cfg, nil
}

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := decode(data, formatOf(path), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// formatOf maps a file extension to a format name; "" means unknown.
func formatOf(path string) string {
	switch filepath.Ext(path) {
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

func decode(data []byte, format string, v any) error {
	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), v); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := autoDetectAndParse(data, v); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

// autoDetectAndParse attempts to parse the config in multiple formats.
func autoDetectAndParse(data []byte, v any) error {
	if _, err := toml.Decode(string(data), v); err == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, v); err == nil {
		return nil
	}
	return fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

func encode(v any, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		return yaml.Marshal(v)
	default:
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.Indent = ""
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// SaveConfig writes the configuration atomically: it writes a temporary file
// next to path and renames it into place.
func SaveConfig(cfg *Config, path string) error {
	data, err := encode(cfg, formatOf(path))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close config: %w", err)
	}

	if runtime.GOOS == "windows" {
		os.Remove(path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// LoadOrCreate loads the configuration from path, creating a default
// configuration file if it doesn't exist. The bool reports creation.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		return cfg, true, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// Validate checks the configuration for errors. Warnings are not errors;
// see Warnings.
func (c *Config) Validate() error {
	if errs := ValidateConfig(c).Errors(); len(errs) > 0 {
		return errs
	}
	return nil
}

// Warnings returns non-fatal issues such as duplicate names or hotkeys.
func (c *Config) Warnings() ValidationErrors {
	return ValidateConfig(c).Warnings()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with KEYBLAST_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KEYBLAST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KEYBLAST_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("KEYBLAST_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("KEYBLAST_NOTIFICATIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Notifications.Enabled = b
		}
	}
	if v := os.Getenv("KEYBLAST_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Playback.PollIntervalMs = n
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Macros = append([]MacroDefinition{}, c.Macros...)
	return &clone
}

// Macro returns the first macro with the given name.
func (c *Config) Macro(name string) (MacroDefinition, bool) {
	for _, m := range c.Macros {
		if m.Name == name {
			return m, true
		}
	}
	return MacroDefinition{}, false
}

// Groups returns macros keyed by group name.
func (c *Config) Groups() map[string][]MacroDefinition {
	groups := make(map[string][]MacroDefinition)
	for _, m := range c.Macros {
		groups[m.GroupName()] = append(groups[m.GroupName()], m)
	}
	return groups
}

// EnsureDirectories creates the directories for the log file and history
// database.
func (c *Config) EnsureDirectories() error {
	for _, path := range []string{c.Logging.FilePath, c.History.Path} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Duration helpers.

func (p PlaybackConfig) ModifierSettle() time.Duration {
	return time.Duration(p.ModifierSettleMs) * time.Millisecond
}

func (p PlaybackConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

func (p PlaybackConfig) DrainInterval() time.Duration {
	return time.Duration(p.DrainIntervalMs) * time.Millisecond
}

func (n NotificationsConfig) Debounce() time.Duration {
	return time.Duration(n.DebounceMs) * time.Millisecond
}
