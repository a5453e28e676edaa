package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"keyblast/internal/logging"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// Severity distinguishes fatal validation errors from warnings.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// ValidationError represents a configuration validation issue.
type ValidationError struct {
	Field    string
	Message  string
	Severity Severity
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	return e.Severity == SeverityWarning
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for fatal issues.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig && !e.IsWarning()
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold when any issue is fatal.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && e.HasErrors()
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for i := range e {
		if e[i].IsWarning() {
			warnings = append(warnings, e[i])
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for i := range e {
		if !e[i].IsWarning() {
			errs = append(errs, e[i])
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

func fieldError(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func fieldWarning(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning}
}

// ValidateConfig returns every error and warning found in c. It never
// modifies c.
func ValidateConfig(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, fieldError("version", "unsupported version %d (current: %d)", c.Version, Version))
	}

	errs = append(errs, validatePlayback(&c.Playback)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateHistory(&c.History)...)
	errs = append(errs, validateNotifications(&c.Notifications)...)
	errs = append(errs, validateMacros(c.Macros)...)

	return errs
}

func validatePlayback(p *PlaybackConfig) ValidationErrors {
	var errs ValidationErrors
	if p.FastPathMaxSegments < -1 {
		errs = append(errs, fieldError("playback.fast_path_max_segments", "must be -1 (disabled) or at least 0"))
	}
	if p.ModifierSettleMs < 0 || p.ModifierSettleMs > 1000 {
		errs = append(errs, fieldError("playback.modifier_settle_ms", "value must be between 0 and 1000"))
	}
	if p.PollIntervalMs < 1 || p.PollIntervalMs > 1000 {
		errs = append(errs, fieldError("playback.poll_interval_ms", "value must be between 1 and 1000"))
	}
	if p.DrainIntervalMs < 1 || p.DrainIntervalMs > 1000 {
		errs = append(errs, fieldError("playback.drain_interval_ms", "value must be between 1 and 1000"))
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, fieldError("logging.level", "%v", err))
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, fieldError("logging.format", "%v", err))
	}
	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, fieldError("logging.file_path", "required when output is %s", l.Output))
		}
	default:
		errs = append(errs, fieldError("logging.output", "must be stdout, stderr, file or both"))
	}
	if l.MaxSizeMB < 0 {
		errs = append(errs, fieldError("logging.max_size_mb", "must not be negative"))
	}
	if l.MaxBackups < 0 {
		errs = append(errs, fieldError("logging.max_backups", "must not be negative"))
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, fieldError("logging.max_age_days", "must not be negative"))
	}
	return errs
}

func validateHistory(h *HistoryConfig) ValidationErrors {
	var errs ValidationErrors
	if h.Enabled && h.Path == "" {
		errs = append(errs, fieldError("history.path", "required field is missing"))
	}
	if h.MaxRuns < 0 {
		errs = append(errs, fieldError("history.max_runs", "must not be negative"))
	}
	return errs
}

func validateNotifications(n *NotificationsConfig) ValidationErrors {
	if n.DebounceMs < 0 {
		return ValidationErrors{fieldError("notifications.debounce_ms", "must not be negative")}
	}
	return nil
}

func validateMacros(macros []MacroDefinition) ValidationErrors {
	var errs ValidationErrors

	names := make(map[string]int)
	hotkeys := make(map[string][]string)
	var hotkeyOrder []string

	for i, m := range macros {
		field := fmt.Sprintf("macros[%d]", i)

		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, fieldError(field+".name", "required field is missing"))
		}
		names[m.Name]++

		if m.Hotkey != "" {
			if _, err := ParseHotkey(m.Hotkey); err != nil {
				errs = append(errs, fieldWarning(field+".hotkey", "%v", err))
			}
			key := strings.ToLower(m.Hotkey)
			if _, seen := hotkeys[key]; !seen {
				hotkeyOrder = append(hotkeyOrder, key)
			}
			hotkeys[key] = append(hotkeys[key], m.Name)
		}

		if m.DelayMs > 60000 {
			errs = append(errs, fieldWarning(field+".delay_ms", "delay of %dms between segments is unusually long", m.DelayMs))
		}
	}

	dupNames := make([]string, 0)
	for name, count := range names {
		if count > 1 && name != "" {
			dupNames = append(dupNames, name)
		}
	}
	sort.Strings(dupNames)
	for _, name := range dupNames {
		errs = append(errs, fieldWarning("macros.name", "duplicate macro name: '%s'", name))
	}

	for _, key := range hotkeyOrder {
		if users := hotkeys[key]; len(users) > 1 {
			errs = append(errs, fieldWarning("macros.hotkey", "hotkey '%s' used by multiple macros: %s", key, strings.Join(users, ", ")))
		}
	}

	return errs
}
