// Package logging wraps log/slog for keyblast. Records carry the component,
// macro and invocation that produced them; clipboard contents never reach a
// log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Format is the output format (text or JSON).
	Format Format

	// Output specifies where logs are written.
	// Can be "stdout", "stderr", "file", or "both".
	Output string

	// Writer overrides Output when set.
	Writer io.Writer

	// FilePath is the path to the log file when Output includes "file".
	FilePath string

	// MaxSize is the maximum size of a log file in megabytes before rotation.
	MaxSize int64

	// MaxAge is the maximum age of log files in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated log files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be gzip compressed.
	Compress bool

	// AddSource adds source file and line to log entries.
	AddSource bool

	// Component is the name of the component using this logger.
	Component string
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   defaultLogPath(),
		MaxSize:    10, // 10 MB
		MaxAge:     7,  // 7 days
		MaxBackups: 7,
		Compress:   true,
		AddSource:  false,
		Component:  "keyblast",
	}
}

// DefaultLogDir returns the platform-specific log directory.
func DefaultLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Logs", "keyblast")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "keyblast", "logs")
	default:
		stateHome := os.Getenv("XDG_STATE_HOME")
		if stateHome == "" {
			homeDir, _ := os.UserHomeDir()
			stateHome = filepath.Join(homeDir, ".local", "state")
		}
		return filepath.Join(stateHome, "keyblast")
	}
}

func defaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "keyblast.log")
}

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config  *Config
	rotator *FileRotator
	mu      sync.Mutex

	// base has neither the component nor the derived attributes, so that
	// WithComponent can rebuild the chain with a different component.
	base      slog.Handler
	component string
	attrs     []slog.Attr
}

var (
	defaultLogger *Logger
	loggerOnce    sync.Once
)

// Default returns the process logger. Until SetDefault is called it writes
// text to stderr at info level.
func Default() *Logger {
	loggerOnce.Do(func() {
		if defaultLogger == nil {
			h := slog.NewTextHandler(os.Stderr, nil)
			defaultLogger = &Logger{
				Logger: slog.New(h),
				config: DefaultConfig(),
				base:   h,
			}
		}
	})
	return defaultLogger
}

// SetDefault makes l the process logger and the slog default.
func SetDefault(l *Logger) {
	loggerOnce.Do(func() {})
	defaultLogger = l
	slog.SetDefault(l.Logger)
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelError + 1})
	return &Logger{
		Logger: slog.New(h),
		config: DefaultConfig(),
		base:   h,
	}
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{config: cfg}

	w, err := l.setupWriter()
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	l.base = handler
	l.component = cfg.Component
	l.Logger = slog.New(l.handler())
	return l, nil
}

// setupWriter configures the output writer based on config.
func (l *Logger) setupWriter() (io.Writer, error) {
	if l.config.Writer != nil {
		return l.config.Writer, nil
	}

	switch strings.ToLower(l.config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "file", "both":
		rotator, err := NewFileRotator(l.config)
		if err != nil {
			return nil, err
		}
		l.rotator = rotator
		if strings.EqualFold(l.config.Output, "both") {
			return io.MultiWriter(os.Stderr, rotator), nil
		}
		return rotator, nil
	default:
		return os.Stderr, nil
	}
}

// redactedKeys are attribute key fragments whose values are replaced. Macro
// text may be a pasted password, so only its length is ever logged.
var redactedKeys = []string{"clipboard", "password", "secret", "token"}

func shouldRedact(key string) bool {
	key = strings.ToLower(key)
	for _, k := range redactedKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

// handler rebuilds the record chain: component first, then derived
// attributes in the order they were added.
func (l *Logger) handler() slog.Handler {
	attrs := make([]slog.Attr, 0, len(l.attrs)+1)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	attrs = append(attrs, l.attrs...)
	if len(attrs) == 0 {
		return l.base
	}
	return l.base.WithAttrs(attrs)
}

func (l *Logger) derive(component string, attrs []slog.Attr) *Logger {
	d := &Logger{
		config:    l.config,
		rotator:   l.rotator,
		base:      l.base,
		component: component,
		attrs:     attrs,
	}
	if d.base == nil {
		d.base = l.Logger.Handler()
	}
	d.Logger = slog.New(d.handler())
	return d
}

func (l *Logger) with(attr slog.Attr) *Logger {
	return l.derive(l.component, append(slices.Clip(l.attrs), attr))
}

func (l *Logger) WithInvocation(id string) *Logger {
	return l.with(slog.String("invocation", id))
}

func (l *Logger) WithMacro(name string) *Logger {
	return l.with(slog.String("macro", name))
}

// WithComponent replaces the component attribute, whether it came from
// Config.Component or an earlier WithComponent. Other attributes are kept.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(name, l.attrs)
}

// Close closes any open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
