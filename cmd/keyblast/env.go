package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"keyblast/internal/app"
	"keyblast/internal/config"
	"keyblast/internal/execution"
	"keyblast/internal/keystroke"
	"keyblast/internal/logging"
	"keyblast/internal/metrics"
	"keyblast/internal/notify"
	"keyblast/internal/store"
)

// crashRetention is how long crash reports are kept before startup removes
// them.
const crashRetention = 30 * 24 * time.Hour

// env is everything a playback command needs. Build it with newEnv and
// release it with close.
type env struct {
	flags    *globalFlags
	cfg      *config.Config
	log      *logging.Logger
	metrics  *metrics.Metrics
	notifier *notify.Notifier
	history  *store.Store
	injector keystroke.Injector
	engine   *execution.Engine
	ctrl     *app.Controller

	closers []io.Closer
	stderr  io.Writer
}

// loadConfig loads and validates the configuration selected by the flags.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath(flags))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath resolves --config, then a config file in the working or config
// directory, then the default location.
func configPath(flags *globalFlags) string {
	if flags.configPath != "" {
		return flags.configPath
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

// newLogger builds the process logger from the logging section and makes
// it the default.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    int64(cfg.Logging.MaxSizeMB),
		MaxAge:     cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
		Component:  "keyblast",
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logging.SetDefault(logger)
	return logger, nil
}

// newEnv wires configuration, logging, metrics, history, notifications,
// the injector, the engine and the controller.
func newEnv(flags *globalFlags, stdout, stderr io.Writer) (*env, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	e := &env{flags: flags, cfg: cfg, stderr: stderr}
	if err := e.init(stdout); err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func (e *env) init(stdout io.Writer) error {
	var err error
	if e.log, err = newLogger(e.cfg); err != nil {
		return err
	}
	e.closers = append(e.closers, e.log)

	for _, w := range e.cfg.Warnings() {
		e.log.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	e.metrics = metrics.New()

	if e.cfg.Notifications.Enabled {
		sender, err := notify.NewPlatformSender()
		if err != nil {
			e.log.Warn("desktop notifications unavailable", "error", err)
			sender = nil
		}
		if c, ok := sender.(io.Closer); ok {
			e.closers = append(e.closers, c)
		}
		e.notifier = notify.New(sender, e.cfg.Notifications.Debounce())
	}

	if e.cfg.History.Enabled {
		if e.history, err = store.Open(e.cfg.History.Path); err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		e.closers = append(e.closers, e.history)
	}

	if e.flags.dryRun {
		e.injector = keystroke.NewRecorder(stdout)
	} else {
		if ok, reason := keystroke.Available(); !ok {
			e.notifier.PermissionDenied()
			return fmt.Errorf("%w: %s", keystroke.ErrNotAvailable, reason)
		}
		if e.injector, err = keystroke.New(); err != nil {
			return fmt.Errorf("open injector: %w", err)
		}
	}
	e.closers = append(e.closers, e.injector)

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version:   version,
		Component: "execution",
		Stderr:    e.stderr,
		OnCrash: func(r logging.CrashReport) {
			e.log.Error("playback worker panicked", "invocation", r.InvocationID, "panic", r.PanicValue)
		},
	})
	if err := crash.CleanupOldCrashReports(crashRetention); err != nil {
		e.log.Warn("clean up crash reports", "error", err)
	}

	e.engine = execution.NewEngine(e.injector, keystroke.NewClipboard(), execution.Options{
		FastPathMaxSegments: e.cfg.Playback.FastPathMaxSegments,
		ModifierSettle:      e.cfg.Playback.ModifierSettle(),
		PollInterval:        e.cfg.Playback.PollInterval(),
		Logger:              e.log.WithComponent("execution"),
		Metrics:             e.metrics,
		Crash:               crash,
	})

	opts := app.Options{
		Logger:         e.log,
		Metrics:        e.metrics,
		Notifier:       e.notifier,
		HistoryMaxRuns: e.cfg.History.MaxRuns,
	}
	if e.history != nil {
		opts.History = e.history
	}
	e.ctrl = app.New(e.engine, e.cfg.Macros, opts)
	return nil
}

// close shuts the controller down and releases resources in reverse order.
func (e *env) close() error {
	if e.ctrl != nil {
		e.ctrl.Shutdown()
	}
	if e.flags.dumpMetrics && e.metrics != nil {
		if err := e.metrics.WriteText(e.stderr); err != nil {
			fmt.Fprintf(e.stderr, "dump metrics: %v\n", err)
		}
	}

	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// drainInterval is how often long-running commands poll the controller.
func (e *env) drainInterval() time.Duration {
	if d := e.cfg.Playback.DrainInterval(); d > 0 {
		return d
	}
	return 10 * time.Millisecond
}

// openHistory opens the history database read-side for the history command.
func openHistory(cfg *config.Config) (*store.Store, error) {
	if _, err := os.Stat(cfg.History.Path); err != nil {
		return nil, fmt.Errorf("no history at %s: %w", cfg.History.Path, err)
	}
	return store.Open(cfg.History.Path)
}
