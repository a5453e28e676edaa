package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"keyblast/internal/config"
	"keyblast/internal/health"
	"keyblast/internal/keystroke"
	"keyblast/internal/logging"
	"keyblast/internal/notify"
	"keyblast/internal/store"
)

// ─── doctor ──────────────────────────────────────────────────────────────────

func doctorCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that keystrokes, clipboard, history and notifications work here",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := diagnose(cmd.Context(), flags)

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else if err := printReport(w, report); err != nil {
				return err
			}

			if !report.Healthy() {
				return fmt.Errorf("environment is %s", report.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

// diagnose registers one check per subsystem and runs them. A config that
// loads but fails validation still drives the other checks; one that does not
// load at all is replaced by defaults.
func diagnose(ctx context.Context, flags *globalFlags) health.Report {
	if ctx == nil {
		ctx = context.Background()
	}
	path := configPath(flags)
	cfg, cfgErr := config.Load(path)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	} else {
		if flags.logLevel != "" {
			cfg.Logging.Level = flags.logLevel
		}
		cfgErr = cfg.Validate()
	}

	c := health.NewChecker()
	c.RegisterFunc("config", true, health.ErrorCheck("valid", health.StatusUnhealthy,
		func(context.Context) (string, error) {
			if cfgErr != nil {
				return path, cfgErr
			}
			return fmt.Sprintf("%s, %d macros", path, len(cfg.Macros)), nil
		}))

	c.RegisterFunc("injector", !flags.dryRun, health.ErrorCheck("available", health.StatusUnhealthy,
		func(context.Context) (string, error) {
			if ok, reason := keystroke.Available(); !ok {
				return notify.PermissionErrorMessage(), fmt.Errorf("%w: %s", keystroke.ErrNotAvailable, reason)
			}
			return "", nil
		}))

	c.RegisterFunc("clipboard", false, health.ErrorCheck("helper found", health.StatusDegraded,
		func(context.Context) (string, error) {
			helper, err := keystroke.NewClipboard().Helper()
			if err != nil {
				return "{Paste} will type nothing", err
			}
			return helper, nil
		}))

	if cfg.History.Enabled {
		c.RegisterFunc("history", false, health.ErrorCheck("schema ok", health.StatusDegraded,
			func(context.Context) (string, error) {
				return checkHistory(cfg.History.Path)
			}))
	} else {
		c.RegisterFunc("history", false, health.Disabled("history"))
	}

	if cfg.Notifications.Enabled {
		c.RegisterFunc("notifications", false, health.ErrorCheck("sender ready", health.StatusDegraded,
			func(context.Context) (string, error) {
				sender, err := notify.NewPlatformSender()
				if err != nil {
					return "failures will only be logged", err
				}
				if closer, ok := sender.(io.Closer); ok {
					closer.Close()
				}
				return fmt.Sprintf("%T", sender), nil
			}))
	} else {
		c.RegisterFunc("notifications", false, health.Disabled("notifications"))
	}

	c.RegisterFunc("crashes", false, func(context.Context) health.CheckResult {
		reports, err := logging.NewCrashHandler(nil).GetCrashReports()
		switch {
		case err != nil:
			return health.CheckResult{Status: health.StatusUnknown, Error: err.Error()}
		case len(reports) > 0:
			return health.CheckResult{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("%d crash reports in %s", len(reports), logging.DefaultCrashDir()),
			}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: "no crash reports"}
	})

	return c.Run(ctx)
}

// checkHistory validates an existing history database. A missing one is
// fine: it is created on first use.
func checkHistory(path string) (string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path + " (not created yet)", nil
	}
	s, err := store.Open(path)
	if err != nil {
		return path, err
	}
	defer s.Close()

	if err := store.ValidateSchema(s.DB()); err != nil {
		return path, err
	}
	return path, nil
}

func printReport(w io.Writer, report health.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tSTATUS\tDETAIL")
	for _, r := range report.Results {
		detail := r.Message
		if r.Error != "" {
			detail = r.Error
			if r.Message != "" {
				detail = r.Error + " (" + r.Message + ")"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Status, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "overall: %s\n", report.Status)
	return err
}
