package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"keyblast/internal/app"
	"keyblast/internal/config"
	"keyblast/internal/execution"
	"keyblast/internal/macro"
)

// signalContext cancels on SIGINT or SIGTERM. A cancelled context stops the
// running macro.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ─── play / type ─────────────────────────────────────────────────────────────

func playCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "play <name>",
		Short: "Play a configured macro",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, flags, func(ctx context.Context, e *env) error {
				inv, err := e.ctrl.Trigger(ctx, args[0])
				if err != nil {
					return err
				}
				return finishRun(ctx, cmd.ErrOrStderr(), e.ctrl, inv)
			})
		},
	}
}

func typeCmd(flags *globalFlags) *cobra.Command {
	var delayMs uint64

	cmd := &cobra.Command{
		Use:   "type <text>",
		Short: "Play macro text given on the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, flags, func(ctx context.Context, e *env) error {
				delay := time.Duration(delayMs) * time.Millisecond
				inv, err := e.ctrl.TriggerText(ctx, "(command line)", args[0], delay)
				if err != nil {
					return err
				}
				return finishRun(ctx, cmd.ErrOrStderr(), e.ctrl, inv)
			})
		},
	}
	cmd.Flags().Uint64Var(&delayMs, "delay", 0, "delay between segments in milliseconds")
	return cmd
}

// withEnv builds the playback environment, runs fn with a signal-aware
// context, and tears everything down.
func withEnv(cmd *cobra.Command, flags *globalFlags, fn func(context.Context, *env) error) error {
	e, err := newEnv(flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	runErr := fn(ctx, e)
	return errors.Join(runErr, e.close())
}

// finishRun drives a run to its end and prints a summary.
func finishRun(ctx context.Context, w io.Writer, ctrl *app.Controller, inv *execution.Invocation) error {
	out := inv.Outcome()
	if inv.IsActive() {
		out, _ = ctrl.Await(ctx)
	}

	fmt.Fprintf(w, "%s: %d/%d segments via %s path in %s\n",
		out.Status, out.Injected, out.Segments, out.Path, out.Duration.Round(time.Millisecond))
	for _, f := range out.Failures {
		fmt.Fprintf(w, "  failed: %v\n", f)
	}
	if out.Status == execution.StatusCancelled {
		return errors.New("playback cancelled")
	}
	return nil
}

// ─── parse ───────────────────────────────────────────────────────────────────

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <text>",
		Short: "Show the segments a macro compiles to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segments := macro.Compile(args[0])
			w := cmd.OutOrStdout()
			for i, seg := range segments {
				fmt.Fprintf(w, "%3d  %s\n", i, seg)
			}
			fmt.Fprintf(w, "\n%d segments, %s of explicit delay\n", len(segments), macro.TotalDelay(segments))
			fmt.Fprintf(w, "canonical: %s\n", macro.Format(segments))
			return nil
		},
	}
}

// ─── list ────────────────────────────────────────────────────────────────────

func listCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured macros by group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			groups := cfg.Groups()
			names := make([]string, 0, len(groups))
			for g := range groups {
				names = append(names, g)
			}
			sort.Strings(names)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, g := range names {
				fmt.Fprintf(tw, "[%s]\n", g)
				for _, m := range groups[g] {
					fmt.Fprintf(tw, "  %s\t%s\t%dms\t%s\n", m.Name, m.Hotkey, m.DelayMs, preview(m.Text, 40))
				}
			}
			return tw.Flush()
		},
	}
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

// ─── validate ────────────────────────────────────────────────────────────────

func validateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a config file against the schema and validation rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(flags)
			if len(args) == 1 {
				path = args[0]
			}
			w := cmd.OutOrStdout()

			if err := config.ValidateFile(path); err != nil {
				return err
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			for _, warn := range cfg.Warnings() {
				fmt.Fprintf(w, "warning: %s: %s\n", warn.Field, warn.Message)
			}
			fmt.Fprintf(w, "OK: %s is valid (%d macros)\n", path, len(cfg.Macros))
			return nil
		},
	}
}

// ─── export / import ─────────────────────────────────────────────────────────

func exportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the configured macros to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := config.ExportMacros(cfg.Macros, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d macros to %s\n", len(cfg.Macros), args[0])
			return nil
		},
	}
}

func importCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add macros from a file, skipping names that already exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(flags)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			imported, err := config.ImportMacros(args[0])
			if err != nil {
				return err
			}

			merged, skipped := config.MergeImported(cfg.Macros, imported)
			cfg.Macros = merged
			if err := config.SaveConfig(cfg, path); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "imported %d macros into %s\n", len(imported)-len(skipped), path)
			for _, name := range skipped {
				fmt.Fprintf(w, "  skipped existing macro %q\n", name)
			}
			return nil
		},
	}
}

// ─── history ─────────────────────────────────────────────────────────────────

func historyCmd(flags *globalFlags) *cobra.Command {
	var (
		limit     int
		macroName string
		stats     bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent macro runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			s, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			if stats {
				all, err := s.Stats()
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "MACRO\tRUNS\tCOMPLETED\tCANCELLED\tFAILURES\tLAST RUN")
				for _, st := range all {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", st.MacroName, st.Runs, st.Completed,
						st.Cancelled, st.Failures, st.LastRun.Format(time.DateTime))
				}
				return tw.Flush()
			}

			runs, err := s.RecentRuns(limit)
			if macroName != "" {
				runs, err = s.RunsForMacro(macroName, limit)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(tw, "STARTED\tMACRO\tPATH\tSTATUS\tINJECTED\tFAILURES\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\n",
					r.StartedAt.Format(time.DateTime), r.MacroName, r.Path, r.Status,
					r.Injected, r.Segments, r.FailureCount(), r.Duration.Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().StringVar(&macroName, "macro", "", "only show runs of this macro")
	cmd.Flags().BoolVar(&stats, "stats", false, "show per-macro totals")
	return cmd
}

// ─── watch ───────────────────────────────────────────────────────────────────

func watchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload the config on change and play macros named on stdin",
		Long: `watch keeps running, reloading macros whenever the config file changes.

Each line read from stdin is a macro name to play. An empty line or "stop"
cancels the macro that is playing. Interrupt to exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, flags, func(ctx context.Context, e *env) error {
				loader := config.NewLoader(configPath(flags))
				defer loader.Close()

				loader.OnChange(func(cfg *config.Config) {
					e.ctrl.SetMacros(cfg.Macros)
					e.metrics.RecordReload(true)
				})
				if err := loader.Watch(); err != nil {
					return err
				}
				e.log.Info("watching config", "path", loader.Path())

				lines := readLines(ctx, cmd.InOrStdin())
				return watchLoop(ctx, e, loader, lines, cmd.ErrOrStderr())
			})
		},
	}
}

// readLines forwards trimmed stdin lines until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// watchLoop runs on the main goroutine: triggers, polls and stops all
// happen here so injection never leaves it.
func watchLoop(ctx context.Context, e *env, loader *config.Loader, lines <-chan string, w io.Writer) error {
	ticker := time.NewTicker(e.drainInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			e.ctrl.Poll()

		case err := <-loader.Errors():
			e.metrics.RecordReload(false)
			e.log.Warn("config reload failed", "error", err)

		case line, ok := <-lines:
			if !ok {
				// stdin closed; let a running macro finish.
				lines = nil
				continue
			}
			if line == "" || line == "stop" {
				e.ctrl.Stop()
				continue
			}
			if _, err := e.ctrl.Trigger(ctx, line); err != nil {
				fmt.Fprintf(w, "%v\n", err)
			}
		}
	}
}
