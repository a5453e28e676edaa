// keyblast plays text macros as simulated keyboard input.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func init() {
	// Injection happens on the main goroutine, and some platforms require
	// it to stay on the main OS thread.
	runtime.LockOSThread()
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath  string
	logLevel    string
	dryRun      bool
	dumpMetrics bool
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "keyblast",
		Short: "Play text macros as keystrokes",
		Long: `keyblast types text macros into the focused window.

Macro text may contain directives: {Enter}, {Tab}, {F5}, {Delay 500},
{KeyDown Ctrl}, {KeyUp Ctrl} and {Paste}. Use {{ and }} for literal braces.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config file (default: platform config dir)")
	pf.StringVar(&flags.logLevel, "log-level", "", "override the configured log level")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "print segments instead of typing them")
	pf.BoolVar(&flags.dumpMetrics, "metrics", false, "dump metrics to stderr on exit")

	root.AddCommand(
		playCmd(flags),
		typeCmd(flags),
		parseCmd(),
		listCmd(flags),
		validateCmd(flags),
		exportCmd(flags),
		importCmd(flags),
		historyCmd(flags),
		watchCmd(flags),
		doctorCmd(flags),
	)
	return root
}
