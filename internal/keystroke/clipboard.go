package keystroke

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// clipboardTimeout bounds each helper command so a hung clipboard owner
// cannot stall playback.
const clipboardTimeout = 2 * time.Second

// Clipboard reads the system clipboard as text by running the platform's
// clipboard helper. Commands are tried in order until one succeeds.
type Clipboard struct {
	commands [][]string
	trimCRLF bool
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	lookPath func(file string) (string, error)
}

// NewClipboard returns the platform clipboard reader.
func NewClipboard() *Clipboard {
	return &Clipboard{
		commands: platformClipboardCommands(),
		trimCRLF: platformClipboardTrimsCRLF,
		run:      runCommand,
		lookPath: exec.LookPath,
	}
}

// ReadText returns the clipboard text. It fails with ErrNotAvailable when no
// helper is configured for the platform.
func (c *Clipboard) ReadText() (string, error) {
	if len(c.commands) == 0 {
		return "", fmt.Errorf("%w: no clipboard helper for this platform", ErrNotAvailable)
	}

	var errs []error
	for _, argv := range c.commands {
		ctx, cancel := context.WithTimeout(context.Background(), clipboardTimeout)
		out, err := c.run(ctx, argv[0], argv[1:]...)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", argv[0], err))
			continue
		}
		text := string(out)
		if c.trimCRLF {
			text = strings.TrimSuffix(text, "\r\n")
		}
		return text, nil
	}
	return "", fmt.Errorf("read clipboard: %w", errors.Join(errs...))
}

// Helper returns the path of the first installed clipboard helper without
// running it.
func (c *Clipboard) Helper() (string, error) {
	if len(c.commands) == 0 {
		return "", fmt.Errorf("%w: no clipboard helper for this platform", ErrNotAvailable)
	}
	lookPath := c.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	names := make([]string, 0, len(c.commands))
	for _, argv := range c.commands {
		if path, err := lookPath(argv[0]); err == nil {
			return path, nil
		}
		names = append(names, argv[0])
	}
	return "", fmt.Errorf("%w: none of %s installed", ErrNotAvailable, strings.Join(names, ", "))
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
