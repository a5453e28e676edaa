// Package notify shows desktop notifications for playback failures.
//
// Notifications are debounced so a burst of failures produces one toast.
// Permission notifications always show because the user has to act on them.
package notify

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"keyblast/internal/logging"
)

// AppName is the application name shown by notification servers.
const AppName = "KeyBlast"

// DefaultDebounce is the minimum interval between debounced notifications.
const DefaultDebounce = 3 * time.Second

// Severity selects debounce and timeout behaviour.
type Severity int

const (
	// SeverityInjectionFailed is transient and debounced.
	SeverityInjectionFailed Severity = iota
	// SeverityPermission persists until dismissed and bypasses debounce.
	SeverityPermission
)

func (s Severity) String() string {
	switch s {
	case SeverityPermission:
		return "permission"
	case SeverityInjectionFailed:
		return "injection_failed"
	default:
		return "unknown"
	}
}

// Timeout is how long the notification stays visible. Zero means until
// dismissed. Some platforms ignore it.
func (s Severity) Timeout() time.Duration {
	if s == SeverityPermission {
		return 0
	}
	return 5 * time.Second
}

// Notification is one desktop notification.
type Notification struct {
	Title    string
	Body     string
	Severity Severity
}

// Sender delivers notifications to the desktop.
type Sender interface {
	Send(n Notification) error
}

// Notifier debounces notifications and falls back to logging when the
// sender fails.
type Notifier struct {
	sender   Sender
	debounce time.Duration
	logger   *logging.Logger
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// New creates a Notifier. A nil sender logs instead of notifying.
func New(sender Sender, debounce time.Duration) *Notifier {
	logger := logging.Default().WithComponent("notify")
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	return &Notifier{
		sender:   sender,
		debounce: debounce,
		logger:   logger,
		now:      time.Now,
	}
}

// Show delivers n unless it falls inside the debounce window. It reports
// whether n was handed to the sender.
func (n *Notifier) Show(note Notification) bool {
	if n == nil {
		return false
	}

	if note.Severity != SeverityPermission {
		n.mu.Lock()
		now := n.now()
		if !n.last.IsZero() && now.Sub(n.last) < n.debounce {
			n.mu.Unlock()
			n.logger.Debug("notification debounced", "title", note.Title)
			return false
		}
		n.last = now
		n.mu.Unlock()
	}

	if err := n.sender.Send(note); err != nil {
		n.logger.Error("notification failed",
			"title", note.Title,
			"body", note.Body,
			"error", err,
		)
	}
	return true
}

// InjectionFailed shows a debounced failure notification.
func (n *Notifier) InjectionFailed(macroName string, err error) bool {
	return n.Show(Notification{
		Title:    AppName,
		Body:     fmt.Sprintf("Macro %q failed: %v", macroName, err),
		Severity: SeverityInjectionFailed,
	})
}

// PermissionDenied shows the platform's permission guidance.
func (n *Notifier) PermissionDenied() bool {
	return n.Show(Notification{
		Title:    AppName,
		Body:     PermissionErrorMessage(),
		Severity: SeverityPermission,
	})
}

// PermissionErrorMessage explains how to grant injection rights.
func PermissionErrorMessage() string {
	switch runtime.GOOS {
	case "darwin":
		return "Accessibility permission required.\n\nGo to System Settings > Privacy & Security > Accessibility to enable KeyBlast."
	case "windows":
		return "Injection may be blocked.\n\nTry running KeyBlast as Administrator for elevated applications."
	default:
		return "Permission denied for keystroke injection.\n\nAdd your user to the input group or install a udev rule for /dev/uinput."
	}
}

// LogSender writes notifications to the log.
type LogSender struct {
	Logger *logging.Logger
}

func (s LogSender) Send(n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Warn(n.Title, "message", n.Body, "severity", n.Severity.String())
	return nil
}
