//go:build !linux && !darwin

package notify

import "keyblast/internal/logging"

// NewPlatformSender logs notifications on platforms without a native sender.
func NewPlatformSender() (Sender, error) {
	return LogSender{Logger: logging.Default().WithComponent("notify")}, nil
}
