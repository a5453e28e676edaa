//go:build darwin

package notify

import (
	"fmt"
	"os/exec"
	"strconv"
)

// OSAScriptSender posts notifications through AppleScript.
type OSAScriptSender struct{}

// NewPlatformSender returns the AppleScript sender.
func NewPlatformSender() (Sender, error) {
	if _, err := exec.LookPath("osascript"); err != nil {
		return nil, fmt.Errorf("osascript: %w", err)
	}
	return OSAScriptSender{}, nil
}

func (OSAScriptSender) Send(n Notification) error {
	script := fmt.Sprintf("display notification %s with title %s",
		strconv.Quote(n.Body), strconv.Quote(n.Title))
	if out, err := exec.Command("osascript", "-e", script).CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, out)
	}
	return nil
}
