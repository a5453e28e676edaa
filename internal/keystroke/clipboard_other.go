//go:build !darwin && !linux && !windows

package keystroke

const platformClipboardTrimsCRLF = false

func platformClipboardCommands() [][]string {
	return nil
}
