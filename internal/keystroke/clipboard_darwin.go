//go:build darwin

package keystroke

const platformClipboardTrimsCRLF = false

func platformClipboardCommands() [][]string {
	return [][]string{{"pbpaste"}}
}
