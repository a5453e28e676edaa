//go:build windows

package keystroke

// PowerShell terminates its output with a line break.
const platformClipboardTrimsCRLF = true

func platformClipboardCommands() [][]string {
	return [][]string{{"powershell", "-NoProfile", "-NonInteractive", "-Command", "Get-Clipboard -Raw"}}
}
