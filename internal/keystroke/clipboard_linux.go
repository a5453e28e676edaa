//go:build linux

package keystroke

const platformClipboardTrimsCRLF = false

// X11 helpers first, then Wayland.
func platformClipboardCommands() [][]string {
	return [][]string{
		{"xclip", "-selection", "clipboard", "-o"},
		{"xsel", "--clipboard", "--output"},
		{"wl-paste", "--no-newline"},
	}
}
