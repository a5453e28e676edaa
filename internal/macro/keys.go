package macro

import "strings"

// Key identifies a non-character key that a macro can press.
type Key uint16

const (
	// KeyNone represents no key.
	KeyNone Key = iota

	KeyEnter
	KeyTab
	KeyEscape
	KeyBackspace
	KeyDelete
	KeyInsert
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeySpace
	KeyCapsLock

	// Arrow keys
	KeyUp
	KeyDown
	KeyLeft
	KeyRight

	// Function keys
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

var keyCanonical = map[Key]string{
	KeyEnter:     "Enter",
	KeyTab:       "Tab",
	KeyEscape:    "Escape",
	KeyBackspace: "Backspace",
	KeyDelete:    "Delete",
	KeyInsert:    "Insert",
	KeyHome:      "Home",
	KeyEnd:       "End",
	KeyPageUp:    "PageUp",
	KeyPageDown:  "PageDown",
	KeySpace:     "Space",
	KeyCapsLock:  "CapsLock",
	KeyUp:        "Up",
	KeyDown:      "Down",
	KeyLeft:      "Left",
	KeyRight:     "Right",
	KeyF1:        "F1",
	KeyF2:        "F2",
	KeyF3:        "F3",
	KeyF4:        "F4",
	KeyF5:        "F5",
	KeyF6:        "F6",
	KeyF7:        "F7",
	KeyF8:        "F8",
	KeyF9:        "F9",
	KeyF10:       "F10",
	KeyF11:       "F11",
	KeyF12:       "F12",
}

// keyNames maps lowercase directive names, including aliases, to keys.
var keyNames = map[string]Key{
	"enter":     KeyEnter,
	"return":    KeyEnter,
	"tab":       KeyTab,
	"escape":    KeyEscape,
	"esc":       KeyEscape,
	"backspace": KeyBackspace,
	"delete":    KeyDelete,
	"del":       KeyDelete,
	"insert":    KeyInsert,
	"ins":       KeyInsert,
	"home":      KeyHome,
	"end":       KeyEnd,
	"pageup":    KeyPageUp,
	"pgup":      KeyPageUp,
	"pagedown":  KeyPageDown,
	"pgdn":      KeyPageDown,
	"space":     KeySpace,
	"capslock":  KeyCapsLock,
	"up":        KeyUp,
	"down":      KeyDown,
	"left":      KeyLeft,
	"right":     KeyRight,
	"f1":        KeyF1,
	"f2":        KeyF2,
	"f3":        KeyF3,
	"f4":        KeyF4,
	"f5":        KeyF5,
	"f6":        KeyF6,
	"f7":        KeyF7,
	"f8":        KeyF8,
	"f9":        KeyF9,
	"f10":       KeyF10,
	"f11":       KeyF11,
	"f12":       KeyF12,
}

// KeyFromName looks up a key by directive name, case-insensitively.
// The name is not trimmed: "{ Enter}" is not a key directive.
func KeyFromName(name string) (Key, bool) {
	k, ok := keyNames[strings.ToLower(name)]
	return k, ok
}

// String returns the canonical directive name of the key.
func (k Key) String() string {
	if name, ok := keyCanonical[k]; ok {
		return name
	}
	return "None"
}

// Modifier identifies a modifier key usable with KeyDown and KeyUp.
type Modifier uint8

const (
	// ModNone represents no modifier.
	ModNone Modifier = iota

	ModCtrl
	ModShift
	ModAlt
	ModMeta

	// Side-specific variants.
	ModLeftCtrl
	ModRightCtrl
	ModLeftShift
	ModRightShift
	ModLeftAlt
	ModRightAlt
)

var modifierCanonical = map[Modifier]string{
	ModCtrl:       "Ctrl",
	ModShift:      "Shift",
	ModAlt:        "Alt",
	ModMeta:       "Meta",
	ModLeftCtrl:   "LCtrl",
	ModRightCtrl:  "RCtrl",
	ModLeftShift:  "LShift",
	ModRightShift: "RShift",
	ModLeftAlt:    "LAlt",
	ModRightAlt:   "RAlt",
}

var modifierNames = map[string]Modifier{
	"ctrl":     ModCtrl,
	"control":  ModCtrl,
	"shift":    ModShift,
	"alt":      ModAlt,
	"option":   ModAlt,
	"meta":     ModMeta,
	"win":      ModMeta,
	"cmd":      ModMeta,
	"command":  ModMeta,
	"super":    ModMeta,
	"lctrl":    ModLeftCtrl,
	"lcontrol": ModLeftCtrl,
	"rctrl":    ModRightCtrl,
	"rcontrol": ModRightCtrl,
	"lshift":   ModLeftShift,
	"rshift":   ModRightShift,
	"lalt":     ModLeftAlt,
	"ralt":     ModRightAlt,
}

// ModifierFromName looks up a modifier by name, case-insensitively.
func ModifierFromName(name string) (Modifier, bool) {
	m, ok := modifierNames[strings.ToLower(name)]
	return m, ok
}

// String returns the canonical name of the modifier.
func (m Modifier) String() string {
	if name, ok := modifierCanonical[m]; ok {
		return name
	}
	return "None"
}

// CommonModifiers lists the modifiers a hotkey chord is likely to leave held
// when a macro starts.
var CommonModifiers = []Modifier{ModCtrl, ModShift, ModAlt, ModMeta}
