package keystroke

import (
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"

	"keyblast/internal/macro"
)

// Linux evdev key codes (linux/input-event-codes.h).
const (
	evKeyEsc        = 1
	evKeyMinus      = 12
	evKeyEqual      = 13
	evKeyBackspace  = 14
	evKeyTab        = 15
	evKeyU          = 22
	evKeyLeftBrace  = 26
	evKeyRightBrace = 27
	evKeyEnter      = 28
	evKeyLeftCtrl   = 29
	evKeySemicolon  = 39
	evKeyApostrophe = 40
	evKeyGrave      = 41
	evKeyLeftShift  = 42
	evKeyBackslash  = 43
	evKeyComma      = 51
	evKeyDot        = 52
	evKeySlash      = 53
	evKeyRightShift = 54
	evKeyLeftAlt    = 56
	evKeySpace      = 57
	evKeyCapsLock   = 58
	evKeyF1         = 59
	evKeyF11        = 87
	evKeyF12        = 88
	evKeyRightCtrl  = 97
	evKeyRightAlt   = 100
	evKeyHome       = 102
	evKeyUp         = 103
	evKeyPageUp     = 104
	evKeyLeft       = 105
	evKeyRight      = 106
	evKeyEnd        = 107
	evKeyDown       = 108
	evKeyPageDown   = 109
	evKeyInsert     = 110
	evKeyDelete     = 111
	evKeyLeftMeta   = 125
	evKeyRightMeta  = 126

	// evKeyMax bounds the codes a virtual keyboard registers.
	evKeyMax = 255
)

// evdevKeys maps special keys to evdev codes.
var evdevKeys = map[macro.Key]uint16{
	macro.KeyEnter:     evKeyEnter,
	macro.KeyTab:       evKeyTab,
	macro.KeyEscape:    evKeyEsc,
	macro.KeyBackspace: evKeyBackspace,
	macro.KeyDelete:    evKeyDelete,
	macro.KeyInsert:    evKeyInsert,
	macro.KeyHome:      evKeyHome,
	macro.KeyEnd:       evKeyEnd,
	macro.KeyPageUp:    evKeyPageUp,
	macro.KeyPageDown:  evKeyPageDown,
	macro.KeySpace:     evKeySpace,
	macro.KeyCapsLock:  evKeyCapsLock,
	macro.KeyUp:        evKeyUp,
	macro.KeyDown:      evKeyDown,
	macro.KeyLeft:      evKeyLeft,
	macro.KeyRight:     evKeyRight,
	macro.KeyF11:       evKeyF11,
	macro.KeyF12:       evKeyF12,
}

func init() {
	// F1 through F10 are contiguous.
	for i := 0; i < 10; i++ {
		evdevKeys[macro.KeyF1+macro.Key(i)] = uint16(evKeyF1 + i)
	}
}

// evdevModifiers maps modifiers to evdev codes. The generic modifiers use
// the left-hand key.
var evdevModifiers = map[macro.Modifier]uint16{
	macro.ModCtrl:       evKeyLeftCtrl,
	macro.ModShift:      evKeyLeftShift,
	macro.ModAlt:        evKeyLeftAlt,
	macro.ModMeta:       evKeyLeftMeta,
	macro.ModLeftCtrl:   evKeyLeftCtrl,
	macro.ModRightCtrl:  evKeyRightCtrl,
	macro.ModLeftShift:  evKeyLeftShift,
	macro.ModRightShift: evKeyRightShift,
	macro.ModLeftAlt:    evKeyLeftAlt,
	macro.ModRightAlt:   evKeyRightAlt,
}

// keystrokeFor is one key press on a US layout.
type keystrokeFor struct {
	code  uint16
	shift bool
}

// usLayout maps printable ASCII to evdev codes on a US keyboard.
var usLayout = buildUSLayout()

func buildUSLayout() map[rune]keystrokeFor {
	m := make(map[rune]keystrokeFor, 100)

	rows := []struct {
		first uint16
		keys  string
	}{
		{16, "qwertyuiop"},
		{30, "asdfghjkl"},
		{44, "zxcvbnm"},
	}
	for _, row := range rows {
		for i, r := range row.keys {
			code := row.first + uint16(i)
			m[r] = keystrokeFor{code: code}
			m[r-'a'+'A'] = keystrokeFor{code: code, shift: true}
		}
	}

	// 1-9 are codes 2-10 and 0 is 11.
	digits := "1234567890"
	shifted := "!@#$%^&*()"
	for i, r := range digits {
		code := uint16(2 + i)
		m[r] = keystrokeFor{code: code}
		m[rune(shifted[i])] = keystrokeFor{code: code, shift: true}
	}

	punct := []struct {
		plain, shifted rune
		code           uint16
	}{
		{'-', '_', evKeyMinus},
		{'=', '+', evKeyEqual},
		{'[', '{', evKeyLeftBrace},
		{']', '}', evKeyRightBrace},
		{';', ':', evKeySemicolon},
		{'\'', '"', evKeyApostrophe},
		{'`', '~', evKeyGrave},
		{'\\', '|', evKeyBackslash},
		{',', '<', evKeyComma},
		{'.', '>', evKeyDot},
		{'/', '?', evKeySlash},
	}
	for _, p := range punct {
		m[p.plain] = keystrokeFor{code: p.code}
		m[p.shifted] = keystrokeFor{code: p.code, shift: true}
	}

	m[' '] = keystrokeFor{code: evKeySpace}
	m['\t'] = keystrokeFor{code: evKeyTab}
	m['\n'] = keystrokeFor{code: evKeyEnter}
	m['\r'] = keystrokeFor{code: evKeyEnter}
	return m
}

// typeEvdevRune types r through press. Characters missing from the US
// layout are entered as Ctrl+Shift+U, the lowercase hex code point and a
// committing space, which IBus and GTK input methods turn into r. Control
// characters other than tab and newline are refused.
func typeEvdevRune(r rune, press func(code uint16, down bool) error) error {
	if ks, ok := usLayout[r]; ok {
		return tapLayoutKey(ks, press)
	}
	if r == utf8.RuneError || !unicode.IsPrint(r) {
		return fmt.Errorf("%w: %q", ErrUnsupportedRune, r)
	}

	if err := tapKey(press, evKeyU, evKeyLeftCtrl, evKeyLeftShift); err != nil {
		return fmt.Errorf("unicode entry for %q: %w", r, err)
	}
	for _, digit := range strconv.FormatInt(int64(r), 16) {
		if err := tapLayoutKey(usLayout[digit], press); err != nil {
			return fmt.Errorf("unicode entry for %q: %w", r, err)
		}
	}
	return tapLayoutKey(usLayout[' '], press)
}

func tapLayoutKey(ks keystrokeFor, press func(code uint16, down bool) error) error {
	if ks.shift {
		return tapKey(press, ks.code, evKeyLeftShift)
	}
	return tapKey(press, ks.code)
}

// tapKey presses code with mods held. Modifiers that went down are released
// in reverse order even when a later event fails.
func tapKey(press func(code uint16, down bool) error, code uint16, mods ...uint16) error {
	held := 0
	var err error
	for _, m := range mods {
		if err = press(m, true); err != nil {
			break
		}
		held++
	}
	if err == nil {
		err = press(code, true)
		if err == nil {
			err = press(code, false)
		}
	}
	for i := held - 1; i >= 0; i-- {
		if upErr := press(mods[i], false); err == nil {
			err = upErr
		}
	}
	return err
}
