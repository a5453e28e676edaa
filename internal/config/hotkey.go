package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidHotkey is returned for hotkey strings that cannot be parsed.
var ErrInvalidHotkey = errors.New("invalid hotkey")

// HotkeyModifiers is a bit set of hotkey modifiers.
type HotkeyModifiers uint8

const (
	HotkeyCtrl HotkeyModifiers = 1 << iota
	HotkeyShift
	HotkeyAlt
	HotkeyMeta
)

// Hotkey is a parsed global hotkey chord.
type Hotkey struct {
	Modifiers HotkeyModifiers
	// Key is the lowercase key name: a-z, 0-9 or f1-f12.
	Key string
}

// ParseHotkey parses a chord such as "ctrl+shift+k" or "Meta + F1".
//
// Modifiers (case-insensitive): ctrl/control, shift, alt/option and
// meta/cmd/command/super/win. Keys: a-z, 0-9 and f1-f12. Modifiers are
// optional; exactly one key is required.
func ParseHotkey(s string) (Hotkey, error) {
	var hk Hotkey

	for _, part := range strings.Split(s, "+") {
		lower := strings.ToLower(strings.TrimSpace(part))
		switch lower {
		case "ctrl", "control":
			hk.Modifiers |= HotkeyCtrl
		case "shift":
			hk.Modifiers |= HotkeyShift
		case "alt", "option":
			hk.Modifiers |= HotkeyAlt
		case "meta", "cmd", "command", "super", "win":
			hk.Modifiers |= HotkeyMeta
		default:
			if !validHotkeyKey(lower) {
				return Hotkey{}, fmt.Errorf("%w %q: unknown key %q", ErrInvalidHotkey, s, part)
			}
			if hk.Key != "" {
				return Hotkey{}, fmt.Errorf("%w %q: more than one key", ErrInvalidHotkey, s)
			}
			hk.Key = lower
		}
	}

	if hk.Key == "" {
		return Hotkey{}, fmt.Errorf("%w %q: missing key", ErrInvalidHotkey, s)
	}
	return hk, nil
}

func validHotkeyKey(s string) bool {
	if len(s) == 1 {
		c := s[0]
		return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
	}
	if len(s) <= 3 && strings.HasPrefix(s, "f") {
		n, err := strconv.Atoi(s[1:])
		return err == nil && n >= 1 && n <= 12
	}
	return false
}

// Has reports whether m includes every modifier in other.
func (m HotkeyModifiers) Has(other HotkeyModifiers) bool {
	return m&other == other
}

// String renders the chord in canonical form, e.g. "ctrl+shift+k".
func (h Hotkey) String() string {
	var parts []string
	if h.Modifiers.Has(HotkeyCtrl) {
		parts = append(parts, "ctrl")
	}
	if h.Modifiers.Has(HotkeyShift) {
		parts = append(parts, "shift")
	}
	if h.Modifiers.Has(HotkeyAlt) {
		parts = append(parts, "alt")
	}
	if h.Modifiers.Has(HotkeyMeta) {
		parts = append(parts, "meta")
	}
	return strings.Join(append(parts, h.Key), "+")
}
