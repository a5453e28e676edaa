//go:build darwin

package keystroke

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation

#include <ApplicationServices/ApplicationServices.h>

static int postKey(CGKeyCode code, int down) {
    CGEventRef ev = CGEventCreateKeyboardEvent(NULL, code, down ? true : false);
    if (ev == NULL) {
        return -1;
    }
    CGEventPost(kCGHIDEventTap, ev);
    CFRelease(ev);
    return 0;
}

// postUnicode types up to two UTF-16 units without a key code, so text does
// not depend on the active keyboard layout.
static int postUnicode(const UniChar *chars, int n) {
    CGEventRef down = CGEventCreateKeyboardEvent(NULL, 0, true);
    CGEventRef up = CGEventCreateKeyboardEvent(NULL, 0, false);
    if (down == NULL || up == NULL) {
        if (down) CFRelease(down);
        if (up) CFRelease(up);
        return -1;
    }
    CGEventKeyboardSetUnicodeString(down, n, chars);
    CGEventKeyboardSetUnicodeString(up, n, chars);
    CGEventPost(kCGHIDEventTap, down);
    CGEventPost(kCGHIDEventTap, up);
    CFRelease(down);
    CFRelease(up);
    return 0;
}

static int accessibilityTrusted(void) {
    return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"

import (
	"fmt"
	"unicode/utf16"

	"keyblast/internal/macro"
)

// Virtual key codes (HIToolbox/Events.h).
var darwinKeys = map[macro.Key]uint16{
	macro.KeyEnter:     0x24,
	macro.KeyTab:       0x30,
	macro.KeySpace:     0x31,
	macro.KeyBackspace: 0x33,
	macro.KeyEscape:    0x35,
	macro.KeyCapsLock:  0x39,
	macro.KeyInsert:    0x72,
	macro.KeyHome:      0x73,
	macro.KeyPageUp:    0x74,
	macro.KeyDelete:    0x75,
	macro.KeyEnd:       0x77,
	macro.KeyPageDown:  0x79,
	macro.KeyLeft:      0x7B,
	macro.KeyRight:     0x7C,
	macro.KeyDown:      0x7D,
	macro.KeyUp:        0x7E,
	macro.KeyF1:        0x7A,
	macro.KeyF2:        0x78,
	macro.KeyF3:        0x63,
	macro.KeyF4:        0x76,
	macro.KeyF5:        0x60,
	macro.KeyF6:        0x61,
	macro.KeyF7:        0x62,
	macro.KeyF8:        0x64,
	macro.KeyF9:        0x65,
	macro.KeyF10:       0x6D,
	macro.KeyF11:       0x67,
	macro.KeyF12:       0x6F,
}

var darwinModifiers = map[macro.Modifier]uint16{
	macro.ModMeta:       0x37,
	macro.ModShift:      0x38,
	macro.ModLeftShift:  0x38,
	macro.ModAlt:        0x3A,
	macro.ModLeftAlt:    0x3A,
	macro.ModCtrl:       0x3B,
	macro.ModLeftCtrl:   0x3B,
	macro.ModRightShift: 0x3C,
	macro.ModRightAlt:   0x3D,
	macro.ModRightCtrl:  0x3E,
}

type cgEventDevice struct{}

func platformAvailable() (bool, string) {
	if C.accessibilityTrusted() == 0 {
		return false, "Accessibility permission not granted (System Settings > Privacy & Security > Accessibility)"
	}
	return true, "Accessibility permission granted"
}

func openDevice() (device, error) {
	if ok, reason := platformAvailable(); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, reason)
	}
	return cgEventDevice{}, nil
}

func (cgEventDevice) keyCode(k macro.Key) (uint16, bool) {
	code, ok := darwinKeys[k]
	return code, ok
}

func (cgEventDevice) modifierCode(m macro.Modifier) (uint16, bool) {
	code, ok := darwinModifiers[m]
	return code, ok
}

func (cgEventDevice) key(code uint16, down bool) error {
	var d C.int
	if down {
		d = 1
	}
	if C.postKey(C.CGKeyCode(code), d) != 0 {
		return fmt.Errorf("create keyboard event for code %#x", code)
	}
	return nil
}

func (cgEventDevice) typeRune(r rune) error {
	units := utf16.Encode([]rune{r})
	chars := make([]C.UniChar, len(units))
	for i, u := range units {
		chars[i] = C.UniChar(u)
	}
	if C.postUnicode(&chars[0], C.int(len(chars))) != 0 {
		return fmt.Errorf("create unicode event for %q", r)
	}
	return nil
}

func (cgEventDevice) close() error { return nil }
