//go:build windows

package keystroke

import (
	"fmt"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"

	"keyblast/internal/macro"
)

var (
	user32        = windows.NewLazySystemDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

const (
	inputKeyboard = 1

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002
	keyeventfUnicode     = 0x0004
)

// Virtual-key codes (WinUser.h).
const (
	vkBack     = 0x08
	vkTab      = 0x09
	vkReturn   = 0x0D
	vkShift    = 0x10
	vkControl  = 0x11
	vkMenu     = 0x12
	vkCapital  = 0x14
	vkEscape   = 0x1B
	vkSpace    = 0x20
	vkPrior    = 0x21
	vkNext     = 0x22
	vkEnd      = 0x23
	vkHome     = 0x24
	vkLeft     = 0x25
	vkUp       = 0x26
	vkRight    = 0x27
	vkDown     = 0x28
	vkInsert   = 0x2D
	vkDelete   = 0x2E
	vkLWin     = 0x5B
	vkF1       = 0x70
	vkLShift   = 0xA0
	vkRShift   = 0xA1
	vkLControl = 0xA2
	vkRControl = 0xA3
	vkLMenu    = 0xA4
	vkRMenu    = 0xA5
)

var windowsKeys = map[macro.Key]uint16{
	macro.KeyEnter:     vkReturn,
	macro.KeyTab:       vkTab,
	macro.KeyEscape:    vkEscape,
	macro.KeyBackspace: vkBack,
	macro.KeyDelete:    vkDelete,
	macro.KeyInsert:    vkInsert,
	macro.KeyHome:      vkHome,
	macro.KeyEnd:       vkEnd,
	macro.KeyPageUp:    vkPrior,
	macro.KeyPageDown:  vkNext,
	macro.KeySpace:     vkSpace,
	macro.KeyCapsLock:  vkCapital,
	macro.KeyUp:        vkUp,
	macro.KeyDown:      vkDown,
	macro.KeyLeft:      vkLeft,
	macro.KeyRight:     vkRight,
}

func init() {
	for k := macro.KeyF1; k <= macro.KeyF12; k++ {
		windowsKeys[k] = vkF1 + uint16(k-macro.KeyF1)
	}
}

var windowsModifiers = map[macro.Modifier]uint16{
	macro.ModCtrl:       vkControl,
	macro.ModShift:      vkShift,
	macro.ModAlt:        vkMenu,
	macro.ModMeta:       vkLWin,
	macro.ModLeftCtrl:   vkLControl,
	macro.ModRightCtrl:  vkRControl,
	macro.ModLeftShift:  vkLShift,
	macro.ModRightShift: vkRShift,
	macro.ModLeftAlt:    vkLMenu,
	macro.ModRightAlt:   vkRMenu,
}

// extendedKeys need KEYEVENTF_EXTENDEDKEY to avoid being read as the
// numeric keypad.
var extendedKeys = map[uint16]bool{
	vkPrior: true, vkNext: true, vkEnd: true, vkHome: true,
	vkLeft: true, vkUp: true, vkRight: true, vkDown: true,
	vkInsert: true, vkDelete: true, vkLWin: true,
	vkRControl: true, vkRMenu: true,
}

// keybdInput mirrors KEYBDINPUT.
type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// input mirrors INPUT for the keyboard case. The padding makes the struct
// as large as the MOUSEINPUT arm of the union.
type input struct {
	inputType uint32
	ki        keybdInput
	padding   uint64
}

type sendInputDevice struct{}

func platformAvailable() (bool, string) {
	if err := procSendInput.Find(); err != nil {
		return false, fmt.Sprintf("SendInput unavailable: %v", err)
	}
	return true, "SendInput available"
}

func openDevice() (device, error) {
	if err := procSendInput.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	return sendInputDevice{}, nil
}

func (sendInputDevice) keyCode(k macro.Key) (uint16, bool) {
	code, ok := windowsKeys[k]
	return code, ok
}

func (sendInputDevice) modifierCode(m macro.Modifier) (uint16, bool) {
	code, ok := windowsModifiers[m]
	return code, ok
}

func (sendInputDevice) key(code uint16, down bool) error {
	var flags uint32
	if !down {
		flags |= keyeventfKeyUp
	}
	if extendedKeys[code] {
		flags |= keyeventfExtendedKey
	}
	return sendInputs([]input{{
		inputType: inputKeyboard,
		ki:        keybdInput{wVk: code, dwFlags: flags},
	}})
}

// typeRune sends the character as UTF-16 code units, so text does not
// depend on the active keyboard layout.
func (sendInputDevice) typeRune(r rune) error {
	units := utf16.Encode([]rune{r})
	inputs := make([]input, 0, 2*len(units))
	for _, u := range units {
		inputs = append(inputs,
			input{inputType: inputKeyboard, ki: keybdInput{wScan: u, dwFlags: keyeventfUnicode}},
			input{inputType: inputKeyboard, ki: keybdInput{wScan: u, dwFlags: keyeventfUnicode | keyeventfKeyUp}},
		)
	}
	return sendInputs(inputs)
}

func (sendInputDevice) close() error { return nil }

func sendInputs(inputs []input) error {
	n, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(n) != len(inputs) {
		return fmt.Errorf("SendInput sent %d of %d events: %w", n, len(inputs), err)
	}
	return nil
}
