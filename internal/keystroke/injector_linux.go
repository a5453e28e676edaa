//go:build linux

package keystroke

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"keyblast/internal/logging"
	"keyblast/internal/macro"
)

const uinputPath = "/dev/uinput"

// uinput ioctls and event types (linux/uinput.h, linux/input.h).
const (
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	evSyn     = 0x00
	evKey     = 0x01
	synReport = 0

	busUSB = 0x03

	// uinputUserDevSize is sizeof(struct uinput_user_dev): an 80-byte name,
	// struct input_id, ff_effects_max and four ABS_CNT int32 arrays.
	uinputUserDevSize = 80 + 8 + 4 + 4*64*4

	// deviceSettle gives the compositor time to pick up the new device
	// before the first event.
	deviceSettle = 200 * time.Millisecond
)

// uinputDevice is a virtual keyboard backed by /dev/uinput.
type uinputDevice struct {
	fd int
}

func platformAvailable() (bool, string) {
	f, err := os.OpenFile(uinputPath, os.O_WRONLY, 0)
	if err != nil {
		return false, fmt.Sprintf("cannot open %s for writing (need the input group or a udev rule): %v", uinputPath, err)
	}
	f.Close()
	return true, "uinput virtual keyboard available"
}

func openDevice() (device, error) {
	fd, err := unix.Open(uinputPath, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrNotAvailable, uinputPath, err)
	}

	if err := setupUinput(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}

	logging.Default().WithComponent("keystroke").Debug("uinput keyboard created", "fd", fd)
	time.Sleep(deviceSettle)
	return &uinputDevice{fd: fd}, nil
}

func setupUinput(fd int) error {
	if err := unix.IoctlSetInt(fd, uiSetEvBit, evKey); err != nil {
		return fmt.Errorf("UI_SET_EVBIT EV_KEY: %w", err)
	}
	if err := unix.IoctlSetInt(fd, uiSetEvBit, evSyn); err != nil {
		return fmt.Errorf("UI_SET_EVBIT EV_SYN: %w", err)
	}
	for code := 1; code <= evKeyMax; code++ {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, code); err != nil {
			return fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}

	dev := make([]byte, uinputUserDevSize)
	copy(dev, "keyblast virtual keyboard")
	binary.LittleEndian.PutUint16(dev[80:], busUSB)
	binary.LittleEndian.PutUint16(dev[82:], 0x1234) // vendor
	binary.LittleEndian.PutUint16(dev[84:], 0x5678) // product
	binary.LittleEndian.PutUint16(dev[86:], 1)      // version
	if _, err := unix.Write(fd, dev); err != nil {
		return fmt.Errorf("write uinput_user_dev: %w", err)
	}

	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fmt.Errorf("UI_DEV_CREATE: %w", err)
	}
	return nil
}

func (u *uinputDevice) keyCode(k macro.Key) (uint16, bool) {
	code, ok := evdevKeys[k]
	return code, ok
}

func (u *uinputDevice) modifierCode(m macro.Modifier) (uint16, bool) {
	code, ok := evdevModifiers[m]
	return code, ok
}

func (u *uinputDevice) key(code uint16, down bool) error {
	var value int32
	if down {
		value = 1
	}
	if err := u.emit(evKey, code, value); err != nil {
		return err
	}
	return u.emit(evSyn, synReport, 0)
}

func (u *uinputDevice) typeRune(r rune) error {
	return typeEvdevRune(r, u.key)
}

// emit writes one struct input_event. The timestamp is left zero; the
// kernel fills it in.
func (u *uinputDevice) emit(typ, code uint16, value int32) error {
	var tv unix.Timeval
	buf := make([]byte, int(unsafe.Sizeof(tv))+8)
	off := int(unsafe.Sizeof(tv))
	binary.LittleEndian.PutUint16(buf[off:], typ)
	binary.LittleEndian.PutUint16(buf[off+2:], code)
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(value))

	if _, err := unix.Write(u.fd, buf); err != nil {
		return fmt.Errorf("write input_event: %w", err)
	}
	return nil
}

func (u *uinputDevice) close() error {
	destroyErr := unix.IoctlSetInt(u.fd, uiDevDestroy, 0)
	closeErr := unix.Close(u.fd)
	if destroyErr != nil {
		return fmt.Errorf("UI_DEV_DESTROY: %w", destroyErr)
	}
	return closeErr
}
