// Package keystroke injects synthetic keyboard input into the focused window.
//
// Platform support:
//   - Linux: a virtual keyboard created through /dev/uinput (requires write
//     access, usually the input group or a udev rule)
//   - macOS: CGEventPost (requires Accessibility permission)
//   - Windows: SendInput with KEYEVENTF_UNICODE for text
//
// Text is typed rune by rune. Special keys and modifiers map to the
// platform's key codes. Held modifiers are tracked so ReleaseHeldModifiers
// can leave the keyboard clean before a macro starts.
package keystroke

import (
	"errors"
	"fmt"
	"sync"

	"keyblast/internal/macro"
)

var (
	// ErrNotAvailable is returned when injection is not possible on this
	// platform or with the current permissions.
	ErrNotAvailable = errors.New("keystroke injection not available")

	// ErrUnsupportedRune is returned for characters the platform keymap
	// cannot type.
	ErrUnsupportedRune = errors.New("unsupported character")

	// ErrUnsupportedSegment is returned for segments an injector cannot
	// perform directly. Paste segments are resolved by the engine.
	ErrUnsupportedSegment = errors.New("unsupported segment")
)

// Injector sends synthetic keyboard input.
type Injector interface {
	// ReleaseHeldModifiers sends key-up for every common modifier.
	ReleaseHeldModifiers() error

	// Inject performs one segment.
	Inject(seg macro.Segment) error

	// Close releases the underlying device.
	Close() error
}

// New opens the platform injector.
func New() (Injector, error) {
	dev, err := openDevice()
	if err != nil {
		return nil, err
	}
	return newDeviceInjector(dev), nil
}

// Available reports whether injection can work with the current
// permissions, with a human-readable reason.
func Available() (bool, string) {
	return platformAvailable()
}

// device is the platform layer under deviceInjector.
type device interface {
	// keyCode maps a special key to a platform code.
	keyCode(k macro.Key) (uint16, bool)

	// modifierCode maps a modifier to a platform code.
	modifierCode(m macro.Modifier) (uint16, bool)

	// key presses or releases one platform key.
	key(code uint16, down bool) error

	// typeRune types one character, including any shift needed.
	typeRune(r rune) error

	close() error
}

// deviceInjector implements Injector on top of a device.
type deviceInjector struct {
	mu   sync.Mutex
	dev  device
	held map[macro.Modifier]struct{}
}

func newDeviceInjector(dev device) *deviceInjector {
	return &deviceInjector{
		dev:  dev,
		held: make(map[macro.Modifier]struct{}),
	}
}

// ReleaseHeldModifiers releases Ctrl, Shift, Alt and Meta plus any
// side-specific modifier pressed through a KeyDown segment. Releasing a key
// that is not down is harmless on every supported platform.
func (d *deviceInjector) ReleaseHeldModifiers() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	mods := append([]macro.Modifier{}, macro.CommonModifiers...)
	for m := range d.held {
		mods = append(mods, m)
	}

	var errs []error
	for _, m := range mods {
		code, ok := d.dev.modifierCode(m)
		if !ok {
			continue
		}
		if err := d.dev.key(code, false); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", m, err))
		}
	}
	d.held = make(map[macro.Modifier]struct{})
	return errors.Join(errs...)
}

// Inject performs seg. Delay segments are no-ops because the engine paces
// them.
func (d *deviceInjector) Inject(seg macro.Segment) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch seg.Kind {
	case macro.KindText:
		for _, r := range seg.Text {
			if err := d.dev.typeRune(r); err != nil {
				return err
			}
		}
		return nil

	case macro.KindSpecialKey:
		code, ok := d.dev.keyCode(seg.Key)
		if !ok {
			return fmt.Errorf("%w: key %s", ErrUnsupportedSegment, seg.Key)
		}
		if err := d.dev.key(code, true); err != nil {
			return err
		}
		return d.dev.key(code, false)

	case macro.KindModifierDown, macro.KindModifierUp:
		code, ok := d.dev.modifierCode(seg.Modifier)
		if !ok {
			return fmt.Errorf("%w: modifier %s", ErrUnsupportedSegment, seg.Modifier)
		}
		down := seg.Kind == macro.KindModifierDown
		if err := d.dev.key(code, down); err != nil {
			return err
		}
		if down {
			d.held[seg.Modifier] = struct{}{}
		} else {
			delete(d.held, seg.Modifier)
		}
		return nil

	case macro.KindDelay:
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSegment, seg.Kind)
	}
}

// Close releases anything still held and closes the device.
func (d *deviceInjector) Close() error {
	releaseErr := d.ReleaseHeldModifiers()
	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Join(releaseErr, d.dev.close())
}
