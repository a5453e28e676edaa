// Package execution plays compiled macros as simulated keyboard input.
//
// An Engine chooses between two paths for every run. Short runs without
// pauses are injected synchronously on the calling goroutine (the fast path).
// Everything else is paced by a worker goroutine that never touches the
// keyboard itself: it sends Commands back to the caller, which performs the
// injection when it polls the Invocation. All injection therefore happens on
// the goroutine that owns the Invocation, which must be the goroutine the
// Injector is bound to.
package execution

import "keyblast/internal/macro"

// Injector delivers segments to the operating system as keyboard input.
// Implementations may require being called from one specific goroutine; the
// engine only calls them from the goroutine that calls Run and Poll.
type Injector interface {
	// ReleaseHeldModifiers releases Ctrl, Shift, Alt and Meta so that keys
	// still held from the triggering hotkey do not combine with the macro.
	ReleaseHeldModifiers() error

	// Inject delivers a single Text, SpecialKey, ModifierDown or ModifierUp
	// segment.
	Inject(seg macro.Segment) error
}

// ClipboardReader returns the current clipboard text.
type ClipboardReader interface {
	ReadText() (string, error)
}
