package keystroke

import (
	"fmt"
	"io"
	"sync"

	"keyblast/internal/macro"
)

// Recorder is a dry-run Injector. It records every call and, when given a
// writer, prints one line per call instead of touching the keyboard.
type Recorder struct {
	mu       sync.Mutex
	w        io.Writer
	segments []macro.Segment
	releases int
	failOn   func(macro.Segment) error
}

// NewRecorder returns a Recorder that prints to w. w may be nil.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// FailWhen makes Inject return the error fn reports for a segment.
func (r *Recorder) FailWhen(fn func(macro.Segment) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn = fn
}

func (r *Recorder) ReleaseHeldModifiers() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
	if r.w != nil {
		fmt.Fprintln(r.w, "release modifiers")
	}
	return nil
}

func (r *Recorder) Inject(seg macro.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		if err := r.failOn(seg); err != nil {
			return err
		}
	}
	r.segments = append(r.segments, seg)
	if r.w != nil {
		fmt.Fprintf(r.w, "inject %s\n", seg)
	}
	return nil
}

func (r *Recorder) Close() error { return nil }

// Segments returns a copy of the injected segments.
func (r *Recorder) Segments() []macro.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]macro.Segment(nil), r.segments...)
}

// Releases returns how many times ReleaseHeldModifiers was called.
func (r *Recorder) Releases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releases
}
