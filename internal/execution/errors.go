package execution

import (
	"errors"
	"fmt"

	"keyblast/internal/macro"
)

var (
	// ErrEngineClosed is returned by Run once Close has been called.
	ErrEngineClosed = errors.New("execution engine closed")

	// ErrNoClipboard is reported for Paste segments when no clipboard
	// reader is configured.
	ErrNoClipboard = errors.New("no clipboard reader configured")

	// ErrWorkerPanic is recorded when a playback worker panics.
	ErrWorkerPanic = errors.New("playback worker panicked")
)

// SegmentError describes a segment that could not be delivered.
type SegmentError struct {
	Index   int
	Segment macro.Segment
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d %s: %v", e.Index, e.Segment, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}
