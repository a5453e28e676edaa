// Package store provides SQLite-based run history for keyblast.
package store

import "time"

// Run is one recorded macro invocation.
type Run struct {
	ID           int64
	InvocationID string
	MacroName    string
	// Path is "fast" or "worker".
	Path string
	// Status is "completed" or "cancelled".
	Status    string
	Segments  int
	Injected  int
	Failures  []SegmentFailure
	StartedAt time.Time
	Duration  time.Duration
}

// FailureCount returns the number of failed segments.
func (r *Run) FailureCount() int {
	return len(r.Failures)
}

// SegmentFailure is a segment that failed to inject during a run.
type SegmentFailure struct {
	RunID        int64
	SegmentIndex int
	Segment      string
	Error        string
}

// MacroStats summarises the history of one macro.
type MacroStats struct {
	MacroName string
	Runs      int
	Completed int
	Cancelled int
	Failures  int
	LastRun   time.Time
}
