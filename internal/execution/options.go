package execution

import (
	"time"

	"keyblast/internal/logging"
	"keyblast/internal/metrics"
)

// Playback defaults.
const (
	DefaultFastPathMaxSegments = 10
	DefaultModifierSettle      = 50 * time.Millisecond
	DefaultPollInterval        = 50 * time.Millisecond
)

// Options tune an Engine. Zero values select the defaults.
type Options struct {
	// FastPathMaxSegments is the largest segment count played synchronously.
	// A negative value disables the fast path.
	FastPathMaxSegments int

	// ModifierSettle is the pause between releasing held modifiers and the
	// first injected segment.
	ModifierSettle time.Duration

	// PollInterval bounds how long a worker sleeps before rechecking its
	// stop flag, and therefore the cancellation latency.
	PollInterval time.Duration

	Logger  *logging.Logger
	Metrics *metrics.Metrics

	// Crash records worker panics. When nil, panics are still recovered
	// and logged.
	Crash *logging.CrashHandler

	// OnFailure is called on the injecting goroutine for every segment
	// that could not be delivered.
	OnFailure func(*SegmentError)
}

func (o Options) withDefaults() Options {
	if o.FastPathMaxSegments == 0 {
		o.FastPathMaxSegments = DefaultFastPathMaxSegments
	}
	if o.ModifierSettle <= 0 {
		o.ModifierSettle = DefaultModifierSettle
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = logging.Default().WithComponent("execution")
	}
	return o
}
