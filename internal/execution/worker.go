package execution

import (
	"sync/atomic"
	"time"

	"keyblast/internal/macro"
)

// work is the worker goroutine body. It emits at most one command per
// segment followed by exactly one terminal command, so the command channel,
// sized len(segments)+1, never blocks it.
func (e *Engine) work(inv *Invocation) {
	defer e.workers.Done()
	defer e.forget(inv)
	defer close(inv.done)

	terminal := false
	emit := func(cmd Command) {
		inv.commands <- cmd
		if cmd.Kind.Terminal() {
			terminal = true
		}
	}

	if e.guard(inv, func() { e.pace(inv, emit) }) && !terminal {
		emit(Command{Kind: CommandCancelled})
	}
}

// guard runs fn and reports whether it panicked.
func (e *Engine) guard(inv *Invocation, fn func()) (panicked bool) {
	if e.opts.Crash != nil {
		panicked = e.opts.Crash.Recover(inv.id, fn)
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					panicked = true
					inv.log.Error("playback worker panicked", "panic", r)
				}
			}()
			fn()
		}()
	}
	if panicked {
		inv.recordFailure(&SegmentError{Index: -1, Err: ErrWorkerPanic})
	}
	return panicked
}

// pace walks the segments, checking the stop flag before each one.
func (e *Engine) pace(inv *Invocation, emit func(Command)) {
	poll := e.opts.PollInterval

	sleepInterruptibly(&inv.stop, e.opts.ModifierSettle, poll)

	last := len(inv.segments) - 1
	for i, seg := range inv.segments {
		if inv.stop.Load() {
			emit(Command{Kind: CommandCancelled})
			return
		}

		emit(Command{Kind: CommandInject, Index: i, Segment: seg})

		if seg.Kind == macro.KindDelay {
			sleepInterruptibly(&inv.stop, seg.Duration(), poll)
		} else if inv.delay > 0 && i < last {
			sleepInterruptibly(&inv.stop, inv.delay, poll)
		}
	}

	if inv.stop.Load() {
		emit(Command{Kind: CommandCancelled})
		return
	}
	emit(Command{Kind: CommandCompleted})
}

// sleepInterruptibly sleeps for d in steps of at most poll, returning early
// once stop is set. It reports whether the full duration elapsed.
func sleepInterruptibly(stop *atomic.Bool, d, poll time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if stop.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		time.Sleep(min(poll, remaining))
	}
}
