package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"keyblast/internal/macro"
)

// Engine plays compiled macros through an Injector.
type Engine struct {
	injector  Injector
	clipboard ClipboardReader
	opts      Options

	mu      sync.Mutex
	closed  bool
	live    map[*Invocation]struct{}
	workers sync.WaitGroup
}

// NewEngine creates an engine. clipboard may be nil, in which case Paste
// segments are skipped.
func NewEngine(injector Injector, clipboard ClipboardReader, opts Options) *Engine {
	return &Engine{
		injector:  injector,
		clipboard: clipboard,
		opts:      opts.withDefaults(),
		live:      make(map[*Invocation]struct{}),
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// FastPathEligible reports whether a run would be injected synchronously.
func (e *Engine) FastPathEligible(segments []macro.Segment, delay time.Duration) bool {
	return delay == 0 &&
		e.opts.FastPathMaxSegments >= 0 &&
		len(segments) <= e.opts.FastPathMaxSegments &&
		!macro.HasDelay(segments)
}

// Run starts playing segments with delay between consecutive segments.
//
// On the fast path every segment is injected before Run returns and the
// invocation is already finished. Otherwise a worker is started and the
// caller must Poll or Await the returned invocation on the same goroutine.
// Cancelling ctx requests a stop.
func (e *Engine) Run(ctx context.Context, segments []macro.Segment, delay time.Duration) (*Invocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}

	if e.FastPathEligible(segments, delay) {
		return e.runFast(segments), nil
	}
	return e.runWorker(ctx, segments, delay)
}

func (e *Engine) runFast(segments []macro.Segment) *Invocation {
	inv := newInvocation(e, uuid.NewString(), PathFast, segments, 0)
	close(inv.done)

	e.opts.Metrics.InvocationStarted()
	inv.log.Debug("fast path", "segments", len(segments))

	e.releaseModifiers(inv)
	time.Sleep(e.opts.ModifierSettle)

	for i, seg := range segments {
		e.apply(inv, i, seg)
	}

	inv.finish(StatusCompleted)
	return inv
}

func (e *Engine) runWorker(ctx context.Context, segments []macro.Segment, delay time.Duration) (*Invocation, error) {
	inv := newInvocation(e, uuid.NewString(), PathWorker, segments, delay)
	inv.commands = make(chan Command, len(segments)+1)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.live[inv] = struct{}{}
	e.workers.Add(1)
	e.mu.Unlock()

	e.opts.Metrics.InvocationStarted()
	inv.log.Debug("worker path", "segments", len(segments), "delay", delay)

	e.releaseModifiers(inv)
	inv.detach = context.AfterFunc(ctx, inv.RequestStop)

	go e.work(inv)
	return inv, nil
}

// Close stops every live worker, waits for them to exit and refuses further
// runs. Commands still queued are left for the callers' next Poll.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for inv := range e.live {
		inv.RequestStop()
	}
	e.mu.Unlock()

	e.workers.Wait()
}

func (e *Engine) forget(inv *Invocation) {
	e.mu.Lock()
	delete(e.live, inv)
	e.mu.Unlock()
}

func (e *Engine) releaseModifiers(inv *Invocation) {
	if err := e.injector.ReleaseHeldModifiers(); err != nil {
		inv.log.Warn("release held modifiers failed", "error", err)
	}
}

// apply performs one segment on the calling goroutine.
func (e *Engine) apply(inv *Invocation, index int, seg macro.Segment) {
	original := seg

	switch seg.Kind {
	case macro.KindDelay:
		return

	case macro.KindPaste:
		text, err := e.readClipboard()
		if err != nil {
			e.opts.Metrics.RecordClipboardFailure()
			inv.log.Warn("paste skipped", "index", index, "error", err)
			return
		}
		if text == "" {
			return
		}
		seg = macro.Text(text)
	}

	if err := e.injector.Inject(seg); err != nil {
		// Failures on pasted text report the Paste segment, not the
		// clipboard contents.
		serr := &SegmentError{Index: index, Segment: original, Err: err}
		inv.recordFailure(serr)
		e.opts.Metrics.RecordInjectionFailure(seg.Kind.String())
		inv.log.Warn("injection failed", "index", index, "kind", seg.Kind.String(), "error", err)
		if e.opts.OnFailure != nil {
			e.opts.OnFailure(serr)
		}
		return
	}

	inv.recordInjected()
	e.opts.Metrics.RecordInjected()
}

func (e *Engine) readClipboard() (string, error) {
	if e.clipboard == nil {
		return "", ErrNoClipboard
	}
	text, err := e.clipboard.ReadText()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}
