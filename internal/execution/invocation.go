package execution

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"keyblast/internal/logging"
	"keyblast/internal/macro"
)

// Path records how an invocation was played.
type Path int

const (
	// PathFast injects synchronously inside Run.
	PathFast Path = iota
	// PathWorker paces segments from a worker goroutine.
	PathWorker
)

// String returns the path name.
func (p Path) String() string {
	if p == PathFast {
		return "fast"
	}
	return "worker"
}

// Status is the lifecycle state of an invocation as seen by its caller.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome summarises a run.
type Outcome struct {
	Path     Path
	Status   Status
	Segments int
	Injected int
	Failures []*SegmentError
	Duration time.Duration
}

// Invocation is one run of a compiled macro. It is created by Engine.Run and
// driven by the caller through Poll or Await. Poll and Await perform
// injection and must stay on the goroutine that called Run. RequestStop,
// IsActive, Wait and Outcome are safe from any goroutine.
type Invocation struct {
	id       string
	path     Path
	segments []macro.Segment
	delay    time.Duration
	engine   *Engine
	log      *logging.Logger
	started  time.Time

	stop     atomic.Bool
	commands chan Command
	done     chan struct{}
	detach   func() bool

	finished atomic.Bool
	mu       sync.Mutex
	outcome  Outcome
}

func newInvocation(e *Engine, id string, path Path, segments []macro.Segment, delay time.Duration) *Invocation {
	return &Invocation{
		id:       id,
		path:     path,
		segments: segments,
		delay:    delay,
		engine:   e,
		log:      e.opts.Logger.WithInvocation(id),
		started:  time.Now(),
		done:     make(chan struct{}),
		outcome: Outcome{
			Path:     path,
			Status:   StatusRunning,
			Segments: len(segments),
		},
	}
}

// ID returns the unique invocation identifier.
func (inv *Invocation) ID() string {
	return inv.id
}

// Path returns the playback path chosen for this invocation.
func (inv *Invocation) Path() Path {
	return inv.path
}

// Segments returns the compiled segments being played.
func (inv *Invocation) Segments() []macro.Segment {
	return inv.segments
}

// RequestStop asks the worker to stop at the next segment boundary or poll
// tick. It never blocks and may be called repeatedly.
func (inv *Invocation) RequestStop() {
	inv.stop.Store(true)
}

// StopRequested reports whether RequestStop has been called.
func (inv *Invocation) StopRequested() bool {
	return inv.stop.Load()
}

// IsActive reports whether the caller has not yet observed a terminal
// command.
func (inv *Invocation) IsActive() bool {
	return !inv.finished.Load()
}

// Done is closed when the worker goroutine has exited.
func (inv *Invocation) Done() <-chan struct{} {
	return inv.done
}

// Wait blocks until the worker goroutine has exited. It does not inject
// anything; commands still queued are applied by the next Poll.
func (inv *Invocation) Wait() {
	<-inv.done
}

// Outcome returns a snapshot of the run's result so far.
func (inv *Invocation) Outcome() Outcome {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	out := inv.outcome
	out.Failures = append([]*SegmentError(nil), inv.outcome.Failures...)
	if out.Status == StatusRunning {
		out.Duration = time.Since(inv.started)
	}
	return out
}

// Poll applies every command already queued by the worker without blocking.
// It reports whether the invocation has finished.
func (inv *Invocation) Poll() bool {
	if inv.finished.Load() {
		return true
	}
	for {
		select {
		case cmd := <-inv.commands:
			if inv.handle(cmd) {
				return true
			}
		default:
			return false
		}
	}
}

// Await applies commands as they arrive until the invocation finishes. When
// ctx is cancelled it requests a stop and keeps draining until the worker
// acknowledges.
func (inv *Invocation) Await(ctx context.Context) Outcome {
	for !inv.Poll() {
		select {
		case cmd := <-inv.commands:
			if inv.handle(cmd) {
				return inv.Outcome()
			}
		case <-ctx.Done():
			inv.RequestStop()
			ctx = context.Background()
		}
	}
	return inv.Outcome()
}

// handle applies one command and reports whether it was terminal.
func (inv *Invocation) handle(cmd Command) bool {
	switch cmd.Kind {
	case CommandInject:
		inv.engine.apply(inv, cmd.Index, cmd.Segment)
		return false
	case CommandCompleted:
		inv.finish(StatusCompleted)
	default:
		inv.finish(StatusCancelled)
	}
	return true
}

func (inv *Invocation) recordInjected() {
	inv.mu.Lock()
	inv.outcome.Injected++
	inv.mu.Unlock()
}

func (inv *Invocation) recordFailure(err *SegmentError) {
	inv.mu.Lock()
	inv.outcome.Failures = append(inv.outcome.Failures, err)
	inv.mu.Unlock()
}

func (inv *Invocation) finish(status Status) {
	if inv.finished.Load() {
		return
	}

	inv.mu.Lock()
	inv.outcome.Status = status
	inv.outcome.Duration = time.Since(inv.started)
	out := inv.outcome
	inv.mu.Unlock()

	inv.finished.Store(true)
	if inv.detach != nil {
		inv.detach()
	}

	m := inv.engine.opts.Metrics
	m.InvocationEnded()
	m.RecordRun(out.Path.String(), out.Status.String(), out.Duration)

	inv.log.Debug("invocation finished",
		"path", out.Path.String(),
		"status", out.Status.String(),
		"injected", out.Injected,
		"failures", len(out.Failures),
		"duration", out.Duration)
}
