// Package app holds the trigger-side state of keyblast: the single active
// invocation slot, macro lookup, and the bookkeeping done when a run ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"keyblast/internal/config"
	"keyblast/internal/execution"
	"keyblast/internal/logging"
	"keyblast/internal/macro"
	"keyblast/internal/metrics"
	"keyblast/internal/notify"
	"keyblast/internal/store"
)

var (
	// ErrAlreadyRunning is returned when a trigger arrives while another
	// invocation is active.
	ErrAlreadyRunning = errors.New("a macro is already running")

	// ErrUnknownMacro is returned when no macro has the requested name.
	ErrUnknownMacro = errors.New("unknown macro")
)

// History persists finished runs. *store.Store implements it.
type History interface {
	InsertRun(r *store.Run) (int64, error)
	Prune(keep int) (int64, error)
}

// Options configure a Controller. Every field is optional.
type Options struct {
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier
	History  History

	// HistoryMaxRuns prunes the history after each run. 0 keeps all.
	HistoryMaxRuns int
}

// active is the occupied invocation slot. inv is nil while the engine is
// still starting the run; a slot is never mutated once published.
type active struct {
	inv     *execution.Invocation
	name    string
	started time.Time
}

func (a *active) busy() bool {
	return a != nil && (a.inv == nil || a.inv.IsActive())
}

// Controller owns the single active invocation slot. Trigger, Poll, Await
// and Shutdown inject keystrokes and must be called from the designated
// goroutine. Stop, IsRunning, SetMacros and Macros are safe from any
// goroutine.
type Controller struct {
	engine *execution.Engine
	opts   Options
	log    *logging.Logger

	mu     sync.Mutex
	macros []config.MacroDefinition
	slot   *active
}

// New creates a controller around engine.
func New(engine *execution.Engine, macros []config.MacroDefinition, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Controller{
		engine: engine,
		opts:   opts,
		log:    opts.Logger.WithComponent("app"),
		macros: append([]config.MacroDefinition(nil), macros...),
	}
}

// SetMacros replaces the macro set, typically after a config reload. A run
// in progress is not affected.
func (c *Controller) SetMacros(macros []config.MacroDefinition) {
	c.mu.Lock()
	c.macros = append([]config.MacroDefinition(nil), macros...)
	c.mu.Unlock()
	c.log.Info("macros updated", "count", len(macros))
}

// Macros returns a copy of the current macro set.
func (c *Controller) Macros() []config.MacroDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]config.MacroDefinition(nil), c.macros...)
}

func (c *Controller) lookup(name string) (config.MacroDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.macros {
		if m.Name == name {
			return m, true
		}
	}
	return config.MacroDefinition{}, false
}

// Trigger plays the named macro.
func (c *Controller) Trigger(ctx context.Context, name string) (*execution.Invocation, error) {
	m, ok := c.lookup(name)
	if !ok {
		c.opts.Metrics.RecordRejected("unknown")
		return nil, fmt.Errorf("%w: %q", ErrUnknownMacro, name)
	}
	return c.TriggerText(ctx, m.Name, m.Text, m.Delay())
}

// TriggerText compiles and plays text under name. It fails with
// ErrAlreadyRunning while another invocation is active. On the fast path the
// returned invocation has already finished.
//
// The slot is reserved before the engine starts, and the lock is not held
// while it runs, so IsRunning, Stop and SetMacros never wait on a fast-path
// run.
func (c *Controller) TriggerText(ctx context.Context, name, text string, delay time.Duration) (*execution.Invocation, error) {
	c.mu.Lock()
	if c.slot.busy() {
		busy := c.slot.name
		c.mu.Unlock()
		c.opts.Metrics.RecordRejected("busy")
		c.log.Warn("trigger rejected", "macro", name, "running", busy)
		return nil, fmt.Errorf("%w: %q", ErrAlreadyRunning, busy)
	}
	reserved := &active{name: name, started: time.Now()}
	c.slot = reserved
	c.mu.Unlock()

	segments := macro.Compile(text)
	inv, err := c.engine.Run(ctx, segments, delay)

	c.mu.Lock()
	if err != nil {
		if c.slot == reserved {
			c.slot = nil
		}
		c.mu.Unlock()
		c.opts.Metrics.RecordRejected("spawn")
		return nil, fmt.Errorf("start %q: %w", name, err)
	}
	slot := &active{inv: inv, name: name, started: reserved.started}
	c.slot = slot
	c.mu.Unlock()

	c.log.WithMacro(name).Info("macro triggered",
		"invocation", inv.ID(),
		"path", inv.Path().String(),
		"segments", len(segments),
		"delay", delay)

	if !inv.IsActive() {
		c.finish(slot)
	}
	return inv, nil
}

// IsRunning reports whether an invocation occupies the slot, including one
// the engine is still starting.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.busy()
}

// Stop requests cancellation of the active invocation, if any. A run that
// is still being started cannot be stopped yet.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	slot := c.slot
	c.mu.Unlock()
	if slot == nil || slot.inv == nil || !slot.inv.IsActive() {
		return false
	}
	slot.inv.RequestStop()
	c.log.Info("stop requested", "macro", slot.name, "invocation", slot.inv.ID())
	return true
}

// Poll applies queued commands of the active invocation without blocking.
// It reports whether an invocation is still running afterwards.
func (c *Controller) Poll() bool {
	c.mu.Lock()
	slot := c.slot
	c.mu.Unlock()
	if slot == nil {
		return false
	}
	if slot.inv == nil {
		return true
	}

	if slot.inv.Poll() {
		c.finish(slot)
		return false
	}
	return true
}

// Await drives the active invocation to its end. Cancelling ctx requests a
// stop. It returns false when nothing was running.
func (c *Controller) Await(ctx context.Context) (execution.Outcome, bool) {
	c.mu.Lock()
	slot := c.slot
	c.mu.Unlock()
	if slot == nil || slot.inv == nil {
		return execution.Outcome{}, false
	}

	out := slot.inv.Await(ctx)
	c.finish(slot)
	return out, true
}

// Run polls every interval until ctx is done, then shuts down.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Shutdown()
			return
		case <-ticker.C:
			c.Poll()
		}
	}
}

// Shutdown stops the active invocation, drains it, and closes the engine.
func (c *Controller) Shutdown() {
	c.Stop()
	c.Await(context.Background())
	c.engine.Close()
	c.log.Debug("controller shut down")
}

// finish releases the slot and records the run once.
func (c *Controller) finish(slot *active) {
	c.mu.Lock()
	if c.slot != slot {
		c.mu.Unlock()
		return
	}
	c.slot = nil
	c.mu.Unlock()

	out := slot.inv.Outcome()
	log := c.log.WithMacro(slot.name).WithInvocation(slot.inv.ID())
	log.Info("macro finished",
		"status", out.Status.String(),
		"injected", out.Injected,
		"failures", len(out.Failures),
		"duration", out.Duration)

	c.record(slot, out, log)

	if len(out.Failures) > 0 {
		c.opts.Notifier.InjectionFailed(slot.name, out.Failures[0])
	}
}

func (c *Controller) record(slot *active, out execution.Outcome, log *logging.Logger) {
	if c.opts.History == nil {
		return
	}

	run := &store.Run{
		InvocationID: slot.inv.ID(),
		MacroName:    slot.name,
		Path:         out.Path.String(),
		Status:       out.Status.String(),
		Segments:     out.Segments,
		Injected:     out.Injected,
		StartedAt:    slot.started,
		Duration:     out.Duration,
	}
	for _, f := range out.Failures {
		run.Failures = append(run.Failures, store.SegmentFailure{
			SegmentIndex: f.Index,
			Segment:      f.Segment.String(),
			Error:        f.Err.Error(),
		})
	}

	if _, err := c.opts.History.InsertRun(run); err != nil {
		log.Error("record run", "error", err)
		return
	}
	if c.opts.HistoryMaxRuns > 0 {
		if _, err := c.opts.History.Prune(c.opts.HistoryMaxRuns); err != nil {
			log.Error("prune history", "error", err)
		}
	}
}
