package execution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyblast/internal/logging"
	"keyblast/internal/macro"
	"keyblast/internal/metrics"
)

type recordingInjector struct {
	mu       sync.Mutex
	releases int
	events   []string
	injected []macro.Segment
	fail     func(macro.Segment) error
}

func (r *recordingInjector) ReleaseHeldModifiers() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
	r.events = append(r.events, "release")
	return nil
}

func (r *recordingInjector) Inject(seg macro.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, seg.String())
	if r.fail != nil {
		if err := r.fail(seg); err != nil {
			return err
		}
	}
	r.injected = append(r.injected, seg)
	return nil
}

func (r *recordingInjector) Injected() []macro.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]macro.Segment(nil), r.injected...)
}

func (r *recordingInjector) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type scriptedClipboard struct {
	text  string
	err   error
	reads atomic.Int32
}

func (c *scriptedClipboard) ReadText() (string, error) {
	c.reads.Add(1)
	return c.text, c.err
}

func testOptions() Options {
	return Options{
		ModifierSettle: time.Millisecond,
		PollInterval:   2 * time.Millisecond,
		Logger:         logging.Discard(),
	}
}

func newTestEngine(t *testing.T, inj Injector, clip ClipboardReader, opts Options) *Engine {
	t.Helper()
	e := NewEngine(inj, clip, opts)
	t.Cleanup(e.Close)
	return e
}

// drain reads commands straight off the channel until the worker exits.
func drain(t *testing.T, inv *Invocation) []Command {
	t.Helper()
	select {
	case <-inv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
	var cmds []Command
	for {
		select {
		case cmd := <-inv.commands:
			cmds = append(cmds, cmd)
		default:
			return cmds
		}
	}
}

func TestFastPathIsSynchronous(t *testing.T) {
	inj := &recordingInjector{}
	e := newTestEngine(t, inj, nil, testOptions())

	inv, err := e.Run(context.Background(), macro.Compile("Hi{Enter}"), 0)
	require.NoError(t, err)

	assert.Equal(t, PathFast, inv.Path())
	assert.False(t, inv.IsActive())
	assert.True(t, inv.Poll())
	assert.Equal(t, []string{"release", `Text("Hi")`, "Key(Enter)"}, inj.Events())

	out := inv.Outcome()
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 2, out.Injected)
	assert.Empty(t, out.Failures)

	select {
	case <-inv.Done():
	default:
		t.Fatal("fast path invocation should already be joined")
	}
}

func TestFastPathEligibility(t *testing.T) {
	e := newTestEngine(t, &recordingInjector{}, nil, testOptions())

	short := macro.Compile("a{Enter}b")
	assert.True(t, e.FastPathEligible(short, 0))
	assert.True(t, e.FastPathEligible(nil, 0))
	assert.False(t, e.FastPathEligible(short, time.Millisecond))
	assert.False(t, e.FastPathEligible(macro.Compile("a{Delay 1}"), 0))

	long := macro.Compile("{Tab}{Tab}{Tab}{Tab}{Tab}{Tab}{Tab}{Tab}{Tab}{Tab}")
	require.Len(t, long, 10)
	assert.True(t, e.FastPathEligible(long, 0))
	assert.False(t, e.FastPathEligible(append(long, macro.Special(macro.KeyTab)), 0))

	opts := testOptions()
	opts.FastPathMaxSegments = -1
	disabled := newTestEngine(t, &recordingInjector{}, nil, opts)
	assert.False(t, disabled.FastPathEligible(short, 0))
}

func TestWorkerEmitsEverySegmentThenCompleted(t *testing.T) {
	inj := &recordingInjector{}
	e := newTestEngine(t, inj, nil, testOptions())

	segments := macro.Compile("a{Enter}b{Delay 5}c")
	inv, err := e.Run(context.Background(), segments, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, PathWorker, inv.Path())

	cmds := drain(t, inv)
	require.Len(t, cmds, len(segments)+1)
	for i, seg := range segments {
		assert.Equal(t, CommandInject, cmds[i].Kind)
		assert.Equal(t, i, cmds[i].Index)
		assert.Equal(t, seg, cmds[i].Segment)
	}
	assert.Equal(t, CommandCompleted, cmds[len(segments)].Kind)

	// The worker never injects; only the release on the calling goroutine
	// has happened so far.
	assert.Equal(t, []string{"release"}, inj.Events())
}

func TestAwaitInjectsInOrder(t *testing.T) {
	inj := &recordingInjector{}
	e := newTestEngine(t, inj, nil, testOptions())

	segments := macro.Compile("{KeyDown Ctrl}c{KeyUp Ctrl}{Delay 3}done")
	inv, err := e.Run(context.Background(), segments, time.Millisecond)
	require.NoError(t, err)

	out := inv.Await(context.Background())
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, PathWorker, out.Path)
	assert.Equal(t, 4, out.Injected)
	assert.Equal(t, []macro.Segment{
		macro.ModifierDown(macro.ModCtrl),
		macro.Text("c"),
		macro.ModifierUp(macro.ModCtrl),
		macro.Text("done"),
	}, inj.Injected())
	assert.False(t, inv.IsActive())
}

func TestRequestStopYieldsSingleCancelled(t *testing.T) {
	e := newTestEngine(t, &recordingInjector{}, nil, testOptions())

	segments := macro.Compile("abcdefghijklmnop")
	segments = append(segments, macro.Compile("{Tab}{Tab}{Tab}{Tab}{Tab}{Tab}{Tab}{Tab}")...)
	inv, err := e.Run(context.Background(), segments, 20*time.Millisecond)
	require.NoError(t, err)

	first := <-inv.commands
	require.Equal(t, CommandInject, first.Kind)
	inv.RequestStop()
	assert.True(t, inv.StopRequested())

	cmds := append([]Command{first}, drain(t, inv)...)
	last := cmds[len(cmds)-1]
	assert.Equal(t, CommandCancelled, last.Kind)

	terminals := 0
	for _, cmd := range cmds {
		if cmd.Kind.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Less(t, len(cmds)-1, len(segments), "cancellation must truncate the run")
}

func TestCancellationLatencyBoundedByPoll(t *testing.T) {
	opts := testOptions()
	opts.PollInterval = 5 * time.Millisecond
	e := newTestEngine(t, &recordingInjector{}, nil, opts)

	inv, err := e.Run(context.Background(), macro.Compile("x{Delay 60000}y"), 0)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	inv.RequestStop()
	out := inv.Await(context.Background())

	assert.Equal(t, StatusCancelled, out.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHugeDelayWaitsUntilStopped(t *testing.T) {
	inj := &recordingInjector{}
	opts := testOptions()
	opts.PollInterval = 5 * time.Millisecond
	e := newTestEngine(t, inj, nil, opts)

	inv, err := e.Run(context.Background(), macro.Compile("x{Delay 10000000000000}y"), 0)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.True(t, inv.IsActive(), "an overlong delay must not wrap into a negative pause")

	inv.RequestStop()
	out := inv.Await(context.Background())
	assert.Equal(t, StatusCancelled, out.Status)
	for _, seg := range inj.Injected() {
		assert.NotEqual(t, macro.Text("y"), seg)
	}
}

func TestStopBeforeFirstSegment(t *testing.T) {
	inj := &recordingInjector{}
	opts := testOptions()
	opts.ModifierSettle = 200 * time.Millisecond
	e := newTestEngine(t, inj, nil, opts)

	inv, err := e.Run(context.Background(), macro.Compile("abc"), time.Millisecond)
	require.NoError(t, err)
	inv.RequestStop()

	out := inv.Await(context.Background())
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Zero(t, out.Injected)
	assert.Empty(t, inj.Injected())
}

func TestContextCancelStopsRun(t *testing.T) {
	e := newTestEngine(t, &recordingInjector{}, nil, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	inv, err := e.Run(ctx, macro.Compile("a{Delay 60000}b"), 0)
	require.NoError(t, err)

	cancel()
	out := inv.Await(context.Background())
	assert.Equal(t, StatusCancelled, out.Status)
}

func TestAwaitContextRequestsStop(t *testing.T) {
	e := newTestEngine(t, &recordingInjector{}, nil, testOptions())

	inv, err := e.Run(context.Background(), macro.Compile("a{Delay 60000}b"), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := inv.Await(ctx)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.True(t, inv.StopRequested())
}

func TestRunWithCancelledContext(t *testing.T) {
	e := newTestEngine(t, &recordingInjector{}, nil, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, macro.Compile("a"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPasteInjectsClipboardText(t *testing.T) {
	inj := &recordingInjector{}
	clip := &scriptedClipboard{text: "from clipboard"}
	e := newTestEngine(t, inj, clip, testOptions())

	inv, err := e.Run(context.Background(), macro.Compile("> {Paste}{Enter}"), 0)
	require.NoError(t, err)
	require.False(t, inv.IsActive())

	assert.Equal(t, []macro.Segment{
		macro.Text("> "),
		macro.Text("from clipboard"),
		macro.Special(macro.KeyEnter),
	}, inj.Injected())
	assert.Equal(t, int32(1), clip.reads.Load())
}

func TestPasteClipboardFailureIsNoop(t *testing.T) {
	inj := &recordingInjector{}
	m := metrics.New()
	opts := testOptions()
	opts.Metrics = m
	e := newTestEngine(t, inj, &scriptedClipboard{err: errors.New("no display")}, opts)

	inv, err := e.Run(context.Background(), macro.Compile("a{Paste}b"), 0)
	require.NoError(t, err)

	out := inv.Outcome()
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Empty(t, out.Failures)
	assert.Equal(t, []macro.Segment{macro.Text("a"), macro.Text("b")}, inj.Injected())
}

func TestPasteWithoutClipboardReader(t *testing.T) {
	inj := &recordingInjector{}
	e := newTestEngine(t, inj, nil, testOptions())

	inv, err := e.Run(context.Background(), macro.Compile("{Paste}x"), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, inv.Outcome().Status)
	assert.Equal(t, []macro.Segment{macro.Text("x")}, inj.Injected())
}

func TestInjectionFailureContinues(t *testing.T) {
	boom := errors.New("device gone")
	inj := &recordingInjector{fail: func(s macro.Segment) error {
		if s.Kind == macro.KindSpecialKey {
			return boom
		}
		return nil
	}}

	var reported []*SegmentError
	opts := testOptions()
	opts.OnFailure = func(err *SegmentError) { reported = append(reported, err) }
	e := newTestEngine(t, inj, nil, opts)

	inv, err := e.Run(context.Background(), macro.Compile("a{Enter}b"), time.Millisecond)
	require.NoError(t, err)
	out := inv.Await(context.Background())

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 2, out.Injected)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, 1, out.Failures[0].Index)
	assert.ErrorIs(t, out.Failures[0], boom)
	assert.Equal(t, out.Failures, reported)
	assert.Equal(t, []macro.Segment{macro.Text("a"), macro.Text("b")}, inj.Injected())
}

func TestPasteFailureReportsPasteSegment(t *testing.T) {
	inj := &recordingInjector{fail: func(macro.Segment) error { return errors.New("rejected") }}
	e := newTestEngine(t, inj, &scriptedClipboard{text: "secret text"}, testOptions())

	inv, err := e.Run(context.Background(), macro.Compile("{Paste}"), 0)
	require.NoError(t, err)

	failures := inv.Outcome().Failures
	require.Len(t, failures, 1)
	assert.Equal(t, macro.Paste(), failures[0].Segment)
	assert.NotContains(t, failures[0].Error(), "secret text")
}

func TestCloseRefusesRunsAndJoinsWorkers(t *testing.T) {
	e := NewEngine(&recordingInjector{}, nil, testOptions())

	inv, err := e.Run(context.Background(), macro.Compile("a{Delay 60000}b"), 0)
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not join the worker")
	}

	select {
	case <-inv.Done():
	default:
		t.Fatal("worker still running after Close")
	}
	assert.True(t, inv.Poll())
	assert.Equal(t, StatusCancelled, inv.Outcome().Status)

	_, err = e.Run(context.Background(), macro.Compile("a"), 0)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestMetricsRecorded(t *testing.T) {
	m := metrics.New()
	opts := testOptions()
	opts.Metrics = m
	e := newTestEngine(t, &recordingInjector{}, nil, opts)

	inv, err := e.Run(context.Background(), macro.Compile("ab{Tab}"), 0)
	require.NoError(t, err)
	require.False(t, inv.IsActive())

	families, err := m.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				values[mf.GetName()] += g.GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["keyblast_segments_injected_total"])
	assert.Equal(t, 1.0, values["keyblast_invocations_total"])
	assert.Equal(t, 0.0, values["keyblast_active_invocations"])
}

func TestGuardRecoversPanic(t *testing.T) {
	e := newTestEngine(t, &recordingInjector{}, nil, testOptions())
	inv := newInvocation(e, "panicky", PathWorker, nil, 0)

	assert.True(t, e.guard(inv, func() { panic("boom") }))
	assert.False(t, e.guard(inv, func() {}))

	failures := inv.Outcome().Failures
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], ErrWorkerPanic)
}

func TestSleepInterruptibly(t *testing.T) {
	var stop atomic.Bool
	assert.True(t, sleepInterruptibly(&stop, 5*time.Millisecond, time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		stop.Store(true)
	}()
	start := time.Now()
	assert.False(t, sleepInterruptibly(&stop, time.Minute, 2*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommandStrings(t *testing.T) {
	assert.Equal(t, "inject[2] Key(Tab)", Command{Kind: CommandInject, Index: 2, Segment: macro.Special(macro.KeyTab)}.String())
	assert.Equal(t, "completed", Command{Kind: CommandCompleted}.String())
	assert.True(t, CommandCancelled.Terminal())
	assert.False(t, CommandInject.Terminal())
	assert.Equal(t, "fast", PathFast.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
}
