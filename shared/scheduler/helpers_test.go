package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"twilight-stack/internal/models"
	"twilight-stack/shared/recorder"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// fakeClock is a settable clock. Its timers fire when Set moves past them.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired && !timer.deadline.After(t) {
			timer.fired = true
			timer.ch <- t
		}
	}
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{deadline: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.timers = append(c.timers, timer)
	return timer
}

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
	stopped  bool
	fired    bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

// advance moves simulated time to `to`, dispatching every timer on the way
// at its own fire time.
func advance(ctx context.Context, l *Loop, clk *fakeClock, to time.Time) {
	for {
		next, ok := l.Next()
		if !ok || next.FireAt.After(to) {
			break
		}
		if next.FireAt.After(clk.Now()) {
			clk.Set(next.FireAt)
		}
		l.DispatchDue(ctx)
	}
	if to.After(clk.Now()) {
		clk.Set(to)
	}
}

type recorderCall struct {
	op string
	at time.Time
}

// fakeRecorder records Start/Stop calls against the fake clock.
type fakeRecorder struct {
	clock      *fakeClock
	failStarts int
	running    bool
	calls      []recorderCall
	starts     int
	stops      int
	overlap    bool
}

func (r *fakeRecorder) Start() (recorder.Handle, error) {
	r.calls = append(r.calls, recorderCall{"start", r.clock.Now()})
	if r.running {
		r.overlap = true
		return recorder.Handle{ID: "held"}, recorder.ErrAlreadyRunning
	}
	if r.failStarts > 0 {
		r.failStarts--
		return recorder.Handle{}, errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
	}
	r.starts++
	r.running = true
	return recorder.Handle{ID: "session", PID: 4242, StartedAt: r.clock.Now()}, nil
}

func (r *fakeRecorder) Stop() error {
	r.calls = append(r.calls, recorderCall{"stop", r.clock.Now()})
	if r.running {
		r.stops++
		r.running = false
	}
	return nil
}

func (r *fakeRecorder) IsRunning() bool {
	return r.running
}

func (r *fakeRecorder) count(op string) int {
	n := 0
	for _, c := range r.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

type harness struct {
	ctx     context.Context
	clock   *fakeClock
	rec     *fakeRecorder
	loop    *Loop
	windows *WindowScheduler

	criticals []error
	partials  []error
	stopped   []models.Window
}

func newHarness(now time.Time, opts WindowOptions) *harness {
	h := &harness{ctx: context.Background(), clock: newFakeClock(now)}
	h.rec = &fakeRecorder{clock: h.clock}
	h.loop = NewLoop(h.clock, h.rec, discardLogger())

	opts.Events = &Events{
		OnCriticalFailure:  func(err error) { h.criticals = append(h.criticals, err) },
		OnPartialFailure:   func(err error) { h.partials = append(h.partials, err) },
		OnRecordingStopped: func(_ recorder.Handle, w models.Window, _ time.Time) { h.stopped = append(h.stopped, w) },
	}
	h.windows = NewWindowScheduler(h.clock, h.rec, h.loop, discardLogger(), opts)
	h.windows.Register(h.loop)
	return h
}

func (h *harness) advance(to string) {
	advance(h.ctx, h.loop, h.clock, at(to))
}
