// Package scheduler drives the twilight recording state machine from a
// single goroutine. All timers live in one min-heap owned by Loop; handlers
// run on the loop goroutine and may arm or cancel timers directly, so none
// of the types here are safe for concurrent use.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"twilight-stack/internal/models"
)

// maxSleepCap bounds a single wait so wall-clock steps (NTP, suspend) are
// noticed within a minute.
const maxSleepCap = 60 * time.Second

// Handler runs when a timer of its kind comes due.
type Handler func(ctx context.Context, timer models.ArmedTimer)

// Timers is the part of Loop used by the window scheduler and refresher.
type Timers interface {
	Arm(timer models.ArmedTimer)
	Cancel(match func(models.ArmedTimer) bool) int
}

// Stopper is stopped on shutdown if still running.
type Stopper interface {
	IsRunning() bool
	Stop() error
}

// Loop is the MainLoop.
type Loop struct {
	clock    Clock
	log      *slog.Logger
	recorder Stopper
	handlers map[models.TimerKind]Handler
	timers   timerHeap
	seq      uint64
}

func NewLoop(clock Clock, recorder Stopper, log *slog.Logger) *Loop {
	return &Loop{
		clock:    clock,
		log:      log.With(slog.String("component", "loop")),
		recorder: recorder,
		handlers: make(map[models.TimerKind]Handler),
	}
}

func (l *Loop) Handle(kind models.TimerKind, h Handler) {
	l.handlers[kind] = h
}

func (l *Loop) Arm(timer models.ArmedTimer) {
	l.seq++
	heapPush(&l.timers, heapEntry{timer: timer, seq: l.seq})
	l.log.Debug("timer armed",
		slog.String("kind", timer.Kind.String()),
		slog.Time("fire_at", timer.FireAt),
		slog.Uint64("generation", timer.Generation),
	)
}

func (l *Loop) Cancel(match func(models.ArmedTimer) bool) int {
	return heapRemoveFunc(&l.timers, match)
}

// Next returns the earliest pending timer.
func (l *Loop) Next() (models.ArmedTimer, bool) {
	if len(l.timers) == 0 {
		return models.ArmedTimer{}, false
	}
	return l.timers[0].timer, true
}

// Pending returns all pending timers in firing order.
func (l *Loop) Pending() []models.ArmedTimer {
	entries := make([]heapEntry, len(l.timers))
	copy(entries, l.timers)
	sort.Slice(entries, func(i, j int) bool { return timerHeap(entries).Less(i, j) })

	out := make([]models.ArmedTimer, len(entries))
	for i, e := range entries {
		out[i] = e.timer
	}
	return out
}

// DispatchDue runs every timer due at the current clock time in order,
// including timers armed by handlers along the way, and returns how many ran.
func (l *Loop) DispatchDue(ctx context.Context) int {
	now := l.clock.Now()
	n := 0
	for len(l.timers) > 0 && !l.timers[0].timer.FireAt.After(now) {
		if ctx.Err() != nil {
			return n
		}
		timer := heapPop(&l.timers).timer
		h, ok := l.handlers[timer.Kind]
		if !ok {
			l.log.Warn("no handler for timer", slog.String("kind", timer.Kind.String()))
			continue
		}
		h(ctx, timer)
		n++
	}
	return n
}

// Run dispatches timers until ctx is cancelled, then stops a running
// recording before returning ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("main loop started", slog.Int("pending", len(l.timers)))

	for {
		if ctx.Err() != nil {
			l.shutdown()
			return ctx.Err()
		}
		l.DispatchDue(ctx)

		wait := maxSleepCap
		if next, ok := l.Next(); ok {
			if d := next.FireAt.Sub(l.clock.Now()); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}

		timer := l.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.shutdown()
			return ctx.Err()
		case <-timer.C():
		}
	}
}

func (l *Loop) shutdown() {
	l.log.Info("main loop stopping")
	if l.recorder == nil || !l.recorder.IsRunning() {
		return
	}
	l.log.Info("stopping recording before exit")
	if err := l.recorder.Stop(); err != nil {
		l.log.Error("failed to stop recording on shutdown", slog.Any("err", err))
	}
}
