package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"twilight-stack/internal/models"
)

func TestLoopDispatchDueOrder(t *testing.T) {
	clk := newFakeClock(at("2024-06-01T12:00:00Z"))
	l := NewLoop(clk, nil, discardLogger())

	var fired []models.TimerKind
	record := func(_ context.Context, timer models.ArmedTimer) { fired = append(fired, timer.Kind) }
	l.Handle(models.StartRecording, record)
	l.Handle(models.StopRecording, record)
	l.Handle(models.DailyRefresh, record)

	l.Arm(models.ArmedTimer{FireAt: at("2024-06-01T13:00:00Z"), Kind: models.DailyRefresh})
	l.Arm(models.ArmedTimer{FireAt: at("2024-06-01T11:00:00Z"), Kind: models.StopRecording})
	l.Arm(models.ArmedTimer{FireAt: at("2024-06-01T11:00:00Z"), Kind: models.StartRecording})

	if n := l.DispatchDue(context.Background()); n != 2 {
		t.Fatalf("expected 2 due timers, got %d", n)
	}
	if len(fired) != 2 || fired[0] != models.StopRecording || fired[1] != models.StartRecording {
		t.Errorf("expected stop then start in arming order, got %v", fired)
	}

	next, ok := l.Next()
	if !ok || next.Kind != models.DailyRefresh {
		t.Errorf("expected daily_refresh pending, got %+v", next)
	}
}

func TestLoopDispatchesTimersArmedByHandlers(t *testing.T) {
	clk := newFakeClock(at("2024-06-01T12:00:00Z"))
	l := NewLoop(clk, nil, discardLogger())

	count := 0
	l.Handle(models.CheckRecording, func(_ context.Context, timer models.ArmedTimer) {
		count++
		if count < 3 {
			l.Arm(models.ArmedTimer{FireAt: timer.FireAt, Kind: models.CheckRecording})
		}
	})
	l.Arm(models.ArmedTimer{FireAt: clk.Now(), Kind: models.CheckRecording})

	if n := l.DispatchDue(context.Background()); n != 3 {
		t.Errorf("expected 3 dispatches, got %d", n)
	}
}

func TestLoopSkipsUnhandledKinds(t *testing.T) {
	clk := newFakeClock(at("2024-06-01T12:00:00Z"))
	l := NewLoop(clk, nil, discardLogger())
	l.Arm(models.ArmedTimer{FireAt: clk.Now(), Kind: models.DailyRefresh})

	if n := l.DispatchDue(context.Background()); n != 0 {
		t.Errorf("expected 0 dispatches, got %d", n)
	}
	if len(l.Pending()) != 0 {
		t.Error("unhandled timer should still be consumed")
	}
}

func TestLoopCancelledContextStopsDispatch(t *testing.T) {
	clk := newFakeClock(at("2024-06-01T12:00:00Z"))
	l := NewLoop(clk, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	l.Handle(models.StartRecording, func(context.Context, models.ArmedTimer) { cancel() })
	l.Arm(models.ArmedTimer{FireAt: clk.Now(), Kind: models.StartRecording})
	l.Arm(models.ArmedTimer{FireAt: clk.Now(), Kind: models.StartRecording})

	if n := l.DispatchDue(ctx); n != 1 {
		t.Errorf("expected dispatch to stop after cancel, ran %d", n)
	}
}

func TestLoopCancel(t *testing.T) {
	clk := newFakeClock(at("2024-06-01T12:00:00Z"))
	l := NewLoop(clk, nil, discardLogger())

	l.Arm(models.ArmedTimer{FireAt: at("2024-06-01T19:00:00Z"), Kind: models.StartRecording, Generation: 1})
	l.Arm(models.ArmedTimer{FireAt: at("2024-06-02T04:00:00Z"), Kind: models.StopRecording, Generation: 1})
	l.Arm(models.ArmedTimer{FireAt: at("2024-06-02T10:00:00Z"), Kind: models.DailyRefresh})

	if n := l.Cancel(isWindowTimer); n != 2 {
		t.Fatalf("expected 2 cancelled, got %d", n)
	}
	pending := l.Pending()
	if len(pending) != 1 || pending[0].Kind != models.DailyRefresh {
		t.Errorf("expected only daily_refresh left, got %+v", pending)
	}
}

type stubStopper struct {
	running atomic.Bool
	stops   atomic.Int32
}

func (s *stubStopper) IsRunning() bool { return s.running.Load() }
func (s *stubStopper) Stop() error {
	s.stops.Add(1)
	s.running.Store(false)
	return nil
}

func TestLoopRunStopsRecordingOnShutdown(t *testing.T) {
	stopper := &stubStopper{}
	stopper.running.Store(true)

	l := NewLoop(RealClock(), stopper, discardLogger())

	fired := make(chan struct{})
	l.Handle(models.StartRecording, func(context.Context, models.ArmedTimer) { close(fired) })
	l.Arm(models.ArmedTimer{FireAt: time.Now().Add(20 * time.Millisecond), Kind: models.StartRecording})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if stopper.stops.Load() != 1 {
		t.Errorf("expected recording stopped once on shutdown, got %d", stopper.stops.Load())
	}
}

func TestLoopRunIdleShutdown(t *testing.T) {
	stopper := &stubStopper{}
	l := NewLoop(RealClock(), stopper, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if stopper.stops.Load() != 0 {
		t.Error("Stop must not be called when nothing is running")
	}
}
