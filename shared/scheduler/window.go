package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"twilight-stack/internal/models"
	"twilight-stack/shared/astro"
	"twilight-stack/shared/recorder"
)

var ErrWindowElapsed = errors.New("twilight window already over")

// State of the WindowScheduler.
type State int

const (
	Idle State = iota
	Armed
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recorder is the capability the scheduler needs from the supervisor.
type Recorder interface {
	Start() (recorder.Handle, error)
	Stop() error
	IsRunning() bool
}

// RetryConfig bounds how often a failed spawn is retried within one window.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type WindowOptions struct {
	// CheckInterval is how often a running stream is checked for liveness.
	// Zero disables the check.
	CheckInterval time.Duration
	Retry         RetryConfig
	Display       astro.Display
	Events        *Events
}

// WindowScheduler arms start and stop timers for one window at a time.
//
//	Idle -> Armed (SetWindow) -> Recording (start timer) -> Idle (stop timer)
//
// Every SetWindow bumps the generation; timers carrying an older generation
// are ignored when they fire.
type WindowScheduler struct {
	clock   Clock
	log     *slog.Logger
	rec     Recorder
	timers  Timers
	events  *Events
	display astro.Display

	checkEvery time.Duration
	retry      backoff.BackOff

	state      State
	generation uint64
	window     models.Window
	session    recorder.Handle
	onClose    func(ctx context.Context, closed models.Window)
}

func NewWindowScheduler(clock Clock, rec Recorder, timers Timers, log *slog.Logger, opts WindowOptions) *WindowScheduler {
	return &WindowScheduler{
		clock:      clock,
		log:        log.With(slog.String("component", "window")),
		rec:        rec,
		timers:     timers,
		events:     opts.Events,
		display:    opts.Display,
		checkEvery: opts.CheckInterval,
		retry:      newRetryBackOff(clock, opts.Retry),
	}
}

func newRetryBackOff(clock Clock, cfg RetryConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	b.MaxElapsedTime = 0 // bounded by attempts and window end instead
	b.Clock = clock
	b.Reset()

	// WithMaxRetries treats zero as unlimited.
	if cfg.MaxAttempts <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts))
}

// Register installs the window handlers on l. On shutdown l then stops a
// running recording through w, so the session is reported as stopped.
func (w *WindowScheduler) Register(l *Loop) {
	l.Handle(models.StartRecording, w.handle)
	l.Handle(models.StopRecording, w.handle)
	l.Handle(models.CheckRecording, w.handle)
	l.recorder = w
}

// OnClose registers fn to run on the loop goroutine after a window's stop
// timer has moved the scheduler to Idle.
func (w *WindowScheduler) OnClose(fn func(ctx context.Context, closed models.Window)) {
	w.onClose = fn
}

// IsRunning reports whether the recorder holds a live stream.
func (w *WindowScheduler) IsRunning() bool {
	return w.rec.IsRunning()
}

// Stop ends the current recording, if any, and leaves the armed timers in
// place. Only the loop goroutine may call it.
func (w *WindowScheduler) Stop() error {
	if w.state != Recording {
		return w.rec.Stop()
	}
	w.stopRecording(w.clock.Now())
	w.setState(Armed)
	return nil
}

func (w *WindowScheduler) State() State {
	return w.state
}

func (w *WindowScheduler) Generation() uint64 {
	return w.generation
}

// Window returns the armed window, if any.
func (w *WindowScheduler) Window() (models.Window, bool) {
	return w.window, w.state != Idle
}

// SetWindow replaces whatever window is armed. A start already in the past
// fires right away, so a restart mid-window resumes the stream. If a
// recording is running it carries over when win contains now, otherwise it
// is stopped first.
func (w *WindowScheduler) SetWindow(win models.Window) error {
	if err := win.Validate(); err != nil {
		w.log.Error("rejecting twilight window", slog.Any("err", err))
		return err
	}
	now := w.clock.Now()
	if !win.End.After(now) {
		err := fmt.Errorf("%w: ended at %s", ErrWindowElapsed, win.End.UTC().Format(time.RFC3339))
		w.log.Error("rejecting twilight window", slog.Any("err", err))
		return err
	}

	cancelled := w.timers.Cancel(isWindowTimer)
	w.generation++
	w.window = win
	w.retry.Reset()

	log := w.log.With(
		slog.Uint64("generation", w.generation),
		slog.Time("start_utc", win.Start.UTC()),
		slog.Time("end_utc", win.End.UTC()),
		slog.String("start_local", w.display.Format(win.Start)),
		slog.String("end_local", w.display.Format(win.End)),
		slog.Int("cancelled_timers", cancelled),
	)
	w.events.window(win, w.generation)

	if w.state == Recording {
		if win.Contains(now) {
			w.arm(models.StopRecording, win.End)
			w.armCheck(now)
			log.Info("recording continues into replaced window")
			return nil
		}
		log.Info("replaced window does not cover now, stopping recording")
		w.stopRecording(now)
	}

	w.arm(models.StartRecording, win.Start)
	w.arm(models.StopRecording, win.End)
	w.setState(Armed)

	if win.Start.After(now) {
		log.Info("twilight window armed", slog.Duration("starts_in", win.Start.Sub(now).Round(time.Second)))
	} else {
		log.Info("twilight window already open, starting now")
	}
	return nil
}

func (w *WindowScheduler) handle(ctx context.Context, t models.ArmedTimer) {
	if t.Generation != w.generation {
		w.log.Debug("ignoring stale timer",
			slog.String("kind", t.Kind.String()),
			slog.Uint64("timer_generation", t.Generation),
			slog.Uint64("generation", w.generation),
		)
		return
	}

	now := w.clock.Now()
	switch t.Kind {
	case models.StartRecording:
		w.onStart(now)
	case models.StopRecording:
		w.onStop(ctx, now)
	case models.CheckRecording:
		w.onCheck(now)
	}
}

func (w *WindowScheduler) onStart(now time.Time) {
	if w.state != Armed {
		w.log.Debug("start timer ignored", slog.String("state", w.state.String()))
		return
	}
	if !now.Before(w.window.End) {
		return
	}

	handle, err := w.rec.Start()
	switch {
	case err == nil:
	case errors.Is(err, recorder.ErrAlreadyRunning):
		w.log.Warn("stream already running, adopting it", slog.Any("err", err))
	default:
		w.retryStart(now, err)
		return
	}

	w.retry.Reset()
	w.session = handle
	w.setState(Recording)
	w.armCheck(now)
	w.log.Info("recording started",
		slog.String("session", handle.ID),
		slog.Uint64("generation", w.generation),
		slog.String("until_local", w.display.Format(w.window.End)),
	)
	w.events.recordingStarted(handle)
}

func (w *WindowScheduler) retryStart(now time.Time, cause error) {
	delay := w.retry.NextBackOff()
	if delay == backoff.Stop || !now.Add(delay).Before(w.window.End) {
		err := fmt.Errorf("giving up on window %s: %w", w.window, cause)
		w.log.Error("failed to start stream, no retries left for this window", slog.Any("err", cause))
		w.events.criticalFailure(err)
		return
	}

	w.log.Error("failed to start stream, retrying",
		slog.Any("err", cause),
		slog.Duration("retry_in", delay.Round(time.Second)),
	)
	w.events.partialFailure(cause)
	w.arm(models.StartRecording, now.Add(delay))
}

func (w *WindowScheduler) onStop(ctx context.Context, now time.Time) {
	if w.state == Idle {
		return
	}
	w.timers.Cancel(isWindowTimer)
	if w.state == Recording {
		w.stopRecording(now)
	}
	w.setState(Idle)
	w.log.Info("twilight window closed", slog.Uint64("generation", w.generation))

	if w.onClose != nil {
		w.onClose(ctx, w.window)
	}
}

// Clear drops the armed window and stops a running recording. Timers of
// the old generation are cancelled.
func (w *WindowScheduler) Clear() {
	cancelled := w.timers.Cancel(isWindowTimer)
	w.generation++
	if w.state == Recording {
		w.stopRecording(w.clock.Now())
	}
	w.window = models.Window{}
	w.setState(Idle)
	w.log.Info("twilight window cleared",
		slog.Uint64("generation", w.generation),
		slog.Int("cancelled_timers", cancelled),
	)
}

func (w *WindowScheduler) onCheck(now time.Time) {
	if w.state != Recording {
		return
	}
	if w.rec.IsRunning() {
		w.armCheck(now)
		return
	}

	err := fmt.Errorf("stream process for session %s exited before window end", w.session.ID)
	w.log.Warn("stream process exited early, restarting", slog.String("session", w.session.ID))
	w.events.recordingStopped(w.session, w.window, now)
	w.events.partialFailure(err)
	w.session = recorder.Handle{}
	w.setState(Armed)
	w.onStart(now)
}

func (w *WindowScheduler) stopRecording(now time.Time) {
	if err := w.rec.Stop(); err != nil {
		w.log.Error("failed to stop stream", slog.Any("err", err))
		w.events.criticalFailure(err)
	}
	w.log.Info("recording stopped", slog.String("session", w.session.ID))
	w.events.recordingStopped(w.session, w.window, now)
	w.session = recorder.Handle{}
}

func (w *WindowScheduler) arm(kind models.TimerKind, at time.Time) {
	w.timers.Arm(models.ArmedTimer{FireAt: at, Kind: kind, Generation: w.generation})
}

func (w *WindowScheduler) armCheck(now time.Time) {
	if w.checkEvery <= 0 {
		return
	}
	w.timers.Cancel(func(t models.ArmedTimer) bool { return t.Kind == models.CheckRecording })
	w.arm(models.CheckRecording, now.Add(w.checkEvery))
}

func (w *WindowScheduler) setState(s State) {
	if w.state == s {
		return
	}
	w.state = s
	w.events.state(s)
}

func isWindowTimer(t models.ArmedTimer) bool {
	return t.Kind == models.StartRecording || t.Kind == models.StopRecording || t.Kind == models.CheckRecording
}
