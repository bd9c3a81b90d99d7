package twilightstreamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"twilight-stack/internal/models"
	"twilight-stack/shared/astro"
	"twilight-stack/shared/config"
	"twilight-stack/shared/email"
	"twilight-stack/shared/monitoring"
	"twilight-stack/shared/recorder"
	"twilight-stack/shared/scheduler"
	"twilight-stack/shared/storage"
)

type Option func(*Streamer)

// WithClock replaces the wall clock driving the main loop.
func WithClock(clock scheduler.Clock) Option {
	return func(s *Streamer) { s.clock = clock }
}

// WithSpawner replaces the ffmpeg launcher.
func WithSpawner(spawner recorder.Spawner) Option {
	return func(s *Streamer) { s.spawner = spawner }
}

// WithFs sets the filesystem holding the session history.
func WithFs(fs afero.Fs) Option {
	return func(s *Streamer) { s.fs = fs }
}

// WithOracleOptions passes extra options to the twilight oracle.
func WithOracleOptions(opts ...astro.Option) Option {
	return func(s *Streamer) { s.oracleOpts = append(s.oracleOpts, opts...) }
}

// Streamer records the allsky stream during twilight each night.
type Streamer struct {
	config *config.Config
	base   *slog.Logger
	log    *slog.Logger

	clock      scheduler.Clock
	spawner    recorder.Spawner
	fs         afero.Fs
	oracleOpts []astro.Option

	display    astro.Display
	oracle     *astro.Oracle
	supervisor *recorder.Supervisor
	loop       *scheduler.Loop
	windows    *scheduler.WindowScheduler
	refresher  *scheduler.DailyRefresher
	monitor    *monitoring.Monitor
	health     *monitoring.HealthServer
	tracker    *storage.SessionTracker
	mailer     *email.Sender
	hostname   string

	alerts sync.WaitGroup
}

func NewStreamer(cfg *config.Config, log *slog.Logger, opts ...Option) *Streamer {
	s := &Streamer{
		config: cfg,
		base:   log,
		log:    log.With(slog.String("component", "streamer")),
		clock:  scheduler.RealClock(),
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Streamer) Name() string {
	return "Twilight Streamer"
}

// Initialize builds every component from the configuration. It is safe to
// call more than once.
func (s *Streamer) Initialize() error {
	if s.loop != nil {
		return nil
	}
	s.log.Info("initializing", slog.String("agent", s.Name()))

	display, err := s.config.Display()
	if err != nil {
		return err
	}
	s.display = display

	horizon, err := s.config.HorizonDegrees()
	if err != nil {
		return err
	}
	oracleOpts := []astro.Option{astro.WithDayLocation(display.Location())}
	if s.config.Twilight.DipCorrection {
		oracleOpts = append(oracleOpts, astro.WithDipCorrection())
	}
	s.oracle = astro.NewOracle(s.config.Location, horizon, append(oracleOpts, s.oracleOpts...)...)

	launch, err := recorder.ParseLaunch(s.config.LaunchSpec())
	if err != nil {
		return err
	}
	if s.spawner == nil {
		s.spawner = recorder.NewCommandSpawner(launch, s.config.Stream.LogFile)
	}

	schedule, err := scheduler.ParseRefreshSchedule(s.config.Twilight.RefreshSchedule, display.Location())
	if err != nil {
		return err
	}

	if dir := s.config.Storage.DataDir; dir != "" {
		s.tracker, err = storage.NewSessionTracker(s.fs, dir, s.config.Storage.HistoryMaxAge)
		if err != nil {
			return err
		}
		s.log.Info("session history loaded", slog.Int("sessions", s.tracker.Count()))
	}

	s.monitor = monitoring.NewMonitor(s.base, display)
	s.mailer = email.NewSender(&s.config.Email)
	s.hostname, _ = os.Hostname()

	events := s.events()
	s.supervisor = recorder.NewSupervisor(s.spawner, s.config.Stream.GracePeriod, s.base)
	s.loop = scheduler.NewLoop(s.clock, s.supervisor, s.base)
	s.windows = scheduler.NewWindowScheduler(s.clock, s.supervisor, s.loop, s.base, scheduler.WindowOptions{
		CheckInterval: s.config.Stream.HealthInterval,
		Retry:         s.config.Retry(),
		Display:       display,
		Events:        events,
	})
	s.windows.Register(s.loop)
	s.refresher = scheduler.NewDailyRefresher(s.clock, s.oracle, s.windows, s.loop, schedule, s.base, display, events)
	s.refresher.Register(s.loop)
	s.windows.OnClose(s.refresher.AfterClose)

	if port := s.config.HealthPort(); port > 0 {
		s.health = monitoring.NewHealthServer(s.monitor, port, s.base)
	}

	s.log.Info("configured",
		slog.String("location", s.config.Location.String()),
		slog.Float64("horizon_deg", s.oracle.ConfiguredHorizon()),
		slog.Float64("effective_horizon_deg", s.oracle.Horizon()),
		slog.String("timezone", display.Location().String()),
		slog.String("refresh_schedule", s.config.Twilight.RefreshSchedule),
		slog.String("command", launch.Command()),
		slog.Bool("email_alerts", s.mailer.Enabled()),
		slog.Bool("history", s.tracker != nil),
	)
	return nil
}

// Tonight computes the window in progress or the next one without arming it.
func (s *Streamer) Tonight() (models.Window, error) {
	if err := s.Initialize(); err != nil {
		return models.Window{}, err
	}
	return s.oracle.Tonight(s.clock.Now())
}

func (s *Streamer) Display() astro.Display {
	return s.display
}

func (s *Streamer) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Run arms tonight's window and the daily refresh, then runs the main loop
// until ctx is cancelled. Failures after startup are logged and reported,
// never returned.
func (s *Streamer) Run(ctx context.Context) error {
	if err := s.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	if s.health != nil {
		if err := s.health.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.health.Shutdown(shutdownCtx)
		}()
	}

	// Errors are already logged and reported through events.
	_ = s.refresher.Refresh(ctx)
	s.refresher.ArmNext(s.clock.Now())

	err := s.loop.Run(ctx)
	s.alerts.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.log.Info("shutdown complete")
		return nil
	}
	return err
}

func (s *Streamer) events() *scheduler.Events {
	return &scheduler.Events{
		OnWindow: s.monitor.RecordWindow,
		OnState: func(state scheduler.State) {
			s.monitor.RecordState(state.String())
		},
		OnNextRefresh: s.monitor.RecordNextRefresh,
		OnRecordingStarted: func(h recorder.Handle) {
			s.monitor.RecordRecordingStarted(h.ID, h.StartedAt)
		},
		OnRecordingStopped: s.recordingStopped,
		OnPartialFailure:   s.monitor.RecordPartialFailure,
		OnCriticalFailure: func(err error) {
			s.monitor.RecordCriticalFailure(err)
			s.alert(err)
		},
	}
}

func (s *Streamer) recordingStopped(h recorder.Handle, window models.Window, at time.Time) {
	s.monitor.RecordRecordingStopped(h.ID, at)
	if s.tracker == nil || h.ID == "" {
		return
	}

	session := models.Session{
		ID:          h.ID,
		StartedAt:   h.StartedAt,
		StoppedAt:   at,
		WindowStart: window.Start,
		WindowEnd:   window.End,
	}
	if err := s.tracker.Record(session); err != nil {
		s.log.Error("failed to record session", slog.String("session", h.ID), slog.Any("err", err))
		return
	}
	s.log.Info("session recorded",
		slog.String("session", h.ID),
		slog.Duration("duration", session.Duration().Round(time.Second)),
	)
}

// alert mails err in the background so SMTP never blocks the loop.
func (s *Streamer) alert(err error) {
	if !s.mailer.Enabled() {
		return
	}
	alert := email.Alert{
		Summary: err.Error(),
		At:      s.display.Format(s.clock.Now()),
		Host:    s.hostname,
		Status:  s.monitor.GetStatusSummary(),
	}

	s.alerts.Add(1)
	go func() {
		defer s.alerts.Done()
		if err := s.mailer.SendAlert(alert); err != nil {
			s.log.Error("failed to send alert email", slog.Any("err", err))
		}
	}()
}
