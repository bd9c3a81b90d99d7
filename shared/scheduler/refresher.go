package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"twilight-stack/internal/models"
	"twilight-stack/shared/astro"
)

// WindowSource computes the window in progress at now, or the next one.
type WindowSource interface {
	Tonight(now time.Time) (models.Window, error)
}

type WindowSetter interface {
	SetWindow(window models.Window) error
	Clear()
}

// ParseRefreshSchedule parses a standard five field cron expression and
// evaluates it in loc unless the expression carries its own CRON_TZ.
func ParseRefreshSchedule(expr string, loc *time.Location) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if loc != nil && !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = fmt.Sprintf("CRON_TZ=%s %s", loc.String(), expr)
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// DailyRefresher recomputes tonight's window on a wall-clock schedule and
// hands it to the window scheduler.
type DailyRefresher struct {
	clock    Clock
	log      *slog.Logger
	source   WindowSource
	target   WindowSetter
	timers   Timers
	schedule cron.Schedule
	display  astro.Display
	events   *Events
}

func NewDailyRefresher(clock Clock, source WindowSource, target WindowSetter, timers Timers, schedule cron.Schedule, log *slog.Logger, display astro.Display, events *Events) *DailyRefresher {
	return &DailyRefresher{
		clock:    clock,
		log:      log.With(slog.String("component", "refresher")),
		source:   source,
		target:   target,
		timers:   timers,
		schedule: schedule,
		display:  display,
		events:   events,
	}
}

func (r *DailyRefresher) Register(l *Loop) {
	l.Handle(models.DailyRefresh, r.handle)
}

// Refresh computes the current window and arms it. Oracle failures are
// logged and returned, and the scheduler is cleared until the next run.
func (r *DailyRefresher) Refresh(_ context.Context) error {
	now := r.clock.Now()

	window, err := r.source.Tonight(now)
	if err != nil {
		if errors.Is(err, astro.ErrNoTwilightEvent) {
			r.log.Error("no twilight window tonight, waiting for next refresh", slog.Any("err", err))
			r.events.partialFailure(err)
		} else {
			r.log.Error("twilight computation failed", slog.Any("err", err))
			r.events.criticalFailure(fmt.Errorf("twilight computation failed: %w", err))
		}
		r.target.Clear()
		return err
	}

	r.log.Info("twilight window computed",
		slog.String("start_local", r.display.Format(window.Start)),
		slog.String("end_local", r.display.Format(window.End)),
		slog.Duration("duration", window.Duration().Round(time.Minute)),
	)

	if err := r.target.SetWindow(window); err != nil {
		r.events.partialFailure(err)
		return err
	}
	return nil
}

// ArmNext arms the next refresh strictly after from.
func (r *DailyRefresher) ArmNext(from time.Time) models.ArmedTimer {
	timer := models.ArmedTimer{
		FireAt: r.schedule.Next(from).UTC(),
		Kind:   models.DailyRefresh,
	}
	r.timers.Arm(timer)
	r.log.Info("next twilight refresh", slog.String("at_local", r.display.Format(timer.FireAt)))
	r.events.nextRefresh(timer.FireAt)
	return timer
}

// AfterClose recomputes the next window once one has closed. Register it
// with WindowScheduler.OnClose.
func (r *DailyRefresher) AfterClose(ctx context.Context, closed models.Window) {
	r.log.Info("twilight window over, computing the next one",
		slog.String("closed_local", r.display.Format(closed.End)),
	)
	_ = r.Refresh(ctx)
}

func (r *DailyRefresher) handle(ctx context.Context, _ models.ArmedTimer) {
	_ = r.Refresh(ctx)
	r.ArmNext(r.clock.Now())
}
