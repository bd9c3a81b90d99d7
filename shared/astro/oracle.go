// Package astro computes twilight windows for a fixed observer.
package astro

import (
	"errors"
	"fmt"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"twilight-stack/internal/models"
)

// DefaultSearchDays bounds how far ahead an evening or morning crossing is
// searched before giving up with ErrNoTwilightEvent.
const DefaultSearchDays = 2

var ErrNoTwilightEvent = errors.New("no twilight event")

// ElevationFunc returns the UTC instants on the given date at which the sun
// crosses elevation degrees, rising and setting. A zero time means the sun
// never reaches that elevation on that day.
type ElevationFunc func(latitude, longitude, elevation float64, year int, month time.Month, day int) (morning, evening time.Time)

type Option func(*Oracle)

// WithElevationFunc replaces the ephemeris, mainly for tests.
func WithElevationFunc(fn ElevationFunc) Option {
	return func(o *Oracle) { o.elevationAt = fn }
}

// WithDayLocation sets the zone whose midnight anchors Tonight.
func WithDayLocation(loc *time.Location) Option {
	return func(o *Oracle) { o.day = loc }
}

// WithDipCorrection lowers the horizon by the dip seen from the observer's
// elevation.
func WithDipCorrection() Option {
	return func(o *Oracle) { o.dip = true }
}

func WithSearchDays(days int) Option {
	return func(o *Oracle) {
		if days > 0 {
			o.searchDays = days
		}
	}
}

// Oracle is the TwilightOracle: it pairs the evening crossing of the
// configured horizon with the following morning crossing.
type Oracle struct {
	location    models.Location
	configured  float64
	horizon     float64
	dip         bool
	day         *time.Location
	elevationAt ElevationFunc
	searchDays  int
}

func NewOracle(location models.Location, horizonDegrees float64, opts ...Option) *Oracle {
	o := &Oracle{
		location:    location,
		configured:  horizonDegrees,
		day:         time.UTC,
		elevationAt: sunrise.TimeOfElevation,
		searchDays:  DefaultSearchDays,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.horizon = horizonDegrees
	if o.dip {
		o.horizon -= Dip(location.Elevation)
	}
	return o
}

// Horizon is the solar elevation passed to the ephemeris, dip included
// when enabled.
func (o *Oracle) Horizon() float64 {
	return o.horizon
}

// ConfiguredHorizon is the angle the oracle was built with.
func (o *Oracle) ConfiguredHorizon() float64 {
	return o.configured
}

// DayLocation is the zone whose midnight anchors Tonight.
func (o *Oracle) DayLocation() *time.Location {
	return o.day
}

// Compute returns the first evening crossing at or after ref as Start and
// the first morning crossing strictly after Start as End.
func (o *Oracle) Compute(ref time.Time) (models.Window, error) {
	start, ok := o.next(ref, false, func(_, evening time.Time) time.Time { return evening })
	if !ok {
		return models.Window{}, fmt.Errorf("%w: sun does not set below %.2f° within %d days of %s",
			ErrNoTwilightEvent, o.horizon, o.searchDays, ref.UTC().Format(time.RFC3339))
	}

	end, ok := o.next(start, true, func(morning, _ time.Time) time.Time { return morning })
	if !ok {
		return models.Window{}, fmt.Errorf("%w: sun does not rise above %.2f° within %d days of %s",
			ErrNoTwilightEvent, o.horizon, o.searchDays, start.Format(time.RFC3339))
	}

	w := models.Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return models.Window{}, err
	}
	return w, nil
}

// Tonight returns the window in progress at now, or the next one. The
// search starts at midnight of the previous local day so a window that
// opened yesterday evening is still found after midnight.
func (o *Oracle) Tonight(now time.Time) (models.Window, error) {
	local := now.In(o.day)
	ref := time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, o.day)

	for i := 0; i < 3; i++ {
		w, err := o.Compute(ref)
		if err != nil {
			return models.Window{}, err
		}
		if w.End.After(now) {
			return w, nil
		}
		ref = w.End
	}
	return models.Window{}, fmt.Errorf("%w: no window ends after %s", ErrNoTwilightEvent, now.UTC().Format(time.RFC3339))
}

// next scans calendar days around after for the first crossing selected by
// pick that is not before after (strictly after when strict is set).
func (o *Oracle) next(after time.Time, strict bool, pick func(morning, evening time.Time) time.Time) (time.Time, bool) {
	after = after.UTC()
	limit := after.Add(time.Duration(o.searchDays) * 24 * time.Hour)
	base := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, time.UTC)

	// Western longitudes put a date's evening on the next UTC day, hence -1.
	for i := -1; i <= o.searchDays; i++ {
		d := base.AddDate(0, 0, i)
		t := pick(o.elevationAt(o.location.Latitude, o.location.Longitude, o.horizon, d.Year(), d.Month(), d.Day()))
		if t.IsZero() {
			continue
		}
		t = t.UTC()
		if t.Before(after) || (strict && t.Equal(after)) {
			continue
		}
		if t.After(limit) {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
