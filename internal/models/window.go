package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidWindow = errors.New("invalid twilight window")

// Window is one evening-to-morning twilight span, both ends in UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate enforces Start < End.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: missing start or end", ErrInvalidWindow)
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start %s is not before end %s",
			ErrInvalidWindow, w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	}
	return nil
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%s -> %s", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// TimerKind identifies what an ArmedTimer does when it fires.
type TimerKind int

const (
	StartRecording TimerKind = iota
	StopRecording
	DailyRefresh
	CheckRecording
)

func (k TimerKind) String() string {
	switch k {
	case StartRecording:
		return "start_recording"
	case StopRecording:
		return "stop_recording"
	case DailyRefresh:
		return "daily_refresh"
	case CheckRecording:
		return "check_recording"
	default:
		return fmt.Sprintf("timer_kind(%d)", int(k))
	}
}

// ArmedTimer is a pending action in the main loop. Generation ties window
// timers to the window that produced them; timers of an older generation
// are ignored when they fire.
type ArmedTimer struct {
	FireAt     time.Time
	Kind       TimerKind
	Generation uint64
}
