package scheduler

import (
	"time"

	"twilight-stack/internal/models"
	"twilight-stack/shared/recorder"
)

// Events provides callbacks for monitoring the scheduler. Any field may be nil.
type Events struct {
	OnWindow           func(window models.Window, generation uint64)
	OnState            func(state State)
	OnNextRefresh      func(at time.Time)
	OnRecordingStarted func(handle recorder.Handle)
	OnRecordingStopped func(handle recorder.Handle, window models.Window, at time.Time)
	OnPartialFailure   func(err error)
	OnCriticalFailure  func(err error)
}

func (e *Events) window(w models.Window, generation uint64) {
	if e != nil && e.OnWindow != nil {
		e.OnWindow(w, generation)
	}
}

func (e *Events) state(s State) {
	if e != nil && e.OnState != nil {
		e.OnState(s)
	}
}

func (e *Events) nextRefresh(at time.Time) {
	if e != nil && e.OnNextRefresh != nil {
		e.OnNextRefresh(at)
	}
}

func (e *Events) recordingStarted(h recorder.Handle) {
	if e != nil && e.OnRecordingStarted != nil {
		e.OnRecordingStarted(h)
	}
}

func (e *Events) recordingStopped(h recorder.Handle, w models.Window, at time.Time) {
	if e != nil && e.OnRecordingStopped != nil {
		e.OnRecordingStopped(h, w, at)
	}
}

func (e *Events) partialFailure(err error) {
	if e != nil && e.OnPartialFailure != nil {
		e.OnPartialFailure(err)
	}
}

func (e *Events) criticalFailure(err error) {
	if e != nil && e.OnCriticalFailure != nil {
		e.OnCriticalFailure(err)
	}
}
