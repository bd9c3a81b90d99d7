package models

import "time"

// Session is one finished recording.
type Session struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	StoppedAt   time.Time `json:"stopped_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

func (s Session) Duration() time.Duration {
	return s.StoppedAt.Sub(s.StartedAt)
}
