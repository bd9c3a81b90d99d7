package models

import (
	"errors"
	"testing"
	"time"
)

func TestWindowValidate(t *testing.T) {
	start := time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		window    Window
		expectErr bool
	}{
		{
			name:      "Valid window",
			window:    Window{Start: start, End: start.Add(9 * time.Hour)},
			expectErr: false,
		},
		{
			name:      "Start equals end",
			window:    Window{Start: start, End: start},
			expectErr: true,
		},
		{
			name:      "Start after end",
			window:    Window{Start: start, End: start.Add(-time.Minute)},
			expectErr: true,
		},
		{
			name:      "Zero end",
			window:    Window{Start: start},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.window.Validate()
			if (err != nil) != tt.expectErr {
				t.Fatalf("Validate() error = %v, expectErr %v", err, tt.expectErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("expected ErrInvalidWindow, got %v", err)
			}
		})
	}
}

func TestWindowContains(t *testing.T) {
	start := time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(9 * time.Hour)}

	if !w.Contains(start) {
		t.Error("window should contain its start")
	}
	if w.Contains(w.End) {
		t.Error("window should not contain its end")
	}
	if w.Contains(start.Add(-time.Second)) {
		t.Error("window should not contain instants before start")
	}
	if w.Duration() != 9*time.Hour {
		t.Errorf("Duration() = %v, want 9h", w.Duration())
	}
}

func TestLocationValidate(t *testing.T) {
	tests := []struct {
		name      string
		location  Location
		expectErr bool
	}{
		{"Osnabrueck", Location{Latitude: 52.2799, Longitude: 8.0472, Elevation: 62}, false},
		{"Latitude too large", Location{Latitude: 91, Longitude: 8}, true},
		{"Longitude too small", Location{Latitude: 52, Longitude: -181}, true},
		{"Unset coordinates", Location{}, true},
		{"Negative elevation", Location{Latitude: 52, Longitude: 8, Elevation: -5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.location.Validate()
			if (err != nil) != tt.expectErr {
				t.Errorf("Validate() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestTimerKindString(t *testing.T) {
	if StartRecording.String() != "start_recording" {
		t.Errorf("unexpected name %q", StartRecording.String())
	}
	if TimerKind(42).String() != "timer_kind(42)" {
		t.Errorf("unexpected name %q", TimerKind(42).String())
	}
}
