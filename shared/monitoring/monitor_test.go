package monitoring

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"twilight-stack/internal/models"
	"twilight-stack/shared/astro"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	display, err := astro.NewDisplay("Europe/Berlin")
	if err != nil {
		t.Fatalf("NewDisplay: %v", err)
	}
	m := NewMonitor(slog.New(slog.NewTextHandler(io.Discard, nil)), display)
	m.now = func() time.Time { return time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC) }
	return m
}

func TestMonitorHealth(t *testing.T) {
	m := newTestMonitor(t)
	if !m.IsHealthy() {
		t.Fatal("fresh monitor should be healthy")
	}

	m.RecordPartialFailure(errors.New("no twilight event"))
	if !m.IsHealthy() {
		t.Error("partial failure must not change health")
	}

	m.RecordCriticalFailure(errors.New("giving up on window"))
	if m.IsHealthy() {
		t.Error("critical failure should make the monitor unhealthy")
	}

	m.RecordRecordingStarted("abc", time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC))
	if !m.IsHealthy() {
		t.Error("a successful start should restore health")
	}
}

func TestMonitorStatusSummary(t *testing.T) {
	m := newTestMonitor(t)
	if got := m.GetStatusSummary(); !strings.Contains(got, "window: none") {
		t.Errorf("expected no window, got %q", got)
	}

	m.RecordWindow(models.Window{
		Start: time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC),
	}, 3)
	m.RecordState("recording")
	m.RecordRecordingStarted("session-1", time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC))
	m.RecordNextRefresh(time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC))

	got := m.GetStatusSummary()
	for _, want := range []string{
		"state: recording",
		"2024-06-01 21:00:00 CEST -> 2024-06-02 04:00:00 CEST (generation 3)",
		"session: session-1",
		"next refresh: 2024-06-02 12:00:00 CEST",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}

	m.RecordRecordingStopped("session-1", time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC))
	if got := m.GetStatusSummary(); strings.Contains(got, "session:") || !strings.Contains(got, "last stop: 2024-06-02 04:00:00 CEST") {
		t.Errorf("unexpected summary after stop:\n%s", got)
	}
}

func TestHealthServerHandlers(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		critical   bool
		wantStatus int
		wantBody   string
	}{
		{"Health ok", "/health", false, http.StatusOK, "OK - "},
		{"Health critical", "/health", true, http.StatusServiceUnavailable, "Service unhealthy - "},
		{"Status always ok", "/status", true, http.StatusOK, "state: idle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(t)
			if tt.critical {
				m.RecordCriticalFailure(errors.New("spawn failed"))
			}
			h := NewHealthServer(m, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

			rec := httptest.NewRecorder()
			h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
