package monitoring

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"twilight-stack/internal/models"
	"twilight-stack/shared/astro"
)

// Monitor keeps the latest scheduler state for the health endpoints. The
// scheduler goroutine writes, HTTP handlers read.
type Monitor struct {
	log     *slog.Logger
	display astro.Display
	now     func() time.Time

	mu            sync.RWMutex
	state         string
	window        models.Window
	hasWindow     bool
	generation    uint64
	nextRefresh   time.Time
	session       string
	lastStart     time.Time
	lastStop      time.Time
	lastError     error
	lastErrorTime time.Time
	critical      bool
}

func NewMonitor(log *slog.Logger, display astro.Display) *Monitor {
	return &Monitor{
		log:     log.With(slog.String("component", "monitor")),
		display: display,
		now:     time.Now,
		state:   "idle",
	}
}

func (m *Monitor) RecordWindow(window models.Window, generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = window
	m.hasWindow = true
	m.generation = generation
}

func (m *Monitor) RecordState(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *Monitor) RecordNextRefresh(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRefresh = at
}

// RecordRecordingStarted marks the service healthy again.
func (m *Monitor) RecordRecordingStarted(session string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.lastStart = at
	m.critical = false
}

func (m *Monitor) RecordRecordingStopped(session string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == session {
		m.session = ""
	}
	m.lastStop = at
}

func (m *Monitor) RecordPartialFailure(err error) {
	// Don't change health status for partial failures
	m.mu.Lock()
	m.lastError = err
	m.lastErrorTime = m.now()
	m.mu.Unlock()

	m.log.Warn("partial failure", slog.Any("err", err))
}

func (m *Monitor) RecordCriticalFailure(err error) {
	m.mu.Lock()
	m.lastError = err
	m.lastErrorTime = m.now()
	m.critical = true
	m.mu.Unlock()

	m.log.Error("critical failure", slog.Any("err", err))
}

// IsHealthy is false only while the latest outcome is a critical failure.
func (m *Monitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.critical
}

func (m *Monitor) GetStatusSummary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", m.state)
	if m.hasWindow {
		fmt.Fprintf(&b, "window: %s -> %s (generation %d)\n",
			m.display.Format(m.window.Start), m.display.Format(m.window.End), m.generation)
	} else {
		b.WriteString("window: none\n")
	}
	if m.session != "" {
		fmt.Fprintf(&b, "session: %s since %s\n", m.session, m.display.Format(m.lastStart))
	}
	if !m.lastStop.IsZero() {
		fmt.Fprintf(&b, "last stop: %s\n", m.display.Format(m.lastStop))
	}
	if !m.nextRefresh.IsZero() {
		fmt.Fprintf(&b, "next refresh: %s\n", m.display.Format(m.nextRefresh))
	}
	if m.lastError != nil {
		kind := "partial"
		if m.critical {
			kind = "critical"
		}
		fmt.Fprintf(&b, "last error (%s, %s): %v\n", kind, m.display.Format(m.lastErrorTime), m.lastError)
	}
	return b.String()
}
