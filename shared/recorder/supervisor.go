// Package recorder owns the lifecycle of the external stream process.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultKillWait = 5 * time.Second

var (
	ErrAlreadyRunning = errors.New("stream process already running")
	ErrSpawn          = errors.New("failed to spawn stream process")
	ErrStopTimeout    = errors.New("stream process did not exit after kill")
)

// Handle identifies one recording session. The process itself never leaves
// the Supervisor.
type Handle struct {
	ID        string
	PID       int
	StartedAt time.Time
}

// Supervisor is the RecordingSupervisor. It holds at most one process.
type Supervisor struct {
	spawner  Spawner
	grace    time.Duration
	killWait time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	proc   Process
	handle Handle
}

func NewSupervisor(spawner Spawner, grace time.Duration, log *slog.Logger) *Supervisor {
	return &Supervisor{
		spawner:  spawner,
		grace:    grace,
		killWait: defaultKillWait,
		log:      log.With(slog.String("component", "recorder")),
		now:      time.Now,
	}
}

// Start spawns the stream process. It fails with ErrAlreadyRunning while a
// live process is held.
func (s *Supervisor) Start() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()
	if s.proc != nil {
		return s.handle, fmt.Errorf("%w: session %s (pid %d)", ErrAlreadyRunning, s.handle.ID, s.handle.PID)
	}

	proc, err := s.spawner.Spawn()
	if err != nil {
		if !errors.Is(err, ErrSpawn) {
			err = fmt.Errorf("%w: %v", ErrSpawn, err)
		}
		return Handle{}, err
	}

	s.proc = proc
	s.handle = Handle{
		ID:        uuid.NewString(),
		PID:       proc.Pid(),
		StartedAt: s.now(),
	}
	s.log.Info("stream process started",
		slog.String("session", s.handle.ID),
		slog.Int("pid", s.handle.PID),
	)
	return s.handle, nil
}

// Stop terminates the held process, waiting at most the grace period before
// killing it. Without a process it does nothing.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return nil
	}
	proc, handle := s.proc, s.handle
	defer func() {
		s.proc = nil
		s.handle = Handle{}
	}()

	log := s.log.With(slog.String("session", handle.ID), slog.Int("pid", handle.PID))

	select {
	case <-proc.Done():
		log.Warn("stream process had already exited", slog.Any("err", proc.Err()))
		return nil
	default:
	}

	if err := proc.Terminate(); err != nil {
		log.Warn("failed to signal stream process", slog.Any("err", err))
	}

	grace := time.NewTimer(s.grace)
	defer grace.Stop()

	select {
	case <-proc.Done():
		log.Info("stream process stopped", slog.Duration("ran", s.now().Sub(handle.StartedAt)))
		return nil
	case <-grace.C:
	}

	log.Warn("stream process ignored termination, killing", slog.Duration("grace", s.grace))
	if err := proc.Kill(); err != nil {
		log.Error("failed to kill stream process", slog.Any("err", err))
	}

	select {
	case <-proc.Done():
		log.Info("stream process killed")
		return nil
	case <-time.After(s.killWait):
		log.Error("stream process still alive after kill")
		return fmt.Errorf("%w: session %s (pid %d)", ErrStopTimeout, handle.ID, handle.PID)
	}
}

// IsRunning reports whether a live process is held. A process that exited
// on its own is released here.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()
	return s.proc != nil
}

func (s *Supervisor) reapLocked() {
	if s.proc == nil {
		return
	}
	select {
	case <-s.proc.Done():
		s.log.Warn("stream process exited",
			slog.String("session", s.handle.ID),
			slog.Int("pid", s.handle.PID),
			slog.Any("err", s.proc.Err()),
		)
		s.proc = nil
		s.handle = Handle{}
	default:
	}
}
