package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"twilight-stack/internal/models"
)

const sessionsFile = "sessions.json"

// SessionTracker keeps a persistent history of recording sessions.
type SessionTracker struct {
	fs       afero.Fs
	filePath string
	maxAge   time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions []models.Session
}

// NewSessionTracker loads dataDir/sessions.json from fs, creating the
// directory if needed, and drops sessions older than maxAge.
func NewSessionTracker(fs afero.Fs, dataDir string, maxAge time.Duration) (*SessionTracker, error) {
	if err := fs.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	tracker := &SessionTracker{
		fs:       fs,
		filePath: filepath.Join(dataDir, sessionsFile),
		maxAge:   maxAge,
		now:      time.Now,
	}

	if err := tracker.load(); err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}
	tracker.cleanup()

	return tracker, nil
}

// Record appends a finished session and persists the history.
func (st *SessionTracker) Record(session models.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.sessions = append(st.sessions, session)
	st.cleanup()
	return st.save()
}

func (st *SessionTracker) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Recent returns up to n sessions, newest first.
func (st *SessionTracker) Recent(n int) []models.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]models.Session, len(st.sessions))
	copy(out, st.sessions)
	sort.Slice(out, func(i, j int) bool { return out[i].StoppedAt.After(out[j].StoppedAt) })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func (st *SessionTracker) cleanup() {
	if st.maxAge <= 0 {
		return
	}
	cutoff := st.now().Add(-st.maxAge)

	kept := st.sessions[:0]
	for _, s := range st.sessions {
		if !s.StoppedAt.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	st.sessions = kept
}

func (st *SessionTracker) load() error {
	file, err := st.fs.Open(st.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&st.sessions); err != nil {
		return fmt.Errorf("failed to decode session data: %w", err)
	}
	return nil
}

// save writes to a temp file and renames it over the history.
func (st *SessionTracker) save() error {
	tmp := st.filePath + ".tmp"
	file, err := st.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(st.sessions); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	return st.fs.Rename(tmp, st.filePath)
}
