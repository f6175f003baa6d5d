// Package state persists the daemon's sleep/wake history in state.json.
//
// The daemon stamps its PID and start time at startup, the recorder hook
// updates the counters on every event, and `powerhook status` reads the file
// (or asks the daemon over the control socket for the same structure). The
// schema is versioned through [migrate.State].
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"tools.zach/dev/powerhook/internal/atomicfile"
	"tools.zach/dev/powerhook/internal/migrate"
)

// ///////////////////////////////////////////////
// State Types
// ///////////////////////////////////////////////

// Event names recorded in [State.LastEvent].
const (
	EventSleep = "sleep"
	EventWake  = "wake"
)

// State is the state.json schema.
type State struct {
	// Version is the schema version, used for migration.
	Version int `json:"$version"`
	// PID is the process id of the daemon that last wrote the file.
	PID int `json:"pid"`
	// StartedAt is when that daemon started.
	StartedAt time.Time `json:"startedAt"`
	// LastEvent is "sleep" or "wake", or empty before the first event.
	LastEvent string `json:"lastEvent,omitempty"`
	// LastEventID is the id sent with the last webhook notification.
	LastEventID string `json:"lastEventId,omitempty"`
	// LastSleep is when the last sleep notification arrived.
	LastSleep time.Time `json:"lastSleep"`
	// LastWake is when the last wake notification arrived.
	LastWake time.Time `json:"lastWake"`
	// SleepCount counts sleep notifications since the file was created.
	SleepCount int `json:"sleepCount"`
	// WakeCount counts wake notifications since the file was created.
	WakeCount int `json:"wakeCount"`
}

// New returns an empty state at the current schema version.
func New() *State {
	return &State{Version: migrate.State.CurrentVersion}
}

// Record applies one event to s at time at.
func (s *State) Record(event, id string, at time.Time) {
	s.LastEvent = event
	s.LastEventID = id
	switch event {
	case EventSleep:
		s.LastSleep = at
		s.SleepCount++
	case EventWake:
		s.LastWake = at
		s.WakeCount++
	}
}

// ///////////////////////////////////////////////
// Reading and Writing
// ///////////////////////////////////////////////

// Read loads the state file at path. A missing file yields a fresh state
// and no error. A corrupted file is backed up to path.corrupted and replaced
// with a fresh state, and the parse error is returned alongside it.
func Read(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	version, err := PeekVersion(data)
	if err != nil {
		return recoverCorrupted(path, data, err)
	}

	if version > migrate.State.CurrentVersion {
		return normalizeFuture(path, data, version)
	}

	data, _, err = migrate.State.Upgrade(data, version)
	if err != nil {
		return nil, err
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return recoverCorrupted(path, data, err)
	}
	s.Version = migrate.State.CurrentVersion
	return &s, nil
}

// Write atomically writes s to path.
func Write(path string, s *State) error {
	if err := atomicfile.WriteJSON(path, s, 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// PeekVersion does a partial JSON parse to extract the $version field.
// Returns 1 if the field is missing.
func PeekVersion(data []byte) (int, error) {
	var partial struct {
		Version int `json:"$version"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return 0, fmt.Errorf("peeking version: %w", err)
	}
	if partial.Version == 0 {
		return 1, nil
	}
	return partial.Version, nil
}

// recoverCorrupted backs up a corrupted state file and returns a fresh state.
func recoverCorrupted(path string, data []byte, parseErr error) (*State, error) {
	slog.Warn("corrupted state file, backing up", "path", path, "error", parseErr)

	corruptedPath := path + ".corrupted"
	if wErr := os.WriteFile(corruptedPath, data, 0o600); wErr != nil {
		slog.Warn("failed to write backup", "path", corruptedPath, "error", wErr)
	}

	s := New()
	if sErr := Write(path, s); sErr != nil {
		slog.Warn("failed to save fresh state", "path", path, "error", sErr)
	}
	return s, fmt.Errorf("corrupted state file (backed up to %s): %w", corruptedPath, parseErr)
}

// normalizeFuture keeps what it can from a state file written by a newer
// release, backing the original up to path.v<N>.bak first.
func normalizeFuture(path string, data []byte, version int) (*State, error) {
	slog.Warn("future state version detected, normalizing", "version", version, "current", migrate.State.CurrentVersion)

	bakPath := fmt.Sprintf("%s.v%d.bak", path, version)
	if wErr := os.WriteFile(bakPath, data, 0o600); wErr != nil {
		slog.Warn("failed to write backup", "path", bakPath, "error", wErr)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return recoverCorrupted(path, data, err)
	}
	s.Version = migrate.State.CurrentVersion
	if sErr := Write(path, &s); sErr != nil {
		slog.Warn("failed to save normalized state", "path", path, "error", sErr)
	}
	return &s, nil
}

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store serializes read-modify-write cycles on one state file within the
// process. The daemon is the only writer, guarded by its PID lock.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store for the state file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

// Load reads the current state. Corruption is logged and a fresh state
// returned.
func (s *Store) Load() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() *State {
	st, err := Read(s.path)
	if err != nil {
		slog.Warn("state file unreadable, starting fresh", "path", s.path, "error", err)
		if st == nil {
			st = New()
		}
	}
	return st
}

// Update reads the state, applies fn and writes the result back. It returns
// a copy of the written state.
func (s *Store) Update(fn func(*State)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.load()
	fn(st)
	if err := Write(s.path, st); err != nil {
		return *st, err
	}
	return *st, nil
}
