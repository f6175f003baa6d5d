// Package migrate upgrades versioned on-disk files (config.toml and
// state.json) one schema version at a time.
//
// Each file has its own [Registry]. Loaders peek the version stored in the
// file, call [Registry.Upgrade], and write the result back when it reports a
// change.
package migrate

import (
	"fmt"
	"log/slog"
	"slices"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades data to Version from the version before it.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short label for log output.
	Description string
	// Upgrade transforms the raw file contents.
	Upgrade func(data []byte) ([]byte, error)
}

// Registry holds the schema version and migrations for one file.
type Registry struct {
	// Name labels the file in logs and errors, e.g. "config".
	Name string
	// CurrentVersion is the version the running binary reads and writes.
	CurrentVersion int
	// Migrations are kept sorted by Version by [Registry.Register]. Tests
	// may replace the slice directly.
	Migrations []Migration
}

// Config is the registry for config.toml.
var Config = &Registry{Name: "config", CurrentVersion: 1}

// State is the registry for state.json.
var State = &Registry{Name: "state", CurrentVersion: 1}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Register adds m, keeping the list ordered by version. Registering the
// same version twice is a programming error and panics.
func (r *Registry) Register(m Migration) {
	i, found := slices.BinarySearchFunc(r.Migrations, m.Version, func(e Migration, v int) int {
		return e.Version - v
	})
	if found {
		panic(fmt.Sprintf("migrate: duplicate %s migration version %d (%q)", r.Name, m.Version, m.Description))
	}
	r.Migrations = slices.Insert(r.Migrations, i, m)
}

// pending returns the migrations that apply to a file at fileVersion, in
// version order.
func (r *Registry) pending(fileVersion int) []Migration {
	var out []Migration
	for _, m := range r.Migrations {
		if m.Version > fileVersion && m.Version <= r.CurrentVersion {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out
}

// Upgrade brings data written at fileVersion up to CurrentVersion and
// reports whether the caller should write it back. An older file with no
// registered steps still reports a change so its version field is
// rewritten. A file from a newer release is rejected.
func (r *Registry) Upgrade(data []byte, fileVersion int) ([]byte, bool, error) {
	switch {
	case fileVersion > r.CurrentVersion:
		return nil, false, fmt.Errorf("%s version %d is newer than supported version %d", r.Name, fileVersion, r.CurrentVersion)
	case fileVersion == r.CurrentVersion:
		return data, false, nil
	}

	for _, m := range r.pending(fileVersion) {
		slog.Info("applying migration", "file", r.Name, "version", m.Version, "description", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, false, fmt.Errorf("migrate %s to v%d: %w", r.Name, m.Version, err)
		}
		data = out
	}
	return data, true, nil
}
