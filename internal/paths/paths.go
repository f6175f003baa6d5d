// Package paths names every file and directory powerhook keeps in its data
// directory, and the Windows pipe that stands in for the control socket.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Names inside the data directory.
const (
	PIDFile    = "daemon.pid"
	StateFile  = "state.json"
	ConfigFile = "config.toml"
	LogFile    = "daemon.log"
	SocketFile = "powerhook.sock"
	HooksDir   = "hooks"
	SleepDir   = "sleep.d"
	WakeDir    = "wake.d"
)

const (
	BinaryName = "powerhook"

	// DataDirRel is the default data directory, relative to the home
	// directory.
	DataDirRel = ".powerhook"

	// HomeEnv overrides the data directory when set. A leading "~/" is
	// expanded.
	HomeEnv = "POWERHOOK_HOME"

	// PipeName is the control endpoint on Windows.
	PipeName = `\\.\pipe\powerhook`
)

// DataDir is a resolved data directory. Its zero value is rooted at the
// working directory.
type DataDir struct {
	Root string
}

// Resolve picks the data directory: root when non-empty, else $POWERHOOK_HOME,
// else ~/.powerhook. The result is absolute so that paths stay valid for a
// daemon whose working directory changes.
func Resolve(root string) (DataDir, error) {
	if root == "" {
		root = os.Getenv(HomeEnv)
	}
	if root == "" {
		root = filepath.Join("~", DataDirRel)
	}
	if rest, ok := strings.CutPrefix(root, "~"); ok && (rest == "" || os.IsPathSeparator(rest[0])) {
		home, err := os.UserHomeDir()
		if err != nil {
			return DataDir{}, fmt.Errorf("resolve home directory: %w", err)
		}
		root = home + rest
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return DataDir{}, fmt.Errorf("resolve data directory %s: %w", root, err)
	}
	return DataDir{Root: abs}, nil
}

// Ensure creates the data directory, private to the user, and the hook
// script directories inside it.
func (d DataDir) Ensure() error {
	if err := os.MkdirAll(d.Root, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	for _, dir := range []string{d.SleepHooks(), d.WakeHooks()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create hook directory: %w", err)
		}
	}
	return nil
}

func (d DataDir) join(elem ...string) string {
	return filepath.Join(append([]string{d.Root}, elem...)...)
}

func (d DataDir) PID() string    { return d.join(PIDFile) }
func (d DataDir) State() string  { return d.join(StateFile) }
func (d DataDir) Config() string { return d.join(ConfigFile) }
func (d DataDir) Log() string    { return d.join(LogFile) }

// Socket is the control socket on Unix systems.
func (d DataDir) Socket() string { return d.join(SocketFile) }

// Hooks is the parent of the sleep.d and wake.d script directories.
func (d DataDir) Hooks() string      { return d.join(HooksDir) }
func (d DataDir) SleepHooks() string { return d.join(HooksDir, SleepDir) }
func (d DataDir) WakeHooks() string  { return d.join(HooksDir, WakeDir) }
