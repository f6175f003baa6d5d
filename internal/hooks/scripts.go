package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// EventEnv is the environment variable carrying the event name to commands
// and scripts.
const EventEnv = "POWERHOOK_EVENT"

// EventIDEnv carries the event id.
const EventIDEnv = "POWERHOOK_EVENT_ID"

// maxOutputLog bounds how much command output is logged per run.
const maxOutputLog = 4 << 10

// ///////////////////////////////////////////////
// Scripts
// ///////////////////////////////////////////////

// ScriptSet is the commands and script directory for one event.
type ScriptSet struct {
	// Commands are shell command lines, run first and in order.
	Commands []string
	// Dir is scanned for scripts matching Patterns.
	Dir string
	// Patterns are doublestar globs relative to Dir.
	Patterns []string
}

// Scripts runs local commands and scripts on sleep and wake.
type Scripts struct {
	sleep   ScriptSet
	wake    ScriptSet
	timeout time.Duration
	log     *slog.Logger
}

// NewScripts returns a Scripts hook. Each command or script is killed after
// timeout.
func NewScripts(sleep, wake ScriptSet, timeout time.Duration, log *slog.Logger) *Scripts {
	if log == nil {
		log = slog.Default()
	}
	return &Scripts{
		sleep:   sleep,
		wake:    wake,
		timeout: timeout,
		log:     log.With("component", "scripts"),
	}
}

// NotifySleep implements [power.Hooks].
func (s *Scripts) NotifySleep(ctx context.Context) error {
	return s.run(ctx, EventSleep, s.sleep)
}

// NotifyWake implements [power.Hooks].
func (s *Scripts) NotifyWake(ctx context.Context) error {
	return s.run(ctx, EventWake, s.wake)
}

// run executes every command, then every matching script. A failure does
// not stop the rest.
func (s *Scripts) run(ctx context.Context, event string, set ScriptSet) error {
	env := append(os.Environ(), EventEnv+"="+event, EventIDEnv+"="+eventIDOrNew(ctx))

	var errs []error
	for _, line := range set.Commands {
		name, args := shellCommand(line)
		if err := s.exec(ctx, line, name, args, env); err != nil {
			errs = append(errs, err)
		}
	}

	scripts, err := FindScripts(set.Dir, set.Patterns)
	if err != nil {
		errs = append(errs, err)
	}
	for _, path := range scripts {
		name, args := scriptCommand(path)
		if err := s.exec(ctx, filepath.Base(path), name, args, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// exec runs one process under the per-hook timeout and logs its output.
func (s *Scripts) exec(ctx context.Context, label, name string, args, env []string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.WaitDelay = 2 * time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	output := truncate(strings.TrimSpace(out.String()), maxOutputLog)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", s.timeout)
		}
		s.log.Warn("hook command failed", "command", label, "error", err, "output", output)
		return fmt.Errorf("%s: %w", label, err)
	}
	s.log.Debug("hook command finished", "command", label, "duration", time.Since(start), "output", output)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ///////////////////////////////////////////////
// Discovery
// ///////////////////////////////////////////////

// FindScripts returns the runnable files under dir matching any of patterns,
// deduplicated and in lexical order of their path relative to dir. A missing
// dir yields no scripts.
func FindScripts(dir string, patterns []string) ([]string, error) {
	if dir == "" || len(patterns) == 0 {
		return nil, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	var rel []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q in %s: %w", pattern, dir, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			info, err := fs.Stat(fsys, m)
			if err != nil || !info.Mode().IsRegular() || !runnable(m, info) {
				continue
			}
			rel = append(rel, m)
		}
	}
	sort.Strings(rel)

	out := make([]string, len(rel))
	for i, m := range rel {
		out[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return out, nil
}
