package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tools.zach/dev/powerhook/internal/config"
	"tools.zach/dev/powerhook/internal/control"
	"tools.zach/dev/powerhook/internal/hooks"
	"tools.zach/dev/powerhook/internal/logger"
	"tools.zach/dev/powerhook/internal/paths"
	"tools.zach/dev/powerhook/internal/power"
	"tools.zach/dev/powerhook/internal/state"
)

// ///////////////////////////////////////////////
// Version Tests
// ///////////////////////////////////////////////

func TestVersionFrom(t *testing.T) {
	build := func(kv ...string) *debug.BuildInfo {
		info := &debug.BuildInfo{}
		for i := 0; i < len(kv); i += 2 {
			info.Settings = append(info.Settings, debug.BuildSetting{Key: kv[i], Value: kv[i+1]})
		}
		return info
	}

	tests := []struct {
		name    string
		stamped string
		info    *debug.BuildInfo
		want    string
	}{
		{"stamped wins", "1.2.3", build("vcs.revision", "abcdef0123"), "1.2.3"},
		{"no build info", "dev", nil, "dev"},
		{"no vcs", "dev", build(), "dev"},
		{"clean tree", "dev", build("vcs.revision", "abcdef0123", "vcs.modified", "false"), "dev+abcdef0"},
		{"dirty tree", "dev", build("vcs.revision", "abcdef0123", "vcs.modified", "true"), "dev+abcdef0.dirty"},
		{"short revision", "dev", build("vcs.revision", "abc"), "dev+abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := versionFrom(tt.stamped, tt.info); got != tt.want {
				t.Errorf("versionFrom = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	saved := version
	defer func() { version = saved }()
	version = "9.9.9"

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := out.String(); got != "powerhook 9.9.9\n" {
		t.Errorf("version output = %q", got)
	}
}

// ///////////////////////////////////////////////
// Status Rendering Tests
// ///////////////////////////////////////////////

func TestRenderStatus(t *testing.T) {
	dir := paths.DataDir{Root: "/data"}
	st := state.New()
	st.PID = 77
	st.LastEvent = state.EventWake
	st.LastEventID = "evt-1"
	st.SleepCount = 2
	st.WakeCount = 2

	tests := []struct {
		name   string
		report statusReport
		want   []string
	}{
		{
			name:   "live",
			report: statusReport{Running: true, Live: true, Registered: true, PID: 77, State: st},
			want:   []string{"running (pid 77)", "Registered", "yes", "evt-1", "wake", "/data"},
		},
		{
			name:   "stopped",
			report: statusReport{State: st},
			want:   []string{"not running", "no"},
		},
		{
			name:   "locked but silent",
			report: statusReport{Running: true, PID: 5},
			want:   []string{"running (pid 5)", "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := renderStatus(dir, tt.report)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("status output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestGatherStatus_NotRunning(t *testing.T) {
	dir := shortDataDir(t)
	st := state.New()
	st.SleepCount = 4
	if err := state.Write(dir.State(), st); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := gatherStatus(dir)
	if err != nil {
		t.Fatalf("gatherStatus: %v", err)
	}
	if r.Running || r.Live {
		t.Errorf("report = %+v, want not running", r)
	}
	if r.State == nil || r.State.SleepCount != 4 {
		t.Errorf("state = %+v, want SleepCount 4", r.State)
	}
}

// ///////////////////////////////////////////////
// Reload Tests
// ///////////////////////////////////////////////

func TestDaemonReload(t *testing.T) {
	dir := paths.DataDir{Root: t.TempDir()}
	if err := dir.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	cfg := config.DefaultConfig()
	if err := cfg.Save(dir.Config()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	store := state.NewStore(dir.State())
	log := logger.Discard()
	set := hooks.NewSwappable(hooks.Build(cfg, dir, store, log))
	d := &daemon{dir: dir, hooks: set, store: store, log: log}

	hookCount := func() int {
		return len(set.Current().(hooks.Identified).Inner.(hooks.Multi))
	}
	if got := hookCount(); got != 2 {
		t.Fatalf("initial hook count = %d, want 2", got)
	}

	cfg.Webhook.URLs = []string{"http://127.0.0.1:9/hook"}
	if err := cfg.Save(dir.Config()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	d.reload()
	if got := hookCount(); got != 3 {
		t.Errorf("hook count after reload = %d, want 3", got)
	}

	if err := os.WriteFile(dir.Config(), []byte("version = 1\n[log]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	d.reload()
	if got := hookCount(); got != 3 {
		t.Errorf("invalid config replaced hooks, count = %d, want 3", got)
	}
}

// ///////////////////////////////////////////////
// Daemon Lifecycle Tests
// ///////////////////////////////////////////////

type fakeHandle struct{ acks atomic.Int32 }

func (h *fakeHandle) Acknowledge(uintptr) error { h.acks.Add(1); return nil }
func (h *fakeHandle) Close() error              { return nil }

type fakePort struct{ msgs chan power.Message }

func (p *fakePort) Messages() <-chan power.Message { return p.msgs }
func (p *fakePort) Destroy() error                 { return nil }

type fakeListener struct{}

func (fakeListener) Deregister() error { return nil }

type fakeService struct {
	handle *fakeHandle
	port   *fakePort
	err    error
}

func (s *fakeService) Register(context.Context) (power.Handle, power.Port, power.Listener, error) {
	if s.err != nil {
		return nil, nil, nil, s.err
	}
	return s.handle, s.port, fakeListener{}, nil
}

func (s *fakeService) factory() serviceFactory {
	return func(*slog.Logger) power.Service { return s }
}

func TestRunDaemon_RegistrationFailure(t *testing.T) {
	dir := shortDataDir(t)
	svc := &fakeService{err: power.ErrUnsupported}

	err := runDaemon(context.Background(), dir, false, svc.factory())
	if !errors.Is(err, power.ErrRegistrationFailed) {
		t.Fatalf("runDaemon = %v, want ErrRegistrationFailed", err)
	}
	if _, err := os.Stat(dir.PID()); !os.IsNotExist(err) {
		t.Error("PID file left behind after failed registration")
	}
	if _, err := os.Stat(dir.Config()); err != nil {
		t.Errorf("default config not seeded: %v", err)
	}
}

func TestRunDaemon_SleepThenStop(t *testing.T) {
	dir := shortDataDir(t)
	svc := &fakeService{handle: &fakeHandle{}, port: &fakePort{msgs: make(chan power.Message, 4)}}

	done := make(chan error, 1)
	go func() { done <- runDaemon(context.Background(), dir, false, svc.factory()) }()

	waitUntil(t, func() bool {
		resp, err := liveStatus(dir)
		return err == nil && resp.Registered
	})

	if alive, _ := probePID(dir); !alive {
		t.Error("PID lock not held while running")
	}
	if err := runDaemon(context.Background(), dir, false, svc.factory()); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("second runDaemon = %v, want already running", err)
	}

	svc.port.msgs <- power.Message{Kind: power.KindWillSleep, ID: 7}
	waitUntil(t, func() bool {
		resp, err := liveStatus(dir)
		return err == nil && resp.State != nil && resp.State.SleepCount == 1
	})
	// The acknowledgment follows the hooks.
	waitUntil(t, func() bool { return svc.handle.acks.Load() == 1 })

	if err := stopDaemon(dir, 5*time.Second); err != nil {
		t.Fatalf("stopDaemon: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runDaemon = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runDaemon did not return after stop")
	}

	if err := stopDaemon(dir, time.Second); !errors.Is(err, control.ErrNotRunning) {
		t.Errorf("stop after exit = %v, want ErrNotRunning", err)
	}
}

func TestRunDaemon_ContextCancel(t *testing.T) {
	dir := shortDataDir(t)
	svc := &fakeService{handle: &fakeHandle{}, port: &fakePort{msgs: make(chan power.Message)}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, dir, false, svc.factory()) }()

	waitUntil(t, func() bool {
		resp, err := liveStatus(dir)
		return err == nil && resp.Registered
	})
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runDaemon = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runDaemon did not return after cancel")
	}
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// shortDataDir returns a data dir whose socket path fits the Unix limit on
// every platform.
func shortDataDir(t *testing.T) paths.DataDir {
	t.Helper()
	root, err := os.MkdirTemp("", "ph")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(root) })

	// runDaemon installs its file logger as the default.
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	return paths.DataDir{Root: root}
}

// liveStatus asks the daemon directly, without the PID file fallback, so
// polling during startup never contends for the PID lock.
func liveStatus(dir paths.DataDir) (*control.Response, error) {
	c, err := control.Dial(dir, time.Second)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Status()
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
