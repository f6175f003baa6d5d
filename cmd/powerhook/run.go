package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	rootpkg "tools.zach/dev/powerhook"
	"tools.zach/dev/powerhook/internal/config"
	"tools.zach/dev/powerhook/internal/control"
	"tools.zach/dev/powerhook/internal/hooks"
	"tools.zach/dev/powerhook/internal/logger"
	"tools.zach/dev/powerhook/internal/paths"
	"tools.zach/dev/powerhook/internal/power"
	"tools.zach/dev/powerhook/internal/state"
)

// serviceFactory builds the platform power service. Tests substitute a fake.
type serviceFactory func(*slog.Logger) power.Service

func newRunCommand(ctx *commandContext) *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in this process until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := ctx.dataDir()
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), dir, foreground, power.NewSystemService)
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Mirror the log to stderr even when stderr is not a terminal")
	return cmd
}

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

// daemon is the running process as seen by the control server and the
// config watcher.
type daemon struct {
	dir    paths.DataDir
	bridge *power.Bridge
	hooks  *hooks.Swappable
	store  *state.Store
	log    *slog.Logger

	// cancel ends the context passed to Register.
	cancel context.CancelFunc
	// stopOnce makes repeated stop requests and signals harmless.
	stopOnce sync.Once
}

// Status implements [control.Daemon].
func (d *daemon) Status() (*state.State, bool) {
	return d.store.Load(), d.bridge.Registered()
}

// Stop implements [control.Daemon]. It unregisters the bridge, which makes
// Register return, and cancels the run context in case registration is
// still in progress.
func (d *daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		err = d.bridge.Unregister()
		d.cancel()
		if errors.Is(err, power.ErrNotRegistered) {
			err = nil
		}
	})
	return err
}

// reload rebuilds the hook set from the config file. An invalid file keeps
// the previous hooks.
func (d *daemon) reload() {
	cfg, err := config.Load(d.dir.Root)
	if err != nil {
		d.log.Warn("config reload failed, keeping previous hooks", "error", err)
		return
	}
	warnUnknown(d.log, cfg)
	d.hooks.Swap(hooks.Build(cfg, d.dir, d.store, d.log))
	d.log.Info("config reloaded", "webhooks", len(cfg.Webhook.URLs))
}

func warnUnknown(log *slog.Logger, cfg *config.Config) {
	for _, k := range cfg.Unknown {
		log.Warn("unknown config key ignored", "key", k)
	}
}

// ///////////////////////////////////////////////
// Run
// ///////////////////////////////////////////////

// runDaemon prepares the data directory, takes the PID lock, starts the
// control server and config watcher, and blocks in [power.Bridge.Register]
// until a signal, a stop request or ctx ends it.
func runDaemon(ctx context.Context, dir paths.DataDir, foreground bool, newService serviceFactory) error {
	if err := dir.Ensure(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if alive, pid := checkStalePID(dir); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	if seeded, err := config.Seed(dir.Root, rootpkg.DefaultConfigTOML); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", err)
	} else if seeded {
		fmt.Fprintf(os.Stderr, "wrote default config to %s\n", dir.Config())
	}
	cfg, err := config.Load(dir.Root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser, err := logger.New(logger.Options{
		Path:      dir.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Mirror:    logger.StderrMirror(foreground),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("powerhook starting", "version", resolveVersion(), "data_dir", dir.Root, "pid", os.Getpid())
	warnUnknown(log, cfg)

	claim, err := claimPID(dir)
	if err != nil {
		log.Error("failed to claim PID file", "error", err)
		return err
	}
	defer claim.release()

	store := state.NewStore(dir.State())
	if _, err := store.Update(func(s *state.State) {
		s.PID = os.Getpid()
		s.StartedAt = time.Now().UTC()
	}); err != nil {
		log.Warn("failed to write state file", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	set := hooks.NewSwappable(hooks.Build(cfg, dir, store, log))
	d := &daemon{
		dir:    dir,
		bridge: power.NewBridge(newService(log), set, log),
		hooks:  set,
		store:  store,
		log:    log,
		cancel: cancel,
	}

	if ln, err := control.Listen(dir); err != nil {
		log.Warn("control socket unavailable, status and stop will fall back to the PID file", "error", err)
	} else {
		srv := control.NewServer(ln, d, log)
		go func() {
			if err := srv.Serve(); err != nil {
				log.Warn("control server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	if cfg.Daemon.WatchConfig {
		w, err := config.NewWatcher(dir.Config(), log)
		if err != nil {
			log.Warn("config watcher unavailable, edits need a restart", "error", err)
		} else {
			defer w.Close()
			if w.Polling() {
				log.Info("using polling mode for config watching")
			}
			go func() {
				for {
					select {
					case <-runCtx.Done():
						return
					case <-w.Events():
						d.reload()
					}
				}
			}()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("received shutdown signal", "signal", sig.String())
			if err := d.Stop(); err != nil {
				log.Warn("unregister failed", "error", err)
			}
		case <-runCtx.Done():
		}
	}()

	err = d.bridge.Register(runCtx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		log.Info("powerhook stopped")
		return nil
	default:
		return err
	}
}
