package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tools.zach/dev/powerhook/internal/control"
	"tools.zach/dev/powerhook/internal/paths"
)

func newStopCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the running daemon to unregister and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := ctx.dataDir()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			err = stopDaemon(dir, wait)
			if errors.Is(err, control.ErrNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait for the daemon to exit")
	return cmd
}

// stopDaemon sends a stop request and waits until the daemon releases its
// PID lock.
func stopDaemon(dir paths.DataDir, wait time.Duration) error {
	c, err := control.Dial(dir, controlTimeout)
	if err != nil {
		if alive, pid := probePID(dir); alive {
			return fmt.Errorf("daemon (pid %d) holds the PID lock but does not answer on the control socket: %v", pid, err)
		}
		return err
	}
	err = c.Stop()
	c.Close()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(wait)
	for {
		if alive, _ := probePID(dir); !alive {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon still running after %s", wait)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
