package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"tools.zach/dev/powerhook/internal/control"
	"tools.zach/dev/powerhook/internal/logger"
	"tools.zach/dev/powerhook/internal/paths"
	"tools.zach/dev/powerhook/internal/state"
)

// controlTimeout bounds each request to the daemon.
const controlTimeout = 3 * time.Second

// statusReport is what `powerhook status` prints, gathered either from the
// daemon or from the files it leaves behind.
type statusReport struct {
	// Running is true when a daemon holds the PID lock or answered on the
	// control socket.
	Running bool
	// PID is the daemon pid, zero when unknown.
	PID int
	// Registered is only meaningful when Live is set.
	Registered bool
	// Live is true when the report came from the daemon itself.
	Live  bool
	State *state.State
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running and its sleep/wake history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := ctx.dataDir()
			if err != nil {
				return err
			}
			report, err := gatherStatus(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderStatus(dir, report))
			fmt.Fprintln(out)

			if tail > 0 {
				lines, err := logger.ReadTail(dir.Log(), tail)
				if err != nil {
					return fmt.Errorf("read log: %w", err)
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, lines)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Also print the last N lines of the daemon log")
	return cmd
}

// gatherStatus asks the daemon over the control socket and falls back to
// the PID lock and state.json when it does not answer.
func gatherStatus(dir paths.DataDir) (statusReport, error) {
	c, err := control.Dial(dir, controlTimeout)
	if err == nil {
		defer c.Close()
		resp, err := c.Status()
		if err == nil {
			r := statusReport{Running: true, Live: true, Registered: resp.Registered, State: resp.State}
			if resp.State != nil {
				r.PID = resp.State.PID
			}
			return r, nil
		}
	} else if !errors.Is(err, control.ErrNotRunning) {
		return statusReport{}, err
	}

	alive, pid := probePID(dir)
	st, err := state.Read(dir.State())
	if err != nil {
		return statusReport{}, fmt.Errorf("read state: %w", err)
	}
	return statusReport{Running: alive, PID: pid, State: st}, nil
}

// renderStatus formats r as a two-column table.
func renderStatus(dir paths.DataDir, r statusReport) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Field", "Value"})

	daemon := "not running"
	if r.Running {
		daemon = "running"
		if r.PID > 0 {
			daemon += " (pid " + strconv.Itoa(r.PID) + ")"
		}
	}
	tw.AppendRow(table.Row{"Daemon", daemon})

	registered := "unknown"
	if r.Live {
		registered = yesNo(r.Registered)
	} else if !r.Running {
		registered = "no"
	}
	tw.AppendRow(table.Row{"Registered", registered})

	st := r.State
	if st == nil {
		st = state.New()
	}
	if r.Running {
		tw.AppendRow(table.Row{"Started", formatTime(st.StartedAt)})
	}
	tw.AppendRow(table.Row{"Last event", orDash(st.LastEvent)})
	tw.AppendRow(table.Row{"Last event id", orDash(st.LastEventID)})
	tw.AppendRow(table.Row{"Last sleep", formatTime(st.LastSleep)})
	tw.AppendRow(table.Row{"Last wake", formatTime(st.LastWake)})
	tw.AppendRow(table.Row{"Sleeps", strconv.Itoa(st.SleepCount)})
	tw.AppendRow(table.Row{"Wakes", strconv.Itoa(st.WakeCount)})
	tw.AppendRow(table.Row{"Data dir", dir.Root})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
	})
	return tw.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05 MST")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
