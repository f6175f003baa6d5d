// Shutdown signals on Linux, macOS and the BSDs: SIGINT from a terminal and
// SIGTERM from systemd, launchd or a container runtime.

//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals are the signals that make the daemon unregister and exit.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
