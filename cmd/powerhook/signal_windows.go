// Shutdown signals on Windows. There is no SIGTERM; the Go runtime maps
// CTRL_C_EVENT, CTRL_BREAK_EVENT and console close to os.Interrupt.

//go:build windows

package main

import "os"

// shutdownSignals are the signals that make the daemon unregister and exit.
var shutdownSignals = []os.Signal{os.Interrupt}
