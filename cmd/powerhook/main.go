// Package main implements the powerhook command: a daemon that subscribes to
// operating-system sleep and wake notifications and runs user hooks on each,
// plus the client commands that inspect and stop it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "powerhook:", err)
		}
		os.Exit(1)
	}
}
