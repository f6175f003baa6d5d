// conn_windows.go serves the control channel on a named pipe using the
// go-winio library.

//go:build windows

package control

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"

	"tools.zach/dev/powerhook/internal/paths"
)

// pipeSecurity grants access to SYSTEM, administrators and the interactive
// user only.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GA;;;BA)(A;;GA;;;IU)"

// Listen opens the control pipe. The pipe name is machine-wide, so dir is
// not part of it. A second daemon fails with [ErrAlreadyServing] because
// go-winio creates the first instance exclusively.
func Listen(_ paths.DataDir) (net.Listener, error) {
	ln, err := winio.ListenPipe(paths.PipeName, &winio.PipeConfig{SecurityDescriptor: pipeSecurity})
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) || errors.Is(err, windows.ERROR_PIPE_BUSY) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyServing, paths.PipeName)
	}
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", paths.PipeName, err)
	}
	return ln, nil
}

func dial(_ paths.DataDir, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(paths.PipeName, &timeout)
}
