// conn_unix.go serves the control channel on a Unix-domain socket inside the
// data directory.

//go:build !windows

package control

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"tools.zach/dev/powerhook/internal/paths"
)

// Listen opens the control socket for dir. A stale socket file left by a
// crashed daemon is removed; a live one yields [ErrAlreadyServing].
func Listen(dir paths.DataDir) (net.Listener, error) {
	path := dir.Socket()
	if conn, err := net.DialTimeout("unix", path, time.Second); err == nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyServing, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restricting socket permissions: %w", err)
	}
	return ln, nil
}

func dial(dir paths.DataDir, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", dir.Socket(), timeout)
}
