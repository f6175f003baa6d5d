// Package control implements the daemon's local control channel: a
// Unix-domain socket (a named pipe on Windows) carrying length-prefixed JSON
// frames. The CLI uses it to query status and to stop a running daemon.
//
// Platform-specific listening and dialing live in conn_unix.go and
// conn_windows.go.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"tools.zach/dev/powerhook/internal/state"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrAlreadyServing is returned by [Listen] when another daemon answers on
// the control endpoint.
var ErrAlreadyServing = errors.New("control endpoint already in use")

// ErrNotRunning is returned by [Dial] when no daemon is listening.
var ErrNotRunning = errors.New("daemon not running")

// idleTimeout closes connections that send nothing for this long.
const idleTimeout = 30 * time.Second

// ///////////////////////////////////////////////
// Server
// ///////////////////////////////////////////////

// Daemon is the running process as seen by the control server.
type Daemon interface {
	// Status returns a snapshot of the daemon state and whether the bridge
	// is registered.
	Status() (*state.State, bool)
	// Stop asks the daemon to shut down. It must not wait for the server
	// to close.
	Stop() error
}

// Server answers control requests on a listener.
type Server struct {
	ln     net.Listener
	daemon Daemon
	log    *slog.Logger

	// mu protects conns and closed.
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	// wg tracks connection handlers so Close can wait for them.
	wg sync.WaitGroup
}

// NewServer returns a server that will answer on ln once [Server.Serve]
// is called.
func NewServer(ln net.Listener, daemon Daemon, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		ln:     ln,
		daemon: daemon,
		log:    log.With("component", "control"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections until [Server.Close] is called, then returns nil.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(conn)
		}()
	}
}

// Close stops accepting, closes open connections and waits for their
// handlers to return. Calling Close more than once is safe.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.ln.Close()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.Close()
}

// handle serves one connection until the peer closes it, sends OpClose, or
// goes idle.
func (s *Server) handle(conn net.Conn) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		opcode, payload, err := ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				s.log.Debug("control connection ended", "error", err)
			}
			return
		}

		switch opcode {
		case OpClose:
			return
		case OpRequest:
		default:
			s.log.Debug("unexpected control opcode", "opcode", opcode)
			return
		}

		var req Request
		resp := Response{}
		if err := json.Unmarshal(payload, &req); err != nil {
			resp.Error = fmt.Sprintf("malformed request: %v", err)
		} else {
			resp = s.respond(req)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			s.log.Warn("encoding control response", "error", err)
			return
		}
		if err := WriteFrame(conn, OpResponse, data); err != nil {
			s.log.Debug("writing control response", "error", err)
			return
		}

		if resp.OK && req.Cmd == CmdStop {
			s.log.Info("stop requested over control socket")
			if err := s.daemon.Stop(); err != nil {
				s.log.Warn("stop failed", "error", err)
			}
		}
	}
}

// respond builds the response for a decoded request. Stop is acknowledged
// here and carried out by the caller after the response is written.
func (s *Server) respond(req Request) Response {
	resp := Response{Nonce: req.Nonce}
	switch req.Cmd {
	case CmdStatus:
		st, registered := s.daemon.Status()
		resp.OK = true
		resp.State = st
		resp.Registered = registered
	case CmdStop:
		resp.OK = true
	default:
		resp.Error = fmt.Sprintf("unknown command %q", req.Cmd)
	}
	s.log.Debug("control request", "cmd", req.Cmd, "ok", resp.OK)
	return resp
}
