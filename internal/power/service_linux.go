// Linux power notifications through systemd-logind on the system D-Bus.
//
// logind broadcasts PrepareForSleep(true) before suspending and
// PrepareForSleep(false) after resuming. It only waits for a process that
// holds a "delay" inhibitor lock, so the service takes one at registration,
// releases it to acknowledge a will-sleep message, and takes a fresh one on
// wake. Each will-sleep message carries the generation of the inhibitor it
// answers as its ID.

//go:build linux

package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindInterface = "org.freedesktop.login1.Manager"
	prepareForSleep = logindInterface + ".PrepareForSleep"

	inhibitWho  = "powerhook"
	inhibitWhy  = "Running sleep hooks"
	inhibitWhat = "sleep"
	inhibitMode = "delay"
)

// ///////////////////////////////////////////////
// Service
// ///////////////////////////////////////////////

// logindService registers with systemd-logind.
type logindService struct {
	log *slog.Logger
}

// NewSystemService returns the logind-backed [Service].
func NewSystemService(log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &logindService{log: log.With("component", "logind")}
}

// Register connects to the system bus, takes the delay inhibitor and
// subscribes to PrepareForSleep.
func (s *logindService) Register(ctx context.Context) (Handle, Port, Listener, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect system bus: %w", err)
	}

	h := &logindHandle{
		conn: conn,
		obj:  conn.Object(logindDest, logindPath),
		fd:   -1,
	}
	if err := h.inhibit(); err != nil {
		conn.Close()
		return nil, nil, nil, err
	}

	rule := []dbus.MatchOption{
		dbus.WithMatchObjectPath(logindPath),
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember("PrepareForSleep"),
	}
	if err := conn.AddMatchSignalContext(ctx, rule...); err != nil {
		_ = h.Close()
		return nil, nil, nil, fmt.Errorf("add PrepareForSleep match: %w", err)
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)

	port := newChanPort(4)
	go s.translate(h, signals, port)

	l := &logindListener{conn: conn, rule: rule, signals: signals}
	return h, port, l, nil
}

// translate converts PrepareForSleep signals into messages until the port is
// destroyed.
func (s *logindService) translate(h *logindHandle, signals <-chan *dbus.Signal, port *chanPort) {
	for {
		select {
		case <-port.done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Name != prepareForSleep || len(sig.Body) == 0 {
				continue
			}
			start, ok := sig.Body[0].(bool)
			if !ok {
				s.log.Debug("unexpected PrepareForSleep body", "body", sig.Body)
				continue
			}
			var msg Message
			if start {
				msg = Message{Kind: KindWillSleep, ID: h.token()}
			} else {
				if err := h.rearm(); err != nil {
					s.log.Warn("failed to retake sleep inhibitor; next sleep will not wait for hooks", "error", err)
				}
				msg = Message{Kind: KindWillPowerOn}
			}
			if !port.deliver(msg) {
				return
			}
		}
	}
}

// ///////////////////////////////////////////////
// Handle
// ///////////////////////////////////////////////

// logindHandle owns the bus connection and the inhibitor fd.
type logindHandle struct {
	conn *dbus.Conn
	obj  dbus.BusObject

	// mu guards fd and gen.
	mu sync.Mutex
	// fd is the inhibitor lock descriptor, or -1 when not held.
	fd int
	// gen counts inhibitors taken. A released fd number is often reused
	// by the next Inhibit call, so messages carry gen instead of fd.
	gen uintptr
}

// noInhibitor is the will-sleep message ID used when no inhibitor was held
// as the sleep began. Acknowledging it releases nothing.
const noInhibitor = ^uintptr(0)

// token returns the ID a will-sleep message carries: the generation of the
// inhibitor that the acknowledgment will release.
func (h *logindHandle) token() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd < 0 {
		return noInhibitor
	}
	return h.gen
}

// inhibit takes the delay inhibitor if it is not already held.
func (h *logindHandle) inhibit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd >= 0 {
		return nil
	}
	return h.take()
}

// rearm runs on wake. An inhibitor still held belongs to a sleep that logind
// already gave up waiting for, so it is dropped and a fresh one taken.
func (h *logindHandle) rearm() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	relErr := h.release()
	if err := h.take(); err != nil {
		return errors.Join(relErr, err)
	}
	return relErr
}

// take calls Inhibit and stores the returned fd. The caller must hold h.mu.
func (h *logindHandle) take() error {
	var fd dbus.UnixFD
	call := h.obj.Call(logindInterface+".Inhibit", 0, inhibitWhat, inhibitWho, inhibitWhy, inhibitMode)
	if err := call.Store(&fd); err != nil {
		return fmt.Errorf("take sleep inhibitor: %w", err)
	}
	h.fd = int(fd)
	h.gen++
	return nil
}

// release closes the inhibitor fd if held. The caller must hold h.mu.
func (h *logindHandle) release() error {
	if h.fd < 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	if err != nil {
		return fmt.Errorf("release sleep inhibitor: %w", err)
	}
	return nil
}

// Acknowledge releases the inhibitor that was held when the will-sleep
// message id was issued, letting logind proceed. An id from an earlier sleep
// whose inhibitor was already replaced on wake releases nothing.
func (h *logindHandle) Acknowledge(id uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id == noInhibitor || h.fd < 0 || h.gen != id {
		return nil
	}
	return h.release()
}

// Close releases any held inhibitor and closes the bus connection.
func (h *logindHandle) Close() error {
	h.mu.Lock()
	relErr := h.release()
	h.mu.Unlock()

	if err := h.conn.Close(); err != nil {
		return fmt.Errorf("close system bus: %w", err)
	}
	return relErr
}

// ///////////////////////////////////////////////
// Listener
// ///////////////////////////////////////////////

// logindListener is the PrepareForSleep subscription.
type logindListener struct {
	conn    *dbus.Conn
	rule    []dbus.MatchOption
	signals chan *dbus.Signal
}

// Deregister removes the signal channel and the match rule.
func (l *logindListener) Deregister() error {
	l.conn.RemoveSignal(l.signals)
	if err := l.conn.RemoveMatchSignal(l.rule...); err != nil {
		return fmt.Errorf("remove PrepareForSleep match: %w", err)
	}
	return nil
}
