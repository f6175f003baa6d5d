//go:build linux

package power

import (
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

// ///////////////////////////////////////////////
// Fakes
// ///////////////////////////////////////////////

// fakeLogind answers Inhibit with the write end of a fresh pipe. Every other
// BusObject method is left nil.
type fakeLogind struct {
	dbus.BusObject
	t *testing.T

	mu       sync.Mutex
	inhibits int
}

func (f *fakeLogind) Call(method string, _ dbus.Flags, _ ...interface{}) *dbus.Call {
	if method != logindInterface+".Inhibit" {
		f.t.Errorf("unexpected call %s", method)
		return &dbus.Call{Err: dbus.ErrMsgNoObject}
	}
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return &dbus.Call{Err: err}
	}
	unix.Close(p[0])

	f.mu.Lock()
	f.inhibits++
	f.mu.Unlock()
	return &dbus.Call{Method: method, Body: []interface{}{dbus.UnixFD(p[1])}}
}

func (f *fakeLogind) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inhibits
}

// startLogind returns a handle holding an inhibitor from a fake logind and a
// port fed by translate from the returned signal channel.
func startLogind(t *testing.T) (*logindHandle, *fakeLogind, chan<- *dbus.Signal, *chanPort) {
	t.Helper()
	obj := &fakeLogind{t: t}
	h := &logindHandle{obj: obj, fd: -1}
	if err := h.inhibit(); err != nil {
		t.Fatalf("inhibit: %v", err)
	}

	signals := make(chan *dbus.Signal)
	port := newChanPort(4)
	s := &logindService{log: testLogger()}
	go s.translate(h, signals, port)

	t.Cleanup(func() {
		port.Destroy()
		h.mu.Lock()
		h.release()
		h.mu.Unlock()
	})
	return h, obj, signals, port
}

func prepareSignal(start bool) *dbus.Signal {
	return &dbus.Signal{Name: prepareForSleep, Body: []interface{}{start}}
}

func nextMessage(t *testing.T, port *chanPort) Message {
	t.Helper()
	select {
	case m := <-port.Messages():
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message from translate")
		return Message{}
	}
}

func holdsInhibitor(h *logindHandle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fd >= 0
}

// ///////////////////////////////////////////////
// logind
// ///////////////////////////////////////////////

func TestLogind_SleepAckThenWake(t *testing.T) {
	h, obj, signals, port := startLogind(t)

	signals <- prepareSignal(true)
	sleep := nextMessage(t, port)
	if sleep.Kind != KindWillSleep {
		t.Fatalf("first message = %v, want will-sleep", sleep.Kind)
	}
	if err := h.Acknowledge(sleep.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if holdsInhibitor(h) {
		t.Fatal("inhibitor still held after acknowledging will-sleep")
	}

	signals <- prepareSignal(false)
	if m := nextMessage(t, port); m.Kind != KindWillPowerOn {
		t.Fatalf("second message = %v, want will-power-on", m.Kind)
	}
	if !holdsInhibitor(h) {
		t.Fatal("no inhibitor held after wake")
	}
	if got := obj.calls(); got != 2 {
		t.Errorf("Inhibit calls = %d, want 2", got)
	}

	// A repeated acknowledgment of the old sleep leaves the new lock alone.
	if err := h.Acknowledge(sleep.ID); err != nil {
		t.Fatalf("second Acknowledge: %v", err)
	}
	if !holdsInhibitor(h) {
		t.Error("stale acknowledgment released the fresh inhibitor")
	}
}

// logind stops waiting after InhibitDelayMaxSec, so a slow sleep hook can be
// acknowledged after the machine has already resumed.
func TestLogind_LateAckAfterWakeKeepsInhibitor(t *testing.T) {
	h, obj, signals, port := startLogind(t)

	signals <- prepareSignal(true)
	sleep := nextMessage(t, port)

	signals <- prepareSignal(false)
	if m := nextMessage(t, port); m.Kind != KindWillPowerOn {
		t.Fatalf("second message = %v, want will-power-on", m.Kind)
	}
	if got := obj.calls(); got != 2 {
		t.Errorf("Inhibit calls = %d, want 2 (wake takes a fresh lock)", got)
	}

	if err := h.Acknowledge(sleep.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if !holdsInhibitor(h) {
		t.Fatal("no inhibitor held after late acknowledgment; next sleep would not wait for hooks")
	}

	// The next sleep is still answered by its own acknowledgment.
	signals <- prepareSignal(true)
	next := nextMessage(t, port)
	if next.ID == sleep.ID {
		t.Errorf("both sleeps carry ID %d", next.ID)
	}
	if err := h.Acknowledge(next.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if holdsInhibitor(h) {
		t.Error("inhibitor still held after acknowledging the second sleep")
	}
}

func TestLogind_IgnoresOtherSignals(t *testing.T) {
	_, _, signals, port := startLogind(t)

	signals <- &dbus.Signal{Name: logindInterface + ".SessionNew", Body: []interface{}{"c1"}}
	signals <- &dbus.Signal{Name: prepareForSleep}
	signals <- &dbus.Signal{Name: prepareForSleep, Body: []interface{}{"yes"}}
	signals <- prepareSignal(true)

	if m := nextMessage(t, port); m.Kind != KindWillSleep {
		t.Errorf("first message = %v, want will-sleep", m.Kind)
	}
}

func TestLogind_AcknowledgeWithoutInhibitor(t *testing.T) {
	h := &logindHandle{obj: &fakeLogind{t: t}, fd: -1}
	if got := h.token(); got != noInhibitor {
		t.Fatalf("token() = %d, want noInhibitor", got)
	}
	if err := h.Acknowledge(noInhibitor); err != nil {
		t.Errorf("Acknowledge(noInhibitor) = %v, want nil", err)
	}
	if err := h.Acknowledge(0); err != nil {
		t.Errorf("Acknowledge(0) = %v, want nil", err)
	}
}
