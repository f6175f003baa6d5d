// macOS power notifications through IOKit's IORegisterForSystemPower.
//
// IOKit delivers through an IONotificationPort that must be attached to a
// CFRunLoop. The service runs that CFRunLoop on a dedicated, locked OS thread
// and forwards each callback into a Go port; the bridge's own loop consumes
// the port. IOAllowPowerChange may be called from any thread.

//go:build darwin && cgo

package power

/*
#cgo LDFLAGS: -framework IOKit -framework CoreFoundation
#include <stdint.h>
#include <CoreFoundation/CoreFoundation.h>
#include <IOKit/pwr_mgt/IOPMLib.h>
#include <IOKit/IOMessage.h>

extern void powerhookDeliver(uintptr_t refcon, int kind, uintptr_t id);

// Values must match the Kind constants in message.go.
enum {
	powerhookKindUnknown = 0,
	powerhookKindWillSleep = 1,
	powerhookKindWillPowerOn = 2,
	powerhookKindHasPoweredOn = 3,
	powerhookKindCanSleep = 4,
};

static void powerhookCallback(void *refcon, io_service_t service, natural_t messageType, void *messageArgument) {
	int kind = powerhookKindUnknown;
	switch (messageType) {
	case kIOMessageSystemWillSleep:
		kind = powerhookKindWillSleep;
		break;
	case kIOMessageSystemWillPowerOn:
		kind = powerhookKindWillPowerOn;
		break;
	case kIOMessageSystemHasPoweredOn:
		kind = powerhookKindHasPoweredOn;
		break;
	case kIOMessageCanSystemSleep:
		kind = powerhookKindCanSleep;
		break;
	}
	powerhookDeliver((uintptr_t)refcon, kind, (uintptr_t)messageArgument);
}

static io_connect_t powerhookRegister(uintptr_t refcon, IONotificationPortRef *port, io_object_t *notifier) {
	return IORegisterForSystemPower((void *)refcon, port, powerhookCallback, notifier);
}

static IOReturn powerhookAllow(io_connect_t root, uintptr_t id) {
	return IOAllowPowerChange(root, (intptr_t)id);
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// ///////////////////////////////////////////////
// Service
// ///////////////////////////////////////////////

// iokitService registers with the IOKit root power domain.
type iokitService struct {
	log *slog.Logger
}

// NewSystemService returns the IOKit-backed [Service].
func NewSystemService(log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &iokitService{log: log.With("component", "iokit")}
}

// Register calls IORegisterForSystemPower and starts the CFRunLoop thread
// that services the notification port.
func (s *iokitService) Register(context.Context) (Handle, Port, Listener, error) {
	port := newChanPort(4)
	id := registerPort(port)

	var notifyPort C.IONotificationPortRef
	var notifier C.io_object_t
	root := C.powerhookRegister(C.uintptr_t(id), &notifyPort, &notifier)
	if root == 0 {
		unregisterPort(id)
		return nil, nil, nil, errors.New("IORegisterForSystemPower returned a null connection")
	}

	source := C.IONotificationPortGetRunLoopSource(notifyPort)
	started := make(chan C.CFRunLoopRef)
	loopDone := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(loopDone)

		rl := C.CFRunLoopGetCurrent()
		C.CFRunLoopAddSource(rl, source, C.kCFRunLoopCommonModes)
		started <- rl
		C.CFRunLoopRun()
	}()

	p := &iokitPort{
		chanPort:   port,
		id:         id,
		notifyPort: notifyPort,
		source:     source,
		runLoop:    <-started,
		loopDone:   loopDone,
	}
	s.log.Debug("registered for system power", "context", id)
	return &iokitHandle{root: root}, p, &iokitListener{notifier: notifier}, nil
}

// darwinKind converts the C-side classification to a [Kind].
func darwinKind(k int) Kind {
	switch k {
	case C.powerhookKindWillSleep:
		return KindWillSleep
	case C.powerhookKindWillPowerOn:
		return KindWillPowerOn
	case C.powerhookKindHasPoweredOn:
		return KindHasPoweredOn
	case C.powerhookKindCanSleep:
		return KindCanSleep
	default:
		return KindUnknown
	}
}

// ///////////////////////////////////////////////
// Handle
// ///////////////////////////////////////////////

// iokitHandle is the root power domain connection.
type iokitHandle struct {
	root C.io_connect_t
}

// Acknowledge calls IOAllowPowerChange for the notification id.
func (h *iokitHandle) Acknowledge(id uintptr) error {
	if ret := C.powerhookAllow(h.root, C.uintptr_t(id)); ret != 0 {
		return fmt.Errorf("IOAllowPowerChange: 0x%x", uint32(ret))
	}
	return nil
}

// Close calls IOServiceClose on the root connection.
func (h *iokitHandle) Close() error {
	if ret := C.IOServiceClose(h.root); ret != 0 {
		return fmt.Errorf("IOServiceClose: 0x%x", uint32(ret))
	}
	return nil
}

// ///////////////////////////////////////////////
// Port
// ///////////////////////////////////////////////

// iokitPort wraps the Go port together with the IONotificationPort and the
// CFRunLoop thread servicing it.
type iokitPort struct {
	*chanPort
	id         uintptr
	notifyPort C.IONotificationPortRef
	source     C.CFRunLoopSourceRef
	runLoop    C.CFRunLoopRef
	loopDone   chan struct{}
}

// Destroy detaches the source, stops the CFRunLoop thread and destroys the
// notification port. The Go port is closed first so a callback blocked in deliver returns and
// the CFRunLoop thread can observe the stop.
func (p *iokitPort) Destroy() error {
	err := p.chanPort.Destroy()
	C.CFRunLoopRemoveSource(p.runLoop, p.source, C.kCFRunLoopCommonModes)
	C.CFRunLoopStop(p.runLoop)
	<-p.loopDone
	C.IONotificationPortDestroy(p.notifyPort)
	unregisterPort(p.id)
	return err
}

// ///////////////////////////////////////////////
// Listener
// ///////////////////////////////////////////////

// iokitListener is the notifier object returned by IORegisterForSystemPower.
type iokitListener struct {
	notifier C.io_object_t
}

// Deregister calls IODeregisterForSystemPower.
func (l *iokitListener) Deregister() error {
	if ret := C.IODeregisterForSystemPower(&l.notifier); ret != 0 {
		return fmt.Errorf("IODeregisterForSystemPower: 0x%x", uint32(ret))
	}
	return nil
}
