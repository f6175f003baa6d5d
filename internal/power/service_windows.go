// Windows power notifications through PowerRegisterSuspendResumeNotification.
//
// The callback form of the API needs no window or message pump. Windows does
// not wait for an acknowledgment before suspending, so Acknowledge is a no-op
// and the sleep hook races the suspend.

//go:build windows

package power

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ///////////////////////////////////////////////
// Win32 Declarations
// ///////////////////////////////////////////////

var (
	modpowrprof = windows.NewLazySystemDLL("powrprof.dll")

	procPowerRegisterSuspendResumeNotification   = modpowrprof.NewProc("PowerRegisterSuspendResumeNotification")
	procPowerUnregisterSuspendResumeNotification = modpowrprof.NewProc("PowerUnregisterSuspendResumeNotification")
)

const (
	// deviceNotifyCallback selects DEVICE_NOTIFY_SUBSCRIBE_PARAMETERS as
	// the recipient.
	deviceNotifyCallback = 2

	pbtAPMSuspend         = 0x4
	pbtAPMResumeSuspend   = 0x7
	pbtAPMResumeAutomatic = 0x12
)

// deviceNotifySubscribeParameters mirrors DEVICE_NOTIFY_SUBSCRIBE_PARAMETERS.
type deviceNotifySubscribeParameters struct {
	callback uintptr
	context  uintptr
}

// The callback trampoline is created once; windows.NewCallback slots are a
// limited, never-freed resource.
var (
	callbackOnce sync.Once
	callbackPtr  uintptr
)

// powerCallback is DeviceNotifyCallbackRoutine. ctx is the registry id of
// the receiving port.
func powerCallback(ctx, typ, _ uintptr) uintptr {
	p := lookupPort(ctx)
	if p == nil {
		return 0
	}
	var kind Kind
	switch typ {
	case pbtAPMSuspend:
		kind = KindWillSleep
	case pbtAPMResumeAutomatic:
		kind = KindWillPowerOn
	case pbtAPMResumeSuspend:
		kind = KindHasPoweredOn
	default:
		kind = KindUnknown
	}
	p.deliver(Message{Kind: kind, ID: typ})
	return 0
}

// ///////////////////////////////////////////////
// Service
// ///////////////////////////////////////////////

// suspendResumeService registers with powrprof.
type suspendResumeService struct {
	log *slog.Logger
}

// NewSystemService returns the powrprof-backed [Service].
func NewSystemService(log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &suspendResumeService{log: log.With("component", "powrprof")}
}

// Register subscribes to suspend/resume notifications.
func (s *suspendResumeService) Register(context.Context) (Handle, Port, Listener, error) {
	if err := procPowerRegisterSuspendResumeNotification.Find(); err != nil {
		return nil, nil, nil, fmt.Errorf("load PowerRegisterSuspendResumeNotification: %w", err)
	}
	callbackOnce.Do(func() {
		callbackPtr = windows.NewCallback(powerCallback)
	})

	port := newChanPort(4)
	id := registerPort(port)

	l := &suspendResumeListener{
		id:     id,
		params: &deviceNotifySubscribeParameters{callback: callbackPtr, context: id},
	}
	r, _, _ := procPowerRegisterSuspendResumeNotification.Call(
		deviceNotifyCallback,
		uintptr(unsafe.Pointer(l.params)),
		uintptr(unsafe.Pointer(&l.registration)),
	)
	if r != 0 {
		unregisterPort(id)
		return nil, nil, nil, fmt.Errorf("PowerRegisterSuspendResumeNotification: %w", windows.Errno(r))
	}
	s.log.Debug("suspend/resume notification registered", "context", id)
	return suspendResumeHandle{}, port, l, nil
}

// ///////////////////////////////////////////////
// Handle and Listener
// ///////////////////////////////////////////////

// suspendResumeHandle has nothing to hold open; the registration itself is
// the listener.
type suspendResumeHandle struct{}

// Acknowledge is a no-op on Windows.
func (suspendResumeHandle) Acknowledge(uintptr) error { return nil }

// Close is a no-op on Windows.
func (suspendResumeHandle) Close() error { return nil }

// suspendResumeListener owns the HPOWERNOTIFY registration.
type suspendResumeListener struct {
	id           uintptr
	params       *deviceNotifySubscribeParameters
	registration uintptr
}

// Deregister unregisters the notification and forgets the port.
func (l *suspendResumeListener) Deregister() error {
	defer unregisterPort(l.id)
	r, _, _ := procPowerUnregisterSuspendResumeNotification.Call(l.registration)
	if r != 0 {
		return fmt.Errorf("PowerUnregisterSuspendResumeNotification: %w", windows.Errno(r))
	}
	return nil
}
