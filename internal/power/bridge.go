// Package power bridges operating-system sleep/wake notifications to
// user-supplied hooks.
//
// A [Bridge] subscribes through a platform [Service], attaches the resulting
// [Port] to a [RunLoop], and blocks in [Bridge.Register] dispatching messages
// until [Bridge.Unregister] tears the subscription down. Will-sleep messages
// are always acknowledged after the sleep hook returns, whatever the hook did,
// so the platform is never left waiting on the process.
package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tools.zach/dev/powerhook/internal/logger"
)

// ///////////////////////////////////////////////
// Bridge
// ///////////////////////////////////////////////

// Bridge owns one power-notification subscription.
type Bridge struct {
	// service is the platform API registrations go through.
	service Service
	// hooks receives sleep and wake notifications.
	hooks Hooks
	// log is the component logger.
	log *slog.Logger

	// mu guards every field below.
	mu sync.Mutex
	// active is true from the start of Register until Unregister completes,
	// rejecting overlapping registrations.
	active bool
	// handle is the service handle of the active registration.
	handle Handle
	// port is the notification channel of the active registration.
	port Port
	// listener is the subscription token of the active registration.
	listener Listener
	// loop is the run loop the active registration blocks in.
	loop *RunLoop
}

// NewBridge creates a Bridge that registers through service and notifies
// hooks. A nil hooks value behaves as no-op hooks; a nil log uses
// [slog.Default].
func NewBridge(service Service, hooks Hooks, log *slog.Logger) *Bridge {
	if hooks == nil {
		hooks = HookFuncs{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		service: service,
		hooks:   hooks,
		log:     log.With("component", "power"),
	}
}

// Register subscribes to power notifications and blocks, dispatching each
// message to the hooks, until [Bridge.Unregister] is called or ctx is done.
//
// If the service declines the subscription, Register logs the failure and
// returns an error wrapping [ErrRegistrationFailed] without entering the loop.
// It returns nil after Unregister, or ctx.Err() after tearing the
// subscription down itself on cancellation.
func (b *Bridge) Register(ctx context.Context) error {
	b.mu.Lock()
	if b.active {
		b.mu.Unlock()
		return ErrAlreadyRegistered
	}
	b.active = true
	b.mu.Unlock()

	handle, port, listener, err := b.service.Register(ctx)
	if err == nil && (handle == nil || port == nil || listener == nil) {
		err = errors.New("service returned an incomplete registration")
	}
	if err != nil {
		b.mu.Lock()
		b.active = false
		b.mu.Unlock()
		b.log.Error("power registration failed", "error", err)
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	loop := NewRunLoop()
	b.mu.Lock()
	b.handle = handle
	b.port = port
	b.listener = listener
	b.loop = loop
	b.mu.Unlock()

	loop.AddSource(port, func(msg Message) {
		b.dispatch(ctx, handle, msg)
	})
	b.log.Info("registered for power notifications")

	if err := loop.Run(ctx); err != nil {
		if uerr := b.Unregister(); uerr != nil && !errors.Is(uerr, ErrNotRegistered) {
			b.log.Warn("teardown after cancellation failed", "error", uerr)
		}
		return err
	}
	return nil
}

// Unregister removes the port from the loop, deregisters the listener, closes
// the service handle, destroys the port and stops the loop, in that order.
// Every step runs even if an earlier one fails; the failures are joined.
//
// Calling Unregister with no active registration, including a second call,
// returns [ErrNotRegistered] and changes nothing.
func (b *Bridge) Unregister() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.loop == nil {
		return ErrNotRegistered
	}

	var errs []error
	b.loop.RemoveSource(b.port)
	if err := b.listener.Deregister(); err != nil {
		errs = append(errs, fmt.Errorf("deregister listener: %w", err))
	}
	if err := b.handle.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close service handle: %w", err))
	}
	if err := b.port.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("destroy notification port: %w", err))
	}
	b.loop.Stop()

	b.handle = nil
	b.port = nil
	b.listener = nil
	b.loop = nil
	b.active = false

	b.log.Info("unregistered from power notifications")
	return errors.Join(errs...)
}

// Registered reports whether a subscription is currently active.
func (b *Bridge) Registered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loop != nil
}

// ///////////////////////////////////////////////
// Dispatch
// ///////////////////////////////////////////////

// dispatch handles one message on the loop goroutine.
func (b *Bridge) dispatch(ctx context.Context, handle Handle, msg Message) {
	switch msg.Kind {
	case KindWillSleep:
		b.log.Info("system will sleep")
		defer b.acknowledge(handle, msg)
		b.runHook(ctx, "sleep", b.hooks.NotifySleep)
	case KindWillPowerOn:
		b.log.Info("system will power on")
		b.runHook(ctx, "wake", b.hooks.NotifyWake)
	case KindHasPoweredOn:
		b.log.Debug("system has powered on")
	case KindCanSleep:
		b.acknowledge(handle, msg)
	default:
		logger.Trace(b.log, "ignoring power message", "kind", msg.Kind.String())
	}
}

// runHook calls fn, logging its error or recovering its panic.
func (b *Bridge) runHook(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("power hook panicked", "hook", name, "panic", r)
		}
	}()

	start := time.Now()
	if err := fn(ctx); err != nil {
		b.log.Warn("power hook failed", "hook", name, "error", err)
		return
	}
	b.log.Debug("power hook completed", "hook", name, "duration", time.Since(start))
}

// acknowledge lets the pending power change for msg proceed.
func (b *Bridge) acknowledge(handle Handle, msg Message) {
	if err := handle.Acknowledge(msg.ID); err != nil {
		b.log.Warn("power change acknowledgment failed", "kind", msg.Kind.String(), "error", err)
		return
	}
	logger.Trace(b.log, "acknowledged power change", "kind", msg.Kind.String(), "id", msg.ID)
}
