package power

import (
	"context"
	"errors"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

var (
	// ErrRegistrationFailed is returned by [Bridge.Register] when the platform
	// declines the power-management subscription.
	ErrRegistrationFailed = errors.New("power registration failed")

	// ErrAlreadyRegistered is returned when [Bridge.Register] is called while a
	// registration is already active.
	ErrAlreadyRegistered = errors.New("power notifications already registered")

	// ErrNotRegistered is returned by [Bridge.Unregister] when no registration
	// is active, including a second call after a successful teardown.
	ErrNotRegistered = errors.New("power notifications not registered")

	// ErrUnsupported is returned by the system service on platforms without a
	// power notification backend.
	ErrUnsupported = errors.New("power notifications not supported on this platform")
)

// ///////////////////////////////////////////////
// Platform Collaborators
// ///////////////////////////////////////////////

// Handle is the capability reference to the platform power-management service.
type Handle interface {
	// Acknowledge allows the pending power-state change identified by id to
	// proceed.
	Acknowledge(id uintptr) error
	// Close releases the service connection.
	Close() error
}

// Port is the notification channel the platform delivers messages through.
type Port interface {
	// Messages returns the channel of delivered messages. Nothing is sent
	// on it after [Port.Destroy] returns.
	Messages() <-chan Message
	// Destroy tears down the channel.
	Destroy() error
}

// Listener is the token for a registered subscription.
type Listener interface {
	// Deregister cancels the subscription.
	Deregister() error
}

// Service subscribes to platform power notifications. A successful Register
// returns all three of handle, port and listener; on error none of them exist
// and the caller must not release anything.
type Service interface {
	Register(ctx context.Context) (Handle, Port, Listener, error)
}
