// Fallback for platforms without a power notification backend, including
// macOS builds with cgo disabled.

//go:build !linux && !windows && !(darwin && cgo)

package power

import (
	"context"
	"log/slog"
)

// unsupportedService always declines registration.
type unsupportedService struct{}

// NewSystemService returns a [Service] whose Register fails with
// [ErrUnsupported].
func NewSystemService(*slog.Logger) Service {
	return unsupportedService{}
}

// Register returns [ErrUnsupported].
func (unsupportedService) Register(context.Context) (Handle, Port, Listener, error) {
	return nil, nil, nil, ErrUnsupported
}
