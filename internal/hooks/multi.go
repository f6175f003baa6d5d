package hooks

import (
	"context"
	"errors"

	"tools.zach/dev/powerhook/internal/power"
)

// Multi runs each hook in order. Every hook runs even when an earlier one
// fails; the failures are joined.
type Multi []power.Hooks

// NotifySleep implements [power.Hooks].
func (m Multi) NotifySleep(ctx context.Context) error {
	var errs []error
	for _, h := range m {
		if err := h.NotifySleep(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyWake implements [power.Hooks].
func (m Multi) NotifyWake(ctx context.Context) error {
	var errs []error
	for _, h := range m {
		if err := h.NotifyWake(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
