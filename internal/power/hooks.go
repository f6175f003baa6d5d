package power

import "context"

// Hooks receives sleep and wake notifications from a [Bridge]. Both methods
// run synchronously on the bridge's loop goroutine.
type Hooks interface {
	NotifySleep(ctx context.Context) error
	NotifyWake(ctx context.Context) error
}

// HookFuncs adapts a pair of functions to [Hooks]. A nil field is a no-op.
type HookFuncs struct {
	Sleep func(ctx context.Context) error
	Wake  func(ctx context.Context) error
}

// NotifySleep calls f.Sleep if set.
func (f HookFuncs) NotifySleep(ctx context.Context) error {
	if f.Sleep == nil {
		return nil
	}
	return f.Sleep(ctx)
}

// NotifyWake calls f.Wake if set.
func (f HookFuncs) NotifyWake(ctx context.Context) error {
	if f.Wake == nil {
		return nil
	}
	return f.Wake(ctx)
}
