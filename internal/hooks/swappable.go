package hooks

import (
	"context"
	"sync/atomic"

	"tools.zach/dev/powerhook/internal/power"
)

// Swappable forwards to a hook set that can be replaced while the bridge is
// running. A notification already in progress finishes on the set it started
// with.
type Swappable struct {
	cur atomic.Pointer[hookSet]
}

// hookSet boxes the interface so it can live in an atomic.Pointer.
type hookSet struct {
	hooks power.Hooks
}

// NewSwappable returns a Swappable holding h.
func NewSwappable(h power.Hooks) *Swappable {
	s := &Swappable{}
	s.Swap(h)
	return s
}

// Swap installs h. A nil h installs no-op hooks.
func (s *Swappable) Swap(h power.Hooks) {
	if h == nil {
		h = power.HookFuncs{}
	}
	s.cur.Store(&hookSet{hooks: h})
}

// Current returns the installed hook set.
func (s *Swappable) Current() power.Hooks {
	if set := s.cur.Load(); set != nil {
		return set.hooks
	}
	return power.HookFuncs{}
}

// NotifySleep implements [power.Hooks].
func (s *Swappable) NotifySleep(ctx context.Context) error {
	return s.Current().NotifySleep(ctx)
}

// NotifyWake implements [power.Hooks].
func (s *Swappable) NotifyWake(ctx context.Context) error {
	return s.Current().NotifyWake(ctx)
}
