// Package hooks provides the sleep/wake hook implementations the daemon hands
// to the power bridge: local commands and scripts, webhook notifications and
// the state recorder, plus the combinators that assemble them from config.
package hooks

import (
	"context"

	"github.com/google/uuid"
	"tools.zach/dev/powerhook/internal/power"
	"tools.zach/dev/powerhook/internal/state"
)

// Event names passed to scripts in POWERHOOK_EVENT and sent to webhooks.
const (
	EventSleep = state.EventSleep
	EventWake  = state.EventWake
)

// ///////////////////////////////////////////////
// Event IDs
// ///////////////////////////////////////////////

type eventIDKey struct{}

// WithEventID returns a context carrying id as the current event id.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDKey{}, id)
}

// EventID returns the event id carried by ctx, or "" if there is none.
func EventID(ctx context.Context) string {
	id, _ := ctx.Value(eventIDKey{}).(string)
	return id
}

// eventIDOrNew returns the id in ctx, generating one when absent.
func eventIDOrNew(ctx context.Context) string {
	if id := EventID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// Identified stamps every notification with a fresh event id before passing
// it on, so the webhook and the recorder agree on it.
type Identified struct {
	Inner power.Hooks
}

// NotifySleep implements [power.Hooks].
func (h Identified) NotifySleep(ctx context.Context) error {
	return h.Inner.NotifySleep(WithEventID(ctx, uuid.NewString()))
}

// NotifyWake implements [power.Hooks].
func (h Identified) NotifyWake(ctx context.Context) error {
	return h.Inner.NotifyWake(WithEventID(ctx, uuid.NewString()))
}
