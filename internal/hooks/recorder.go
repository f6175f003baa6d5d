package hooks

import (
	"context"
	"time"

	"tools.zach/dev/powerhook/internal/state"
)

// Recorder writes each event to state.json.
type Recorder struct {
	store *state.Store
	now   func() time.Time
}

// NewRecorder returns a Recorder that updates store.
func NewRecorder(store *state.Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// NotifySleep implements [power.Hooks].
func (r *Recorder) NotifySleep(ctx context.Context) error {
	return r.record(ctx, EventSleep)
}

// NotifyWake implements [power.Hooks].
func (r *Recorder) NotifyWake(ctx context.Context) error {
	return r.record(ctx, EventWake)
}

func (r *Recorder) record(ctx context.Context, event string) error {
	id := eventIDOrNew(ctx)
	at := r.now().UTC()
	_, err := r.store.Update(func(s *state.State) {
		s.Record(event, id, at)
	})
	return err
}
