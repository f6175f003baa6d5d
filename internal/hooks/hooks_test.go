package hooks

// Tests for the hook combinators: [Multi] ordering and error joining,
// [Swappable] replacement, and event id propagation through [Identified].

import (
	"context"
	"errors"
	"testing"

	"tools.zach/dev/powerhook/internal/power"
)

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// recordingHook appends its name to a shared log on every call.
type recordingHook struct {
	name string
	log  *[]string
	err  error
	ids  []string
}

func (r *recordingHook) NotifySleep(ctx context.Context) error {
	*r.log = append(*r.log, r.name+":sleep")
	r.ids = append(r.ids, EventID(ctx))
	return r.err
}

func (r *recordingHook) NotifyWake(ctx context.Context) error {
	*r.log = append(*r.log, r.name+":wake")
	r.ids = append(r.ids, EventID(ctx))
	return r.err
}

// ///////////////////////////////////////////////
// Multi
// ///////////////////////////////////////////////

func TestMultiRunsAllInOrder(t *testing.T) {
	var calls []string
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	m := Multi{
		&recordingHook{name: "a", log: &calls, err: errA},
		&recordingHook{name: "b", log: &calls},
		&recordingHook{name: "c", log: &calls, err: errC},
	}

	err := m.NotifySleep(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("NotifySleep error = %v, want both failures joined", err)
	}
	want := []string{"a:sleep", "b:sleep", "c:sleep"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestMultiEmpty(t *testing.T) {
	if err := (Multi{}).NotifyWake(context.Background()); err != nil {
		t.Errorf("empty Multi NotifyWake = %v, want nil", err)
	}
}

// ///////////////////////////////////////////////
// Swappable
// ///////////////////////////////////////////////

func TestSwappable(t *testing.T) {
	var calls []string
	s := NewSwappable(&recordingHook{name: "old", log: &calls})

	s.NotifyWake(context.Background())
	s.Swap(&recordingHook{name: "new", log: &calls})
	s.NotifyWake(context.Background())
	s.Swap(nil)
	if err := s.NotifySleep(context.Background()); err != nil {
		t.Errorf("NotifySleep after Swap(nil) = %v, want nil", err)
	}

	want := []string{"old:wake", "new:wake"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestSwappableZeroValue(t *testing.T) {
	var s Swappable
	if err := s.NotifySleep(context.Background()); err != nil {
		t.Errorf("zero Swappable NotifySleep = %v, want nil", err)
	}
	var _ power.Hooks = &s
}

// ///////////////////////////////////////////////
// Event IDs
// ///////////////////////////////////////////////

func TestIdentifiedSharesIDAcrossHooks(t *testing.T) {
	var calls []string
	a := &recordingHook{name: "a", log: &calls}
	b := &recordingHook{name: "b", log: &calls}
	h := Identified{Inner: Multi{a, b}}

	h.NotifySleep(context.Background())
	h.NotifyWake(context.Background())

	if a.ids[0] == "" {
		t.Fatal("no event id in context")
	}
	if a.ids[0] != b.ids[0] {
		t.Errorf("hooks saw different ids %q and %q for one event", a.ids[0], b.ids[0])
	}
	if a.ids[0] == a.ids[1] {
		t.Error("sleep and wake shared an event id")
	}
}

func TestEventIDOrNew(t *testing.T) {
	if got := eventIDOrNew(WithEventID(context.Background(), "fixed")); got != "fixed" {
		t.Errorf("eventIDOrNew = %q, want fixed", got)
	}
	if got := eventIDOrNew(context.Background()); len(got) != 36 {
		t.Errorf("eventIDOrNew without id = %q, want a uuid", got)
	}
	if got := EventID(context.Background()); got != "" {
		t.Errorf("EventID on bare context = %q, want empty", got)
	}
}
