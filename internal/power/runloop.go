package power

import (
	"context"
	"sync"
)

// ///////////////////////////////////////////////
// RunLoop
// ///////////////////////////////////////////////

// RunLoop serializes port callbacks onto the goroutine blocked in
// [RunLoop.Run]. Sources feed it through forwarder goroutines; callbacks
// never run concurrently with each other.
type RunLoop struct {
	// tasks carries callbacks from forwarders to the loop goroutine. It is
	// unbuffered so a forwarder waits until the loop picks its message up.
	tasks chan func()
	// stop is closed by [RunLoop.Stop].
	stop chan struct{}
	// stopOnce makes [RunLoop.Stop] idempotent.
	stopOnce sync.Once

	// mu guards sources.
	mu sync.Mutex
	// sources maps each attached port to the quit channel of its forwarder.
	sources map[Port]chan struct{}
}

// NewRunLoop returns a loop with no sources attached.
func NewRunLoop() *RunLoop {
	return &RunLoop{
		tasks:   make(chan func()),
		stop:    make(chan struct{}),
		sources: make(map[Port]chan struct{}),
	}
}

// AddSource attaches p to the loop. Each message from p is handed to fn on
// the loop goroutine. Adding the same port twice is a no-op. Port values must
// be comparable.
func (l *RunLoop) AddSource(p Port, fn func(Message)) {
	l.mu.Lock()
	if _, ok := l.sources[p]; ok {
		l.mu.Unlock()
		return
	}
	quit := make(chan struct{})
	l.sources[p] = quit
	l.mu.Unlock()

	go l.forward(p.Messages(), quit, fn)
}

// RemoveSource detaches p. Messages already read from p but not yet run are
// dropped.
func (l *RunLoop) RemoveSource(p Port) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if quit, ok := l.sources[p]; ok {
		close(quit)
		delete(l.sources, p)
	}
}

// Stop signals [RunLoop.Run] to return. Safe to call from any goroutine and
// more than once.
func (l *RunLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Stopped returns a channel that is closed once [RunLoop.Stop] has been called.
func (l *RunLoop) Stopped() <-chan struct{} {
	return l.stop
}

// Run processes callbacks until [RunLoop.Stop] is called or ctx is done. It
// returns nil after Stop and ctx.Err() on cancellation.
func (l *RunLoop) Run(ctx context.Context) error {
	for {
		select {
		case <-l.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case task := <-l.tasks:
			task()
		}
	}
}

// forward moves messages from one source onto the loop until the source is
// removed, the loop stops, or the source channel closes.
func (l *RunLoop) forward(msgs <-chan Message, quit <-chan struct{}, fn func(Message)) {
	for {
		select {
		case <-quit:
			return
		case <-l.stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			task := func() {
				select {
				case <-quit:
					return
				default:
				}
				fn(msg)
			}
			select {
			case l.tasks <- task:
			case <-quit:
				return
			case <-l.stop:
				return
			}
		}
	}
}
