package power

import "sync"

// ///////////////////////////////////////////////
// Channel Port
// ///////////////////////////////////////////////

// chanPort is the [Port] the platform services deliver into. Platform
// callbacks may run on OS threads; they only ever call deliver.
type chanPort struct {
	msgs chan Message
	done chan struct{}
	once sync.Once
}

// newChanPort returns a port whose message channel holds up to buf pending
// messages.
func newChanPort(buf int) *chanPort {
	return &chanPort{
		msgs: make(chan Message, buf),
		done: make(chan struct{}),
	}
}

// Messages implements [Port].
func (p *chanPort) Messages() <-chan Message { return p.msgs }

// Destroy implements [Port]. It is idempotent.
func (p *chanPort) Destroy() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// deliver sends m unless the port has been destroyed. It blocks while the
// buffer is full and reports whether m was sent.
func (p *chanPort) deliver(m Message) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.msgs <- m:
		return true
	case <-p.done:
		return false
	}
}

// ///////////////////////////////////////////////
// Port Registry
// ///////////////////////////////////////////////

// Platform callbacks receive an integer context rather than a Go pointer.
// The registry maps that context back to the live port.
var registry struct {
	mu    sync.Mutex
	next  uintptr
	ports map[uintptr]*chanPort
}

// registerPort stores p and returns the context value identifying it.
func registerPort(p *chanPort) uintptr {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.ports == nil {
		registry.ports = make(map[uintptr]*chanPort)
	}
	registry.next++
	registry.ports[registry.next] = p
	return registry.next
}

// lookupPort returns the port registered under id, or nil.
func lookupPort(id uintptr) *chanPort {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.ports[id]
}

// unregisterPort forgets id.
func unregisterPort(id uintptr) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.ports, id)
}
