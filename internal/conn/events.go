package conn

import (
	"log/slog"
	"slices"
	"sync"
)

// Event names a connection event.
type Event string

const (
	// EventConnected fires once each time the adapter connects.
	EventConnected Event = "connected"
	// EventError fires when connecting fails.
	EventError Event = "error"
	// EventLog fires for every adapter log record.
	EventLog Event = "log"
)

// Notice is the payload delivered to listeners.
type Notice struct {
	Event Event
	// Err is set for EventError.
	Err error
	// Message and Attrs are set for EventLog.
	Message string
	Attrs   []slog.Attr
}

// Listener receives notices. Listeners run on the emitting goroutine and
// must not block.
type Listener func(Notice)

type listener struct {
	fn   Listener
	once bool
}

// emitter is a minimal thread-safe event emitter.
type emitter struct {
	mu        sync.Mutex
	listeners map[Event][]*listener
}

func (e *emitter) add(ev Event, fn Listener, once bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[Event][]*listener)
	}
	l := &listener{fn: fn, once: once}
	e.listeners[ev] = append(e.listeners[ev], l)
	return func() { e.remove(ev, l) }
}

func (e *emitter) remove(ev Event, l *listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[ev] = slices.DeleteFunc(e.listeners[ev], func(x *listener) bool { return x == l })
}

// take returns the listeners for ev and drops the one-shot ones.
func (e *emitter) take(ev Event) []*listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.listeners[ev]) == 0 {
		return nil
	}
	current := slices.Clone(e.listeners[ev])
	e.listeners[ev] = slices.DeleteFunc(e.listeners[ev], func(x *listener) bool { return x.once })
	return current
}

func (e *emitter) emit(n Notice) {
	for _, l := range e.take(n.Event) {
		l.fn(n)
	}
}

func (e *emitter) count(ev Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[ev])
}
