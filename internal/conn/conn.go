// Package conn owns one adapter, the model definitions registered on it and
// the connection state that gates model operations.
//
// Open resolves the backend synchronously and connects in the background.
// Operations issued before the connection is ready are parked with Defer
// and replayed when EventConnected fires.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/uber-go/tally/v4"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/schema"
)

// DefaultConnectTimeout bounds the background connect attempt.
const DefaultConnectTimeout = 30 * time.Second

// Model is a model bound to a connection.
type Model interface {
	Definition() *schema.Definition
}

// Connection is a handle on one backend.
//
// Thread-safety: all methods are safe for concurrent use.
type Connection struct {
	driver  string
	adapter adapter.Adapter
	log     *slog.Logger
	scope   tally.Scope
	timeout time.Duration
	manual  bool

	events emitter

	mu        sync.RWMutex
	connected bool
	err       error
	ready     chan struct{} // closed when the current connect attempt ends
	defs      *schema.Registry
	models    map[string]Model
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger adapters and the connection log to.
func WithLogger(log *slog.Logger) Option {
	return func(c *Connection) { c.log = log }
}

// WithMetrics records per-operation adapter metrics on scope.
func WithMetrics(scope tally.Scope) Option {
	return func(c *Connection) { c.scope = scope }
}

// WithConnectTimeout bounds the background connect attempt.
//
// Default: 30s (DefaultConnectTimeout)
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Connection) { c.timeout = d }
}

// WithManualConnect skips the background connect; the caller calls Connect.
func WithManualConnect() Option {
	return func(c *Connection) { c.manual = true }
}

// Open builds the adapter registered under driver and starts connecting
// in the background. An unknown driver fails here with
// *adapter.UnknownBackendError; connect failures are reported through
// EventError and Err.
func Open(driver string, s adapter.Settings, opts ...Option) (*Connection, error) {
	c := &Connection{
		log:     slog.Default(),
		timeout: DefaultConnectTimeout,
		ready:   make(chan struct{}),
		defs:    schema.NewRegistry(),
		models:  make(map[string]Model),
	}
	if s.Logger != nil {
		c.log = s.Logger
	}
	for _, opt := range opts {
		opt(c)
	}

	s.Logger = slog.New(&logHandler{next: c.log.Handler(), emit: c.events.emit})
	a, err := adapter.Open(driver, s)
	if err != nil {
		return nil, err
	}
	if c.scope != nil {
		a = adapter.Instrument(a, c.scope)
	}
	c.adapter = a
	c.driver = a.Name()
	c.log = c.log.With("driver", c.driver)

	if !c.manual {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			_ = c.Connect(ctx)
		}()
	}
	return c, nil
}

// Connect connects the adapter and fires EventConnected or EventError.
// Calling it on a connected Connection is a no-op.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	select {
	case <-c.ready:
		c.ready = make(chan struct{})
	default:
	}
	ready := c.ready
	c.mu.Unlock()

	err := c.adapter.Connect(ctx)

	c.mu.Lock()
	if err != nil {
		c.err = fmt.Errorf("connect %s: %w", c.driver, err)
		err = c.err
	} else {
		c.connected = true
		c.err = nil
	}
	closeOnce(ready)
	c.mu.Unlock()

	if err != nil {
		c.log.Error("connection failed", "error", err)
		c.events.emit(Notice{Event: EventError, Err: err})
		return err
	}
	c.log.Info("connected")
	c.events.emit(Notice{Event: EventConnected})
	return nil
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Wait blocks until the current connect attempt ends and returns its error.
func (c *Connection) Wait(ctx context.Context) error {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
		return c.Err()
	}
}

// Disconnect closes the adapter. Later operations are deferred until the
// next Connect.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.ready = make(chan struct{})
	c.mu.Unlock()

	if err := c.adapter.Close(ctx); err != nil {
		return fmt.Errorf("disconnect %s: %w", c.driver, err)
	}
	c.log.Info("disconnected")
	return nil
}

// Connected reports whether the adapter is connected.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Err returns the error of the last failed connect attempt.
func (c *Connection) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Driver returns the canonical backend name.
func (c *Connection) Driver() string { return c.driver }

// Adapter returns the backend adapter.
func (c *Connection) Adapter() adapter.Adapter { return c.adapter }

// Logger returns the connection logger.
func (c *Connection) Logger() *slog.Logger { return c.log }

// On registers fn for every ev and returns a function removing it.
func (c *Connection) On(ev Event, fn Listener) func() {
	return c.events.add(ev, fn, false)
}

// Once registers fn for the next ev only.
func (c *Connection) Once(ev Event, fn Listener) func() {
	return c.events.add(ev, fn, true)
}

// Listeners returns the number of listeners registered for ev.
func (c *Connection) Listeners(ev Event) int {
	return c.events.count(ev)
}

// Defer parks fn until the next EventConnected and reports true, or
// reports false without calling fn when the connection is already up.
// Each parked fn runs on its own goroutine; parked operations have no
// ordering between them.
func (c *Connection) Defer(fn func()) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connected {
		return false
	}
	c.events.add(EventConnected, func(Notice) { go fn() }, true)
	return true
}
