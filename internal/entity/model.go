// Package entity maps adapter records to live entities.
//
// A Model binds a definition to a connection and exposes the model-wide
// operations (Create, Find, Update, Remove, ...). Every operation checks
// the connection first: before the connection is up the call is parked
// and replayed once EventConnected fires, and the first call returns
// ErrDeferred with no result.
//
// An Entity holds current values and the last-persisted snapshot. The
// snapshot matches the current values after construction and after every
// successful persistence call.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/conn"
	"github.com/roach88/caminte/internal/schema"
	"github.com/roach88/caminte/internal/validation"
)

// ErrDeferred is returned by operations issued before the connection is
// ready. The operation runs again, once, after the connection connects;
// its outcome is only logged.
var ErrDeferred = errors.New("entity: connection not ready, operation deferred")

// ErrUnknownField is returned when setting a field the model does not
// declare.
var ErrUnknownField = errors.New("entity: unknown field")

// ErrUnsavedOwner is returned by one-to-many operations on an owner that
// has no primary key yet.
var ErrUnsavedOwner = errors.New("entity: relation owner is not saved")

// Model is a definition bound to a connection.
type Model struct {
	conn    *conn.Connection
	def     *schema.Definition
	rules   []validation.Rule
	hooks   hooks
	methods map[string]func(*Entity) bool
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithRules appends validation rules after those declared on the
// definition.
func WithRules(rules ...validation.Rule) ModelOption {
	return func(m *Model) { m.rules = append(m.rules, rules...) }
}

// WithHook registers fn for h, replacing any earlier callback.
func WithHook(h Hook, fn HookFunc) ModelOption {
	return func(m *Model) { m.hooks[h] = fn }
}

// WithMethod registers a named predicate usable as a validation guard.
func WithMethod(name string, fn func(*Entity) bool) ModelOption {
	return func(m *Model) { m.methods[name] = fn }
}

// Define binds def to c and registers it with the adapter.
func Define(c *conn.Connection, def *schema.Definition, opts ...ModelOption) (*Model, error) {
	rules, err := validation.FromSpecs(def.Validations())
	if err != nil {
		return nil, fmt.Errorf("define %s: %w", def.Name, err)
	}
	m := &Model{
		conn:    c,
		def:     def,
		rules:   rules,
		methods: make(map[string]func(*Entity) bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := c.Define(def, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the model name.
func (m *Model) Name() string { return m.def.Name }

// Definition returns the model definition.
func (m *Model) Definition() *schema.Definition { return m.def }

// Connection returns the connection the model is bound to.
func (m *Model) Connection() *conn.Connection { return m.conn }

// Rules returns the validation rules in evaluation order.
func (m *Model) Rules() []validation.Rule { return m.rules }

func (m *Model) adapter() adapter.Adapter { return m.conn.Adapter() }

func (m *Model) log() *slog.Logger { return m.conn.Logger().With("model", m.def.Name) }

// DefineProperty adds a field to the model.
func (m *Model) DefineProperty(f schema.Field) error {
	return m.conn.ExtendModel(m.def.Name, f)
}

// FieldType returns the declared type of field, or "" when undeclared.
func (m *Model) FieldType(field string) schema.FieldType {
	if f, ok := m.def.Field(field); ok {
		return f.Type
	}
	return ""
}

// deferred parks op until the connection is ready and reports whether it
// did. A replayed op that fails is logged.
func (m *Model) deferred(ctx context.Context, action string, op func(ctx context.Context) error) bool {
	ctx = context.WithoutCancel(ctx)
	parked := m.conn.Defer(func() {
		if err := op(ctx); err != nil {
			m.log().Error("deferred operation failed", "action", action, "error", err)
		}
	})
	if parked {
		m.log().Debug("operation deferred until connected", "action", action)
	}
	return parked
}

// lookup returns the model of another definition on the same connection.
func (m *Model) lookup(name string) (*Model, error) {
	other, ok := m.conn.Model(name)
	if !ok {
		return nil, fmt.Errorf("model %s is not defined", name)
	}
	target, ok := other.(*Model)
	if !ok {
		return nil, fmt.Errorf("model %s is not an entity model", name)
	}
	return target, nil
}
