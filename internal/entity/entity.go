package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/validation"
)

// Entity is a live instance of a model.
//
// An Entity is not safe for concurrent mutation. Validators read it from
// other goroutines and must not modify it.
type Entity struct {
	model  *Model
	data   adapter.Record
	was    adapter.Record
	errors validation.Errors
}

// New builds an unsaved entity from data, applying defaults.
func (m *Model) New(data adapter.Record) *Entity {
	return m.newEntity(context.Background(), data, false)
}

// newEntity builds an entity. A partial entity (from a projected find)
// only knows the fields present in data.
func (m *Model) newEntity(ctx context.Context, data adapter.Record, partial bool) *Entity {
	e := &Entity{model: m, data: make(adapter.Record, len(data))}
	for _, f := range m.def.Fields() {
		v, present := data[f.Name]
		switch {
		case present:
		case partial:
			continue
		default:
			v, _ = f.DefaultValue()
		}
		if !f.Type.IsPrimitive() {
			v = m.decodeStructured(f.Name, v)
		}
		e.data[f.Name] = v
	}
	e.was = cloneRecord(e.data)
	m.fire(ctx, AfterInitialize, e, nil)
	return e
}

// decodeStructured parses JSON text held by a field of a non-primitive
// type. A parse failure keeps the raw value.
func (m *Model) decodeStructured(field string, v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		m.log().Warn("cannot decode field value", "field", field, "type", m.FieldType(field), "error", err)
		return v
	}
	return decoded
}

// Model returns the entity's model.
func (e *Entity) Model() *Model { return e.model }

// Get returns the current value of field.
func (e *Entity) Get(field string) any { return e.data[field] }

// Set assigns the current value of a declared field.
func (e *Entity) Set(field string, v any) error {
	if !e.model.def.HasField(field) {
		return fmt.Errorf("%w %s.%s", ErrUnknownField, e.model.Name(), field)
	}
	e.data[field] = v
	return nil
}

// Was returns the last-persisted value of field.
func (e *Entity) Was(field string) any { return e.was[field] }

// Changed reports whether field differs from its last-persisted value.
func (e *Entity) Changed(field string) bool {
	return !condition.Equal(e.data[field], e.was[field])
}

// Dirty reports whether any field has unsaved changes.
func (e *Entity) Dirty() bool {
	for field := range e.data {
		if e.Changed(field) {
			return true
		}
	}
	return false
}

// Changes returns the current values of every changed field.
func (e *Entity) Changes() adapter.Record {
	out := adapter.Record{}
	for field, v := range e.data {
		if e.Changed(field) {
			out[field] = v
		}
	}
	return out
}

// ID returns the value of the first primary key.
func (e *Entity) ID() any { return e.data[e.model.def.PrimaryKey()] }

// IsNew reports whether any primary key is unset.
func (e *Entity) IsNew() bool { return !e.hasKeys() }

func (e *Entity) hasKeys() bool {
	for _, pk := range e.model.def.PrimaryKeys() {
		if isEmpty(e.data[pk.Field]) {
			return false
		}
	}
	return true
}

// Errors returns the failures of the latest validation pass.
func (e *Entity) Errors() validation.Errors { return e.errors }

// ToObject returns the known declared fields as a plain record, in
// declaration order when encoded.
func (e *Entity) ToObject() adapter.Record {
	out := make(adapter.Record, len(e.data))
	for _, name := range e.model.def.FieldNames() {
		if v, ok := e.data[name]; ok {
			out[name] = v
		}
	}
	return out
}

func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToObject())
}

func (e *Entity) String() string {
	data, err := json.Marshal(e.ToObject())
	if err != nil {
		return fmt.Sprintf("%s %v", e.model.Name(), e.ToObject())
	}
	return e.model.Name() + " " + string(data)
}

// commit copies a stored record into the current values and the snapshot.
func (e *Entity) commit(rec adapter.Record) {
	for k, v := range rec {
		if !e.model.def.HasField(k) {
			continue
		}
		e.data[k] = v
		e.was[k] = v
	}
}

// snapshot marks every current value as persisted.
func (e *Entity) snapshot() {
	e.was = cloneRecord(e.data)
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}
