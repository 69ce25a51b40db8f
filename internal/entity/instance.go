package entity

import (
	"context"
	"fmt"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/validation"
)

// Validate runs the model's rules and records the failures in Errors. A
// model without rules always validates. The error is non-nil only when a
// rule could not be evaluated.
func (e *Entity) Validate(ctx context.Context) (bool, error) {
	return e.validate(ctx)
}

func (e *Entity) validate(ctx context.Context) (bool, error) {
	m := e.model
	m.fire(ctx, BeforeValidate, e, nil)
	res, err := validation.Run(ctx, m.rules, subject{e})
	if err != nil {
		return false, fmt.Errorf("validate %s: %w", m.Name(), err)
	}
	e.errors = res.Errors
	m.fire(ctx, AfterValidate, e, res.Valid)
	return res.Valid, nil
}

// Save stores the entity. With every primary key set the record is
// upserted as-is; otherwise the entity is validated and created.
func (e *Entity) Save(ctx context.Context) error {
	m := e.model
	if m.deferred(ctx, "save", e.Save) {
		return ErrDeferred
	}
	m.fire(ctx, BeforeSave, e, nil)
	if e.hasKeys() {
		rec, err := m.adapter().Save(ctx, m.Name(), e.ToObject())
		if err != nil {
			return fmt.Errorf("save %s: %w", m.Name(), err)
		}
		e.commit(rec)
		e.snapshot()
	} else if err := m.create(ctx, e); err != nil {
		return err
	}
	m.fire(ctx, AfterSave, e, nil)
	return nil
}

// UpdateFields assigns data, validates and writes data by primary key. It
// reports false without writing when validation fails.
func (e *Entity) UpdateFields(ctx context.Context, data adapter.Record) (bool, error) {
	m := e.model
	if m.deferred(ctx, "updateFields", func(ctx context.Context) error {
		_, err := e.UpdateFields(ctx, data)
		return err
	}) {
		return false, ErrDeferred
	}
	for field, v := range data {
		if err := e.Set(field, v); err != nil {
			return false, err
		}
	}
	valid, err := e.validate(ctx)
	if err != nil || !valid {
		return false, err
	}
	if e.IsNew() {
		return true, e.Save(ctx)
	}

	var w condition.Where
	for _, pk := range m.def.PrimaryKeys() {
		w.Set(pk.Field, condition.Equals{Value: e.data[pk.Field]})
	}
	updated, err := m.Update(ctx, condition.Filter(w), data)
	if err != nil {
		return false, err
	}
	if len(updated) > 0 {
		e.commit(updated[0].data)
	}
	for field := range data {
		e.was[field] = e.data[field]
	}
	return true, nil
}

// subject exposes an entity to the validation engine.
type subject struct{ e *Entity }

func (s subject) Get(field string) (any, bool) {
	v, ok := s.e.data[field]
	return v, ok
}

func (s subject) PrimaryKey() any { return s.e.ID() }

func (s subject) Method(name string) (func() bool, bool) {
	fn, ok := s.e.model.methods[name]
	if !ok {
		return nil, false
	}
	return func() bool { return fn(s.e) }, true
}

func (s subject) Lookup(ctx context.Context, field string, value any) ([]any, error) {
	return s.e.model.lookupIDs(ctx, field, value)
}
