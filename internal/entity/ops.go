package entity

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/query"
)

// Create builds an entity from data, validates it and persists it. When
// validation fails the entity still reflects the stored record, but its
// primary key is cleared and Errors lists the failures.
func (m *Model) Create(ctx context.Context, data adapter.Record) (*Entity, error) {
	if m.deferred(ctx, "create", func(ctx context.Context) error {
		_, err := m.Create(ctx, data)
		return err
	}) {
		return nil, ErrDeferred
	}
	e := m.newEntity(ctx, data, false)
	if err := m.create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateEntity persists e. An entity whose primary keys are all set is
// stored as-is without validation; otherwise it is created like Create.
func (m *Model) CreateEntity(ctx context.Context, e *Entity) (*Entity, error) {
	if m.deferred(ctx, "create", func(ctx context.Context) error {
		_, err := m.CreateEntity(ctx, e)
		return err
	}) {
		return nil, ErrDeferred
	}
	if !e.hasKeys() {
		fresh := m.newEntity(ctx, e.ToObject(), false)
		if err := m.create(ctx, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}

	m.fire(ctx, BeforeCreate, e, nil)
	rec, err := m.adapter().Create(ctx, m.Name(), e.ToObject())
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", m.Name(), err)
	}
	out := m.newEntity(ctx, rec, false)
	m.fire(ctx, AfterCreate, out, nil)
	return out, nil
}

// create validates e, stores it and refreshes e from the stored record.
func (m *Model) create(ctx context.Context, e *Entity) error {
	valid, err := e.validate(ctx)
	if err != nil {
		return err
	}
	m.fire(ctx, BeforeCreate, e, nil)
	rec, err := m.adapter().Create(ctx, m.Name(), e.ToObject())
	if err != nil {
		return fmt.Errorf("create %s: %w", m.Name(), err)
	}
	e.commit(rec)
	if !valid {
		for _, pk := range m.def.PrimaryKeys() {
			e.data[pk.Field] = nil
		}
	}
	m.fire(ctx, AfterCreate, e, nil)
	return nil
}

// Find returns the entities matching cond. With a projection the entities
// only know the projected fields.
func (m *Model) Find(ctx context.Context, cond condition.Condition) ([]*Entity, error) {
	if m.deferred(ctx, "find", func(ctx context.Context) error {
		_, err := m.Find(ctx, cond)
		return err
	}) {
		return nil, ErrDeferred
	}
	recs, err := m.adapter().Find(ctx, m.Name(), cond)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", m.Name(), err)
	}
	return m.wrap(ctx, recs, !cond.Fields.IsEmpty()), nil
}

// FindOne returns the first entity matching cond, or nil.
func (m *Model) FindOne(ctx context.Context, cond condition.Condition) (*Entity, error) {
	cond = cond.Clone()
	cond.Limit = 1
	found, err := m.Find(ctx, cond)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// FindByID returns the entity with the given primary key, or nil. id is a
// scalar key or a map holding one or more primary-key fields.
func (m *Model) FindByID(ctx context.Context, id any) (*Entity, error) {
	w, err := m.idWhere(id)
	if err != nil {
		return nil, err
	}
	return m.FindOne(ctx, condition.Filter(w))
}

// Exists reports whether a record with the given primary key exists.
func (m *Model) Exists(ctx context.Context, id any) (bool, error) {
	if m.deferred(ctx, "exists", func(ctx context.Context) error {
		_, err := m.Exists(ctx, id)
		return err
	}) {
		return false, ErrDeferred
	}
	if keys, ok := id.(map[string]any); ok {
		w, err := m.idWhere(keys)
		if err != nil {
			return false, err
		}
		n, err := m.Count(ctx, condition.Filter(w))
		return n > 0, err
	}
	if id == nil {
		return false, fmt.Errorf("%s.Exists requires an id", m.Name())
	}
	ok, err := m.adapter().Exists(ctx, m.Name(), id)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", m.Name(), err)
	}
	return ok, nil
}

// Count returns the number of records matching cond.
func (m *Model) Count(ctx context.Context, cond condition.Condition) (int, error) {
	if m.deferred(ctx, "count", func(ctx context.Context) error {
		_, err := m.Count(ctx, cond)
		return err
	}) {
		return 0, ErrDeferred
	}
	n, err := m.adapter().Count(ctx, m.Name(), cond)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", m.Name(), err)
	}
	return n, nil
}

// Update applies data to every record matching cond and returns the
// updated entities.
func (m *Model) Update(ctx context.Context, cond condition.Condition, data adapter.Record) ([]*Entity, error) {
	if m.deferred(ctx, "update", func(ctx context.Context) error {
		_, err := m.Update(ctx, cond, data)
		return err
	}) {
		return nil, ErrDeferred
	}
	m.fire(ctx, BeforeUpdate, nil, nil)
	recs, err := m.adapter().Update(ctx, m.Name(), cond, data)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", m.Name(), err)
	}
	out := m.wrap(ctx, recs, false)
	m.fire(ctx, AfterUpdate, nil, out)
	return out, nil
}

// UpdateOrCreate updates the records matching cond, or creates one from
// the equality terms of cond overlaid with data when none match.
func (m *Model) UpdateOrCreate(ctx context.Context, cond condition.Condition, data adapter.Record) ([]*Entity, error) {
	if m.deferred(ctx, "updateOrCreate", func(ctx context.Context) error {
		_, err := m.UpdateOrCreate(ctx, cond, data)
		return err
	}) {
		return nil, ErrDeferred
	}
	recs, err := m.adapter().UpdateOrCreate(ctx, m.Name(), cond, data)
	if err != nil {
		return nil, fmt.Errorf("update or create %s: %w", m.Name(), err)
	}
	return m.wrap(ctx, recs, false), nil
}

// Remove deletes the records matching cond and reports whether any were
// deleted.
func (m *Model) Remove(ctx context.Context, cond condition.Condition) (bool, error) {
	if m.deferred(ctx, "remove", func(ctx context.Context) error {
		_, err := m.Remove(ctx, cond)
		return err
	}) {
		return false, ErrDeferred
	}
	m.fire(ctx, BeforeRemove, nil, nil)
	removed, err := m.adapter().Remove(ctx, m.Name(), cond)
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", m.Name(), err)
	}
	m.fire(ctx, AfterRemove, nil, removed)
	return removed, nil
}

// RemoveByID deletes the record with the given primary key.
func (m *Model) RemoveByID(ctx context.Context, id any) (bool, error) {
	w, err := m.idWhere(id)
	if err != nil {
		return false, err
	}
	return m.Remove(ctx, condition.Filter(w))
}

// RemoveAll deletes every record of the model.
func (m *Model) RemoveAll(ctx context.Context) error {
	if m.deferred(ctx, "removeAll", m.RemoveAll) {
		return ErrDeferred
	}
	m.fire(ctx, BeforeRemove, nil, nil)
	if err := m.adapter().RemoveAll(ctx, m.Name()); err != nil {
		return fmt.Errorf("remove all %s: %w", m.Name(), err)
	}
	m.fire(ctx, AfterRemove, nil, true)
	return nil
}

// Query returns a builder whose Exec runs Find.
func (m *Model) Query() *query.Builder[[]*Entity] { return query.New(m.Find) }

// QueryOne returns a builder whose Exec runs FindOne.
func (m *Model) QueryOne() *query.Builder[*Entity] { return query.New(m.FindOne) }

// QueryCount returns a builder whose Exec runs Count.
func (m *Model) QueryCount() *query.Builder[int] { return query.New(m.Count) }

// QueryRemove returns a builder whose Exec runs Remove.
func (m *Model) QueryRemove() *query.Builder[bool] { return query.New(m.Remove) }

// idWhere builds the primary-key filter for a scalar id or a key map.
func (m *Model) idWhere(id any) (condition.Where, error) {
	if id == nil {
		return condition.Where{}, fmt.Errorf("%s: id is required", m.Name())
	}
	keys, ok := id.(map[string]any)
	if !ok {
		return condition.Eq(m.def.PrimaryKey(), id), nil
	}
	var w condition.Where
	for _, pk := range m.def.PrimaryKeys() {
		if v, ok := keys[pk.Field]; ok && v != nil {
			w.Set(pk.Field, condition.Equals{Value: v})
		}
	}
	if w.IsEmpty() {
		return condition.Where{}, fmt.Errorf("%s: id map has no primary key field", m.Name())
	}
	return w, nil
}

func (m *Model) wrap(ctx context.Context, recs []adapter.Record, partial bool) []*Entity {
	out := make([]*Entity, len(recs))
	for i, rec := range recs {
		out[i] = m.newEntity(ctx, rec, partial)
	}
	return out
}

// lookupIDs returns the primary keys of records whose field equals value.
func (m *Model) lookupIDs(ctx context.Context, field string, value any) ([]any, error) {
	pk := m.def.PrimaryKey()
	cond := condition.Filter(condition.Eq(field, value))
	cond.Fields = condition.Projection{Include: []string{pk}}
	recs, err := m.adapter().Find(ctx, m.Name(), cond)
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(recs))
	for i, rec := range recs {
		ids[i] = rec[pk]
	}
	return ids, nil
}

func cloneRecord(r adapter.Record) adapter.Record {
	if r == nil {
		return adapter.Record{}
	}
	return maps.Clone(r)
}
