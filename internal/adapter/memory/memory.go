// Package memory is an in-process adapter. Every condition is evaluated
// with the reference matcher, so its results define what the other
// backends must return.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

// Name is the registry name of the memory backend.
const Name = "memory"

func init() {
	adapter.Register(Name, func(s adapter.Settings) (adapter.Adapter, error) {
		return New(s), nil
	})
}

// table holds one model's records in insertion order.
type table struct {
	rows   []adapter.Record
	nextID int64
}

// Adapter stores records in maps guarded by a mutex.
type Adapter struct {
	*adapter.Models

	log   *slog.Logger
	codec adapter.Codec

	mu     sync.RWMutex
	tables map[string]*table
}

// New creates an empty memory adapter.
func New(s adapter.Settings) *Adapter {
	return &Adapter{
		Models: adapter.NewModels(Name),
		log:    s.Log(),
		codec:  adapter.Codec{Time: adapter.TimeNative},
		tables: make(map[string]*table),
	}
}

func (a *Adapter) Name() string { return Name }

// IDKind is int: generated identifiers auto-increment from 1.
func (a *Adapter) IDKind() schema.FieldType { return schema.TypeInt }

func (a *Adapter) Connect(ctx context.Context) error { return ctx.Err() }

func (a *Adapter) Define(def *schema.Definition) error {
	def.EnsurePrimaryKey(a.IDKind())
	if _, err := a.Register(def); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tables[def.Name]; !ok {
		a.tables[def.Name] = &table{nextID: 1}
	}
	return nil
}

func (a *Adapter) DefineProperty(model string, field schema.Field) error {
	_, err := a.AddProperty(model, field)
	return err
}

// lookup returns the definition and table for model. Callers hold mu.
func (a *Adapter) lookup(model string) (*schema.Definition, *table, error) {
	def, err := a.Lookup(model)
	if err != nil {
		return nil, nil, err
	}
	return def, a.tables[model], nil
}

func (a *Adapter) Exists(ctx context.Context, model string, id any) (bool, error) {
	n, err := a.Count(ctx, model, condition.Filter(condition.Eq(a.pk(model), id)))
	return n > 0, err
}

func (a *Adapter) Count(ctx context.Context, model string, cond condition.Condition) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, t, err := a.lookup(model)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, row := range t.rows {
		if condition.Matches(row, cond.Where) {
			n++
		}
	}
	return n, nil
}

func (a *Adapter) Create(ctx context.Context, model string, data adapter.Record) (adapter.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insert(model, data)
}

// insert adds a row. Callers hold mu.
func (a *Adapter) insert(model string, data adapter.Record) (adapter.Record, error) {
	def, t, err := a.lookup(model)
	if err != nil {
		return nil, err
	}
	row, err := a.codec.ToDatabase(def, data)
	if err != nil {
		return nil, err
	}
	pk := def.PrimaryKey()
	id, ok := row[pk]
	switch {
	case !ok || id == nil:
		if !def.IsGenerated() {
			return nil, fmt.Errorf("create %s: primary key %q is required", model, pk)
		}
		id = t.nextID
		row[pk] = id
		t.nextID++
	case t.find(pk, id) >= 0:
		return nil, fmt.Errorf("create %s: duplicate primary key %v", model, id)
	default:
		if n, isInt := id.(int64); isInt && n >= t.nextID {
			t.nextID = n + 1
		} else if n, isInt := id.(int); isInt && int64(n) >= t.nextID {
			t.nextID = int64(n) + 1
		}
	}
	t.rows = append(t.rows, row)
	a.log.Debug("memory insert", "model", model, "id", id)
	return maps.Clone(row), nil
}

func (a *Adapter) Save(ctx context.Context, model string, data adapter.Record) (adapter.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	def, t, err := a.lookup(model)
	if err != nil {
		return nil, err
	}
	pk := def.PrimaryKey()
	id := data[pk]
	if id == nil {
		return a.insert(model, data)
	}
	i := t.find(pk, id)
	if i < 0 {
		return a.insert(model, data)
	}
	row, err := a.codec.ToDatabase(def, data)
	if err != nil {
		return nil, err
	}
	row[pk] = t.rows[i][pk]
	t.rows[i] = row
	return maps.Clone(row), nil
}

func (a *Adapter) Find(ctx context.Context, model string, cond condition.Condition) ([]adapter.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	def, t, err := a.lookup(model)
	if err != nil {
		return nil, err
	}
	found := condition.Apply(t.rows, cond, def.PrimaryKey(), def.FieldNames())
	out := make([]adapter.Record, len(found))
	for i, row := range found {
		out[i] = maps.Clone(row)
	}
	return out, nil
}

func (a *Adapter) Update(ctx context.Context, model string, cond condition.Condition, data adapter.Record) ([]adapter.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.update(model, cond, data)
}

// update merges data into every matching row. Callers hold mu.
func (a *Adapter) update(model string, cond condition.Condition, data adapter.Record) ([]adapter.Record, error) {
	def, t, err := a.lookup(model)
	if err != nil {
		return nil, err
	}
	patch, err := a.codec.ToDatabase(def, data)
	if err != nil {
		return nil, err
	}
	pk := def.PrimaryKey()
	delete(patch, pk)

	var out []adapter.Record
	for i, row := range t.rows {
		if !condition.Matches(row, cond.Where) {
			continue
		}
		maps.Copy(t.rows[i], patch)
		out = append(out, maps.Clone(row))
	}
	return out, nil
}

func (a *Adapter) UpdateOrCreate(ctx context.Context, model string, cond condition.Condition, data adapter.Record) ([]adapter.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	updated, err := a.update(model, cond, data)
	if err != nil || len(updated) > 0 {
		return updated, err
	}
	rec, err := a.insert(model, adapter.SeedFromWhere(cond.Where, data))
	if err != nil {
		return nil, err
	}
	return []adapter.Record{rec}, nil
}

func (a *Adapter) Remove(ctx context.Context, model string, cond condition.Condition) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, t, err := a.lookup(model)
	if err != nil {
		return false, err
	}
	kept := t.rows[:0]
	removed := 0
	for _, row := range t.rows {
		if condition.Matches(row, cond.Where) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return removed > 0, nil
}

func (a *Adapter) RemoveByID(ctx context.Context, model string, id any) (bool, error) {
	return a.Remove(ctx, model, condition.Filter(condition.Eq(a.pk(model), id)))
}

func (a *Adapter) RemoveAll(ctx context.Context, model string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, t, err := a.lookup(model)
	if err != nil {
		return err
	}
	t.rows = nil
	return nil
}

// EnsureIndex only checks the model exists; scans are always linear.
func (a *Adapter) EnsureIndex(ctx context.Context, model string, idx schema.Index) error {
	_, err := a.Lookup(model)
	return err
}

func (a *Adapter) Close(ctx context.Context) error { return nil }

func (a *Adapter) pk(model string) string {
	if def, err := a.Lookup(model); err == nil {
		return def.PrimaryKey()
	}
	return ""
}

func (t *table) find(pk string, id any) int {
	for i, row := range t.rows {
		if condition.Equal(row[pk], id) {
			return i
		}
	}
	return -1
}
