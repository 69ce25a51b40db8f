package sqlcore

import (
	"context"
	"fmt"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/querysql"
	"github.com/roach88/caminte/internal/schema"
)

// prepare resolves the model and a live executor.
func (b *Backend) prepare(ctx context.Context, model string) (*schema.Definition, Executor, error) {
	def, err := b.Lookup(model)
	if err != nil {
		return nil, nil, err
	}
	ex, err := b.conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return def, ex, nil
}

// columnsOf lists the row's columns in declaration order.
func columnsOf(def *schema.Definition, row adapter.Record) ([]string, []any) {
	var cols []string
	var vals []any
	for _, name := range def.FieldNames() {
		if v, ok := row[name]; ok {
			cols = append(cols, name)
			vals = append(vals, v)
		}
	}
	return cols, vals
}

func byIDs(pk string, ids []any) condition.Where {
	return condition.Where{Terms: []condition.Term{{
		Field:      pk,
		Constraint: condition.Ops{{Op: condition.OpIn, Value: ids}},
	}}}
}

func (b *Backend) decodeAll(def *schema.Definition, rows []adapter.Record) []adapter.Record {
	out := make([]adapter.Record, len(rows))
	for i, row := range rows {
		out[i] = b.codec.FromDatabase(def, row)
	}
	return out
}

func (b *Backend) Exists(ctx context.Context, model string, id any) (bool, error) {
	def, err := b.Lookup(model)
	if err != nil {
		return false, err
	}
	n, err := b.Count(ctx, model, condition.Filter(condition.Eq(def.PrimaryKey(), id)))
	return n > 0, err
}

func (b *Backend) Count(ctx context.Context, model string, cond condition.Condition) (int, error) {
	def, ex, err := b.prepare(ctx, model)
	if err != nil {
		return 0, err
	}
	q, args, err := b.sql.Count(model, b.codec.Where(def, cond.Where))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", model, err)
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", model, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch n := rows[0][querysql.CountColumn].(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("count %s: unexpected count type %T", model, n)
	}
}

func (b *Backend) Create(ctx context.Context, model string, data adapter.Record) (adapter.Record, error) {
	def, ex, err := b.prepare(ctx, model)
	if err != nil {
		return nil, err
	}
	row, err := b.codec.ToDatabase(def, data)
	if err != nil {
		return nil, err
	}
	cols, vals := columnsOf(def, row)
	q, args, err := b.sql.Insert(model, cols, vals, true)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", model, err)
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", model, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create %s: no row returned", model)
	}
	return b.codec.FromDatabase(def, rows[0]), nil
}

func (b *Backend) Save(ctx context.Context, model string, data adapter.Record) (adapter.Record, error) {
	def, ex, err := b.prepare(ctx, model)
	if err != nil {
		return nil, err
	}
	pk := def.PrimaryKey()
	if data[pk] == nil {
		return b.Create(ctx, model, data)
	}
	row, err := b.codec.ToDatabase(def, data)
	if err != nil {
		return nil, err
	}
	cols, vals := columnsOf(def, row)
	q, args, err := b.sql.Upsert(model, cols, vals, pk)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", model, err)
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", model, err)
	}
	if len(rows) == 0 {
		// DO NOTHING conflicts return no row.
		found, err := b.find(ctx, ex, def, condition.Filter(condition.Eq(pk, data[pk])))
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("save %s: row %v not returned", model, data[pk])
		}
		return found[0], nil
	}
	return b.codec.FromDatabase(def, rows[0]), nil
}

func (b *Backend) Find(ctx context.Context, model string, cond condition.Condition) ([]adapter.Record, error) {
	def, ex, err := b.prepare(ctx, model)
	if err != nil {
		return nil, err
	}
	return b.find(ctx, ex, def, cond)
}

func (b *Backend) find(ctx context.Context, ex Executor, def *schema.Definition, cond condition.Condition) ([]adapter.Record, error) {
	pk := def.PrimaryKey()
	var cols []string
	for _, name := range cond.Fields.Resolve(pk, def.FieldNames()) {
		if def.HasField(name) {
			cols = append(cols, name)
		}
	}
	c := cond.WithWhere(b.codec.Where(def, cond.Where))
	q, args, err := b.sql.Select(def.Name, cols, c, pk)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", def.Name, err)
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", def.Name, err)
	}
	return b.decodeAll(def, rows), nil
}

// Update writes data to the matched rows, then refetches them by key.
func (b *Backend) Update(ctx context.Context, model string, cond condition.Condition, data adapter.Record) ([]adapter.Record, error) {
	def, ex, err := b.prepare(ctx, model)
	if err != nil {
		return nil, err
	}
	pk := def.PrimaryKey()
	patch, err := b.codec.ToDatabase(def, data)
	if err != nil {
		return nil, err
	}
	delete(patch, pk)

	q, args, err := b.sql.Select(model, []string{pk}, condition.Filter(b.codec.Where(def, cond.Where)), pk)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", model, err)
	}
	matched, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", model, err)
	}
	if len(matched) == 0 {
		return nil, nil
	}
	ids := make([]any, len(matched))
	for i, row := range matched {
		ids[i] = row[pk]
	}

	if len(patch) > 0 {
		cols, vals := columnsOf(def, patch)
		q, args, err = b.sql.Update(model, cols, vals, byIDs(pk, ids))
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", model, err)
		}
		if _, err := ex.Exec(ctx, q, args...); err != nil {
			return nil, fmt.Errorf("update %s: %w", model, err)
		}
	}
	return b.find(ctx, ex, def, condition.Filter(byIDs(pk, ids)))
}

func (b *Backend) UpdateOrCreate(ctx context.Context, model string, cond condition.Condition, data adapter.Record) ([]adapter.Record, error) {
	updated, err := b.Update(ctx, model, cond, data)
	if err != nil || len(updated) > 0 {
		return updated, err
	}
	rec, err := b.Create(ctx, model, adapter.SeedFromWhere(cond.Where, data))
	if err != nil {
		return nil, err
	}
	return []adapter.Record{rec}, nil
}

func (b *Backend) Remove(ctx context.Context, model string, cond condition.Condition) (bool, error) {
	def, ex, err := b.prepare(ctx, model)
	if err != nil {
		return false, err
	}
	q, args, err := b.sql.Delete(model, b.codec.Where(def, cond.Where))
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", model, err)
	}
	n, err := ex.Exec(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", model, err)
	}
	return n > 0, nil
}

func (b *Backend) RemoveByID(ctx context.Context, model string, id any) (bool, error) {
	def, err := b.Lookup(model)
	if err != nil {
		return false, err
	}
	return b.Remove(ctx, model, condition.Filter(condition.Eq(def.PrimaryKey(), id)))
}

func (b *Backend) RemoveAll(ctx context.Context, model string) error {
	_, err := b.Remove(ctx, model, condition.Condition{})
	return err
}

func (b *Backend) EnsureIndex(ctx context.Context, model string, idx schema.Index) error {
	_, ex, err := b.prepare(ctx, model)
	if err != nil {
		return err
	}
	if idx.Name == "" {
		idx.Name = schema.DefaultIndexName(idx.Fields...)
	}
	if _, err := ex.Exec(ctx, b.sql.CreateIndex(model, idx)); err != nil {
		return fmt.Errorf("ensure index %s on %s: %w", idx.Name, model, err)
	}
	return nil
}
