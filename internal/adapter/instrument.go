package adapter

import (
	"context"
	"time"

	"github.com/uber-go/tally/v4"

	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

// opMetrics are the counters and timer for one adapter operation.
type opMetrics struct {
	success tally.Counter
	fail    tally.Counter
	latency tally.Timer
}

func newOpMetrics(successScope, failScope, scope tally.Scope, name string) opMetrics {
	return opMetrics{
		success: successScope.Counter(name),
		fail:    failScope.Counter(name),
		latency: scope.Timer(name + "_latency"),
	}
}

func (m opMetrics) record(start time.Time, err error) {
	m.latency.Record(time.Since(start))
	if err != nil {
		m.fail.Inc(1)
		return
	}
	m.success.Inc(1)
}

// Instrumented wraps an adapter with per-operation metrics.
type Instrumented struct {
	Adapter

	connect, exists, count, create, save, find, update,
	updateOrCreate, remove, removeByID, removeAll, ensureIndex opMetrics
}

// Instrument wraps a with success/fail counters and a latency timer per
// operation, tagged with the adapter name.
func Instrument(a Adapter, scope tally.Scope) *Instrumented {
	scope = scope.Tagged(map[string]string{"adapter": a.Name()})
	successScope := scope.Tagged(map[string]string{"result": "success"})
	failScope := scope.Tagged(map[string]string{"result": "fail"})
	m := func(name string) opMetrics { return newOpMetrics(successScope, failScope, scope, name) }
	return &Instrumented{
		Adapter:        a,
		connect:        m("connect"),
		exists:         m("exists"),
		count:          m("count"),
		create:         m("create"),
		save:           m("save"),
		find:           m("find"),
		update:         m("update"),
		updateOrCreate: m("update_or_create"),
		remove:         m("remove"),
		removeByID:     m("remove_by_id"),
		removeAll:      m("remove_all"),
		ensureIndex:    m("ensure_index"),
	}
}

// Unwrap returns the wrapped adapter.
func (i *Instrumented) Unwrap() Adapter { return i.Adapter }

func (i *Instrumented) Connect(ctx context.Context) error {
	start := time.Now()
	err := i.Adapter.Connect(ctx)
	i.connect.record(start, err)
	return err
}

func (i *Instrumented) Exists(ctx context.Context, model string, id any) (bool, error) {
	start := time.Now()
	ok, err := i.Adapter.Exists(ctx, model, id)
	i.exists.record(start, err)
	return ok, err
}

func (i *Instrumented) Count(ctx context.Context, model string, cond condition.Condition) (int, error) {
	start := time.Now()
	n, err := i.Adapter.Count(ctx, model, cond)
	i.count.record(start, err)
	return n, err
}

func (i *Instrumented) Create(ctx context.Context, model string, data Record) (Record, error) {
	start := time.Now()
	rec, err := i.Adapter.Create(ctx, model, data)
	i.create.record(start, err)
	return rec, err
}

func (i *Instrumented) Save(ctx context.Context, model string, data Record) (Record, error) {
	start := time.Now()
	rec, err := i.Adapter.Save(ctx, model, data)
	i.save.record(start, err)
	return rec, err
}

func (i *Instrumented) Find(ctx context.Context, model string, cond condition.Condition) ([]Record, error) {
	start := time.Now()
	recs, err := i.Adapter.Find(ctx, model, cond)
	i.find.record(start, err)
	return recs, err
}

func (i *Instrumented) Update(ctx context.Context, model string, cond condition.Condition, data Record) ([]Record, error) {
	start := time.Now()
	recs, err := i.Adapter.Update(ctx, model, cond, data)
	i.update.record(start, err)
	return recs, err
}

func (i *Instrumented) UpdateOrCreate(ctx context.Context, model string, cond condition.Condition, data Record) ([]Record, error) {
	start := time.Now()
	recs, err := i.Adapter.UpdateOrCreate(ctx, model, cond, data)
	i.updateOrCreate.record(start, err)
	return recs, err
}

func (i *Instrumented) Remove(ctx context.Context, model string, cond condition.Condition) (bool, error) {
	start := time.Now()
	ok, err := i.Adapter.Remove(ctx, model, cond)
	i.remove.record(start, err)
	return ok, err
}

func (i *Instrumented) RemoveByID(ctx context.Context, model string, id any) (bool, error) {
	start := time.Now()
	ok, err := i.Adapter.RemoveByID(ctx, model, id)
	i.removeByID.record(start, err)
	return ok, err
}

func (i *Instrumented) RemoveAll(ctx context.Context, model string) error {
	start := time.Now()
	err := i.Adapter.RemoveAll(ctx, model)
	i.removeAll.record(start, err)
	return err
}

func (i *Instrumented) EnsureIndex(ctx context.Context, model string, idx schema.Index) error {
	start := time.Now()
	err := i.Adapter.EnsureIndex(ctx, model, idx)
	i.ensureIndex.record(start, err)
	return err
}
