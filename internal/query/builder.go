// Package query provides a fluent builder for condition.Condition values.
//
// The builder keeps a pending key: Where("age") selects a field without
// emitting a predicate, and the next single-argument operator applies to it.
//
//	q.Where("age").Gt(18)             // {age: {gt: 18}}
//	q.Gt("age", 18)                   // same, field named explicitly
//	q.Where("age").Range(18, 30)      // {age: {gt: 18, lt: 30}}
//	q.Range("age", 18, 30)            // same
//	q.Gt(18)                          // no pending key: no-op
//
// Two-argument calls and every parameter call (Fields, Order, Skip, ...)
// clear the pending key.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/caminte/internal/condition"
)

// PendingKey is either None or Selected(field).
type PendingKey struct {
	field    string
	selected bool
}

// None is the empty pending key.
func None() PendingKey { return PendingKey{} }

// Selected returns a pending key awaiting an operator for field.
func Selected(field string) PendingKey { return PendingKey{field: field, selected: true} }

// Field returns the selected field name.
func (p PendingKey) Field() (string, bool) { return p.field, p.selected }

func (p PendingKey) String() string {
	if !p.selected {
		return "None"
	}
	return fmt.Sprintf("Selected(%s)", p.field)
}

// Runner executes a built condition. Models bind their find, findOne,
// count and remove operations through it.
type Runner[R any] func(ctx context.Context, cond condition.Condition) (R, error)

// ErrNoRunner is returned by Exec on a builder created without a Runner.
var ErrNoRunner = errors.New("query: builder has no bound action")

type params struct {
	fields *condition.Projection
	order  []condition.OrderKey
	skip   *int
	limit  *int
}

// Builder accumulates predicates and parameters. It is not safe for
// concurrent use.
type Builder[R any] struct {
	where   condition.Where
	params  params
	pending PendingKey
	err     error
	run     Runner[R]
}

// New creates a builder whose Exec runs run.
func New[R any](run Runner[R]) *Builder[R] {
	return &Builder[R]{run: run}
}

// From creates a builder seeded with base: its predicates become builder
// predicates and its parameters builder parameters.
func From[R any](base condition.Condition, run Runner[R]) *Builder[R] {
	b := New(run)
	b.where = base.Where.Clone()
	if !base.Fields.IsEmpty() {
		p := base.Fields
		b.params.fields = &p
	}
	b.params.order = append(b.params.order, base.Order...)
	if base.Skip > 0 {
		b.Skip(base.Skip)
	}
	if base.Limit > 0 {
		b.Limit(base.Limit)
	}
	return b
}

// Pending returns the current pending key.
func (b *Builder[R]) Pending() PendingKey { return b.pending }

// Err returns the first misuse recorded since the last Build.
func (b *Builder[R]) Err() error { return b.err }

func (b *Builder[R]) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("query: "+format, args...)
	}
}

// Where with only a field selects it as the pending key. With a value it
// writes an equality predicate and clears the pending key.
func (b *Builder[R]) Where(field string, value ...any) *Builder[R] {
	switch len(value) {
	case 0:
		b.pending = Selected(field)
	case 1:
		b.pending = None()
		b.where.Set(field, condition.Equals{Value: value[0]})
	default:
		b.fail("where %s: expected at most one value, got %d", field, len(value))
	}
	return b
}

// operator implements the one-or-two argument rule shared by all operators.
func (b *Builder[R]) operator(op condition.Op, args []any) *Builder[R] {
	switch len(args) {
	case 1:
		if field, ok := b.pending.Field(); ok {
			b.where.SetOp(field, op, args[0])
			b.pending = None()
		}
	case 2:
		b.pending = None()
		field, ok := args[0].(string)
		if !ok {
			b.fail("%s: field name must be a string, got %T", op, args[0])
			return b
		}
		b.where.SetOp(field, op, args[1])
	default:
		b.fail("%s: expected 1 or 2 arguments, got %d", op, len(args))
	}
	return b
}

// Gt adds a strictly-greater-than term on the pending key, or on a
// leading field argument.
func (b *Builder[R]) Gt(args ...any) *Builder[R] { return b.operator(condition.OpGt, args) }

// Gte adds a greater-or-equal term.
func (b *Builder[R]) Gte(args ...any) *Builder[R] { return b.operator(condition.OpGte, args) }

// Lt adds a strictly-less-than term.
func (b *Builder[R]) Lt(args ...any) *Builder[R] { return b.operator(condition.OpLt, args) }

// Lte adds a less-or-equal term.
func (b *Builder[R]) Lte(args ...any) *Builder[R] { return b.operator(condition.OpLte, args) }

// Ne adds a not-equal term.
func (b *Builder[R]) Ne(args ...any) *Builder[R] { return b.operator(condition.OpNe, args) }

// Neq is an alias of Ne.
func (b *Builder[R]) Neq(args ...any) *Builder[R] { return b.operator(condition.OpNe, args) }

// In adds a membership term over a list of values.
func (b *Builder[R]) In(args ...any) *Builder[R] { return b.operator(condition.OpIn, args) }

// Inq is an alias of In.
func (b *Builder[R]) Inq(args ...any) *Builder[R] { return b.operator(condition.OpIn, args) }

// Nin adds a non-membership term over a list of values.
func (b *Builder[R]) Nin(args ...any) *Builder[R] { return b.operator(condition.OpNin, args) }

// Like adds a pattern term; the pattern is a regular expression.
func (b *Builder[R]) Like(args ...any) *Builder[R] { return b.operator(condition.OpLike, args) }

// Regex is an alias of Like.
func (b *Builder[R]) Regex(args ...any) *Builder[R] { return b.operator(condition.OpLike, args) }

// Nlike adds a negated pattern term.
func (b *Builder[R]) Nlike(args ...any) *Builder[R] { return b.operator(condition.OpNlike, args) }

// Between takes a two-element list of inclusive bounds, preceded by a field
// name when no key is pending.
func (b *Builder[R]) Between(args ...any) *Builder[R] { return b.operator(condition.OpBetween, args) }

// Range sets exclusive bounds {gt: from, lt: to}. Range(from, to) applies to
// the pending key; Range(field, from, to) names the field.
func (b *Builder[R]) Range(args ...any) *Builder[R] {
	switch len(args) {
	case 2:
		if field, ok := b.pending.Field(); ok {
			b.where.SetOp(field, condition.OpGt, args[0])
			b.where.SetOp(field, condition.OpLt, args[1])
			b.pending = None()
		}
	case 3:
		b.pending = None()
		field, ok := args[0].(string)
		if !ok {
			b.fail("range: field name must be a string, got %T", args[0])
			return b
		}
		b.where.SetOp(field, condition.OpGt, args[1])
		b.where.SetOp(field, condition.OpLt, args[2])
	default:
		b.fail("range: expected 2 or 3 arguments, got %d", len(args))
	}
	return b
}

// Or sets the disjunction groups.
func (b *Builder[R]) Or(groups ...condition.Where) *Builder[R] {
	b.where.Or = append(b.where.Or[:0:0], groups...)
	return b
}

// Fields sets the projection, e.g. "name email" or "-password".
func (b *Builder[R]) Fields(spec string) *Builder[R] {
	b.pending = None()
	p := condition.ParseProjection(spec)
	b.params.fields = &p
	return b
}

func (b *Builder[R]) orderBy(key condition.OrderKey) *Builder[R] {
	b.pending = None()
	for i := range b.params.order {
		if b.params.order[i].Field == key.Field {
			b.params.order[i] = key
			return b
		}
	}
	b.params.order = append(b.params.order, key)
	return b
}

// Asc orders by field ascending.
func (b *Builder[R]) Asc(field string) *Builder[R] {
	return b.orderBy(condition.OrderKey{Field: field, Direction: condition.Asc})
}

// Desc orders by field descending.
func (b *Builder[R]) Desc(field string) *Builder[R] {
	return b.orderBy(condition.OrderKey{Field: field, Direction: condition.Desc})
}

// Order adds an ordering key. Without a direction, spec may end in " ASC" or
// " DESC"; a bare field sorts descending.
func (b *Builder[R]) Order(spec string, dir ...condition.Direction) *Builder[R] {
	if len(dir) > 0 {
		d := condition.Asc
		if dir[0] == condition.Desc {
			d = condition.Desc
		}
		return b.orderBy(condition.OrderKey{Field: spec, Direction: d})
	}
	return b.orderBy(condition.ParseOrder(spec))
}

// Skip sets the number of records to skip.
func (b *Builder[R]) Skip(n int) *Builder[R] {
	b.pending = None()
	b.params.skip = &n
	return b
}

// Limit caps the number of records returned.
func (b *Builder[R]) Limit(n int) *Builder[R] {
	b.pending = None()
	b.params.limit = &n
	return b
}

// Slice(limit) sets the limit; Slice(skip, limit) sets both.
func (b *Builder[R]) Slice(n ...int) *Builder[R] {
	switch len(n) {
	case 1:
		return b.Limit(n[0])
	case 2:
		return b.Skip(n[0]).Limit(n[1])
	default:
		b.pending = None()
		b.fail("slice: expected 1 or 2 arguments, got %d", len(n))
		return b
	}
}

// Build merges the accumulated state into base and resets the builder.
// Predicates already present in base win; builder predicates only fill
// fields base does not constrain. Every builder parameter is copied onto the
// result. Misuse recorded since the last Build is returned as an error, and
// the condition is checked with condition.Validate.
func (b *Builder[R]) Build(base condition.Condition) (condition.Condition, error) {
	out := base.Clone()
	out.Where.Merge(b.where)

	if b.params.fields != nil {
		out.Fields = *b.params.fields
	}
	if b.params.order != nil {
		out.Order = append([]condition.OrderKey(nil), b.params.order...)
	}
	if b.params.skip != nil {
		out.Skip = *b.params.skip
	}
	if b.params.limit != nil {
		out.Limit = *b.params.limit
	}

	err := b.err
	b.Reset()

	if err != nil {
		return condition.Condition{}, err
	}
	if err := condition.Validate(out).Err(); err != nil {
		return condition.Condition{}, fmt.Errorf("query: %w", err)
	}
	return out, nil
}

// Reset clears predicates, parameters, the pending key and recorded errors.
func (b *Builder[R]) Reset() {
	b.where = condition.Where{}
	b.params = params{}
	b.pending = None()
	b.err = nil
}

// Exec builds the condition and runs the bound action.
func (b *Builder[R]) Exec(ctx context.Context) (R, error) {
	var zero R
	cond, err := b.Build(condition.Condition{})
	if err != nil {
		return zero, err
	}
	if b.run == nil {
		return zero, ErrNoRunner
	}
	return b.run(ctx, cond)
}
