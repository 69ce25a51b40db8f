package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caminte/internal/condition"
)

func build(t *testing.T, b *Builder[[]condition.Record]) condition.Condition {
	t.Helper()
	c, err := b.Build(condition.Condition{})
	require.NoError(t, err)
	return c
}

func newBuilder() *Builder[[]condition.Record] {
	return New[[]condition.Record](nil)
}

func opsOf(t *testing.T, c condition.Condition, field string) condition.Ops {
	t.Helper()
	con, ok := c.Where.Get(field)
	require.True(t, ok, "no constraint on %s", field)
	ops, ok := con.(condition.Ops)
	require.True(t, ok, "constraint on %s is %T", field, con)
	return ops
}

func TestPendingKey_Propagation(t *testing.T) {
	tests := []struct {
		name string
		call func(b *Builder[[]condition.Record])
		op   condition.Op
		want any
	}{
		{"gt", func(b *Builder[[]condition.Record]) { b.Gt(18) }, condition.OpGt, 18},
		{"gte", func(b *Builder[[]condition.Record]) { b.Gte(18) }, condition.OpGte, 18},
		{"lt", func(b *Builder[[]condition.Record]) { b.Lt(18) }, condition.OpLt, 18},
		{"lte", func(b *Builder[[]condition.Record]) { b.Lte(18) }, condition.OpLte, 18},
		{"ne", func(b *Builder[[]condition.Record]) { b.Ne(18) }, condition.OpNe, 18},
		{"neq alias", func(b *Builder[[]condition.Record]) { b.Neq(18) }, condition.OpNe, 18},
		{"in", func(b *Builder[[]condition.Record]) { b.In([]any{1, 2}) }, condition.OpIn, []any{1, 2}},
		{"inq alias", func(b *Builder[[]condition.Record]) { b.Inq([]any{1}) }, condition.OpIn, []any{1}},
		{"nin", func(b *Builder[[]condition.Record]) { b.Nin([]any{3}) }, condition.OpNin, []any{3}},
		{"like", func(b *Builder[[]condition.Record]) { b.Like("^a") }, condition.OpLike, "^a"},
		{"regex alias", func(b *Builder[[]condition.Record]) { b.Regex("^a") }, condition.OpLike, "^a"},
		{"nlike", func(b *Builder[[]condition.Record]) { b.Nlike("^a") }, condition.OpNlike, "^a"},
		{"between", func(b *Builder[[]condition.Record]) { b.Between([]any{1, 9}) }, condition.OpBetween, []any{1, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder().Where("age")
			field, ok := b.Pending().Field()
			require.True(t, ok)
			assert.Equal(t, "age", field)

			tt.call(b)
			assert.Equal(t, None(), b.Pending(), "operator must clear the pending key")

			got, ok := opsOf(t, build(t, b), "age").Get(tt.op)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPendingKey_SecondOperatorIsNoOp(t *testing.T) {
	b := newBuilder().Where("age").Gt(18).Lt(30)
	ops := opsOf(t, build(t, b), "age")

	_, hasLt := ops.Get(condition.OpLt)
	assert.False(t, hasLt, "lt after a consumed pending key must not apply")
	assert.Len(t, ops, 1)
}

func TestOperatorWithoutPendingKeyIsNoOp(t *testing.T) {
	c := build(t, newBuilder().Gt(5).Like("x"))
	assert.True(t, c.Where.IsEmpty())
}

func TestTwoArgumentCallClearsPendingKey(t *testing.T) {
	b := newBuilder().Where("age").Gt("score", 10)
	assert.Equal(t, None(), b.Pending())

	c := build(t, b)
	assert.False(t, c.Where.Has("age"))
	v, ok := opsOf(t, c, "score").Get(condition.OpGt)
	require.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestTwoArgumentWhereWritesEquality(t *testing.T) {
	b := newBuilder().Where("age").Where("name", "Al")
	assert.Equal(t, None(), b.Pending())

	c := build(t, b)
	con, ok := c.Where.Get("name")
	require.True(t, ok)
	assert.Equal(t, condition.Equals{Value: "Al"}, con)
	assert.False(t, c.Where.Has("age"))
}

func TestExplicitOperatorsMergeOnSameField(t *testing.T) {
	c := build(t, newBuilder().Gte("age", 18).Lte("age", 30))
	ops := opsOf(t, c, "age")
	assert.Equal(t, condition.Ops{
		{Op: condition.OpGte, Value: 18},
		{Op: condition.OpLte, Value: 30},
	}, ops)
}

func TestRange(t *testing.T) {
	want := condition.Ops{
		{Op: condition.OpGt, Value: 18},
		{Op: condition.OpLt, Value: 30},
	}

	t.Run("pending key", func(t *testing.T) {
		c := build(t, newBuilder().Where("age").Range(18, 30))
		assert.Equal(t, want, opsOf(t, c, "age"))
	})

	t.Run("explicit field", func(t *testing.T) {
		b := newBuilder().Where("other").Range("age", 18, 30)
		assert.Equal(t, None(), b.Pending())
		c := build(t, b)
		assert.Equal(t, want, opsOf(t, c, "age"))
		assert.False(t, c.Where.Has("other"))
	})

	t.Run("no pending key", func(t *testing.T) {
		c := build(t, newBuilder().Range(18, 30))
		assert.True(t, c.Where.IsEmpty())
	})
}

func TestOrderingClearsPendingKey(t *testing.T) {
	for name, call := range map[string]func(b *Builder[[]condition.Record]){
		"asc":   func(b *Builder[[]condition.Record]) { b.Asc("name") },
		"desc":  func(b *Builder[[]condition.Record]) { b.Desc("name") },
		"order": func(b *Builder[[]condition.Record]) { b.Order("name ASC") },
		"skip":  func(b *Builder[[]condition.Record]) { b.Skip(1) },
		"limit": func(b *Builder[[]condition.Record]) { b.Limit(1) },
		"slice": func(b *Builder[[]condition.Record]) { b.Slice(1, 2) },
		"field": func(b *Builder[[]condition.Record]) { b.Fields("name") },
	} {
		t.Run(name, func(t *testing.T) {
			b := newBuilder().Where("age")
			call(b)
			assert.Equal(t, None(), b.Pending())

			// The operator after the parameter call has nothing to apply to.
			b.Gt(3)
			assert.False(t, build(t, b).Where.Has("age"))
		})
	}
}

func TestOrder(t *testing.T) {
	c := build(t, newBuilder().
		Order("created").
		Order("name ASC").
		Order("age", condition.Desc).
		Asc("created"))

	assert.Equal(t, []condition.OrderKey{
		{Field: "created", Direction: condition.Asc},
		{Field: "name", Direction: condition.Asc},
		{Field: "age", Direction: condition.Desc},
	}, c.Order)
}

func TestSlice(t *testing.T) {
	c := build(t, newBuilder().Slice(5))
	assert.Equal(t, 0, c.Skip)
	assert.Equal(t, 5, c.Limit)

	c = build(t, newBuilder().Slice(10, 5))
	assert.Equal(t, 10, c.Skip)
	assert.Equal(t, 5, c.Limit)
}

func TestBuild_ResetsState(t *testing.T) {
	b := newBuilder().Where("age").Gt(1).Fields("name").Limit(3).Where("x")

	first := build(t, b)
	assert.False(t, first.Where.IsEmpty())
	assert.Equal(t, 3, first.Limit)

	second := build(t, b)
	assert.True(t, second.Where.IsEmpty())
	assert.True(t, second.Fields.IsEmpty())
	assert.Zero(t, second.Limit)
	assert.Nil(t, second.Order)
	assert.Equal(t, None(), b.Pending())
}

func TestBuild_BaseWinsOnCollision(t *testing.T) {
	base := condition.MustParse(map[string]any{
		"where": map[string]any{"status": "active"},
		"limit": 50,
		"skip":  4,
	})

	b := newBuilder().Where("status", "banned").Where("age", 30).Limit(10)
	c, err := b.Build(base)
	require.NoError(t, err)

	status, _ := c.Where.Get("status")
	assert.Equal(t, condition.Equals{Value: "active"}, status)
	age, _ := c.Where.Get("age")
	assert.Equal(t, condition.Equals{Value: 30}, age)

	assert.Equal(t, 10, c.Limit, "builder parameters are copied onto the result")
	assert.Equal(t, 4, c.Skip, "untouched base parameters survive")

	// base is not mutated
	assert.Equal(t, 1, base.Where.Len())
}

func TestBuild_Or(t *testing.T) {
	c := build(t, newBuilder().Or(condition.Eq("status", "active"), condition.Eq("status", "pending")))
	require.Len(t, c.Where.Or, 2)
}

func TestMisuseIsReported(t *testing.T) {
	tests := []struct {
		name string
		call func(b *Builder[[]condition.Record])
	}{
		{"no arguments", func(b *Builder[[]condition.Record]) { b.Gt() }},
		{"too many arguments", func(b *Builder[[]condition.Record]) { b.Lt("a", 1, 2) }},
		{"non-string field", func(b *Builder[[]condition.Record]) { b.Gt(1, 2) }},
		{"range arity", func(b *Builder[[]condition.Record]) { b.Range(1) }},
		{"where arity", func(b *Builder[[]condition.Record]) { b.Where("a", 1, 2) }},
		{"slice arity", func(b *Builder[[]condition.Record]) { b.Slice() }},
		{"invalid between operand", func(b *Builder[[]condition.Record]) { b.Between("age", 3) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder()
			tt.call(b)
			_, err := b.Build(condition.Condition{})
			require.Error(t, err)

			// The error is cleared by Build.
			_, err = b.Build(condition.Condition{})
			assert.NoError(t, err)
		})
	}
}

func TestExec(t *testing.T) {
	var got condition.Condition
	b := New(func(_ context.Context, c condition.Condition) (int, error) {
		got = c
		return 7, nil
	})

	n, err := b.Where("age").Gte(21).Limit(2).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 2, got.Limit)
	v, _ := opsOf(t, got, "age").Get(condition.OpGte)
	assert.Equal(t, 21, v)
}

func TestExec_NoRunner(t *testing.T) {
	_, err := newBuilder().Exec(context.Background())
	assert.ErrorIs(t, err, ErrNoRunner)
}

func TestFrom_SeedsState(t *testing.T) {
	base := condition.MustParse(map[string]any{
		"where":  map[string]any{"a": 1},
		"fields": "a",
		"limit":  2,
	})
	c := build(t, From[[]condition.Record](base, nil).Where("b", 2))

	assert.Equal(t, []string{"a", "b"}, c.Where.Fields())
	assert.Equal(t, 2, c.Limit)
	assert.Equal(t, []string{"a"}, c.Fields.Include)
}
