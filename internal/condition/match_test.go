package condition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func people() []Record {
	return []Record{
		{"id": 1, "name": "Al", "age": 17, "status": "active"},
		{"id": 2, "name": "Bea", "age": 18, "status": "pending"},
		{"id": 3, "name": "Cy", "age": 25, "status": "banned"},
		{"id": 4, "name": "Di", "age": 30, "status": "active"},
		{"id": 5, "name": "Ed", "age": 31, "status": nil},
	}
}

func ids(records []Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r["id"]
	}
	return out
}

func TestMatches_Operators(t *testing.T) {
	tests := []struct {
		name  string
		where map[string]any
		want  []any
	}{
		{"equality", map[string]any{"name": "Cy"}, []any{3}},
		{"numeric equality across kinds", map[string]any{"age": 25.0}, []any{3}},
		{"gt", map[string]any{"age": map[string]any{"gt": 25}}, []any{4, 5}},
		{"gte", map[string]any{"age": map[string]any{"gte": 25}}, []any{3, 4, 5}},
		{"lt", map[string]any{"age": map[string]any{"lt": 18}}, []any{1}},
		{"lte", map[string]any{"age": map[string]any{"lte": 18}}, []any{1, 2}},
		{"between inclusive", map[string]any{"age": map[string]any{"between": []any{18, 30}}}, []any{2, 3, 4}},
		{"gt and lt conjunctive", map[string]any{"age": map[string]any{"gt": 17, "lt": 30}}, []any{2, 3}},
		{"ne", map[string]any{"status": map[string]any{"ne": "active"}}, []any{2, 3, 5}},
		{"in", map[string]any{"id": map[string]any{"in": []any{2, 4, 9}}}, []any{2, 4}},
		{"nin", map[string]any{"id": map[string]any{"nin": []any{2, 4}}}, []any{1, 3, 5}},
		{"like", map[string]any{"name": map[string]any{"like": "^[AB]"}}, []any{1, 2}},
		{"nlike", map[string]any{"name": map[string]any{"nlike": "^[AB]"}}, []any{3, 4, 5}},
		{"null literal", map[string]any{"status": nil}, []any{5}},
		{"missing field is null", map[string]any{"nickname": nil}, []any{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := MustParse(map[string]any{"where": tt.where})
			got := Apply(people(), c, "id", nil)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMatches_OrUnion(t *testing.T) {
	c := MustParse(map[string]any{
		"where": map[string]any{"or": []any{
			map[string]any{"status": "active"},
			map[string]any{"status": "pending"},
		}},
	})
	assert.Equal(t, []any{1, 2, 4}, ids(Apply(people(), c, "id", nil)))
}

func TestMatches_OrCombinedWithTerms(t *testing.T) {
	c := MustParse(map[string]any{
		"where": map[string]any{
			"age": map[string]any{"gte": 18},
			"or": []any{
				map[string]any{"status": "active"},
				map[string]any{"status": "pending"},
			},
		},
	})
	assert.Equal(t, []any{2, 4}, ids(Apply(people(), c, "id", nil)))
}

func TestMatches_Times(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := Record{"at": base.Add(time.Hour)}

	assert.True(t, Matches(rec, MustParse(map[string]any{
		"where": map[string]any{"at": map[string]any{"gt": base}},
	}).Where))
	assert.False(t, Matches(rec, MustParse(map[string]any{
		"where": map[string]any{"at": map[string]any{"lt": base}},
	}).Where))
}

func TestMatches_IncomparableIsFalse(t *testing.T) {
	rec := Record{"age": "old"}
	w := MustParse(map[string]any{"where": map[string]any{"age": map[string]any{"gt": 3}}}).Where
	assert.False(t, Matches(rec, w))
}

func TestApply_OrderSkipLimit(t *testing.T) {
	c := Condition{
		Order: []OrderKey{{Field: "age", Direction: Desc}},
		Skip:  1,
		Limit: 2,
	}
	assert.Equal(t, []any{4, 3}, ids(Apply(people(), c, "id", nil)))
}

func TestApply_SkipPastEnd(t *testing.T) {
	got := Apply(people(), Condition{Skip: 10}, "id", nil)
	assert.Empty(t, got)
}

func TestApply_LimitLargerThanSet(t *testing.T) {
	// Limit beyond the number of matches returns every match.
	got := Apply(people(), Condition{Limit: 50}, "id", nil)
	assert.Len(t, got, 5)
}

func TestApply_OrderNilFirst(t *testing.T) {
	c := Condition{Order: []OrderKey{{Field: "status", Direction: Asc}, {Field: "id", Direction: Asc}}}
	got := Apply(people(), c, "id", nil)
	assert.Equal(t, []any{5, 1, 4, 3, 2}, ids(got))
}

func TestApply_Projection(t *testing.T) {
	c := Condition{Fields: ParseProjection("name"), Where: Eq("id", 1)}
	got := Apply(people(), c, "id", []string{"id", "name", "age", "status"})
	require.Len(t, got, 1)
	assert.Equal(t, Record{"id": 1, "name": "Al"}, got[0])

	// Source records are untouched.
	assert.Len(t, people()[0], 4)
}

func TestCompare(t *testing.T) {
	n, ok := Compare(int32(3), uint8(4))
	require.True(t, ok)
	assert.Equal(t, -1, n)

	n, ok = Compare("b", "a")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	_, ok = Compare(nil, 1)
	assert.False(t, ok)

	_, ok = Compare("1", 1)
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(int64(3), 3.0))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, 0))
	assert.True(t, Equal([]any{"a"}, []any{"a"}))
	assert.False(t, Equal("3", 3))
}
