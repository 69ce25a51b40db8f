package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

// AdapterSuite checks an adapter against the backend contract: every
// backend must return the same logical records as the reference matcher.
//
// Embed it and set Open, which must return a fresh, empty, disconnected
// adapter for each test.
type AdapterSuite struct {
	suite.Suite

	Open func() adapter.Adapter

	Ctx     context.Context
	Adapter adapter.Adapter
	ids     map[string]any
}

// PersonModel is the main fixture model.
func PersonModel() *schema.Definition {
	return schema.New("Person",
		schema.Field{Name: "name", NotNull: true},
		schema.Field{Name: "age", Type: schema.TypeInt},
		schema.Field{Name: "email", Index: true},
		schema.Field{Name: "born", Type: schema.TypeDate},
		schema.Field{Name: "tags", Type: schema.TypeJSON},
	)
}

// TagModel is a fixture model with a natural primary key.
func TagModel() *schema.Definition {
	return schema.New("Tag",
		schema.Field{Name: "slug"},
		schema.Field{Name: "label"},
	).WithPrimaryKey("slug", false)
}

// All is the condition matching every record.
func All() condition.Condition { return condition.Condition{} }

func date(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// People is the seed data, keyed by name.
func People() []adapter.Record {
	return []adapter.Record{
		{"name": "Alice", "age": 30, "email": "a@x", "born": date(1990), "tags": []any{"a", "b"}},
		{"name": "Bob", "age": 25, "email": nil, "born": date(1995), "tags": []any{}},
		{"name": "Carol", "age": 35, "email": "c@x", "born": date(1985), "tags": nil},
		{"name": "Dave", "age": 25, "email": "d@y", "born": date(2000), "tags": nil},
	}
}

func (s *AdapterSuite) SetupTest() {
	s.Ctx = context.Background()
	s.Adapter = s.Open()
	s.Require().NoError(s.Adapter.Define(PersonModel()))
	s.Require().NoError(s.Adapter.Define(TagModel()))
	s.Require().NoError(s.Adapter.Connect(s.Ctx))
	s.Require().NoError(s.Adapter.RemoveAll(s.Ctx, "Person"))
	s.Require().NoError(s.Adapter.RemoveAll(s.Ctx, "Tag"))

	s.ids = map[string]any{}
	for _, p := range People() {
		rec, err := s.Adapter.Create(s.Ctx, "Person", p)
		s.Require().NoError(err)
		s.Require().NotNil(rec["id"])
		s.ids[p["name"].(string)] = rec["id"]
	}
}

func (s *AdapterSuite) TearDownTest() {
	s.Require().NoError(s.Adapter.Close(s.Ctx))
}

func (s *AdapterSuite) names(cond condition.Condition) []string {
	recs, err := s.Adapter.Find(s.Ctx, "Person", cond)
	s.Require().NoError(err)
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r["name"].(string)
	}
	return out
}

func (s *AdapterSuite) where(raw map[string]any) condition.Condition {
	c, err := condition.Parse(map[string]any{"where": raw})
	s.Require().NoError(err)
	return c
}

func (s *AdapterSuite) TestCreateAssignsDistinctIDs() {
	seen := map[any]bool{}
	for _, id := range s.ids {
		s.False(seen[id])
		seen[id] = true
	}
	s.Len(seen, 4)
}

func (s *AdapterSuite) TestFindOperators() {
	tests := []struct {
		name  string
		where map[string]any
		want  []string
	}{
		{"equality", map[string]any{"age": 25}, []string{"Bob", "Dave"}},
		{"null", map[string]any{"email": nil}, []string{"Bob"}},
		{"ne null", map[string]any{"email": map[string]any{"ne": nil}}, []string{"Alice", "Carol", "Dave"}},
		{"ne includes null", map[string]any{"email": map[string]any{"neq": "a@x"}}, []string{"Bob", "Carol", "Dave"}},
		{"between inclusive", map[string]any{"age": map[string]any{"between": []any{25, 30}}}, []string{"Alice", "Bob", "Dave"}},
		{"in", map[string]any{"age": map[string]any{"inq": []any{30, 35}}}, []string{"Alice", "Carol"}},
		{"nin", map[string]any{"age": map[string]any{"nin": []any{30}}}, []string{"Bob", "Carol", "Dave"}},
		{"like", map[string]any{"name": map[string]any{"like": "^[AB]"}}, []string{"Alice", "Bob"}},
		{"nlike includes null", map[string]any{"email": map[string]any{"nlike": "@x$"}}, []string{"Bob", "Dave"}},
		{"range", map[string]any{"age": map[string]any{"gt": 25, "lte": 35}}, []string{"Alice", "Carol"}},
		{"date", map[string]any{"born": map[string]any{"gt": date(1992)}}, []string{"Bob", "Dave"}},
		{"or", map[string]any{"or": []any{map[string]any{"age": 35}, map[string]any{"name": "Bob"}}}, []string{"Bob", "Carol"}},
		{"and", map[string]any{"age": map[string]any{"gte": 30}, "name": map[string]any{"ne": "Carol"}}, []string{"Alice"}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.ElementsMatch(tt.want, s.names(s.where(tt.where)))

			n, err := s.Adapter.Count(s.Ctx, "Person", s.where(tt.where))
			s.Require().NoError(err)
			s.Equal(len(tt.want), n)
		})
	}
}

func (s *AdapterSuite) TestOrderSkipLimit() {
	cond := condition.Condition{
		Order: []condition.OrderKey{{Field: "age", Direction: condition.Asc}, {Field: "name", Direction: condition.Asc}},
	}
	s.Equal([]string{"Bob", "Dave", "Alice", "Carol"}, s.names(cond))

	cond.Skip, cond.Limit = 1, 2
	s.Equal([]string{"Dave", "Alice"}, s.names(cond))

	desc := condition.Condition{Order: []condition.OrderKey{{Field: "born", Direction: condition.Desc}}}
	s.Equal([]string{"Dave", "Bob", "Alice", "Carol"}, s.names(desc))
}

func (s *AdapterSuite) TestProjection() {
	recs, err := s.Adapter.Find(s.Ctx, "Person", condition.Condition{
		Where:  condition.Eq("name", "Alice"),
		Fields: condition.ParseProjection("name"),
	})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("Alice", recs[0]["name"])
	s.Equal(s.ids["Alice"], recs[0]["id"])
	s.NotContains(recs[0], "age")
}

func (s *AdapterSuite) TestValuesRoundTrip() {
	recs, err := s.Adapter.Find(s.Ctx, "Person", condition.Filter(condition.Eq("name", "Alice")))
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	alice := recs[0]
	s.EqualValues(30, alice["age"])
	s.Equal([]any{"a", "b"}, alice["tags"])
	born, ok := alice["born"].(time.Time)
	s.Require().True(ok, "born is %T", alice["born"])
	s.True(born.Equal(date(1990)))
}

func (s *AdapterSuite) TestUpdateReturnsRefetched() {
	updated, err := s.Adapter.Update(s.Ctx, "Person", s.where(map[string]any{"age": 25}), adapter.Record{"age": 26})
	s.Require().NoError(err)
	s.Require().Len(updated, 2)
	for _, r := range updated {
		s.EqualValues(26, r["age"])
	}
	s.Empty(s.names(s.where(map[string]any{"age": 25})))

	// Writing the current values again still reports the matches.
	again, err := s.Adapter.Update(s.Ctx, "Person", s.where(map[string]any{"age": 26}), adapter.Record{"age": 26})
	s.Require().NoError(err)
	s.Len(again, 2)

	none, err := s.Adapter.Update(s.Ctx, "Person", s.where(map[string]any{"age": 99}), adapter.Record{"age": 1})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *AdapterSuite) TestUpdateOrCreate() {
	created, err := s.Adapter.UpdateOrCreate(s.Ctx, "Person", s.where(map[string]any{"name": "Eve"}), adapter.Record{"age": 40})
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal("Eve", created[0]["name"])
	s.EqualValues(40, created[0]["age"])

	updated, err := s.Adapter.UpdateOrCreate(s.Ctx, "Person", s.where(map[string]any{"name": "Eve"}), adapter.Record{"age": 41})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.Equal(created[0]["id"], updated[0]["id"])
	s.EqualValues(41, updated[0]["age"])
}

func (s *AdapterSuite) TestSave() {
	rec, err := s.Adapter.Save(s.Ctx, "Person", adapter.Record{"name": "Frank", "age": 50})
	s.Require().NoError(err)
	s.Require().NotNil(rec["id"])

	rec["age"] = 51
	saved, err := s.Adapter.Save(s.Ctx, "Person", rec)
	s.Require().NoError(err)
	s.Equal(rec["id"], saved["id"])

	n, err := s.Adapter.Count(s.Ctx, "Person", s.where(map[string]any{"name": "Frank"}))
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal([]string{"Frank"}, s.names(s.where(map[string]any{"age": 51})))
}

func (s *AdapterSuite) TestNaturalKey() {
	_, err := s.Adapter.Create(s.Ctx, "Tag", adapter.Record{"slug": "go", "label": "Go"})
	s.Require().NoError(err)

	ok, err := s.Adapter.Exists(s.Ctx, "Tag", "go")
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.Adapter.Save(s.Ctx, "Tag", adapter.Record{"slug": "go", "label": "Golang"})
	s.Require().NoError(err)
	recs, err := s.Adapter.Find(s.Ctx, "Tag", condition.Condition{})
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("Golang", recs[0]["label"])
}

func (s *AdapterSuite) TestRemove() {
	removed, err := s.Adapter.Remove(s.Ctx, "Person", s.where(map[string]any{"age": 25}))
	s.Require().NoError(err)
	s.True(removed)

	removed, err = s.Adapter.Remove(s.Ctx, "Person", s.where(map[string]any{"age": 25}))
	s.Require().NoError(err)
	s.False(removed)

	removed, err = s.Adapter.RemoveByID(s.Ctx, "Person", s.ids["Alice"])
	s.Require().NoError(err)
	s.True(removed)

	ok, err := s.Adapter.Exists(s.Ctx, "Person", s.ids["Alice"])
	s.Require().NoError(err)
	s.False(ok)
	ok, err = s.Adapter.Exists(s.Ctx, "Person", s.ids["Carol"])
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.Adapter.RemoveAll(s.Ctx, "Person"))
	n, err := s.Adapter.Count(s.Ctx, "Person", condition.Condition{})
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *AdapterSuite) TestDefinePropertyAfterConnect() {
	s.Require().NoError(s.Adapter.DefineProperty("Person", schema.Field{Name: "nick"}))
	rec, err := s.Adapter.Create(s.Ctx, "Person", adapter.Record{"name": "Gina", "nick": "gg"})
	s.Require().NoError(err)
	s.Equal("gg", rec["nick"])
	s.Equal([]string{"Gina"}, s.names(s.where(map[string]any{"nick": "gg"})))
}

func (s *AdapterSuite) TestDefineAfterConnect() {
	def := schema.New("Note", schema.Field{Name: "body", Type: schema.TypeText})
	s.Require().NoError(s.Adapter.Define(def))
	s.Require().NoError(s.Adapter.Define(def), "defining twice is a no-op")
	rec, err := s.Adapter.Create(s.Ctx, "Note", adapter.Record{"body": "hi"})
	s.Require().NoError(err)
	s.NotNil(rec[def.PrimaryKey()])
}

func (s *AdapterSuite) TestEnsureIndex() {
	idx := schema.Index{Fields: []string{"name", "age"}}
	s.Require().NoError(s.Adapter.EnsureIndex(s.Ctx, "Person", idx))
	s.Require().NoError(s.Adapter.EnsureIndex(s.Ctx, "Person", idx))
}

func (s *AdapterSuite) TestUnknownModel() {
	_, err := s.Adapter.Find(s.Ctx, "Nope", condition.Condition{})
	s.True(adapter.IsUnknownModel(err), "got %v", err)
}
