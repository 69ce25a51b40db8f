package entity_test

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/roach88/caminte/internal/adapter"
	_ "github.com/roach88/caminte/internal/adapter/memory"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/conn"
	"github.com/roach88/caminte/internal/entity"
	"github.com/roach88/caminte/internal/schema"
	"github.com/roach88/caminte/internal/testutil"
	"github.com/roach88/caminte/internal/validation"
)

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func userDef() *schema.Definition {
	return schema.New("User",
		schema.Field{Name: "name", Type: schema.TypeString},
		schema.Field{Name: "age", Type: schema.TypeNumber},
		schema.Field{Name: "status", Type: schema.TypeString, Default: "active"},
		schema.Field{Name: "email", Type: schema.TypeString},
		schema.Field{Name: "admin", Type: schema.TypeBoolean},
	)
}

type EntitySuite struct {
	suite.Suite
	ctx  context.Context
	conn *conn.Connection
}

func TestEntitySuite(t *testing.T) {
	suite.Run(t, new(EntitySuite))
}

func (s *EntitySuite) SetupTest() {
	s.ctx = context.Background()
	c, err := conn.Open("memory", adapter.Settings{}, conn.WithLogger(quiet()), conn.WithManualConnect())
	s.Require().NoError(err)
	s.Require().NoError(c.Connect(s.ctx))
	s.conn = c
}

func (s *EntitySuite) define(def *schema.Definition, opts ...entity.ModelOption) *entity.Model {
	m, err := entity.Define(s.conn, def, opts...)
	s.Require().NoError(err)
	return m
}

func (s *EntitySuite) seed(m *entity.Model, rows ...adapter.Record) []*entity.Entity {
	out := make([]*entity.Entity, len(rows))
	for i, row := range rows {
		e, err := m.Create(s.ctx, row)
		s.Require().NoError(err)
		s.Require().NotNil(e.ID())
		out[i] = e
	}
	return out
}

func names(es []*entity.Entity) []any {
	out := make([]any, len(es))
	for i, e := range es {
		out[i] = e.Get("name")
	}
	return out
}

func (s *EntitySuite) TestCreate_RoundTrip() {
	users := s.define(userDef())
	in := adapter.Record{"name": "Al", "age": 30, "status": "pending", "email": "al@x", "admin": true}

	created, err := users.Create(s.ctx, in)
	s.Require().NoError(err)
	s.Require().NotNil(created.ID())

	found, err := users.FindByID(s.ctx, created.ID())
	s.Require().NoError(err)
	s.Require().NotNil(found)
	for field, want := range in {
		s.True(condition.Equal(want, found.Get(field)), "field %s: want %v got %v", field, want, found.Get(field))
	}
	s.False(found.Dirty())
}

func (s *EntitySuite) TestNew_AppliesDefaults() {
	users := s.define(userDef())
	e := users.New(adapter.Record{"name": "Al"})

	s.Equal("active", e.Get("status"))
	s.True(e.IsNew())
	s.False(e.Dirty())
	s.ErrorIs(e.Set("nickname", "x"), entity.ErrUnknownField)
}

func (s *EntitySuite) TestNew_GeneratorDefaultPerEntity() {
	seq := testutil.NewSequence()
	events := s.define(schema.New("Event",
		schema.Field{Name: "seq", Type: schema.TypeInt, Default: seq.Int},
		schema.Field{Name: "at", Type: schema.TypeDate, Default: schema.Generator(seq.Time)},
	))

	first := events.New(nil)
	second := events.New(adapter.Record{"seq": int64(99)})

	s.Equal(int64(1), first.Get("seq"))
	s.Equal(testutil.Epoch.Add(2*time.Second), first.Get("at"))
	s.Equal(int64(99), second.Get("seq"))
	s.Equal(testutil.Epoch.Add(3*time.Second), second.Get("at"))
	s.Equal(int64(3), seq.Current())
}

func (s *EntitySuite) TestValidate_NoRulesAlwaysValid() {
	users := s.define(userDef())
	e := users.New(adapter.Record{"age": "not a number"})

	ok, err := e.Validate(s.ctx)
	s.Require().NoError(err)
	s.True(ok)
	s.Empty(e.Errors())
}

func (s *EntitySuite) TestCreate_NumericMinScenario() {
	users := s.define(userDef(), entity.WithRules(validation.Numericality("age", validation.Min(0))))

	bad, err := users.Create(s.ctx, adapter.Record{"name": "Al", "age": -1})
	s.Require().NoError(err)
	s.Nil(bad.ID())
	s.True(bad.IsNew())
	s.Require().Len(bad.Errors().For("age"), 1)
	s.Equal(validation.CodeMin, bad.Errors().For("age")[0].Code)
	s.Equal("is too small", bad.Errors().For("age")[0].Message)

	good, err := users.Create(s.ctx, adapter.Record{"name": "Al", "age": 30})
	s.Require().NoError(err)
	s.NotNil(good.ID())
	s.Empty(good.Errors())
	s.True(condition.Equal(30, good.Get("age")))
}

func (s *EntitySuite) TestUniqueness() {
	users := s.define(userDef(), entity.WithRules(validation.Uniqueness("email")))
	first := s.seed(users, adapter.Record{"name": "Al", "email": "shared@x"})[0]

	ok, err := first.Validate(s.ctx)
	s.Require().NoError(err)
	s.True(ok, "sole record must not collide with itself")

	dup, err := users.Create(s.ctx, adapter.Record{"name": "Bo", "email": "shared@x"})
	s.Require().NoError(err)
	s.Nil(dup.ID())

	all, err := users.Find(s.ctx, condition.Filter(condition.Eq("email", "shared@x")))
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	for _, e := range all {
		ok, err := e.Validate(s.ctx)
		s.Require().NoError(err)
		s.False(ok)
		s.Equal("is not unique", e.Errors().For("email")[0].Message)
	}
}

func (s *EntitySuite) TestValidate_MethodGuard() {
	users := s.define(userDef(),
		entity.WithRules(validation.Presence("email", validation.If(validation.Named("isAdmin")))),
		entity.WithMethod("isAdmin", func(e *entity.Entity) bool { return e.Get("admin") == true }),
	)

	plain := users.New(adapter.Record{"name": "Al"})
	ok, err := plain.Validate(s.ctx)
	s.Require().NoError(err)
	s.True(ok)

	admin := users.New(adapter.Record{"name": "Root", "admin": true})
	ok, err = admin.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal("email can't be blank", admin.Errors()[0].String())
}

func (s *EntitySuite) TestFind_Between() {
	users := s.define(userDef())
	s.seed(users,
		adapter.Record{"name": "a", "age": 17},
		adapter.Record{"name": "b", "age": 18},
		adapter.Record{"name": "c", "age": 25},
		adapter.Record{"name": "d", "age": 30},
		adapter.Record{"name": "e", "age": 31},
	)

	found, err := users.Query().Where("age").Between([]any{18, 30}).Exec(s.ctx)
	s.Require().NoError(err)
	s.Equal([]any{"b", "c", "d"}, names(found))
}

func (s *EntitySuite) TestFind_OrUnion() {
	users := s.define(userDef())
	s.seed(users,
		adapter.Record{"name": "a", "status": "active"},
		adapter.Record{"name": "b", "status": "pending"},
		adapter.Record{"name": "c", "status": "banned"},
		adapter.Record{"name": "d", "status": "active"},
	)

	found, err := users.Query().Or(condition.Eq("status", "active"), condition.Eq("status", "pending")).Exec(s.ctx)
	s.Require().NoError(err)
	s.Equal([]any{"a", "b", "d"}, names(found))

	n, err := users.QueryCount().Where("status", "active").Exec(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *EntitySuite) TestFind_ProjectionIsPartial() {
	users := s.define(userDef())
	s.seed(users, adapter.Record{"name": "Al", "age": 30})

	found, err := users.QueryOne().Fields("name").Exec(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(adapter.Record{"id": found.ID(), "name": "Al"}, found.ToObject())
	s.NotNil(found.ID())
}

func (s *EntitySuite) TestDirtyTracking() {
	users := s.define(userDef())
	e := s.seed(users, adapter.Record{"name": "Al", "age": 30})[0]
	s.False(e.Dirty())

	s.Require().NoError(e.Set("name", "Alan"))
	s.True(e.Changed("name"))
	s.False(e.Changed("age"))
	s.Equal("Al", e.Was("name"))
	s.Equal(adapter.Record{"name": "Alan"}, e.Changes())

	s.Require().NoError(e.Save(s.ctx))
	s.False(e.Dirty())
	s.Equal("Alan", e.Was("name"))

	found, err := users.FindByID(s.ctx, e.ID())
	s.Require().NoError(err)
	s.Equal("Alan", found.Get("name"))
}

func (s *EntitySuite) TestSave_NewEntityCreates() {
	users := s.define(userDef())
	e := users.New(adapter.Record{"name": "Al"})

	s.Require().NoError(e.Save(s.ctx))
	s.NotNil(e.ID())
	ok, err := users.Exists(s.ctx, e.ID())
	s.Require().NoError(err)
	s.True(ok)
}

func (s *EntitySuite) TestUpdateFields() {
	users := s.define(userDef(), entity.WithRules(validation.Numericality("age", validation.Min(0))))
	e := s.seed(users, adapter.Record{"name": "Al", "age": 30})[0]

	ok, err := e.UpdateFields(s.ctx, adapter.Record{"age": 31})
	s.Require().NoError(err)
	s.True(ok)
	s.False(e.Dirty())

	ok, err = e.UpdateFields(s.ctx, adapter.Record{"age": -5})
	s.Require().NoError(err)
	s.False(ok)
	s.True(e.Changed("age"))

	found, err := users.FindByID(s.ctx, e.ID())
	s.Require().NoError(err)
	s.True(condition.Equal(31, found.Get("age")))
}

func (s *EntitySuite) TestUpdateAndRemove() {
	users := s.define(userDef())
	s.seed(users,
		adapter.Record{"name": "a", "age": 20},
		adapter.Record{"name": "b", "age": 40},
	)

	updated, err := users.Update(s.ctx, condition.Filter(condition.Eq("name", "a")), adapter.Record{"age": 21})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.True(condition.Equal(21, updated[0].Get("age")))

	removed, err := users.QueryRemove().Where("age").Gt(30).Exec(s.ctx)
	s.Require().NoError(err)
	s.True(removed)

	n, err := users.Count(s.ctx, condition.Condition{})
	s.Require().NoError(err)
	s.Equal(1, n)

	s.Require().NoError(users.RemoveAll(s.ctx))
	n, err = users.Count(s.ctx, condition.Condition{})
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *EntitySuite) TestUpdateOrCreate() {
	users := s.define(userDef())

	out, err := users.UpdateOrCreate(s.ctx, condition.Filter(condition.Eq("name", "Al")), adapter.Record{"age": 30})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("Al", out[0].Get("name"))

	out, err = users.UpdateOrCreate(s.ctx, condition.Filter(condition.Eq("name", "Al")), adapter.Record{"age": 31})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.True(condition.Equal(31, out[0].Get("age")))

	n, err := users.Count(s.ctx, condition.Condition{})
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *EntitySuite) TestHooks() {
	var order []string
	afterCreate := make(chan *entity.Entity, 1)
	afterRemove := make(chan any, 1)
	users := s.define(userDef(),
		entity.WithRules(validation.Presence("name")),
		entity.WithHook(entity.BeforeValidate, func(_ context.Context, ev entity.HookEvent) {
			order = append(order, ev.Hook.String())
			name, _ := ev.Entity.Get("name").(string)
			s.Require().NoError(ev.Entity.Set("name", strings.ToUpper(name)))
		}),
		entity.WithHook(entity.BeforeCreate, func(_ context.Context, ev entity.HookEvent) {
			order = append(order, ev.Hook.String())
		}),
		entity.WithHook(entity.AfterCreate, func(_ context.Context, ev entity.HookEvent) {
			afterCreate <- ev.Entity
		}),
		entity.WithHook(entity.AfterRemove, func(_ context.Context, ev entity.HookEvent) {
			afterRemove <- ev.Result
		}),
	)

	e, err := users.Create(s.ctx, adapter.Record{"name": "al"})
	s.Require().NoError(err)
	s.Equal("AL", e.Get("name"))
	s.Equal([]string{"beforeValidate", "beforeCreate"}, order)

	select {
	case got := <-afterCreate:
		s.Same(e, got)
	case <-time.After(time.Second):
		s.Fail("afterCreate hook did not run")
	}

	_, err = users.RemoveByID(s.ctx, e.ID())
	s.Require().NoError(err)
	select {
	case got := <-afterRemove:
		s.Equal(true, got)
	case <-time.After(time.Second):
		s.Fail("afterRemove hook did not run")
	}
}

func (s *EntitySuite) TestOneToMany() {
	users := s.define(userDef().WithRelation(schema.Relation{
		Name: "posts", Kind: schema.OneToMany, Target: "Post", ForeignKey: "userId",
	}))
	posts := s.define(schema.New("Post", schema.Field{Name: "title", Type: schema.TypeString}))
	owner := s.seed(users, adapter.Record{"name": "Al"})[0]
	other := s.seed(users, adapter.Record{"name": "Bo"})[0]

	rel, err := owner.HasMany("posts")
	s.Require().NoError(err)
	s.True(posts.Definition().HasField("userId"))
	s.Equal(schema.TypeInt, posts.FieldType("userId"))

	draft := rel.New(adapter.Record{"title": "draft"})
	s.Equal(owner.ID(), draft.Get("userId"))
	s.True(draft.IsNew())

	_, err = rel.Create(s.ctx, adapter.Record{"title": "one"})
	s.Require().NoError(err)
	_, err = rel.Create(s.ctx, adapter.Record{"title": "two"})
	s.Require().NoError(err)
	_, err = posts.Create(s.ctx, adapter.Record{"title": "foreign", "userId": other.ID()})
	s.Require().NoError(err)

	all, err := rel.All(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)

	// the scope wins over a conflicting foreign key in the condition
	found, err := rel.Find(s.ctx, condition.Filter(condition.Eq("userId", other.ID())))
	s.Require().NoError(err)
	s.Len(found, 2)

	updated, err := rel.Update(s.ctx, condition.Filter(condition.Eq("title", "one")), adapter.Record{"title": "uno"})
	s.Require().NoError(err)
	s.Require().Len(updated, 1)
	s.Equal("uno", updated[0].Get("title"))

	embedded, err := rel.Embed(s.ctx)
	s.Require().NoError(err)
	s.Equal("Al", embedded["name"])
	s.Len(embedded["posts"], 2)

	removed, err := rel.Remove(s.ctx, condition.Condition{})
	s.Require().NoError(err)
	s.True(removed)
	n, err := posts.Count(s.ctx, condition.Condition{})
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *EntitySuite) TestOneToOne() {
	users := s.define(userDef().WithRelation(schema.Relation{
		Name: "profile", Kind: schema.OneToOne, Target: "Profile", ForeignKey: "profileId",
	}))
	s.define(schema.New("Profile", schema.Field{Name: "bio", Type: schema.TypeText}))
	owner := s.seed(users, adapter.Record{"name": "Al"})[0]

	raw, err := entity.Relation(owner, "profile")
	s.Require().NoError(err)
	rel, ok := raw.(*entity.OneToOne)
	s.Require().True(ok)
	s.True(users.Definition().HasField("profileId"))

	none, err := rel.Get(s.ctx)
	s.Require().NoError(err)
	s.Nil(none)

	profile, err := rel.Create(s.ctx, adapter.Record{"bio": "hello"})
	s.Require().NoError(err)
	s.Equal(profile.ID(), owner.Get("profileId"))

	got, err := rel.Get(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("hello", got.Get("bio"))

	stored, err := users.FindByID(s.ctx, owner.ID())
	s.Require().NoError(err)
	s.Equal(profile.ID(), stored.Get("profileId"))

	_, err = owner.HasMany("profile")
	s.Error(err)
	_, err = entity.Relation(owner, "missing")
	s.Error(err)
}

func (s *EntitySuite) TestHooks_AfterHooksSeeFinalEntity() {
	var seen atomic.Int64
	var lastValid atomic.Bool
	users := s.define(userDef(),
		entity.WithRules(validation.Presence("name")),
		entity.WithHook(entity.AfterInitialize, func(_ context.Context, ev entity.HookEvent) {
			if len(ev.Entity.ToObject()) > 0 {
				seen.Add(1)
			}
		}),
		entity.WithHook(entity.AfterValidate, func(_ context.Context, ev entity.HookEvent) {
			_ = ev.Entity.ToObject()
			lastValid.Store(ev.Result == true)
		}),
		entity.WithHook(entity.AfterCreate, func(_ context.Context, ev entity.HookEvent) {
			_ = ev.Entity.ToObject()
			panic("after hooks cannot fail the operation")
		}),
	)

	for i := range 50 {
		e, err := users.Create(s.ctx, adapter.Record{"name": "u", "age": i})
		s.Require().NoError(err)
		s.Require().NotNil(e.ID())
		s.True(lastValid.Load())
	}
	s.GreaterOrEqual(seen.Load(), int64(50))

	bad, err := users.Create(s.ctx, adapter.Record{"age": 1})
	s.Require().NoError(err)
	s.Nil(bad.ID())
	s.False(lastValid.Load())
}

func (s *EntitySuite) TestOneToMany_UnsavedOwner() {
	users := s.define(userDef().WithRelation(schema.Relation{
		Name: "posts", Kind: schema.OneToMany, Target: "Post", ForeignKey: "userId",
	}))
	posts := s.define(schema.New("Post", schema.Field{Name: "title", Type: schema.TypeString}))
	s.seed(posts, adapter.Record{"title": "orphan one"}, adapter.Record{"title": "orphan two"})

	rel, err := users.New(adapter.Record{"name": "Zed"}).HasMany("posts")
	s.Require().NoError(err)

	draft := rel.New(adapter.Record{"title": "draft"})
	s.Nil(draft.Get("userId"))

	_, err = rel.All(s.ctx)
	s.ErrorIs(err, entity.ErrUnsavedOwner)
	_, err = rel.Embed(s.ctx)
	s.ErrorIs(err, entity.ErrUnsavedOwner)
	_, err = rel.Create(s.ctx, adapter.Record{"title": "new"})
	s.ErrorIs(err, entity.ErrUnsavedOwner)
	_, err = rel.Update(s.ctx, condition.Condition{}, adapter.Record{"title": "x"})
	s.ErrorIs(err, entity.ErrUnsavedOwner)
	removed, err := rel.Remove(s.ctx, condition.Condition{})
	s.ErrorIs(err, entity.ErrUnsavedOwner)
	s.False(removed)

	n, err := posts.Count(s.ctx, condition.Condition{})
	s.Require().NoError(err)
	s.Equal(2, n)
	untouched, err := posts.Find(s.ctx, condition.Filter(condition.Eq("title", "x")))
	s.Require().NoError(err)
	s.Empty(untouched)
}

func (s *EntitySuite) TestOneToOne_InvalidOwner() {
	users := s.define(userDef().WithRelation(schema.Relation{
		Name: "profile", Kind: schema.OneToOne, Target: "Profile", ForeignKey: "profileId",
	}), entity.WithRules(validation.Presence("email")))
	s.define(schema.New("Profile", schema.Field{Name: "bio", Type: schema.TypeText}))
	owner := s.seed(users, adapter.Record{"name": "Al", "email": "al@x"})[0]

	rel, err := owner.HasOne("profile")
	s.Require().NoError(err)
	s.Require().NoError(owner.Set("email", ""))

	profile, err := rel.Create(s.ctx, adapter.Record{"bio": "hello"})
	s.Require().Error(err)
	var errs validation.Errors
	s.Require().ErrorAs(err, &errs)
	s.Len(errs.For("email"), 1)
	s.Require().NotNil(profile)
	s.NotNil(profile.ID())

	stored, err := users.FindByID(s.ctx, owner.ID())
	s.Require().NoError(err)
	s.Nil(stored.Get("profileId"))
	s.Equal("al@x", stored.Get("email"))
}

func (s *EntitySuite) TestStringAndJSON() {
	tags := s.define(schema.New("Tag",
		schema.Field{Name: "slug", Type: schema.TypeString},
		schema.Field{Name: "label", Type: schema.TypeString},
	).WithPrimaryKey("slug", false))

	e := tags.New(adapter.Record{"slug": "go", "label": "Go"})
	s.Equal(`Tag {"label":"Go","slug":"go"}`, e.String())
	s.False(e.IsNew())
	s.Equal("go", e.ID())
}

func TestDeferredDispatch(t *testing.T) {
	ctx := context.Background()
	c, err := conn.Open("memory", adapter.Settings{}, conn.WithLogger(quiet()), conn.WithManualConnect())
	require.NoError(t, err)

	var creates atomic.Int32
	users, err := entity.Define(c, userDef(), entity.WithHook(entity.BeforeCreate, func(context.Context, entity.HookEvent) {
		creates.Add(1)
	}))
	require.NoError(t, err)

	e, err := users.Create(ctx, adapter.Record{"name": "Al"})
	require.ErrorIs(t, err, entity.ErrDeferred)
	assert.Nil(t, e)
	assert.Zero(t, creates.Load())

	require.NoError(t, c.Connect(ctx))
	require.Eventually(t, func() bool {
		n, err := users.Count(ctx, condition.Condition{})
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), creates.Load())

	// Connected: no deferral, no second replay.
	_, err = users.Create(ctx, adapter.Record{"name": "Bo"})
	require.NoError(t, err)
	n, err := users.Count(ctx, condition.Condition{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), creates.Load())
}
