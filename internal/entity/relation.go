package entity

import (
	"context"
	"fmt"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

// OneToOne resolves a relation whose foreign key lives on the owner and
// holds the target's primary key.
type OneToOne struct {
	owner  *Entity
	target *Model
	rel    schema.Relation
}

// OneToMany resolves a relation whose foreign key lives on each target and
// holds the owner's primary key.
type OneToMany struct {
	owner  *Entity
	target *Model
	rel    schema.Relation
}

// HasOne resolves the named one-to-one relation of e.
func (e *Entity) HasOne(name string) (*OneToOne, error) {
	rel, target, err := e.relation(name, schema.OneToOne)
	if err != nil {
		return nil, err
	}
	fk := schema.Field{Name: rel.ForeignKey, Type: target.def.TypeOf(target.def.PrimaryKey())}
	if err := e.model.DefineProperty(fk); err != nil {
		return nil, err
	}
	return &OneToOne{owner: e, target: target, rel: rel}, nil
}

// HasMany resolves the named one-to-many relation of e.
func (e *Entity) HasMany(name string) (*OneToMany, error) {
	rel, target, err := e.relation(name, schema.OneToMany)
	if err != nil {
		return nil, err
	}
	fk := schema.Field{Name: rel.ForeignKey, Type: e.model.def.TypeOf(e.model.def.PrimaryKey())}
	if err := target.DefineProperty(fk); err != nil {
		return nil, err
	}
	return &OneToMany{owner: e, target: target, rel: rel}, nil
}

// Relation resolves the named relation of e to a *OneToOne or *OneToMany
// according to its declared kind.
func Relation(e *Entity, name string) (any, error) {
	rel, ok := e.model.def.Relation(name)
	if !ok {
		return nil, fmt.Errorf("%s has no relation %q", e.model.Name(), name)
	}
	if rel.Kind == schema.OneToOne {
		r, err := e.HasOne(name)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	r, err := e.HasMany(name)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (e *Entity) relation(name string, kind schema.RelationKind) (schema.Relation, *Model, error) {
	rel, ok := e.model.def.Relation(name)
	if !ok {
		return schema.Relation{}, nil, fmt.Errorf("%s has no relation %q", e.model.Name(), name)
	}
	if rel.Kind != kind {
		return schema.Relation{}, nil, fmt.Errorf("%s.%s is %s, not %s", e.model.Name(), name, rel.Kind, kind)
	}
	target, err := e.model.lookup(rel.Target)
	if err != nil {
		return schema.Relation{}, nil, fmt.Errorf("%s.%s: %w", e.model.Name(), name, err)
	}
	return rel, target, nil
}

// Get fetches the related entity, or nil when the owner holds no key.
func (r *OneToOne) Get(ctx context.Context) (*Entity, error) {
	key := r.owner.Get(r.rel.ForeignKey)
	if isEmpty(key) {
		return nil, nil
	}
	return r.target.FindByID(ctx, key)
}

// Create creates the related entity and stores its primary key on the
// owner. A persisted owner is updated in place; when the owner fails
// validation the created entity is returned with an error wrapping the
// owner's validation errors.
func (r *OneToOne) Create(ctx context.Context, data adapter.Record) (*Entity, error) {
	related, err := r.target.Create(ctx, data)
	if err != nil {
		return nil, err
	}
	if related.IsNew() {
		return related, nil
	}
	link := adapter.Record{r.rel.ForeignKey: related.ID()}
	if r.owner.IsNew() {
		return related, r.owner.Set(r.rel.ForeignKey, related.ID())
	}
	ok, err := r.owner.UpdateFields(ctx, link)
	if err != nil {
		return nil, err
	}
	if !ok {
		return related, fmt.Errorf("%s.%s: link not stored: %w", r.owner.model.Name(), r.rel.Name, r.owner.Errors())
	}
	return related, nil
}

// scope returns cond restricted to the owner's related records. An unsaved
// owner has none.
func (r *OneToMany) scope(cond condition.Condition) (condition.Condition, error) {
	if r.owner.IsNew() {
		return condition.Condition{}, fmt.Errorf("%s.%s: %w", r.owner.model.Name(), r.rel.Name, ErrUnsavedOwner)
	}
	cond = cond.Clone()
	cond.Where.Set(r.rel.ForeignKey, condition.Equals{Value: r.owner.ID()})
	return cond, nil
}

func (r *OneToMany) link(data adapter.Record) adapter.Record {
	out := cloneRecord(data)
	out[r.rel.ForeignKey] = r.owner.ID()
	return out
}

// New builds an unsaved related entity linked to the owner.
func (r *OneToMany) New(data adapter.Record) *Entity {
	return r.target.New(r.link(data))
}

// All fetches every related entity.
func (r *OneToMany) All(ctx context.Context) ([]*Entity, error) {
	return r.Find(ctx, condition.Condition{})
}

// Embed returns the owner's plain record with every related record stored
// under the relation name.
func (r *OneToMany) Embed(ctx context.Context) (adapter.Record, error) {
	related, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]adapter.Record, len(related))
	for i, e := range related {
		list[i] = e.ToObject()
	}
	out := r.owner.ToObject()
	out[r.rel.Name] = list
	return out, nil
}

// Create creates a related entity linked to the owner.
func (r *OneToMany) Create(ctx context.Context, data adapter.Record) (*Entity, error) {
	if r.owner.IsNew() {
		return nil, fmt.Errorf("%s.%s: %w", r.owner.model.Name(), r.rel.Name, ErrUnsavedOwner)
	}
	return r.target.Create(ctx, r.link(data))
}

// Find returns the related entities matching cond.
func (r *OneToMany) Find(ctx context.Context, cond condition.Condition) ([]*Entity, error) {
	scoped, err := r.scope(cond)
	if err != nil {
		return nil, err
	}
	return r.target.Find(ctx, scoped)
}

// Update applies data to the related records matching cond.
func (r *OneToMany) Update(ctx context.Context, cond condition.Condition, data adapter.Record) ([]*Entity, error) {
	scoped, err := r.scope(cond)
	if err != nil {
		return nil, err
	}
	return r.target.Update(ctx, scoped, data)
}

// Remove deletes the related records matching cond.
func (r *OneToMany) Remove(ctx context.Context, cond condition.Condition) (bool, error) {
	scoped, err := r.scope(cond)
	if err != nil {
		return false, err
	}
	return r.target.Remove(ctx, scoped)
}
