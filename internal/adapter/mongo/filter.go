package mongo

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

// keyField is the document key holding generated identifiers.
const keyField = "_id"

// fieldMapper maps model fields to document keys and identifier operands to
// ObjectIDs.
type fieldMapper struct {
	def *schema.Definition
}

// generatedKey reports whether field is the generated primary key stored
// in _id.
func (m fieldMapper) generatedKey(field string) bool {
	return m.def.IsGenerated() && field == m.def.PrimaryKey()
}

func (m fieldMapper) key(field string) string {
	if m.generatedKey(field) {
		return keyField
	}
	return field
}

func (m fieldMapper) operand(field string, v any) any {
	if !m.generatedKey(field) {
		return v
	}
	if list, ok := condition.AsList(v); ok {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = toObjectID(item)
		}
		return out
	}
	return toObjectID(v)
}

// toObjectID converts a hex string to an ObjectID; anything else is kept
// and simply never matches.
func toObjectID(v any) any {
	if s, ok := v.(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return v
}

// filter translates a where clause into a query document. Negations
// ($ne, $nin, $not) also match missing fields, like the reference matcher.
func (m fieldMapper) filter(w condition.Where) bson.M {
	doc := bson.M{}
	for _, t := range w.Terms {
		key := m.key(t.Field)
		switch c := t.Constraint.(type) {
		case condition.Equals:
			if c.IsNull() {
				doc[key] = bson.M{"$eq": nil}
				continue
			}
			doc[key] = m.operand(t.Field, c.Value)
		case condition.Ops:
			doc[key] = m.ops(t.Field, c)
		}
	}
	if len(w.Or) > 0 {
		groups := make([]bson.M, len(w.Or))
		for i, g := range w.Or {
			groups[i] = m.filter(g)
		}
		doc["$or"] = groups
	}
	return doc
}

func (m fieldMapper) ops(field string, ops condition.Ops) bson.M {
	out := bson.M{}
	for _, o := range ops {
		v := m.operand(field, o.Value)
		switch o.Op {
		case condition.OpGt:
			out["$gt"] = v
		case condition.OpGte:
			out["$gte"] = v
		case condition.OpLt:
			out["$lt"] = v
		case condition.OpLte:
			out["$lte"] = v
		case condition.OpNe:
			out["$ne"] = v
		case condition.OpBetween:
			if bounds, ok := condition.AsList(v); ok && len(bounds) == 2 {
				out["$gte"] = bounds[0]
				out["$lte"] = bounds[1]
			}
		case condition.OpIn:
			out["$in"] = v
		case condition.OpNin:
			out["$nin"] = v
		case condition.OpLike:
			out["$regex"] = primitive.Regex{Pattern: pattern(v)}
		case condition.OpNlike:
			out["$not"] = primitive.Regex{Pattern: pattern(v)}
		}
	}
	return out
}

func pattern(v any) string {
	s, _ := v.(string)
	return s
}

// sort builds the sort document, ending with _id so order is stable.
func (m fieldMapper) sort(order []condition.OrderKey) bson.D {
	doc := bson.D{}
	seenKey := false
	for _, key := range order {
		k := m.key(key.Field)
		doc = append(doc, bson.E{Key: k, Value: int(key.Direction)})
		seenKey = seenKey || k == keyField
	}
	if !seenKey {
		doc = append(doc, bson.E{Key: keyField, Value: 1})
	}
	return doc
}

// projection builds the projection document, or nil for every field.
func (m fieldMapper) projection(p condition.Projection) bson.M {
	keep := p.Resolve(m.def.PrimaryKey(), m.def.FieldNames())
	if keep == nil {
		return nil
	}
	doc := bson.M{keyField: 1}
	for _, name := range keep {
		doc[m.key(name)] = 1
	}
	return doc
}
