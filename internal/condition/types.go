package condition

import "slices"

// Op is a canonical operator name.
type Op string

const (
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpNe      Op = "ne"
	OpBetween Op = "between"
	OpIn      Op = "in"
	OpNin     Op = "nin"
	OpLike    Op = "like"
	OpNlike   Op = "nlike"
)

// OrKey is the reserved where-key holding a disjunction.
const OrKey = "or"

var aliases = map[string]Op{
	"gt":      OpGt,
	"gte":     OpGte,
	"lt":      OpLt,
	"lte":     OpLte,
	"ne":      OpNe,
	"neq":     OpNe,
	"between": OpBetween,
	"in":      OpIn,
	"inq":     OpIn,
	"nin":     OpNin,
	"like":    OpLike,
	"regex":   OpLike,
	"nlike":   OpNlike,
}

// ParseOp maps an operator spelling (canonical or alias) to its canonical Op.
func ParseOp(name string) (Op, bool) {
	op, ok := aliases[name]
	return op, ok
}

// Constraint is the right-hand side of a field predicate.
//
// This is a sealed interface - only Equals and Ops implement it.
type Constraint interface {
	constraintNode()
}

// Equals is implicit equality. A nil Value matches absent or null fields only.
type Equals struct {
	Value any
}

func (Equals) constraintNode() {}

// IsNull reports whether the constraint is a null test.
func (e Equals) IsNull() bool { return e.Value == nil }

// Operand is one operator applied to a field.
type Operand struct {
	Op    Op
	Value any
}

// Ops is a conjunction of operators on the same field, kept in insertion order.
type Ops []Operand

func (Ops) constraintNode() {}

// Get returns the operand registered for op.
func (o Ops) Get(op Op) (any, bool) {
	for _, operand := range o {
		if operand.Op == op {
			return operand.Value, true
		}
	}
	return nil, false
}

// With returns a copy of o with op set to value, replacing an existing entry.
func (o Ops) With(op Op, value any) Ops {
	out := slices.Clone(o)
	for i := range out {
		if out[i].Op == op {
			out[i].Value = value
			return out
		}
	}
	return append(out, Operand{Op: op, Value: value})
}

// Term binds a constraint to a field.
type Term struct {
	Field      string
	Constraint Constraint
}

// Where is a conjunction of field terms plus an optional disjunction.
// Terms keep insertion order; field names are unique within a Where.
type Where struct {
	Terms []Term
	// Or holds disjunction groups; a record must match at least one when non-empty.
	Or []Where
}

// Eq returns a Where with a single equality term.
func Eq(field string, value any) Where {
	return Where{Terms: []Term{{Field: field, Constraint: Equals{Value: value}}}}
}

// Len returns the number of field terms.
func (w Where) Len() int { return len(w.Terms) }

// IsEmpty reports whether w matches every record.
func (w Where) IsEmpty() bool { return len(w.Terms) == 0 && len(w.Or) == 0 }

// Get returns the constraint on field.
func (w Where) Get(field string) (Constraint, bool) {
	for _, t := range w.Terms {
		if t.Field == field {
			return t.Constraint, true
		}
	}
	return nil, false
}

// Has reports whether field has a constraint.
func (w Where) Has(field string) bool {
	_, ok := w.Get(field)
	return ok
}

// Fields returns the constrained field names in order.
func (w Where) Fields() []string {
	out := make([]string, len(w.Terms))
	for i, t := range w.Terms {
		out[i] = t.Field
	}
	return out
}

// Set replaces the constraint on field or appends a new term.
func (w *Where) Set(field string, c Constraint) {
	for i := range w.Terms {
		if w.Terms[i].Field == field {
			w.Terms[i].Constraint = c
			return
		}
	}
	w.Terms = append(w.Terms, Term{Field: field, Constraint: c})
}

// SetOp adds op to the field's operator set. An existing equality is replaced.
func (w *Where) SetOp(field string, op Op, value any) {
	if c, ok := w.Get(field); ok {
		if ops, isOps := c.(Ops); isOps {
			w.Set(field, ops.With(op, value))
			return
		}
	}
	w.Set(field, Ops{{Op: op, Value: value}})
}

// Merge adds every term of other whose field is not already constrained in w.
// Or groups from other are used only when w has none.
func (w *Where) Merge(other Where) {
	for _, t := range other.Terms {
		if !w.Has(t.Field) {
			w.Terms = append(w.Terms, t)
		}
	}
	if len(w.Or) == 0 && len(other.Or) > 0 {
		w.Or = slices.Clone(other.Or)
	}
}

// Clone returns a deep copy of the term list and groups.
func (w Where) Clone() Where {
	out := Where{Terms: slices.Clone(w.Terms)}
	if len(w.Or) > 0 {
		out.Or = make([]Where, len(w.Or))
		for i, g := range w.Or {
			out.Or[i] = g.Clone()
		}
	}
	return out
}

// Direction is an ordering direction.
type Direction int

const (
	Asc  Direction = 1
	Desc Direction = -1
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// OrderKey is one entry of an ordering list.
type OrderKey struct {
	Field     string
	Direction Direction
}

// Projection selects fields. Include and Exclude are the raw lists; which
// one applies is decided by Resolve.
type Projection struct {
	Include []string
	Exclude []string
}

// IsEmpty reports whether the projection selects every field.
func (p Projection) IsEmpty() bool { return len(p.Include) == 0 && len(p.Exclude) == 0 }

// Condition is the canonical backend-neutral query.
type Condition struct {
	Where  Where
	Fields Projection
	Order  []OrderKey
	// Skip and Limit are ignored when zero.
	Skip  int
	Limit int
}

// Clone returns a copy that shares no slices with c.
func (c Condition) Clone() Condition {
	return Condition{
		Where: c.Where.Clone(),
		Fields: Projection{
			Include: slices.Clone(c.Fields.Include),
			Exclude: slices.Clone(c.Fields.Exclude),
		},
		Order: slices.Clone(c.Order),
		Skip:  c.Skip,
		Limit: c.Limit,
	}
}

// WithWhere returns a copy of c filtering on w.
func (c Condition) WithWhere(w Where) Condition {
	out := c.Clone()
	out.Where = w
	return out
}

// Filter returns a Condition holding only w.
func Filter(w Where) Condition {
	return Condition{Where: w}
}
