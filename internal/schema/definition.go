package schema

import (
	"fmt"
	"slices"
	"sync"
)

// Definition describes one model. It is safe for concurrent use.
type Definition struct {
	Name string

	mu          sync.RWMutex
	fields      []Field
	primaryKeys []PrimaryKey
	relations   []Relation
	indexes     []Index
	validations []RuleSpec
}

// New creates a definition with the given fields in declaration order.
// Later duplicates of a field name are ignored.
func New(name string, fields ...Field) *Definition {
	d := &Definition{Name: name}
	for _, f := range fields {
		d.AddField(f)
	}
	return d
}

// WithPrimaryKey declares a primary-key field.
func (d *Definition) WithPrimaryKey(field string, generated bool) *Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.primaryKeys = append(d.primaryKeys, PrimaryKey{Field: field, Generated: generated})
	return d
}

// WithRelation declares a relation.
func (d *Definition) WithRelation(r Relation) *Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relations = append(d.relations, r)
	return d
}

// WithIndex declares an explicit index.
func (d *Definition) WithIndex(idx Index) *Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.indexes = append(d.indexes, idx)
	return d
}

// WithValidations attaches file-declared validation rules.
func (d *Definition) WithValidations(rules ...RuleSpec) *Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.validations = append(d.validations, rules...)
	return d
}

// AddField appends f unless a field with the same name exists. It reports
// whether the field was added.
func (d *Definition) AddField(f Field) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.fields {
		if existing.Name == f.Name {
			return false
		}
	}
	if f.Type == "" {
		f.Type = TypeString
	}
	d.fields = append(d.fields, f)
	return true
}

// EnsurePrimaryKey synthesizes a generated "id" key of the given type when
// no primary key is declared.
func (d *Definition) EnsurePrimaryKey(idType FieldType) {
	d.mu.Lock()
	if len(d.primaryKeys) > 0 {
		d.mu.Unlock()
		return
	}
	d.primaryKeys = []PrimaryKey{{Field: "id", Generated: true}}
	d.mu.Unlock()
	d.AddField(Field{Name: "id", Type: idType})
}

// Fields returns a snapshot of the fields in declaration order.
func (d *Definition) Fields() []Field {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.fields)
}

// FieldNames returns the field names in declaration order.
func (d *Definition) FieldNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field by name.
func (d *Definition) Field(name string) (Field, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, f := range d.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether name is a declared field.
func (d *Definition) HasField(name string) bool {
	_, ok := d.Field(name)
	return ok
}

// TypeOf returns the declared type of a field, or "" when undeclared.
func (d *Definition) TypeOf(name string) FieldType {
	f, _ := d.Field(name)
	return f.Type
}

// PrimaryKeys returns the primary-key descriptors.
func (d *Definition) PrimaryKeys() []PrimaryKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.primaryKeys)
}

// PrimaryKey returns the first primary-key field name, or "" when none is
// declared yet.
func (d *Definition) PrimaryKey() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.primaryKeys) == 0 {
		return ""
	}
	return d.primaryKeys[0].Field
}

// IsGenerated reports whether the first primary key is backend-generated.
func (d *Definition) IsGenerated() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.primaryKeys) > 0 && d.primaryKeys[0].Generated
}

// Relations returns the declared relations.
func (d *Definition) Relations() []Relation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.relations)
}

// Relation looks up a relation by name.
func (d *Definition) Relation(name string) (Relation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// Validations returns the file-declared validation rules.
func (d *Definition) Validations() []RuleSpec {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.validations)
}

// Indexes returns explicit indexes followed by those implied by field
// hints. Fields sharing an IndexName are grouped; unnamed hints get
// "index_<field>_field".
func (d *Definition) Indexes() []Index {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := slices.Clone(d.indexes)
	explicit := len(out)
	for _, f := range d.fields {
		if !f.Index && f.IndexName == "" {
			continue
		}
		name := f.IndexName
		if name == "" {
			name = DefaultIndexName(f.Name)
		}
		pos := slices.IndexFunc(out[explicit:], func(idx Index) bool { return idx.Name == name })
		if pos >= 0 {
			out[explicit+pos].Fields = append(out[explicit+pos].Fields, f.Name)
			out[explicit+pos].Unique = out[explicit+pos].Unique && f.Unique
			continue
		}
		out = append(out, Index{Name: name, Fields: []string{f.Name}, Unique: f.Unique})
	}
	return out
}

// DefaultIndexName is the name given to an index without an explicit name.
func DefaultIndexName(fields ...string) string {
	name := "index"
	for _, f := range fields {
		name += "_" + f
	}
	return name + "_field"
}

// Validate checks the definition is usable: a name, unique non-empty field
// names, primary keys and relation foreign keys naming something.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &Error{Model: d.Name, Message: "model requires a name"}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, f := range d.fields {
		if f.Name == "" {
			return &Error{Model: d.Name, Message: "field with empty name"}
		}
	}
	for _, pk := range d.primaryKeys {
		if !slices.ContainsFunc(d.fields, func(f Field) bool { return f.Name == pk.Field }) {
			return &Error{Model: d.Name, Message: fmt.Sprintf("primary key %q is not a declared field", pk.Field)}
		}
	}
	for _, r := range d.relations {
		if r.Name == "" || r.Target == "" || r.ForeignKey == "" {
			return &Error{Model: d.Name, Message: fmt.Sprintf("relation %q requires name, target and foreignKey", r.Name)}
		}
		if r.Kind != OneToOne && r.Kind != OneToMany {
			return &Error{Model: d.Name, Message: fmt.Sprintf("relation %q has unknown kind %q", r.Name, r.Kind)}
		}
	}
	return nil
}

// Error is a schema definition or loading problem.
type Error struct {
	Model   string
	Message string
}

func (e *Error) Error() string {
	if e.Model == "" {
		return "schema: " + e.Message
	}
	return fmt.Sprintf("schema %s: %s", e.Model, e.Message)
}
