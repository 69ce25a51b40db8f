// Package schema describes mapped models: ordered fields, primary keys,
// relations and index hints.
//
// A Definition is shared by every entity of its model and by the adapter
// holding it. It only grows: fields may be added at any time (inferred
// foreign keys, DefineProperty), never removed, so concurrent readers can
// observe a field appearing but never disappearing.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// FieldType names a declared field type.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
	TypeInt      FieldType = "int"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeJSON     FieldType = "json"
	TypeUUID     FieldType = "uuid"
	TypeObjectID FieldType = "objectId"
)

// IsPrimitive reports whether values of t are stored as-is. Entities try to
// decode JSON text into structured data for every other type.
func (t FieldType) IsPrimitive() bool {
	switch t {
	case TypeString, TypeText, TypeNumber, TypeInt, TypeBoolean,
		TypeDate, TypeJSON, TypeUUID, TypeObjectID, "":
		return true
	}
	return false
}

// IsStructured reports whether values of t are maps or slices that
// backends without structured columns store as JSON text.
func (t FieldType) IsStructured() bool {
	return t == TypeJSON || !t.IsPrimitive()
}

// Generator produces a default value each time it is called.
type Generator func() any

// Now is a Generator returning the current time.
func Now() any { return time.Now() }

// NewUUID is a Generator returning a time-ordered UUID string.
func NewUUID() any { return uuid.Must(uuid.NewV7()).String() }

// Field is the descriptor of one model field.
type Field struct {
	Name string
	Type FieldType
	// Default is a literal, or a Generator (or plain func() any) called once per entity.
	Default any
	// NotNull marks the column NOT NULL in SQL backends.
	NotNull bool
	Unique  bool
	// Index requests an index on the field. Fields sharing an IndexName
	// share one composite index.
	Index     bool
	IndexName string
	Precision int
	Scale     int
}

// DefaultValue evaluates the field's default.
func (f Field) DefaultValue() (any, bool) {
	switch d := f.Default.(type) {
	case nil:
		return nil, false
	case Generator:
		return d(), true
	case func() any:
		return d(), true
	default:
		return d, true
	}
}

// PrimaryKey describes one primary-key field.
type PrimaryKey struct {
	Field string `yaml:"field" json:"field"`
	// Generated means the backend assigns the value on create.
	Generated bool `yaml:"generated" json:"generated"`
}

// RelationKind selects how a relation resolves.
type RelationKind string

const (
	// OneToOne stores the target's primary key in ForeignKey on the owner.
	OneToOne RelationKind = "oneToOne"
	// OneToMany stores the owner's primary key in ForeignKey on each target.
	OneToMany RelationKind = "oneToMany"
)

// Relation is a named relation from one model to another.
type Relation struct {
	Name       string       `yaml:"name" json:"name"`
	Kind       RelationKind `yaml:"kind" json:"kind"`
	Target     string       `yaml:"target" json:"target"`
	ForeignKey string       `yaml:"foreignKey" json:"foreignKey"`
}

// Index is a named (possibly composite, possibly unique) index.
type Index struct {
	Name   string   `yaml:"name" json:"name"`
	Fields []string `yaml:"fields" json:"fields"`
	Unique bool     `yaml:"unique" json:"unique"`
}

// RuleSpec is a validation rule as written in a schema file. The validation
// package turns it into an executable rule.
type RuleSpec struct {
	Field      string   `yaml:"field" json:"field"`
	Kind       string   `yaml:"kind" json:"kind"`
	Message    string   `yaml:"message,omitempty" json:"message,omitempty"`
	Min        *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max        *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Is         *int     `yaml:"is,omitempty" json:"is,omitempty"`
	Int        bool     `yaml:"int,omitempty" json:"int,omitempty"`
	In         []any    `yaml:"in,omitempty" json:"in,omitempty"`
	With       string   `yaml:"with,omitempty" json:"with,omitempty"`
	AllowNull  bool     `yaml:"allowNull,omitempty" json:"allowNull,omitempty"`
	AllowBlank bool     `yaml:"allowBlank,omitempty" json:"allowBlank,omitempty"`
	If         string   `yaml:"if,omitempty" json:"if,omitempty"`
	Unless     string   `yaml:"unless,omitempty" json:"unless,omitempty"`
}
