package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Default placeholders recognized in schema files.
const (
	DefaultNow  = "$now"
	DefaultUUID = "$uuid"
)

// LoadError is a schema file problem, with a CUE position when known.
type LoadError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

type fileSpec struct {
	Models []fileModel `yaml:"models"`
}

type fileModel struct {
	Name        string       `yaml:"name" json:"name"`
	Fields      []fileField  `yaml:"fields" json:"-"`
	PrimaryKeys []PrimaryKey `yaml:"primaryKeys" json:"primaryKeys"`
	Relations   []Relation   `yaml:"relations" json:"relations"`
	Indexes     []Index      `yaml:"indexes" json:"indexes"`
	Validations []RuleSpec   `yaml:"validations" json:"validations"`
}

type fileField struct {
	Name      string    `yaml:"name" json:"name"`
	Type      FieldType `yaml:"type" json:"type"`
	Default   any       `yaml:"default" json:"default"`
	NotNull   bool      `yaml:"notNull" json:"notNull"`
	Unique    bool      `yaml:"unique" json:"unique"`
	Index     any       `yaml:"index" json:"index"` // bool or index name
	Precision int       `yaml:"precision" json:"precision"`
	Scale     int       `yaml:"scale" json:"scale"`
}

// LoadFile loads model definitions from a .yaml, .yml, .json or .cue file.
func LoadFile(path string) ([]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(data, path)
	case ".yaml", ".yml", ".json":
		return LoadYAML(data)
	default:
		return nil, &LoadError{Path: path, Message: "unsupported schema file extension"}
	}
}

// LoadYAML loads definitions from a document of the form:
//
//	models:
//	  - name: User
//	    fields:
//	      - {name: name, type: string}
//	      - {name: age, type: number, default: 0}
//	    relations:
//	      - {name: posts, kind: oneToMany, target: Post, foreignKey: userId}
func LoadYAML(data []byte) ([]*Definition, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, &LoadError{Path: "models", Message: err.Error()}
	}
	out := make([]*Definition, 0, len(spec.Models))
	for i, fm := range spec.Models {
		def, err := fm.definition(fmt.Sprintf("models[%d]", i))
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// LoadCUE loads definitions from CUE source of the form:
//
//	models: User: {
//		fields: {
//			name: {type: "string"}
//			age:  {type: "number", default: 0}
//		}
//	}
//
// Model and field order follow declaration order.
func LoadCUE(data []byte, filename string) ([]*Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("models"))
	if !modelsVal.Exists() {
		return nil, &LoadError{Path: "models", Message: "models is required", Pos: v.Pos()}
	}
	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []*Definition
	for iter.Next() {
		fm, err := decodeCUEModel(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		def, err := fm.definition("models." + iter.Label())
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func decodeCUEModel(name string, v cue.Value) (fileModel, error) {
	var fm fileModel
	if err := v.Decode(&fm); err != nil {
		return fm, formatCUEError(err)
	}
	fm.Name = name

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return fm, nil
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return fm, formatCUEError(err)
	}
	for iter.Next() {
		var ff fileField
		if err := iter.Value().Decode(&ff); err != nil {
			return fm, formatCUEError(err)
		}
		ff.Name = iter.Label()
		fm.Fields = append(fm.Fields, ff)
	}
	return fm, nil
}

func (fm fileModel) definition(path string) (*Definition, error) {
	if fm.Name == "" {
		return nil, &LoadError{Path: path, Message: "model requires a name"}
	}
	def := New(fm.Name)
	for j, ff := range fm.Fields {
		f, err := ff.field(fmt.Sprintf("%s.fields[%d]", path, j))
		if err != nil {
			return nil, err
		}
		if !def.AddField(f) {
			return nil, &LoadError{Path: path, Message: fmt.Sprintf("duplicate field %q", f.Name)}
		}
	}
	for _, pk := range fm.PrimaryKeys {
		def.WithPrimaryKey(pk.Field, pk.Generated)
	}
	for _, r := range fm.Relations {
		def.WithRelation(r)
	}
	for _, idx := range fm.Indexes {
		if idx.Name == "" {
			idx.Name = DefaultIndexName(idx.Fields...)
		}
		def.WithIndex(idx)
	}
	def.WithValidations(fm.Validations...)

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (ff fileField) field(path string) (Field, error) {
	if ff.Name == "" {
		return Field{}, &LoadError{Path: path, Message: "field requires a name"}
	}
	f := Field{
		Name:      ff.Name,
		Type:      ff.Type,
		NotNull:   ff.NotNull,
		Unique:    ff.Unique,
		Precision: ff.Precision,
		Scale:     ff.Scale,
	}
	switch idx := ff.Index.(type) {
	case nil:
	case bool:
		f.Index = idx
	case string:
		f.Index = true
		f.IndexName = idx
	default:
		return Field{}, &LoadError{Path: path + ".index", Message: fmt.Sprintf("expected bool or name, got %T", ff.Index)}
	}
	switch ff.Default {
	case DefaultNow:
		f.Default = Generator(Now)
	case DefaultUUID:
		f.Default = Generator(NewUUID)
	default:
		f.Default = ff.Default
	}
	return f, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{Path: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return &LoadError{Path: "cue", Message: first.Error()}
}
