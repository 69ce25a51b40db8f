// Package validation runs per-model validation rules against an entity.
//
// A model carries an ordered rule list. Run evaluates every rule
// concurrently and reports one Error per failing rule, in rule order.
// Validation failures are data, not Go errors: Run only returns an error
// when a rule could not be evaluated (for example when the uniqueness
// lookup fails).
package validation

import (
	"context"
	"fmt"
	"regexp"

	"github.com/roach88/caminte/internal/schema"
)

// Kind names a built-in validator.
type Kind string

const (
	KindPresence     Kind = "presence"
	KindLength       Kind = "length"
	KindNumericality Kind = "numericality"
	KindInclusion    Kind = "inclusion"
	KindExclusion    Kind = "exclusion"
	KindFormat       Kind = "format"
	KindCustom       Kind = "custom"
	KindUniqueness   Kind = "uniqueness"
)

// Subject is the instance under validation.
type Subject interface {
	// Get returns the current value of field and whether it is set.
	Get(field string) (any, bool)

	// PrimaryKey returns the primary key value, nil for a new instance.
	PrimaryKey() any

	// Method returns the named boolean method registered on the model.
	Method(name string) (func() bool, bool)

	// Lookup returns the primary keys of stored records whose field equals
	// value.
	Lookup(ctx context.Context, field string, value any) ([]any, error)
}

// CustomFunc is a caller-supplied validator. Returning false or an error
// fails the rule.
type CustomFunc func(ctx context.Context, s Subject) (bool, error)

// Guard decides whether a rule runs. Set either Func or Name; Name is a
// model method or, failing that, a data field read for truthiness.
type Guard struct {
	Func func(Subject) bool
	Name string
}

// Func returns a guard calling f.
func Func(f func(Subject) bool) *Guard { return &Guard{Func: f} }

// Named returns a guard resolving name as a method or a data field.
func Named(name string) *Guard { return &Guard{Name: name} }

func (g *Guard) eval(s Subject) bool {
	if g.Func != nil {
		return g.Func(s)
	}
	if m, ok := s.Method(g.Name); ok {
		return m()
	}
	v, _ := s.Get(g.Name)
	return truthy(v)
}

// Rule is one (field, kind, options) entry.
type Rule struct {
	Field string
	Kind  Kind

	Message    string
	Min, Max   *float64
	Is         *int
	Int        bool
	In         []any
	With       *regexp.Regexp
	Custom     CustomFunc
	AllowNull  bool
	AllowBlank bool
	If, Unless *Guard
}

// Option configures a Rule.
type Option func(*Rule)

// Message overrides the resolved failure message.
func Message(msg string) Option { return func(r *Rule) { r.Message = msg } }

// Min sets the minimum length or value.
func Min(n float64) Option { return func(r *Rule) { r.Min = &n } }

// Max sets the maximum length or value.
func Max(n float64) Option { return func(r *Rule) { r.Max = &n } }

// Is sets the exact length.
func Is(n int) Option { return func(r *Rule) { r.Is = &n } }

// Int requires an integral number.
func Int() Option { return func(r *Rule) { r.Int = true } }

// AllowNull lets a nil value pass.
func AllowNull() Option { return func(r *Rule) { r.AllowNull = true } }

// AllowBlank lets an empty string, slice or map pass.
func AllowBlank() Option { return func(r *Rule) { r.AllowBlank = true } }

// If runs the rule only when g holds.
func If(g *Guard) Option { return func(r *Rule) { r.If = g } }

// Unless skips the rule when g holds.
func Unless(g *Guard) Option { return func(r *Rule) { r.Unless = g } }

func newRule(field string, kind Kind, opts []Option) Rule {
	r := Rule{Field: field, Kind: kind}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func Presence(field string, opts ...Option) Rule {
	return newRule(field, KindPresence, opts)
}

func Length(field string, opts ...Option) Rule {
	return newRule(field, KindLength, opts)
}

func Numericality(field string, opts ...Option) Rule {
	return newRule(field, KindNumericality, opts)
}

func Inclusion(field string, in []any, opts ...Option) Rule {
	r := newRule(field, KindInclusion, opts)
	r.In = in
	return r
}

func Exclusion(field string, in []any, opts ...Option) Rule {
	r := newRule(field, KindExclusion, opts)
	r.In = in
	return r
}

func Format(field string, with *regexp.Regexp, opts ...Option) Rule {
	r := newRule(field, KindFormat, opts)
	r.With = with
	return r
}

func Custom(field string, fn CustomFunc, opts ...Option) Rule {
	r := newRule(field, KindCustom, opts)
	r.Custom = fn
	return r
}

func Uniqueness(field string, opts ...Option) Rule {
	return newRule(field, KindUniqueness, opts)
}

// FromSpec turns a schema-file rule into a Rule. Custom rules cannot be
// declared in files.
func FromSpec(spec schema.RuleSpec) (Rule, error) {
	r := Rule{
		Field:      spec.Field,
		Kind:       Kind(spec.Kind),
		Message:    spec.Message,
		Min:        spec.Min,
		Max:        spec.Max,
		Is:         spec.Is,
		Int:        spec.Int,
		In:         spec.In,
		AllowNull:  spec.AllowNull,
		AllowBlank: spec.AllowBlank,
	}
	if spec.Field == "" {
		return Rule{}, fmt.Errorf("validation rule %q: field is required", spec.Kind)
	}
	switch r.Kind {
	case KindPresence, KindLength, KindNumericality, KindInclusion, KindExclusion, KindUniqueness:
	case KindFormat:
		re, err := regexp.Compile(spec.With)
		if err != nil {
			return Rule{}, fmt.Errorf("validation rule %s on %s: %w", spec.Kind, spec.Field, err)
		}
		r.With = re
	default:
		return Rule{}, fmt.Errorf("validation rule on %s: unsupported kind %q", spec.Field, spec.Kind)
	}
	if spec.If != "" {
		r.If = Named(spec.If)
	}
	if spec.Unless != "" {
		r.Unless = Named(spec.Unless)
	}
	return r, nil
}

// FromSpecs converts every rule in specs.
func FromSpecs(specs []schema.RuleSpec) ([]Rule, error) {
	out := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		r, err := FromSpec(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
