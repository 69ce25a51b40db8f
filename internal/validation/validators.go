package validation

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"slices"
	"unicode/utf8"

	"github.com/roach88/caminte/internal/condition"
)

// Failure sub-kinds. A validator returns "" when the value passes.
const (
	CodeNull   = "null"
	CodeBlank  = "blank"
	CodeMin    = "min"
	CodeMax    = "max"
	CodeIs     = "is"
	CodeNumber = "number"
	CodeInt    = "int"
	CodeOther  = "other"
)

type validatorFunc func(ctx context.Context, r Rule, s Subject) (string, error)

var validators = map[Kind]validatorFunc{
	KindPresence:     presence,
	KindLength:       length,
	KindNumericality: numericality,
	KindInclusion:    inclusion,
	KindExclusion:    exclusion,
	KindFormat:       format,
	KindCustom:       custom,
	KindUniqueness:   uniqueness,
}

func presence(_ context.Context, r Rule, s Subject) (string, error) {
	v, _ := s.Get(r.Field)
	switch {
	case v == nil:
		return CodeNull, nil
	case isBlank(v):
		return CodeBlank, nil
	}
	return "", nil
}

// nullCheck applies AllowNull/AllowBlank. done reports whether the value
// was decided here.
func nullCheck(r Rule, v any) (code string, done bool) {
	if v == nil {
		if r.AllowNull {
			return "", true
		}
		return CodeNull, true
	}
	if isBlank(v) {
		if r.AllowBlank {
			return "", true
		}
		return CodeBlank, true
	}
	return "", false
}

func length(_ context.Context, r Rule, s Subject) (string, error) {
	v, _ := s.Get(r.Field)
	if code, done := nullCheck(r, v); done {
		return code, nil
	}
	n, ok := lengthOf(v)
	if !ok {
		return "", nil
	}
	switch {
	case r.Min != nil && float64(n) < *r.Min:
		return CodeMin, nil
	case r.Max != nil && float64(n) > *r.Max:
		return CodeMax, nil
	case r.Is != nil && n != *r.Is:
		return CodeIs, nil
	}
	return "", nil
}

func numericality(_ context.Context, r Rule, s Subject) (string, error) {
	v, _ := s.Get(r.Field)
	if code, done := nullCheck(r, v); done {
		return code, nil
	}
	f, ok := toNumber(v)
	if !ok {
		return CodeNumber, nil
	}
	switch {
	case r.Int && f != math.Trunc(f):
		return CodeInt, nil
	case r.Min != nil && f < *r.Min:
		return CodeMin, nil
	case r.Max != nil && f > *r.Max:
		return CodeMax, nil
	}
	return "", nil
}

func inclusion(_ context.Context, r Rule, s Subject) (string, error) {
	v, _ := s.Get(r.Field)
	if code, done := nullCheck(r, v); done {
		return code, nil
	}
	if r.In != nil && !contains(r.In, v) {
		return CodeOther, nil
	}
	return "", nil
}

func exclusion(_ context.Context, r Rule, s Subject) (string, error) {
	v, _ := s.Get(r.Field)
	if code, done := nullCheck(r, v); done {
		return code, nil
	}
	if contains(r.In, v) {
		return CodeOther, nil
	}
	return "", nil
}

func format(_ context.Context, r Rule, s Subject) (string, error) {
	v, _ := s.Get(r.Field)
	if code, done := nullCheck(r, v); done {
		return code, nil
	}
	str, ok := v.(string)
	if !ok || r.With == nil {
		return "", nil
	}
	if !r.With.MatchString(str) {
		return CodeOther, nil
	}
	return "", nil
}

func custom(ctx context.Context, r Rule, s Subject) (string, error) {
	if r.Custom == nil {
		return "", fmt.Errorf("custom rule on %s has no function", r.Field)
	}
	ok, err := r.Custom(ctx, s)
	if err != nil || !ok {
		return CodeOther, nil
	}
	return "", nil
}

// uniqueness fails when more than one stored record has the value, or
// when the single match is a different record.
func uniqueness(ctx context.Context, r Rule, s Subject) (string, error) {
	v, _ := s.Get(r.Field)
	ids, err := s.Lookup(ctx, r.Field, v)
	if err != nil {
		return "", fmt.Errorf("uniqueness of %s: %w", r.Field, err)
	}
	switch len(ids) {
	case 0:
		return "", nil
	case 1:
		self := s.PrimaryKey()
		if self == nil || ids[0] == nil || fmt.Sprint(self) != fmt.Sprint(ids[0]) {
			return CodeOther, nil
		}
		return "", nil
	default:
		return CodeOther, nil
	}
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func lengthOf(v any) (int, bool) {
	if s, ok := v.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len(), true
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f, !math.IsNaN(f)
	}
	return 0, false
}

func contains(list []any, v any) bool {
	return slices.ContainsFunc(list, func(item any) bool { return condition.Equal(item, v) })
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toNumber(v); ok {
		return f != 0
	}
	return true
}
