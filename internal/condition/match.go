package condition

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

// Record is a raw field map as stored by a backend.
type Record = map[string]any

// Matches reports whether rec satisfies every term of w and, when w has
// disjunction groups, at least one of them.
func Matches(rec Record, w Where) bool {
	for _, t := range w.Terms {
		if !matchConstraint(rec[t.Field], t.Constraint) {
			return false
		}
	}
	if len(w.Or) == 0 {
		return true
	}
	for _, g := range w.Or {
		if Matches(rec, g) {
			return true
		}
	}
	return false
}

func matchConstraint(value any, c Constraint) bool {
	switch con := c.(type) {
	case Equals:
		return matchEquals(value, con)
	case *Equals:
		return matchEquals(value, *con)
	case Ops:
		return matchOps(value, con)
	case *Ops:
		return matchOps(value, *con)
	default:
		return false
	}
}

func matchEquals(value any, e Equals) bool {
	if e.IsNull() {
		return isNil(value)
	}
	return Equal(value, e.Value)
}

func matchOps(value any, ops Ops) bool {
	for _, operand := range ops {
		if !matchOperand(value, operand) {
			return false
		}
	}
	return true
}

func matchOperand(value any, operand Operand) bool {
	switch operand.Op {
	case OpGt:
		n, ok := Compare(value, operand.Value)
		return ok && n > 0
	case OpGte:
		n, ok := Compare(value, operand.Value)
		return ok && n >= 0
	case OpLt:
		n, ok := Compare(value, operand.Value)
		return ok && n < 0
	case OpLte:
		n, ok := Compare(value, operand.Value)
		return ok && n <= 0
	case OpNe:
		if operand.Value == nil {
			return !isNil(value)
		}
		return !Equal(value, operand.Value)
	case OpBetween:
		bounds, ok := asList(operand.Value)
		if !ok || len(bounds) != 2 {
			return false
		}
		lo, okLo := Compare(value, bounds[0])
		hi, okHi := Compare(value, bounds[1])
		return okLo && okHi && lo >= 0 && hi <= 0
	case OpIn:
		set, _ := asList(operand.Value)
		return slices.ContainsFunc(set, func(v any) bool { return Equal(value, v) })
	case OpNin:
		set, _ := asList(operand.Value)
		return !slices.ContainsFunc(set, func(v any) bool { return Equal(value, v) })
	case OpLike:
		return matchPattern(value, operand.Value)
	case OpNlike:
		return !matchPattern(value, operand.Value)
	default:
		return false
	}
}

var patternCache sync.Map // string → *regexp.Regexp

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

func matchPattern(value, pattern any) bool {
	if isNil(value) {
		return false
	}
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	re, err := compilePattern(p)
	if err != nil {
		return false
	}
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	return re.MatchString(s)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Equal compares two field values. Numbers compare by value across integer
// and float kinds, times by instant; everything else by deep equality.
func Equal(a, b any) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	if n, ok := Compare(a, b); ok {
		return n == 0
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two values of compatible kinds: numbers, strings, times
// and booleans. The second result is false when the values are not
// comparable, including when either is nil.
func Compare(a, b any) (int, bool) {
	if isNil(a) || isNil(b) {
		return 0, false
	}

	if ai, ok := toInt64(a); ok {
		if bi, ok := toInt64(b); ok {
			return cmp.Compare(ai, bi), true
		}
	}
	if af, ok := toFloat64(a); ok {
		if bf, ok := toFloat64(b); ok {
			return cmp.Compare(af, bf), true
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return int64(f), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// Apply evaluates c over records in process: filter, stable order,
// skip/limit, then projection. pk and props feed Projection.Resolve.
// The input slice is not modified; projected records are copies.
func Apply(records []Record, c Condition, pk string, props []string) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if Matches(rec, c.Where) {
			out = append(out, rec)
		}
	}

	if len(c.Order) > 0 {
		slices.SortStableFunc(out, func(a, b Record) int {
			return compareRecords(a, b, c.Order)
		})
	}

	out = paginate(out, c.Skip, c.Limit)

	keep := c.Fields.Resolve(pk, props)
	if keep == nil {
		return out
	}
	projected := make([]Record, len(out))
	for i, rec := range out {
		p := make(Record, len(keep))
		for _, name := range keep {
			if v, ok := rec[name]; ok {
				p[name] = v
			}
		}
		projected[i] = p
	}
	return projected
}

func paginate(records []Record, skip, limit int) []Record {
	if skip > 0 {
		if skip >= len(records) {
			return records[:0]
		}
		records = records[skip:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

// compareRecords orders by each key in turn. Nil sorts before any value.
func compareRecords(a, b Record, order []OrderKey) int {
	for _, key := range order {
		av, bv := a[key.Field], b[key.Field]
		var n int
		switch {
		case isNil(av) && isNil(bv):
			n = 0
		case isNil(av):
			n = -1
		case isNil(bv):
			n = 1
		default:
			n, _ = Compare(av, bv)
		}
		if n != 0 {
			return n * int(key.Direction)
		}
	}
	return 0
}
