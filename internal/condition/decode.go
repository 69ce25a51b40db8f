package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// Error describes a malformed condition.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "condition: " + e.Message
	}
	return fmt.Sprintf("condition %s: %s", e.Path, e.Message)
}

func errorf(path, format string, args ...any) error {
	return &Error{Path: path, Message: fmt.Sprintf(format, args...)}
}

var orderSuffix = regexp.MustCompile(`(?i)\s+(A|DE)SC$`)

// ParseJSON decodes the JSON wire shape of a condition.
func ParseJSON(data []byte) (Condition, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Condition{}, &Error{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return Parse(raw)
}

// Parse decodes the map form of a condition (as produced by JSON or YAML
// decoders). Operator aliases are rewritten to their canonical spelling and
// operand arity is checked.
func Parse(raw map[string]any) (Condition, error) {
	var c Condition
	for key, value := range raw {
		switch key {
		case "where":
			m, ok := asMap(value)
			if !ok {
				return Condition{}, errorf("where", "expected object, got %T", value)
			}
			w, err := ParseWhere(m)
			if err != nil {
				return Condition{}, err
			}
			c.Where = w
		case "fields":
			p, err := parseFields(value)
			if err != nil {
				return Condition{}, err
			}
			c.Fields = p
		case "order":
			order, err := parseOrder(value)
			if err != nil {
				return Condition{}, err
			}
			c.Order = order
		case "skip":
			n, err := parseCount("skip", value)
			if err != nil {
				return Condition{}, err
			}
			c.Skip = n
		case "limit":
			n, err := parseCount("limit", value)
			if err != nil {
				return Condition{}, err
			}
			c.Limit = n
		default:
			return Condition{}, errorf(key, "unknown condition key")
		}
	}
	return c, nil
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(raw map[string]any) Condition {
	c, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseWhere decodes a predicate map. Keys are visited in sorted order so the
// resulting term order is deterministic.
func ParseWhere(raw map[string]any) (Where, error) {
	return parseWhere("where", raw)
}

func parseWhere(path string, raw map[string]any) (Where, error) {
	var w Where
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		value := raw[field]
		fieldPath := path + "." + field
		if field == "" {
			return Where{}, errorf(path, "empty field name")
		}
		if field == OrKey {
			groups, err := parseOr(fieldPath, value)
			if err != nil {
				return Where{}, err
			}
			w.Or = groups
			continue
		}
		c, err := parseConstraint(fieldPath, value)
		if err != nil {
			return Where{}, err
		}
		w.Terms = append(w.Terms, Term{Field: field, Constraint: c})
	}
	return w, nil
}

// parseOr accepts a list of predicate maps, or a single map whose entries
// each form one group.
func parseOr(path string, value any) ([]Where, error) {
	if list, ok := asList(value); ok {
		groups := make([]Where, 0, len(list))
		for i, item := range list {
			m, ok := asMap(item)
			if !ok {
				return nil, errorf(fmt.Sprintf("%s[%d]", path, i), "expected object, got %T", item)
			}
			g, err := parseWhere(fmt.Sprintf("%s[%d]", path, i), m)
			if err != nil {
				return nil, err
			}
			groups = append(groups, g)
		}
		return groups, nil
	}
	if m, ok := asMap(value); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		groups := make([]Where, 0, len(m))
		for _, k := range keys {
			g, err := parseWhere(path, map[string]any{k: m[k]})
			if err != nil {
				return nil, err
			}
			groups = append(groups, g)
		}
		return groups, nil
	}
	return nil, errorf(path, "expected list of objects, got %T", value)
}

func parseConstraint(path string, value any) (Constraint, error) {
	m, ok := asMap(value)
	if !ok {
		return Equals{Value: normalizeLiteral(value)}, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var ops Ops
	for _, name := range keys {
		op, known := ParseOp(name)
		if !known {
			return nil, errorf(path, "unknown operator %q", name)
		}
		operand, err := parseOperand(path+"."+name, op, m[name])
		if err != nil {
			return nil, err
		}
		ops = ops.With(op, operand)
	}
	if len(ops) == 0 {
		return nil, errorf(path, "empty operator object")
	}
	return ops, nil
}

func parseOperand(path string, op Op, value any) (any, error) {
	switch op {
	case OpBetween:
		list, ok := asList(value)
		if !ok || len(list) != 2 {
			return nil, errorf(path, "between requires exactly two operands")
		}
		return []any{normalizeLiteral(list[0]), normalizeLiteral(list[1])}, nil
	case OpIn, OpNin:
		list, ok := asList(value)
		if !ok {
			return nil, errorf(path, "%s requires a list operand", op)
		}
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = normalizeLiteral(v)
		}
		return out, nil
	case OpLike, OpNlike:
		s, ok := value.(string)
		if !ok {
			if re, isRe := value.(*regexp.Regexp); isRe {
				return re.String(), nil
			}
			return nil, errorf(path, "%s requires a string pattern", op)
		}
		if _, err := regexp.Compile(s); err != nil {
			return nil, errorf(path, "invalid pattern: %v", err)
		}
		return s, nil
	default:
		return normalizeLiteral(value), nil
	}
}

func parseFields(value any) (Projection, error) {
	switch v := value.(type) {
	case string:
		return ParseProjection(v), nil
	case nil:
		return Projection{}, nil
	}
	list, ok := asList(value)
	if !ok {
		return Projection{}, errorf("fields", "expected string or list, got %T", value)
	}
	names := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return Projection{}, errorf(fmt.Sprintf("fields[%d]", i), "expected string, got %T", item)
		}
		names = append(names, s)
	}
	return ParseProjection(strings.Join(names, " ")), nil
}

// ParseOrder parses "field", "field ASC" or "field DESC". A bare field name
// sorts descending.
func ParseOrder(spec string) OrderKey {
	spec = strings.TrimSpace(spec)
	if m := orderSuffix.FindStringSubmatch(spec); m != nil {
		field := strings.TrimSpace(orderSuffix.ReplaceAllString(spec, ""))
		if strings.EqualFold(m[1], "DE") {
			return OrderKey{Field: field, Direction: Desc}
		}
		return OrderKey{Field: field, Direction: Asc}
	}
	return OrderKey{Field: spec, Direction: Desc}
}

func parseOrder(value any) ([]OrderKey, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		var out []OrderKey
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			out = append(out, ParseOrder(part))
		}
		return out, nil
	}

	m, ok := asMap(value)
	if !ok {
		return nil, errorf("order", "expected object or string, got %T", value)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]OrderKey, 0, len(keys))
	for _, field := range keys {
		dir, err := parseDirection("order."+field, m[field])
		if err != nil {
			return nil, err
		}
		out = append(out, OrderKey{Field: field, Direction: dir})
	}
	return out, nil
}

func parseDirection(path string, value any) (Direction, error) {
	if s, ok := value.(string); ok {
		switch strings.ToUpper(s) {
		case "ASC", "1":
			return Asc, nil
		case "DESC", "-1":
			return Desc, nil
		}
		return 0, errorf(path, "invalid direction %q", s)
	}
	n, ok := toInt64(normalizeLiteral(value))
	if !ok || (n != 1 && n != -1) {
		return 0, errorf(path, "direction must be 1 or -1")
	}
	return Direction(n), nil
}

func parseCount(path string, value any) (int, error) {
	if value == nil {
		return 0, nil
	}
	n, ok := toInt64(normalizeLiteral(value))
	if !ok || n < 0 {
		return 0, errorf(path, "expected a non-negative integer")
	}
	return int(n), nil
}

// normalizeLiteral turns decoder artefacts into plain Go values: json.Number
// becomes int64 or float64 and typed slices become []any.
func normalizeLiteral(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeLiteral(item)
		}
		return out
	case []byte, string:
		return val
	}
	if list, ok := asList(v); ok {
		return list
	}
	return v
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// asList converts any slice or array (other than []byte) to []any.
func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// AsList is asList for adapters that need to expand in/nin/between operands.
func AsList(v any) ([]any, bool) { return asList(v) }
