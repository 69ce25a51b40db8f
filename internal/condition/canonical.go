package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ToMap renders c in its wire shape. Operators use canonical spelling and
// empty parts are omitted.
func ToMap(c Condition) map[string]any {
	out := map[string]any{}
	if !c.Where.IsEmpty() {
		out["where"] = WhereToMap(c.Where)
	}
	if !c.Fields.IsEmpty() {
		out["fields"] = c.Fields.String()
	}
	if len(c.Order) > 0 {
		order := make(map[string]any, len(c.Order))
		for _, key := range c.Order {
			order[key.Field] = int(key.Direction)
		}
		out["order"] = order
	}
	if c.Skip > 0 {
		out["skip"] = c.Skip
	}
	if c.Limit > 0 {
		out["limit"] = c.Limit
	}
	return out
}

// WhereToMap renders a predicate tree in its wire shape.
func WhereToMap(w Where) map[string]any {
	out := make(map[string]any, len(w.Terms)+1)
	for _, t := range w.Terms {
		switch con := t.Constraint.(type) {
		case Equals:
			out[t.Field] = con.Value
		case *Equals:
			out[t.Field] = con.Value
		case Ops:
			out[t.Field] = opsToMap(con)
		case *Ops:
			out[t.Field] = opsToMap(*con)
		}
	}
	if len(w.Or) > 0 {
		groups := make([]any, len(w.Or))
		for i, g := range w.Or {
			groups[i] = WhereToMap(g)
		}
		out[OrKey] = groups
	}
	return out
}

func opsToMap(ops Ops) map[string]any {
	m := make(map[string]any, len(ops))
	for _, operand := range ops {
		m[string(operand.Op)] = operand.Value
	}
	return m
}

// MarshalCanonical produces canonical JSON for a condition: object keys
// sorted, strings NFC-normalized, no HTML escaping, times as RFC 3339 UTC.
// Two conditions with the same meaning marshal to the same bytes.
func MarshalCanonical(c Condition) ([]byte, error) {
	return marshalValue(ToMap(c))
}

// String returns the canonical JSON form, or a Go-syntax fallback.
func (c Condition) String() string {
	b, err := MarshalCanonical(c)
	if err != nil {
		return fmt.Sprintf("%+v", ToMap(c))
	}
	return string(b)
}

func marshalValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		return []byte(strconv.FormatBool(val)), nil
	case string:
		return marshalString(val)
	case time.Time:
		return marshalString(val.UTC().Format(time.RFC3339Nano))
	case fmt.Stringer:
		return marshalString(val.String())
	case []any:
		return marshalArray(val)
	case map[string]any:
		return marshalObject(val)
	}

	if i, ok := toInt64(v); ok {
		return []byte(strconv.FormatInt(i, 10)), nil
	}
	if f, ok := toFloat64(v); ok {
		return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
	}
	if list, ok := asList(v); ok {
		return marshalArray(list)
	}
	return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
}

func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func marshalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalString(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
