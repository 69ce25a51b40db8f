package adapter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

// TimeMode selects how a backend stores date fields.
type TimeMode int

const (
	// TimeNative passes time.Time through to the driver.
	TimeNative TimeMode = iota
	// TimeMillis stores dates as integer unix milliseconds.
	TimeMillis
)

// sqliteTimeLayouts are the text layouts a date column may come back in.
var sqliteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Codec converts records between entity values and a backend's stored
// representation.
type Codec struct {
	Time TimeMode
	// JSONText stores structured values (maps, slices, json fields) as
	// JSON text.
	JSONText bool
}

// ToDatabase converts data for storage. Only declared fields are kept, and
// a nil generated primary key is dropped so the backend can assign one.
func (c Codec) ToDatabase(def *schema.Definition, data Record) (Record, error) {
	out := make(Record, len(data))
	pk := def.PrimaryKey()
	for _, f := range def.Fields() {
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		if f.Name == pk && v == nil && def.IsGenerated() {
			continue
		}
		conv, err := c.Value(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("encode %s.%s: %w", def.Name, f.Name, err)
		}
		out[f.Name] = conv
	}
	return out, nil
}

// Value converts one value for storage.
func (c Codec) Value(ft schema.FieldType, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if c.Time == TimeMillis {
			return x.UnixMilli(), nil
		}
		return x, nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return c.Value(ft, *x)
	case []byte:
		return x, nil
	case string:
		if ft == schema.TypeDate && c.Time == TimeMillis {
			if t, ok := parseTime(x); ok {
				return t.UnixMilli(), nil
			}
		}
		return x, nil
	}
	if c.JSONText && (ft.IsStructured() || isComposite(v)) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return v, nil
}

// FromDatabase converts a stored record back to entity values, keeping
// declared fields and the primary key.
func (c Codec) FromDatabase(def *schema.Definition, raw Record) Record {
	out := make(Record, len(raw))
	for _, f := range def.Fields() {
		v, ok := raw[f.Name]
		if !ok {
			continue
		}
		out[f.Name] = c.decode(f.Type, v)
	}
	if pk := def.PrimaryKey(); pk != "" {
		if _, ok := out[pk]; !ok {
			if v, ok := raw[pk]; ok {
				out[pk] = v
			}
		}
	}
	return out
}

func (c Codec) decode(ft schema.FieldType, v any) any {
	if v == nil {
		return nil
	}
	switch ft {
	case schema.TypeDate:
		return decodeTime(v)
	case schema.TypeBoolean:
		switch x := v.(type) {
		case int64:
			return x != 0
		case int:
			return x != 0
		}
	case schema.TypeUUID:
		switch x := v.(type) {
		case [16]byte:
			return uuid.UUID(x).String()
		case []byte:
			if len(x) == 16 {
				if id, err := uuid.FromBytes(x); err == nil {
					return id.String()
				}
			}
			return string(x)
		}
	case schema.TypeString, schema.TypeText:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	if c.JSONText && ft.IsStructured() {
		var text string
		switch x := v.(type) {
		case string:
			text = x
		case []byte:
			text = string(x)
		default:
			return v
		}
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err == nil {
			return decoded
		}
		return text
	}
	return v
}

// Where rewrites operand values the way ToDatabase would store them, using
// the declared field types.
func (c Codec) Where(def *schema.Definition, w condition.Where) condition.Where {
	out := condition.Where{Terms: make([]condition.Term, len(w.Terms))}
	for i, t := range w.Terms {
		ft := def.TypeOf(t.Field)
		switch cons := t.Constraint.(type) {
		case condition.Equals:
			out.Terms[i] = condition.Term{Field: t.Field, Constraint: condition.Equals{Value: c.operand(ft, cons.Value)}}
		case condition.Ops:
			ops := make(condition.Ops, len(cons))
			for j, o := range cons {
				ops[j] = condition.Operand{Op: o.Op, Value: c.operand(ft, o.Value)}
			}
			out.Terms[i] = condition.Term{Field: t.Field, Constraint: ops}
		default:
			out.Terms[i] = t
		}
	}
	for _, g := range w.Or {
		out.Or = append(out.Or, c.Where(def, g))
	}
	return out
}

func (c Codec) operand(ft schema.FieldType, v any) any {
	if list, ok := condition.AsList(v); ok {
		conv := make([]any, len(list))
		for i, item := range list {
			conv[i] = c.operand(ft, item)
		}
		return conv
	}
	switch v.(type) {
	case time.Time, *time.Time:
		conv, _ := c.Value(ft, v)
		return conv
	case string:
		if ft == schema.TypeDate {
			conv, _ := c.Value(ft, v)
			return conv
		}
	}
	return v
}

func decodeTime(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x
	case int64:
		return time.UnixMilli(x)
	case int:
		return time.UnixMilli(int64(x))
	case float64:
		return time.UnixMilli(int64(x))
	case []byte:
		return decodeTime(string(x))
	case string:
		if t, ok := parseTime(x); ok {
			return t
		}
	}
	return v
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isComposite(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}
