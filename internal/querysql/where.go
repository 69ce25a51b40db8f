package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/caminte/internal/condition"
)

// where appends " WHERE ..." for a non-empty predicate.
func (c *Compiler) where(s *stmt, w condition.Where) error {
	if w.IsEmpty() {
		return nil
	}
	frag, err := c.predicate(s, w)
	if err != nil {
		return err
	}
	s.write(" WHERE ", frag)
	return nil
}

// predicate compiles w to a boolean SQL expression. Terms are ANDed; or
// groups are ORed together and ANDed with the terms.
func (c *Compiler) predicate(s *stmt, w condition.Where) (string, error) {
	var parts []string
	for _, t := range w.Terms {
		frag, err := c.term(s, t)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", t.Field, err)
		}
		parts = append(parts, frag)
	}
	if len(w.Or) > 0 {
		groups := make([]string, len(w.Or))
		for i, g := range w.Or {
			if g.IsEmpty() {
				groups[i] = "1 = 1"
				continue
			}
			frag, err := c.predicate(s, g)
			if err != nil {
				return "", fmt.Errorf("or[%d]: %w", i, err)
			}
			groups[i] = "(" + frag + ")"
		}
		parts = append(parts, "("+strings.Join(groups, " OR ")+")")
	}
	if len(parts) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(parts, " AND "), nil
}

func (c *Compiler) term(s *stmt, t condition.Term) (string, error) {
	col := Quote(t.Field)
	switch cons := t.Constraint.(type) {
	case condition.Equals:
		if cons.IsNull() {
			return col + " IS NULL", nil
		}
		return col + " = " + s.arg(cons.Value), nil
	case condition.Ops:
		if len(cons) == 0 {
			return "", fmt.Errorf("empty operator set")
		}
		parts := make([]string, 0, len(cons))
		for _, o := range cons {
			frag, err := c.operand(s, col, o)
			if err != nil {
				return "", err
			}
			parts = append(parts, frag)
		}
		return strings.Join(parts, " AND "), nil
	default:
		return "", fmt.Errorf("unsupported constraint type: %T", t.Constraint)
	}
}

func (c *Compiler) operand(s *stmt, col string, o condition.Operand) (string, error) {
	switch o.Op {
	case condition.OpGt:
		return col + " > " + s.arg(o.Value), nil
	case condition.OpGte:
		return col + " >= " + s.arg(o.Value), nil
	case condition.OpLt:
		return col + " < " + s.arg(o.Value), nil
	case condition.OpLte:
		return col + " <= " + s.arg(o.Value), nil
	case condition.OpNe:
		if o.Value == nil {
			return col + " IS NOT NULL", nil
		}
		return "(" + col + " IS NULL OR " + col + " <> " + s.arg(o.Value) + ")", nil
	case condition.OpBetween:
		bounds, ok := condition.AsList(o.Value)
		if !ok || len(bounds) != 2 {
			return "", fmt.Errorf("between requires two operands")
		}
		return col + " BETWEEN " + s.arg(bounds[0]) + " AND " + s.arg(bounds[1]), nil
	case condition.OpIn:
		return c.in(s, col, o.Value)
	case condition.OpNin:
		return c.nin(s, col, o.Value)
	case condition.OpLike:
		return c.Dialect.Match(col, s.arg(pattern(o.Value))), nil
	case condition.OpNlike:
		return "(" + col + " IS NULL OR NOT (" + c.Dialect.Match(col, s.arg(pattern(o.Value))) + "))", nil
	default:
		return "", fmt.Errorf("unsupported operator %q", o.Op)
	}
}

// in matches any listed value; a nil entry also matches NULL.
func (c *Compiler) in(s *stmt, col string, value any) (string, error) {
	values, hasNull, err := splitList(value)
	if err != nil {
		return "", err
	}
	var parts []string
	if len(values) > 0 {
		parts = append(parts, col+" IN ("+c.args(s, values)+")")
	}
	if hasNull {
		parts = append(parts, col+" IS NULL")
	}
	switch len(parts) {
	case 0:
		return "1 = 0", nil
	case 1:
		return parts[0], nil
	default:
		return "(" + strings.Join(parts, " OR ") + ")", nil
	}
}

// nin matches values not listed, including NULL unless nil is listed.
func (c *Compiler) nin(s *stmt, col string, value any) (string, error) {
	values, hasNull, err := splitList(value)
	if err != nil {
		return "", err
	}
	switch {
	case hasNull && len(values) == 0:
		return col + " IS NOT NULL", nil
	case hasNull:
		return "(" + col + " IS NOT NULL AND " + col + " NOT IN (" + c.args(s, values) + "))", nil
	case len(values) == 0:
		return "1 = 1", nil
	default:
		return "(" + col + " IS NULL OR " + col + " NOT IN (" + c.args(s, values) + "))", nil
	}
}

func splitList(value any) ([]any, bool, error) {
	list, ok := condition.AsList(value)
	if !ok {
		return nil, false, fmt.Errorf("operand must be a list, got %T", value)
	}
	values := make([]any, 0, len(list))
	hasNull := false
	for _, v := range list {
		if v == nil {
			hasNull = true
			continue
		}
		values = append(values, v)
	}
	return values, hasNull, nil
}

func pattern(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
