package condition

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationResult lists the structural problems found in a condition.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	Problems []string
}

// Err folds the problems into a single *Error, or returns nil.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Message: strings.Join(r.Problems, "; ")}
}

// Validate checks operand arity, pattern syntax and pagination bounds of a
// condition built in Go code. Decoded conditions are already checked by Parse.
//
// Validate is a pure function with no side effects.
func Validate(c Condition) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateWhere("where", c.Where)

	for i, key := range c.Order {
		if key.Field == "" {
			v.addProblem("order[%d]: empty field name", i)
		}
		if key.Direction != Asc && key.Direction != Desc {
			v.addProblem("order[%d]: direction must be 1 or -1", i)
		}
	}
	if c.Skip < 0 {
		v.addProblem("skip: must not be negative")
	}
	if c.Limit < 0 {
		v.addProblem("limit: must not be negative")
	}

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateWhere(path string, w Where) {
	seen := make(map[string]bool, len(w.Terms))
	for _, t := range w.Terms {
		if t.Field == "" {
			v.addProblem("%s: empty field name", path)
			continue
		}
		if seen[t.Field] {
			v.addProblem("%s.%s: duplicate field", path, t.Field)
		}
		seen[t.Field] = true
		v.validateConstraint(path+"."+t.Field, t.Constraint)
	}
	for i, g := range w.Or {
		v.validateWhere(fmt.Sprintf("%s.or[%d]", path, i), g)
	}
}

func (v *validator) validateConstraint(path string, c Constraint) {
	switch con := c.(type) {
	case nil:
		v.addProblem("%s: missing constraint", path)
	case Equals, *Equals:
	case Ops:
		v.validateOps(path, con)
	case *Ops:
		v.validateOps(path, *con)
	default:
		v.addProblem("%s: unsupported constraint %T", path, c)
	}
}

func (v *validator) validateOps(path string, ops Ops) {
	if len(ops) == 0 {
		v.addProblem("%s: empty operator set", path)
	}
	for _, operand := range ops {
		opPath := path + "." + string(operand.Op)
		switch operand.Op {
		case OpGt, OpGte, OpLt, OpLte, OpNe:
		case OpBetween:
			list, ok := asList(operand.Value)
			if !ok || len(list) != 2 {
				v.addProblem("%s: between requires exactly two operands", opPath)
			}
		case OpIn, OpNin:
			if _, ok := asList(operand.Value); !ok {
				v.addProblem("%s: requires a list operand", opPath)
			}
		case OpLike, OpNlike:
			s, ok := operand.Value.(string)
			if !ok {
				v.addProblem("%s: requires a string pattern", opPath)
				continue
			}
			if _, err := regexp.Compile(s); err != nil {
				v.addProblem("%s: invalid pattern: %v", opPath, err)
			}
		default:
			v.addProblem("%s: unknown operator", opPath)
		}
	}
}
