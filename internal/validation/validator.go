package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Error is one failed rule.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
	// Code is the failure sub-kind, e.g. "null" or "min".
	Code string `json:"code"`
}

func (e Error) String() string {
	return e.Field + " " + e.Message
}

// Errors is the error list of one validation pass.
type Errors []Error

func (es Errors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// For returns the errors recorded for field.
func (es Errors) For(field string) Errors {
	var out Errors
	for _, e := range es {
		if e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

// Result is the outcome of Run.
type Result struct {
	Valid  bool
	Errors Errors
}

// Run evaluates rules against s. Rules are independent and run
// concurrently; guards are evaluated before a rule starts and a skipped
// rule passes. With no rules the result is valid.
func Run(ctx context.Context, rules []Rule, s Subject) (Result, error) {
	type outcome struct {
		code string
		err  error
	}
	outcomes := make([]outcome, len(rules))

	var wg sync.WaitGroup
	for i, r := range rules {
		if skip(r, s) {
			continue
		}
		check, ok := validators[r.Kind]
		if !ok {
			outcomes[i].err = fmt.Errorf("validation rule on %s: unsupported kind %q", r.Field, r.Kind)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := check(ctx, r, s)
			outcomes[i] = outcome{code: code, err: err}
		}()
	}
	wg.Wait()

	res := Result{Valid: true}
	var errs []error
	for i, o := range outcomes {
		if o.err != nil {
			errs = append(errs, o.err)
			continue
		}
		if o.code == "" {
			continue
		}
		r := rules[i]
		res.Valid = false
		res.Errors = append(res.Errors, Error{
			Field:   r.Field,
			Message: message(r, o.code),
			Kind:    r.Kind,
			Code:    o.code,
		})
	}
	if err := errors.Join(errs...); err != nil {
		return Result{}, err
	}
	return res, nil
}

func skip(r Rule, s Subject) bool {
	if r.If != nil && !r.If.eval(s) {
		return true
	}
	if r.Unless != nil && r.Unless.eval(s) {
		return true
	}
	return false
}
