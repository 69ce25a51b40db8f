// Package querysql compiles conditions into parameterized SQL for the SQL
// backends.
//
// Values are never interpolated; every literal becomes a placeholder.
// Every SELECT carries an ORDER BY ending in the primary key so result
// order is deterministic. Operators keep the reference matcher's semantics:
// ne, nin and nlike also match NULL, and like is a regular expression.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

// Dialect captures the syntax differences between SQL backends.
type Dialect struct {
	Name string

	// Placeholder renders the n-th (1-based) parameter.
	Placeholder func(n int) string

	// Match renders a regular-expression test of column against param.
	Match func(column, param string) string

	// NoLimit is the LIMIT value meaning "unbounded", used when only an
	// offset is set.
	NoLimit string

	// NullsFirst appends NULLS FIRST/LAST so NULL sorts lowest.
	NullsFirst bool

	// ColumnType maps a field to its column type.
	ColumnType func(f schema.Field) string
}

// SQLite uses ? placeholders and a registered REGEXP function.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	Match: func(column, param string) string {
		return column + " REGEXP " + param
	},
	NoLimit:    "-1",
	ColumnType: sqliteColumnType,
}

// Postgres uses $n placeholders and the ~ operator.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Match: func(column, param string) string {
		return column + "::text ~ " + param
	},
	NoLimit:    "ALL",
	NullsFirst: true,
	ColumnType: postgresColumnType,
}

// CountColumn is the alias of the COUNT(*) column.
const CountColumn = "count"

// Quote quotes an identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Compiler compiles conditions for one dialect.
type Compiler struct {
	Dialect Dialect
}

// New creates a compiler for d.
func New(d Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

// stmt accumulates SQL text and parameters.
type stmt struct {
	d      Dialect
	sb     strings.Builder
	params []any
}

func (s *stmt) arg(v any) string {
	s.params = append(s.params, v)
	return s.d.Placeholder(len(s.params))
}

func (s *stmt) write(parts ...string) {
	for _, p := range parts {
		s.sb.WriteString(p)
	}
}

// Select compiles a query over table. columns nil selects every column.
// pk is the final ORDER BY tiebreaker.
func (c *Compiler) Select(table string, columns []string, cond condition.Condition, pk string) (string, []any, error) {
	s := &stmt{d: c.Dialect}
	s.write("SELECT ", columnList(columns), " FROM ", Quote(table))
	if err := c.where(s, cond.Where); err != nil {
		return "", nil, fmt.Errorf("compile where: %w", err)
	}
	s.write(" ORDER BY ", c.orderBy(cond.Order, pk))
	switch {
	case cond.Limit > 0:
		s.write(" LIMIT ", strconv.Itoa(cond.Limit))
	case cond.Skip > 0:
		s.write(" LIMIT ", c.Dialect.NoLimit)
	}
	if cond.Skip > 0 {
		s.write(" OFFSET ", strconv.Itoa(cond.Skip))
	}
	return s.sb.String(), s.params, nil
}

// Count compiles SELECT COUNT(*) over the matching rows.
func (c *Compiler) Count(table string, w condition.Where) (string, []any, error) {
	s := &stmt{d: c.Dialect}
	s.write("SELECT COUNT(*) AS ", Quote(CountColumn), " FROM ", Quote(table))
	if err := c.where(s, w); err != nil {
		return "", nil, fmt.Errorf("compile where: %w", err)
	}
	return s.sb.String(), s.params, nil
}

// Insert compiles an INSERT of values into columns. When returning is set
// the inserted row is returned.
func (c *Compiler) Insert(table string, columns []string, values []any, returning bool) (string, []any, error) {
	if len(columns) != len(values) {
		return "", nil, fmt.Errorf("compile insert: %d columns, %d values", len(columns), len(values))
	}
	s := &stmt{d: c.Dialect}
	if len(columns) == 0 {
		s.write("INSERT INTO ", Quote(table), " DEFAULT VALUES")
	} else {
		s.write("INSERT INTO ", Quote(table), " (", columnList(columns), ") VALUES (", c.args(s, values), ")")
	}
	if returning {
		s.write(" RETURNING *")
	}
	return s.sb.String(), s.params, nil
}

// Upsert compiles an INSERT that replaces the non-key columns of an
// existing row with the same primary key.
func (c *Compiler) Upsert(table string, columns []string, values []any, pk string) (string, []any, error) {
	sql, params, err := c.Insert(table, columns, values, false)
	if err != nil {
		return "", nil, err
	}
	var sets []string
	for _, col := range columns {
		if col == pk {
			continue
		}
		sets = append(sets, Quote(col)+" = excluded."+Quote(col))
	}
	if len(sets) == 0 {
		sql += " ON CONFLICT (" + Quote(pk) + ") DO NOTHING"
	} else {
		sql += " ON CONFLICT (" + Quote(pk) + ") DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return sql + " RETURNING *", params, nil
}

// Update compiles an UPDATE setting columns on the matching rows.
func (c *Compiler) Update(table string, columns []string, values []any, w condition.Where) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("compile update: no columns to set")
	}
	if len(columns) != len(values) {
		return "", nil, fmt.Errorf("compile update: %d columns, %d values", len(columns), len(values))
	}
	s := &stmt{d: c.Dialect}
	s.write("UPDATE ", Quote(table), " SET ")
	for i, col := range columns {
		if i > 0 {
			s.write(", ")
		}
		s.write(Quote(col), " = ", s.arg(values[i]))
	}
	if err := c.where(s, w); err != nil {
		return "", nil, fmt.Errorf("compile where: %w", err)
	}
	return s.sb.String(), s.params, nil
}

// Delete compiles a DELETE of the matching rows.
func (c *Compiler) Delete(table string, w condition.Where) (string, []any, error) {
	s := &stmt{d: c.Dialect}
	s.write("DELETE FROM ", Quote(table))
	if err := c.where(s, w); err != nil {
		return "", nil, fmt.Errorf("compile where: %w", err)
	}
	return s.sb.String(), s.params, nil
}

func (c *Compiler) args(s *stmt, values []any) string {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = s.arg(v)
	}
	return strings.Join(ph, ", ")
}

func columnList(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = Quote(col)
	}
	return strings.Join(quoted, ", ")
}

func (c *Compiler) orderBy(order []condition.OrderKey, pk string) string {
	parts := make([]string, 0, len(order)+1)
	seenPK := false
	for _, key := range order {
		parts = append(parts, c.orderTerm(key.Field, key.Direction))
		seenPK = seenPK || key.Field == pk
	}
	if !seenPK && pk != "" {
		parts = append(parts, c.orderTerm(pk, condition.Asc))
	}
	return strings.Join(parts, ", ")
}

func (c *Compiler) orderTerm(field string, dir condition.Direction) string {
	term := Quote(field) + " " + dir.String()
	if c.Dialect.NullsFirst {
		if dir == condition.Desc {
			term += " NULLS LAST"
		} else {
			term += " NULLS FIRST"
		}
	}
	return term
}
