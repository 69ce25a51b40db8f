package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/caminte/internal/schema"
)

// CreateTable compiles CREATE TABLE IF NOT EXISTS for def. A generated
// integer primary key becomes the dialect's auto-increment column.
func (c *Compiler) CreateTable(def *schema.Definition) string {
	pks := def.PrimaryKeys()
	var cols []string
	for _, f := range def.Fields() {
		cols = append(cols, c.columnDef(def, f, len(pks) == 1))
	}
	if len(pks) > 1 {
		names := make([]string, len(pks))
		for i, pk := range pks {
			names[i] = Quote(pk.Field)
		}
		cols = append(cols, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Quote(def.Name), strings.Join(cols, ", "))
}

// AddColumn compiles ALTER TABLE ADD COLUMN for f.
func (c *Compiler) AddColumn(table string, f schema.Field) string {
	col := Quote(f.Name) + " " + c.Dialect.ColumnType(f)
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", Quote(table), col)
}

// CreateIndex compiles CREATE INDEX IF NOT EXISTS for idx on table.
func (c *Compiler) CreateIndex(table string, idx schema.Index) string {
	cols := make([]string, len(idx.Fields))
	for i, f := range idx.Fields {
		cols[i] = Quote(f)
	}
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, Quote(idx.Name), Quote(table), strings.Join(cols, ", "))
}

func (c *Compiler) columnDef(def *schema.Definition, f schema.Field, singlePK bool) string {
	isPK := singlePK && f.Name == def.PrimaryKey()
	if isPK && def.IsGenerated() && isInteger(f.Type) {
		if c.Dialect.Name == Postgres.Name {
			return Quote(f.Name) + " BIGSERIAL PRIMARY KEY"
		}
		return Quote(f.Name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	col := Quote(f.Name) + " " + c.Dialect.ColumnType(f)
	if isPK {
		col += " PRIMARY KEY"
	} else if f.NotNull {
		col += " NOT NULL"
	}
	return col
}

func isInteger(t schema.FieldType) bool {
	return t == schema.TypeInt || t == schema.TypeNumber
}

func sqliteColumnType(f schema.Field) string {
	switch f.Type {
	case schema.TypeInt, schema.TypeBoolean, schema.TypeDate:
		return "INTEGER"
	case schema.TypeNumber:
		return "REAL"
	default:
		return "TEXT"
	}
}

func postgresColumnType(f schema.Field) string {
	switch f.Type {
	case schema.TypeInt:
		return "BIGINT"
	case schema.TypeNumber:
		if f.Precision > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", f.Precision, f.Scale)
		}
		return "DOUBLE PRECISION"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDate:
		return "TIMESTAMPTZ"
	case schema.TypeUUID:
		return "UUID"
	case schema.TypeString:
		return "VARCHAR(255)"
	case schema.TypeJSON:
		return "JSONB"
	default:
		if f.Type.IsStructured() {
			return "JSONB"
		}
		return "TEXT"
	}
}
