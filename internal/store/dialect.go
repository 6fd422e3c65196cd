package store

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

//go:embed schema/postgres.sql
var postgresSchema string

// dialect isolates the SQL that differs between the JSON1 SQLite backend and
// the JSONB PostgreSQL backend.
type dialect interface {
	name() string
	driver() string
	schema() string
	placeholder(n int) string
	// field renders a top-level document field as a comparable SQL expression.
	field(name string) string
	// exists renders a presence test for a top-level document field.
	exists(name string) string
	bind(v any) any
	docParam(n int) string
	// setSQL renders the SET clause of a field-level update.
	setSQL(set map[string]any, args *argList) (string, error)
	indexSQL(table, name string, fields []string) string
	// maxBind is the number of IN-list values callers should send per query.
	maxBind() int
}

type sqliteDialect struct{}

func (sqliteDialect) name() string   { return "sqlite" }
func (sqliteDialect) driver() string { return "sqlite3" }
func (sqliteDialect) schema() string { return sqliteSchema }

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) field(name string) string {
	if name == IDField {
		return "id"
	}
	return fmt.Sprintf("json_extract(doc, '$.%s')", name)
}

func (sqliteDialect) exists(name string) string {
	if name == IDField {
		return "id IS NOT NULL"
	}
	return fmt.Sprintf("json_type(doc, '$.%s') IS NOT NULL", name)
}

func (sqliteDialect) bind(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return v
}

func (sqliteDialect) docParam(int) string { return "?" }

func (d sqliteDialect) setSQL(set map[string]any, args *argList) (string, error) {
	keys := sortedKeys(set)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(set[k])
		if err != nil {
			return "", fmt.Errorf("marshal field %s: %w", k, err)
		}
		parts = append(parts, fmt.Sprintf("'$.%s', json(%s)", k, args.raw(d, string(raw))))
	}
	return "doc = json_set(doc, " + strings.Join(parts, ", ") + ")", nil
}

func (sqliteDialect) indexSQL(table, name string, fields []string) string {
	exprs := make([]string, len(fields))
	for i, f := range fields {
		exprs[i] = fmt.Sprintf("json_extract(doc, '$.%s')", f)
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, strings.Join(exprs, ", "))
}

func (sqliteDialect) maxBind() int { return 500 }

type postgresDialect struct{}

func (postgresDialect) name() string   { return "postgres" }
func (postgresDialect) driver() string { return "pgx" }
func (postgresDialect) schema() string { return postgresSchema }

func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) field(name string) string {
	if name == IDField {
		return "id"
	}
	return fmt.Sprintf("(doc->>'%s')", name)
}

func (postgresDialect) exists(name string) string {
	if name == IDField {
		return "id IS NOT NULL"
	}
	return fmt.Sprintf("(doc->'%s') IS NOT NULL", name)
}

// bind renders values the way ->> renders them, since JSONB text extraction
// always yields text.
func (postgresDialect) bind(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func (d postgresDialect) docParam(n int) string { return d.placeholder(n) + "::jsonb" }

func (d postgresDialect) setSQL(set map[string]any, args *argList) (string, error) {
	raw, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("marshal update: %w", err)
	}
	return "doc = doc || " + args.raw(d, string(raw)) + "::jsonb", nil
}

func (postgresDialect) indexSQL(table, name string, fields []string) string {
	exprs := make([]string, len(fields))
	for i, f := range fields {
		exprs[i] = fmt.Sprintf("(doc->>'%s')", f)
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, strings.Join(exprs, ", "))
}

func (postgresDialect) maxBind() int { return 5000 }

// dialectFor picks the backend from the DSN scheme.
func dialectFor(dsn string) dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return postgresDialect{}
	}
	return sqliteDialect{}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// statements splits an embedded schema into individual statements.
func statements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
