package store

import (
	"context"
	"fmt"
	"strings"
)

// IndexName is the deterministic name of the index over fields of collection.
func IndexName(collection string, fields []string) string {
	return strings.ToLower("idx_" + collection + "_" + strings.Join(fields, "_"))
}

// CreateIndex creates a composite index over document fields. Calling it
// again for the same fields is a no-op.
func (s *Store) CreateIndex(ctx context.Context, collection string, fields ...string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("create index on %s: no fields", collection)
	}
	for _, f := range fields {
		if f == IDField {
			return fmt.Errorf("create index on %s: %s is already unique", collection, IDField)
		}
		if err := checkField(f); err != nil {
			return fmt.Errorf("create index on %s: %w", collection, err)
		}
	}

	q := s.dialect.indexSQL(collection, IndexName(collection, fields), fields)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create index on %s: %w", collection, err)
	}
	return nil
}

// Indexes lists the document indexes of collection by name.
func (s *Store) Indexes(ctx context.Context, collection string) ([]string, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	var q string
	switch s.dialect.(type) {
	case postgresDialect:
		q = "SELECT indexname FROM pg_indexes WHERE tablename = $1 AND indexname LIKE 'idx\\_%' ORDER BY indexname"
	default:
		q = "SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name LIKE 'idx\\_%' ESCAPE '\\' ORDER BY name"
	}

	rows, err := s.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, fmt.Errorf("list indexes of %s: %w", collection, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan index name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}
	return names, nil
}
