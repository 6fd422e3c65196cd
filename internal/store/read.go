package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// FindOptions narrows a Find.
type FindOptions struct {
	// Limit caps the number of documents returned; 0 means no limit.
	Limit int
	// Offset skips that many matching documents.
	Offset int
	// After resumes a scan after the document with this ID (keyset cursor).
	After string
}

// Projection is one document's ID and a single field value.
type Projection struct {
	ID    string
	Value any
}

// Find returns the documents matching filter in insertion order.
func (s *Store) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	args := &argList{}
	where, err := filter.where(s.dialect, args)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}

	var q strings.Builder
	fmt.Fprintf(&q, "SELECT id, doc FROM %s WHERE %s", collection, where)
	if opts.After != "" {
		fmt.Fprintf(&q, " AND seq > (SELECT seq FROM %s WHERE id = %s)", collection, args.raw(s.dialect, opts.After))
	}
	q.WriteString(" ORDER BY seq ASC")
	switch {
	case opts.Limit > 0:
		fmt.Fprintf(&q, " LIMIT %d", opts.Limit)
	case opts.Offset > 0 && s.dialect.name() == "sqlite":
		q.WriteString(" LIMIT -1")
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&q, " OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args.values...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := decode(id, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}

	return docs, nil
}

// FindOne returns the first matching document, or nil when none match.
func (s *Store) FindOne(ctx context.Context, collection string, filter Filter) (Document, error) {
	docs, err := s.Find(ctx, collection, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Count returns the number of documents matching filter.
func (s *Store) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	args := &argList{}
	where, err := filter.where(s.dialect, args)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}

	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", collection, where)
	if err := s.db.QueryRowContext(ctx, q, args.values...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Project returns (ID, field value) pairs for the matching documents in
// insertion order without decoding whole documents.
func (s *Store) Project(ctx context.Context, collection string, filter Filter, field string) ([]Projection, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkField(field); err != nil {
		return nil, err
	}
	args := &argList{}
	where, err := filter.where(s.dialect, args)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", collection, err)
	}

	q := fmt.Sprintf("SELECT id, %s FROM %s WHERE %s ORDER BY seq ASC",
		s.dialect.field(field), collection, where)
	rows, err := s.db.QueryContext(ctx, q, args.values...)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Projection
	for rows.Next() {
		var p Projection
		var v sql.NullString
		if err := rows.Scan(&p.ID, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		if v.Valid {
			p.Value = v.String
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

// CountBy groups the whole collection by field and counts each group.
// Documents without the field are counted under "".
func (s *Store) CountBy(ctx context.Context, collection, field string) (map[string]int64, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkField(field); err != nil {
		return nil, err
	}

	expr := s.dialect.field(field)
	q := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s GROUP BY %s", expr, collection, expr)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count %s by %s: %w", collection, field, err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var key sql.NullString
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out[key.String] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}
