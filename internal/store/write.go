package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrEmptyUpdate is returned for an update that sets no fields.
var ErrEmptyUpdate = errors.New("update sets no fields")

// WriteOp is one operation of a BulkWrite: an insert when Insert is set,
// otherwise a field-level update of the document UpdateID.
type WriteOp struct {
	Insert   Document
	UpdateID string
	Set      map[string]any
}

// InsertOp builds an insert operation.
func InsertOp(doc Document) WriteOp {
	return WriteOp{Insert: doc}
}

// UpdateOp builds a $set operation on an existing document.
func UpdateOp(id string, set map[string]any) WriteOp {
	return WriteOp{UpdateID: id, Set: set}
}

// WriteError reports a per-operation failure that did not abort the batch,
// typically a document that cannot be serialized.
type WriteError struct {
	Index int
	Err   error
}

func (e WriteError) Error() string {
	return fmt.Sprintf("operation %d: %v", e.Index, e.Err)
}

func (e WriteError) Unwrap() error { return e.Err }

// BulkResult summarizes a BulkWrite.
type BulkResult struct {
	// InsertedIDs is aligned with the operations; "" for updates and
	// failed operations.
	InsertedIDs []string
	Inserted    int
	Matched     int
	Errors      []WriteError
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertOne stores doc and returns its ID. A document carrying an _id keeps
// it; otherwise one is generated.
func (s *Store) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", err
	}
	id, err := s.insert(ctx, s.db, collection, doc)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

// InsertMany stores docs in one transaction.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []Document) (BulkResult, error) {
	ops := make([]WriteOp, len(docs))
	for i, d := range docs {
		ops[i] = InsertOp(d)
	}
	return s.BulkWrite(ctx, collection, ops)
}

// UpdateOne applies a field-level $set to the document id. Fields not named
// in set are left untouched. It reports whether the document existed.
func (s *Store) UpdateOne(ctx context.Context, collection, id string, set map[string]any) (bool, error) {
	if err := checkCollection(collection); err != nil {
		return false, err
	}
	matched, err := s.update(ctx, s.db, collection, id, set)
	if err != nil {
		return false, fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	return matched, nil
}

// BulkWrite executes ops in order inside a single transaction.
//
// Operations whose document cannot be serialized are reported in
// BulkResult.Errors and skipped. Any database error rolls the whole batch
// back and is returned.
func (s *Store) BulkWrite(ctx context.Context, collection string, ops []WriteOp) (BulkResult, error) {
	res := BulkResult{InsertedIDs: make([]string, len(ops))}
	if err := checkCollection(collection); err != nil {
		return res, err
	}
	if len(ops) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, op := range ops {
		if op.Insert != nil {
			id, err := s.insert(ctx, tx, collection, op.Insert)
			if err != nil {
				if IsDocumentError(err) {
					res.Errors = append(res.Errors, WriteError{Index: i, Err: err})
					continue
				}
				return BulkResult{InsertedIDs: make([]string, len(ops))}, fmt.Errorf("bulk write %s op %d: %w", collection, i, err)
			}
			res.InsertedIDs[i] = id
			res.Inserted++
			continue
		}

		matched, err := s.update(ctx, tx, collection, op.UpdateID, op.Set)
		if err != nil {
			if IsDocumentError(err) {
				res.Errors = append(res.Errors, WriteError{Index: i, Err: err})
				continue
			}
			return BulkResult{InsertedIDs: make([]string, len(ops))}, fmt.Errorf("bulk write %s op %d: %w", collection, i, err)
		}
		if matched {
			res.Matched++
		}
	}

	if err := tx.Commit(); err != nil {
		return BulkResult{InsertedIDs: make([]string, len(ops))}, fmt.Errorf("commit bulk write: %w", err)
	}
	return res, nil
}

// DeleteMany removes every document matching filter and returns the count.
func (s *Store) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	args := &argList{}
	where, err := filter.where(s.dialect, args)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", collection, where), args.values...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete from %s: rows affected: %w", collection, err)
	}
	return n, nil
}

// encodeError marks failures caused by the document itself rather than the
// database.
type encodeError struct{ err error }

func (e encodeError) Error() string { return e.err.Error() }
func (e encodeError) Unwrap() error { return e.err }

// IsDocumentError reports whether err was caused by the document or update
// itself (unserializable value, bad field name) rather than the database.
func IsDocumentError(err error) bool {
	var e encodeError
	return errors.As(err, &e)
}

func (s *Store) insert(ctx context.Context, x execer, collection string, doc Document) (string, error) {
	body, err := encode(doc)
	if err != nil {
		return "", encodeError{err}
	}
	id := doc.ID()
	if id == "" {
		id = s.ids.Generate()
	}

	args := &argList{}
	q := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (%s, %s)",
		collection, args.raw(s.dialect, id), s.dialect.docParam(2))
	args.values = append(args.values, body)
	if _, err := x.ExecContext(ctx, q, args.values...); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) update(ctx context.Context, x execer, collection, id string, set map[string]any) (bool, error) {
	if len(set) == 0 {
		return false, encodeError{ErrEmptyUpdate}
	}
	for k := range set {
		if k == IDField {
			return false, encodeError{fmt.Errorf("cannot update %s", IDField)}
		}
		if err := checkField(k); err != nil {
			return false, encodeError{err}
		}
	}

	args := &argList{}
	clause, err := s.dialect.setSQL(set, args)
	if err != nil {
		return false, encodeError{err}
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", collection, clause, args.raw(s.dialect, id))
	res, err := x.ExecContext(ctx, q, args.values...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
