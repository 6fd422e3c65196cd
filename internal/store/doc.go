// Package store provides the document store the reconciliation engine writes
// registry data into.
//
// Every collection is a table of (seq, id, doc) rows where doc is a JSON
// object. The store speaks a small document protocol on top of it:
//   - Find / Count / Project / CountBy: equality, set-membership and
//     existence filters over top-level document fields
//   - InsertOne / InsertMany
//   - UpdateOne: field-level $set, other fields are left untouched
//   - BulkWrite: mixed inserts and updates in one transaction
//   - DeleteMany
//   - CreateIndex: composite expression index, idempotent
//
// # Collections
//
// registries, organizations and filings. The names are a contract with
// downstream readers.
//
// # Determinism
//
// All reads are ordered by seq, the insertion order, so repeated reads of an
// unchanged store return documents in the same order.
//
// # Backends
//
//   - SQLite (github.com/mattn/go-sqlite3): any path, ":memory:" or "file:"
//     URI. WAL mode, NORMAL synchronous, 5 second busy timeout, one open
//     connection.
//   - PostgreSQL (github.com/jackc/pgx/v5/stdlib): "postgres://" or
//     "postgresql://" DSN, JSONB documents.
//
// Document IDs are UUIDv7 strings unless the store is opened with
// WithIDGenerator.
package store
