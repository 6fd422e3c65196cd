// Package engine reconciles imported registry records with the document
// store.
//
// It has four parts, each consumed by name:
//
//   - EnsureIndexes: creates the composite (registryID, key) indexes every
//     lookup relies on; idempotent.
//   - Classifier: read-only partition of a batch into new and existing
//     records using bulk set-membership queries.
//   - Synchronizer: writes a batch with one of four caller-chosen strategies
//     (insert, replace, upsert, refresh) and accounts for every record in a
//     SyncResult.
//   - Matcher: links each unlinked filing to exactly one entity, optionally
//     synthesizing an orphan entity, with cooperative cancellation.
//
// Registry metadata helpers (EnsureRegistry, MarkCompleted, Status) round it
// off.
//
// ORDERING:
// Records are processed in input order and filings in store insertion order.
// Only classification queries run concurrently, and they never write.
//
// FAILURE POLICY:
// Per-record problems are accumulated in result objects and the batch goes
// on. Integrity violations (two stored matches for one key) are reported per
// record as *IntegrityError and never resolved by picking one. Store errors
// abort the run. Interrupting MatchAll is not an error.
package engine
