// Package record defines the shapes a registry row passes through on its way
// into the store, and the pure Field Mapper that moves it between them.
//
// # Record kinds
//
//   - RawRecord: source field name -> scalar, exactly as a source reader
//     produced it. Never persisted.
//   - MappedRecord: a RawRecord renamed through a FieldMapping, with every
//     unconsumed source field packaged verbatim under originalData and the
//     run's StaticAmendments merged last.
//   - Entity / Filing / Registry: typed views over persisted documents.
//
// # Identity fields
//
// Natural keys (entityId, entityIndex, filingId, filingIndex) are stored as
// trimmed, NFC-normalized strings. Sources disagree on whether an EIN is the
// integer 12345 or the string "12345"; comparing the normalized string form
// makes both land on the same key across runs.
//
// Apply never touches the network or the store.
package record
