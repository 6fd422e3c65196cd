package engine

import (
	"context"
	"fmt"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// RequiredIndexes lists, per collection, the composite indexes every
// classification, sync and match run relies on. Without them each per-record
// lookup is a full collection scan.
var RequiredIndexes = map[string][][]string{
	store.Organizations: {
		{record.FieldRegistryID, record.FieldEntityID},
		{record.FieldRegistryID, record.FieldEntityIndex},
	},
	store.Filings: {
		{record.FieldRegistryID, record.FieldEntityID},
		{record.FieldEntityLink},
		{record.FieldRegistryID, record.FieldFilingID},
		{record.FieldRegistryID, record.FieldFilingIndex},
	},
}

// EnsureIndex creates one composite index. It is idempotent.
func EnsureIndex(ctx context.Context, ix Indexer, collection string, fields []string) error {
	if err := ix.CreateIndex(ctx, collection, fields...); err != nil {
		return fmt.Errorf("ensure index %v on %s: %w", fields, collection, err)
	}
	return nil
}

// EnsureIndexes creates the required indexes of the given collections, or
// of every collection when none are named.
func EnsureIndexes(ctx context.Context, ix Indexer, collections ...string) error {
	if len(collections) == 0 {
		collections = []string{store.Organizations, store.Filings}
	}
	for _, c := range collections {
		for _, fields := range RequiredIndexes[c] {
			if err := EnsureIndex(ctx, ix, c, fields); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureKeyIndex adds (registryID, field) for a unique or match field outside
// the required set.
func ensureKeyIndex(ctx context.Context, ix Indexer, collection, field string) error {
	for _, fields := range RequiredIndexes[collection] {
		if len(fields) == 2 && fields[1] == field {
			return nil
		}
	}
	return EnsureIndex(ctx, ix, collection, []string{record.FieldRegistryID, field})
}
