package engine

import (
	"context"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// Store is the document store surface the engine consumes.
// *store.Store implements it.
type Store interface {
	Indexer
	Find(ctx context.Context, collection string, filter store.Filter, opts store.FindOptions) ([]store.Document, error)
	Count(ctx context.Context, collection string, filter store.Filter) (int64, error)
	Project(ctx context.Context, collection string, filter store.Filter, field string) ([]store.Projection, error)
	CountBy(ctx context.Context, collection, field string) (map[string]int64, error)
	InsertOne(ctx context.Context, collection string, doc store.Document) (string, error)
	InsertMany(ctx context.Context, collection string, docs []store.Document) (store.BulkResult, error)
	UpdateOne(ctx context.Context, collection, id string, set map[string]any) (bool, error)
	BulkWrite(ctx context.Context, collection string, ops []store.WriteOp) (store.BulkResult, error)
	DeleteMany(ctx context.Context, collection string, filter store.Filter) (int64, error)
	MaxBatch() int
}

// Indexer creates store indexes.
type Indexer interface {
	CreateIndex(ctx context.Context, collection string, fields ...string) error
}

var _ Store = (*store.Store)(nil)

// CollectionFor maps a record level to its store collection.
func CollectionFor(level string) (string, error) {
	switch level {
	case record.LevelEntities:
		return store.Organizations, nil
	case record.LevelFilings:
		return store.Filings, nil
	}
	return "", NewPreconditionError("unknown collection level %q (want %s or %s)", level, record.LevelEntities, record.LevelFilings)
}
