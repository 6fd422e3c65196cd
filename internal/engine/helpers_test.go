package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
	"github.com/roach88/regeindary/internal/testutil"
)

const testRegistry = "reg-1"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := store.Open(path, store.WithIDGenerator(testutil.NewSequentialIDGenerator("doc")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mapped(fields map[string]any) record.MappedRecord {
	return record.MappedRecord{Fields: fields, OriginalData: map[string]any{}}
}

func entityRecord(id, name string) record.MappedRecord {
	return mapped(map[string]any{
		record.FieldRegistryID: testRegistry,
		record.FieldEntityID:   id,
		record.FieldEntityName: name,
	})
}

func seedEntities(t *testing.T, s *store.Store, docs ...store.Document) []string {
	t.Helper()
	res, err := s.InsertMany(t.Context(), store.Organizations, docs)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	return res.InsertedIDs
}

func seedFilings(t *testing.T, s *store.Store, docs ...store.Document) []string {
	t.Helper()
	res, err := s.InsertMany(t.Context(), store.Filings, docs)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	return res.InsertedIDs
}

func entityDoc(id, name string) store.Document {
	return store.Document{
		record.FieldRegistryID: testRegistry,
		record.FieldEntityID:   id,
		record.FieldEntityName: name,
	}
}

func filingDoc(entityID string) store.Document {
	return store.Document{
		record.FieldRegistryID: testRegistry,
		record.FieldEntityID:   entityID,
		"totalIncome":          1000,
	}
}

func findByKey(t *testing.T, s *store.Store, collection, field, key string) []store.Document {
	t.Helper()
	docs, err := s.Find(t.Context(), collection, store.Where(
		store.Eq(record.FieldRegistryID, testRegistry),
		store.Eq(field, key),
	), store.FindOptions{})
	require.NoError(t, err)
	return docs
}

func getDoc(t *testing.T, s *store.Store, collection, id string) store.Document {
	t.Helper()
	doc, err := s.FindOne(t.Context(), collection, store.Where(store.Eq(store.IDField, id)))
	require.NoError(t, err)
	require.NotNil(t, doc, "document %s", id)
	return doc
}

// mockStore is a testify mock of Store for failure paths.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateIndex(ctx context.Context, collection string, fields ...string) error {
	args := m.Called(ctx, collection, fields)
	return args.Error(0)
}

func (m *mockStore) Find(ctx context.Context, collection string, filter store.Filter, opts store.FindOptions) ([]store.Document, error) {
	args := m.Called(ctx, collection, filter, opts)
	docs, _ := args.Get(0).([]store.Document)
	return docs, args.Error(1)
}

func (m *mockStore) Count(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	args := m.Called(ctx, collection, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Project(ctx context.Context, collection string, filter store.Filter, field string) ([]store.Projection, error) {
	args := m.Called(ctx, collection, filter, field)
	rows, _ := args.Get(0).([]store.Projection)
	return rows, args.Error(1)
}

func (m *mockStore) CountBy(ctx context.Context, collection, field string) (map[string]int64, error) {
	args := m.Called(ctx, collection, field)
	counts, _ := args.Get(0).(map[string]int64)
	return counts, args.Error(1)
}

func (m *mockStore) InsertOne(ctx context.Context, collection string, doc store.Document) (string, error) {
	args := m.Called(ctx, collection, doc)
	return args.String(0), args.Error(1)
}

func (m *mockStore) InsertMany(ctx context.Context, collection string, docs []store.Document) (store.BulkResult, error) {
	args := m.Called(ctx, collection, docs)
	return args.Get(0).(store.BulkResult), args.Error(1)
}

func (m *mockStore) UpdateOne(ctx context.Context, collection, id string, set map[string]any) (bool, error) {
	args := m.Called(ctx, collection, id, set)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) BulkWrite(ctx context.Context, collection string, ops []store.WriteOp) (store.BulkResult, error) {
	args := m.Called(ctx, collection, ops)
	return args.Get(0).(store.BulkResult), args.Error(1)
}

func (m *mockStore) DeleteMany(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	args := m.Called(ctx, collection, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) MaxBatch() int {
	return m.Called().Int(0)
}

func newMockStore() *mockStore {
	m := &mockStore{}
	m.On("CreateIndex", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.On("MaxBatch").Return(500).Maybe()
	return m
}

// smallBatchStore forces the classifier to split lookups into many chunks.
type smallBatchStore struct {
	*store.Store
	batch int
}

func (s smallBatchStore) MaxBatch() int { return s.batch }
