package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIndex_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateIndex(ctx, Filings, "registryID", "filingId"))
	}

	names, err := s.Indexes(ctx, Filings)
	require.NoError(t, err)
	assert.Equal(t, []string{"idx_filings_registryid_filingid"}, names)
}

func TestCreateIndex_UsedByQueries(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.CreateIndex(ctx, Organizations, "registryID", "entityId"))

	args := &argList{}
	where, err := Where(Eq("registryID", "r1"), Eq("entityId", "5")).where(s.dialect, args)
	require.NoError(t, err)

	rows, err := s.db.QueryContext(ctx, "EXPLAIN QUERY PLAN SELECT id FROM organizations WHERE "+where, args.values...)
	require.NoError(t, err)
	defer rows.Close()

	var plan string
	for rows.Next() {
		var id, parent, notused int
		var detail string
		require.NoError(t, rows.Scan(&id, &parent, &notused, &detail))
		plan += detail
	}
	assert.Contains(t, plan, "idx_organizations_registryid_entityid")
}

func TestCreateIndex_Validation(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	assert.Error(t, s.CreateIndex(ctx, Filings))
	assert.Error(t, s.CreateIndex(ctx, Filings, IDField))
	assert.Error(t, s.CreateIndex(ctx, Filings, "bad field"))
	assert.ErrorIs(t, s.CreateIndex(ctx, "people", "name"), ErrUnknownCollection)
}

func TestIndexes_IncludesSchemaIndex(t *testing.T) {
	s := createTestStore(t)

	names, err := s.Indexes(t.Context(), Registries)
	require.NoError(t, err)
	assert.Equal(t, []string{"idx_registries_name"}, names)
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "idx_filings_entitylink", IndexName(Filings, []string{"entityLink"}))
}
