package registry

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
	"github.com/roach88/regeindary/internal/testutil"
)

func setupImporter(t *testing.T) (*store.Store, *Importer, *Definition) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "import.db"),
		store.WithIDGenerator(testutil.NewSequentialIDGenerator("doc")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	def, err := Load(filepath.Join("testdata", "irs.yaml"))
	require.NoError(t, err)

	clock := testutil.NewDeterministicClock(time.Time{}, time.Hour)
	im := NewImporter(st,
		WithImportLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithImportClock(clock.Now),
	)
	return st, im, def
}

var irsEntities = []record.RawRecord{
	{"EIN": "000012345", "NAME": "Alpha Foundation", "ZIP": "10001"},
	{"EIN": "123456789", "NAME": "Beta Society", "ZIP": "94105", "SUBSECTION": "03"},
}

func TestImporter_InsertThenSkip(t *testing.T) {
	ctx := context.Background()
	st, im, def := setupImporter(t)

	res, err := im.Import(ctx, def, ImportRequest{Level: record.LevelEntities, Strategy: engine.StrategyInsert, Records: irsEntities})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 2, res.Sync.Inserted)
	require.NotNil(t, res.Registry.LastCompletedAt)
	assert.Equal(t, testutil.Epoch, *res.Registry.LastCompletedAt)

	stored, found, err := engine.FindRegistry(ctx, st, def.Name)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, res.Registry.ID, stored.ID)
	require.NotNil(t, stored.LastCompletedAt)

	docs, err := st.Find(ctx, store.Organizations, store.Where(store.Eq(record.FieldEntityID, "123456789")), store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Beta Society", docs[0][record.FieldEntityName])
	assert.Equal(t, res.Registry.ID, docs[0][record.FieldRegistryID])
	assert.Equal(t, def.Name, docs[0][record.FieldRegistryName])
	assert.Equal(t, map[string]any{"SUBSECTION": "03"}, docs[0][record.FieldOriginalData])

	again, err := im.Import(ctx, def, ImportRequest{Level: record.LevelEntities, Strategy: engine.StrategyInsert, Records: irsEntities})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.Registry.ID, again.Registry.ID)
	assert.Equal(t, 0, again.Sync.Inserted)
	assert.Equal(t, 2, again.Sync.Skipped)
	assert.Equal(t, testutil.Epoch.Add(time.Hour), *again.Registry.LastCompletedAt)
}

func TestImporter_Preview(t *testing.T) {
	ctx := context.Background()
	st, im, def := setupImporter(t)

	_, err := im.Import(ctx, def, ImportRequest{Level: record.LevelEntities, Strategy: engine.StrategyInsert, Records: irsEntities[:1]})
	require.NoError(t, err)

	b, cls, err := im.Preview(ctx, def, record.LevelEntities, irsEntities)
	require.NoError(t, err)
	newCount, existingCount := cls.Counts()
	assert.Equal(t, 1, newCount)
	assert.Equal(t, 1, existingCount)
	assert.Equal(t, []int{1}, cls.NewIndices)
	assert.Equal(t, "Beta Society", b.Records[1].Fields[record.FieldEntityName])

	n, err := st.Count(ctx, store.Organizations, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "preview must not write records")

	res, err := im.Write(ctx, b, engine.StrategyInsert, engine.ReplaceConfirmation{}, &cls)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sync.Inserted)
	assert.Equal(t, 1, res.Sync.Skipped)
}

func TestImporter_MappingWarnings(t *testing.T) {
	ctx := context.Background()
	st, im, def := setupImporter(t)

	res, err := im.Import(ctx, def, ImportRequest{
		Level:    record.LevelFilings,
		Strategy: engine.StrategyInsert,
		Records: []record.RawRecord{
			{"OBJECT_ID": "F1", "EIN": "12345", "TAX_PERIOD": "202312", "TOTREVENUE": "1,500"},
			{"OBJECT_ID": "F2", "EIN": "12345", "TAX_PERIOD": "2023-13", "TOTREVENUE": "900"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sync.Inserted)
	require.Len(t, res.MappingWarnings, 1)
	assert.Equal(t, "fiscalYearEnd", res.MappingWarnings[0].Target)

	docs, err := st.Find(ctx, store.Filings, store.Filter{}, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "2023-12-01", docs[0]["fiscalYearEnd"])
	assert.Equal(t, 1500.0, docs[0]["totalIncome"])
	assert.Equal(t, "2023-13", docs[1]["fiscalYearEnd"], "unparsed values are stored raw on insert")
}

func TestImporter_MissingLevel(t *testing.T) {
	ctx := context.Background()
	_, im, _ := setupImporter(t)

	def, err := Load(filepath.Join("testdata", "acnc.json"))
	require.NoError(t, err)

	_, err = im.Import(ctx, def, ImportRequest{Level: record.LevelFilings, Strategy: engine.StrategyInsert})
	assert.True(t, engine.IsPreconditionError(err))
}

func TestImporter_ReplaceNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	st, im, def := setupImporter(t)

	_, err := im.Import(ctx, def, ImportRequest{Level: record.LevelEntities, Strategy: engine.StrategyInsert, Records: irsEntities})
	require.NoError(t, err)

	_, err = im.Import(ctx, def, ImportRequest{Level: record.LevelEntities, Strategy: engine.StrategyReplace, Records: irsEntities[:1]})
	assert.ErrorIs(t, err, engine.ErrReplaceNotConfirmed)

	res, err := im.Import(ctx, def, ImportRequest{
		Level:    record.LevelEntities,
		Strategy: engine.StrategyReplace,
		Records:  irsEntities[:1],
		Confirm:  engine.ConfirmReplace,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Sync.Deleted)
	assert.Equal(t, 1, res.Sync.Inserted)

	n, err := st.Count(ctx, store.Organizations, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMatcher_UsesDefinitionRule(t *testing.T) {
	ctx := context.Background()
	st, im, def := setupImporter(t)

	ents, err := im.Import(ctx, def, ImportRequest{Level: record.LevelEntities, Strategy: engine.StrategyInsert, Records: irsEntities})
	require.NoError(t, err)
	_, err = im.Import(ctx, def, ImportRequest{
		Level:    record.LevelFilings,
		Strategy: engine.StrategyInsert,
		Records:  []record.RawRecord{{"OBJECT_ID": "F1", "EIN": "12345"}},
	})
	require.NoError(t, err)

	m := Matcher(st, def, ents.Registry,
		engine.WithMatcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	res, err := m.MatchAll(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Linked)

	alpha, err := st.Find(ctx, store.Organizations, store.Where(store.Eq(record.FieldEntityID, "000012345")), store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, alpha, 1)

	filings, err := st.Find(ctx, store.Filings, store.Filter{}, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, filings, 1)
	assert.Equal(t, alpha[0].ID(), filings[0][record.FieldEntityLink])
}
