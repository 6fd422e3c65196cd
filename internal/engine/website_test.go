package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

func linkedFiling(entityID, submitted, url string) store.Document {
	doc := store.Document{
		record.FieldRegistryID: testRegistry,
		record.FieldEntityLink: entityID,
	}
	if submitted != "" {
		doc[record.FieldSubmissionDate] = submitted
	}
	if url != "" {
		doc[record.FieldWebsiteURL] = url
	}
	return doc
}

func TestBackfillWebsites_MostRecentFilingWins(t *testing.T) {
	s := setupTestStore(t)
	ids := seedEntities(t, s, entityDoc("1", "One"))
	seedFilings(t, s,
		linkedFiling(ids[0], "2021-06-30", "https://old.example.org"),
		linkedFiling(ids[0], "2023-06-30", "https://new.example.org"),
		linkedFiling(ids[0], "2024-06-30", ""),
		linkedFiling(ids[0], "2022-06-30", "https://mid.example.org"),
	)

	res, err := BackfillWebsites(t.Context(), s, 0)
	require.NoError(t, err)
	assert.Equal(t, WebsiteResult{Candidates: 1, Processed: 1, Filled: 1}, res)
	assert.Equal(t, "https://new.example.org", getDoc(t, s, store.Organizations, ids[0])[record.FieldWebsiteURL])
}

func TestBackfillWebsites_TiesGoToLaterFiling(t *testing.T) {
	s := setupTestStore(t)
	ids := seedEntities(t, s, entityDoc("1", "One"))
	seedFilings(t, s,
		linkedFiling(ids[0], "2023-06-30", "https://first.example.org"),
		linkedFiling(ids[0], "2023-06-30", "https://second.example.org"),
	)

	_, err := BackfillWebsites(t.Context(), s, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://second.example.org", getDoc(t, s, store.Organizations, ids[0])[record.FieldWebsiteURL])
}

func TestBackfillWebsites_NoURLIsStampedAndNotRevisited(t *testing.T) {
	s := setupTestStore(t)
	ids := seedEntities(t, s, entityDoc("1", "No filings"), entityDoc("2", "Filings without URL"))
	seedFilings(t, s, linkedFiling(ids[1], "2023-06-30", ""))

	res, err := BackfillWebsites(t.Context(), s, 0)
	require.NoError(t, err)
	assert.Equal(t, WebsiteResult{Candidates: 2, Processed: 2, NoURL: 2}, res)

	for _, id := range ids {
		doc := getDoc(t, s, store.Organizations, id)
		v, ok := doc[record.FieldWebsiteURL]
		assert.True(t, ok, "entity %s is stamped", id)
		assert.Nil(t, v)
	}

	again, err := BackfillWebsites(t.Context(), s, 0)
	require.NoError(t, err)
	assert.Equal(t, WebsiteResult{}, again)
}

func TestBackfillWebsites_SkipsEntitiesWithWebsite(t *testing.T) {
	s := setupTestStore(t)
	kept := entityDoc("1", "Has site")
	kept[record.FieldWebsiteURL] = "https://kept.example.org"
	ids := seedEntities(t, s, kept)
	seedFilings(t, s, linkedFiling(ids[0], "2023-06-30", "https://other.example.org"))

	res, err := BackfillWebsites(t.Context(), s, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Equal(t, "https://kept.example.org", getDoc(t, s, store.Organizations, ids[0])[record.FieldWebsiteURL])
}

func TestBackfillWebsites_OnlyLinkedFilingsCount(t *testing.T) {
	s := setupTestStore(t)
	ids := seedEntities(t, s, entityDoc("1", "One"), entityDoc("2", "Two"))
	seedFilings(t, s, linkedFiling(ids[1], "2023-06-30", "https://two.example.org"))

	res, err := BackfillWebsites(t.Context(), s, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Filled)
	assert.Equal(t, 1, res.NoURL)
	assert.Nil(t, getDoc(t, s, store.Organizations, ids[0])[record.FieldWebsiteURL])
	assert.Equal(t, "https://two.example.org", getDoc(t, s, store.Organizations, ids[1])[record.FieldWebsiteURL])
}

func TestBackfillWebsites_Limit(t *testing.T) {
	s := setupTestStore(t)
	seedEntities(t, s, entityDoc("1", "One"), entityDoc("2", "Two"), entityDoc("3", "Three"))

	res, err := BackfillWebsites(t.Context(), s, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Candidates)
	assert.Equal(t, 2, res.Processed)

	left, err := s.Count(t.Context(), store.Organizations, store.Where(store.Missing(record.FieldWebsiteURL)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)
}

// websiteCancellingStore cancels the run after a number of entity updates.
type websiteCancellingStore struct {
	*store.Store
	after   int
	updates int
	cancel  context.CancelFunc
}

func (c *websiteCancellingStore) UpdateOne(ctx context.Context, collection, id string, set map[string]any) (bool, error) {
	ok, err := c.Store.UpdateOne(ctx, collection, id, set)
	if collection == store.Organizations {
		c.updates++
		if c.updates == c.after {
			c.cancel()
		}
	}
	return ok, err
}

func TestBackfillWebsites_CooperativeCancellation(t *testing.T) {
	s := setupTestStore(t)
	seedEntities(t, s, entityDoc("1", "One"), entityDoc("2", "Two"), entityDoc("3", "Three"))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	cs := &websiteCancellingStore{Store: s, after: 1, cancel: cancel}

	res, err := BackfillWebsites(ctx, cs, 0)
	require.NoError(t, err, "interruption is not an error")
	assert.True(t, res.Interrupted)
	assert.Equal(t, 1, res.Processed)

	left, err := s.Count(t.Context(), store.Organizations, store.Where(store.Missing(record.FieldWebsiteURL)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), left)
}

func TestBackfillWebsites_StoreError(t *testing.T) {
	m := newMockStore()
	m.On("Count", mock.Anything, store.Organizations, mock.Anything).Return(int64(0), assert.AnError)

	_, err := BackfillWebsites(t.Context(), m, 0)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWebsiteResult_String(t *testing.T) {
	res := WebsiteResult{Candidates: 5, Processed: 3, Filled: 2, NoURL: 1}
	assert.Equal(t, "completed: 3 of 5 entities processed, 2 websites filled, 1 without a URL", res.String())

	res.Interrupted = true
	assert.Contains(t, res.String(), "interrupted")
}
