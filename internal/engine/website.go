package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// DefaultWebsiteBatchSize is the page size of a website backfill.
const DefaultWebsiteBatchSize = 500

// WebsiteResult accounts for a BackfillWebsites run.
type WebsiteResult struct {
	// Candidates is the number of entities without websiteUrl at the start.
	Candidates int64
	Processed  int
	Filled     int
	// NoURL counts entities none of whose linked filings carries a URL.
	// They are stamped with a null websiteUrl and not revisited.
	NoURL int

	Interrupted bool
}

func (r WebsiteResult) String() string {
	status := "completed"
	if r.Interrupted {
		status = "interrupted"
	}
	return fmt.Sprintf("%s: %d of %d entities processed, %d websites filled, %d without a URL",
		status, r.Processed, r.Candidates, r.Filled, r.NoURL)
}

// BackfillWebsites fills websiteUrl on entities that lack one with the URL of
// their most recent linked filing, by submissionDate. Entities with no such
// URL get a null websiteUrl. At most limit entities are processed; 0 means
// all. Cancelling ctx stops the run between entities and is not an error.
func BackfillWebsites(ctx context.Context, st Store, limit int) (WebsiteResult, error) {
	logger := slog.Default()
	var res WebsiteResult
	work := context.WithoutCancel(ctx)

	if err := EnsureIndexes(work, st, store.Filings); err != nil {
		return res, err
	}

	missing := store.Where(store.Missing(record.FieldWebsiteURL))
	n, err := st.Count(work, store.Organizations, missing)
	if err != nil {
		return res, fmt.Errorf("count entities without website: %w", err)
	}
	res.Candidates = n
	logger.Info("backfilling websites", "candidates", n, "limit", limit)

	cursor := ""
	for {
		pageSize := DefaultWebsiteBatchSize
		if limit > 0 {
			pageSize = min(pageSize, limit-res.Processed)
		}
		if pageSize <= 0 {
			break
		}

		page, err := st.Find(work, store.Organizations, missing, store.FindOptions{Limit: pageSize, After: cursor})
		if err != nil {
			return res, fmt.Errorf("read entities without website: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, doc := range page {
			if ctx.Err() != nil {
				res.Interrupted = true
				logger.Info("website backfill interrupted", "result", res.String())
				return res, nil
			}
			cursor = doc.ID()

			url, err := mostRecentURL(work, st, doc.ID())
			if err != nil {
				return res, err
			}
			var value any
			if url != "" {
				value = url
			}
			if _, err := st.UpdateOne(work, store.Organizations, doc.ID(), map[string]any{record.FieldWebsiteURL: value}); err != nil {
				return res, fmt.Errorf("set website of %s: %w", doc.ID(), err)
			}

			res.Processed++
			if url != "" {
				res.Filled++
			} else {
				res.NoURL++
			}
		}
	}

	logger.Info("website backfill finished", "result", res.String())
	return res, nil
}

// mostRecentURL returns the websiteUrl of the latest filing linked to
// entityID that carries one. Filings without a submissionDate sort first;
// ties go to the later insertion.
func mostRecentURL(ctx context.Context, st Store, entityID string) (string, error) {
	filings, err := st.Find(ctx, store.Filings, store.Where(
		store.Eq(record.FieldEntityLink, entityID),
		store.Exists(record.FieldWebsiteURL),
	), store.FindOptions{})
	if err != nil {
		return "", fmt.Errorf("read filings of %s: %w", entityID, err)
	}

	var url, latest string
	for _, f := range filings {
		u := record.KeyString(f[record.FieldWebsiteURL])
		if u == "" {
			continue
		}
		date := record.KeyString(f[record.FieldSubmissionDate])
		if url == "" || date >= latest {
			url, latest = u, date
		}
	}
	return url, nil
}
