package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilingFromDocument(t *testing.T) {
	f := FilingFromDocument(map[string]any{
		FieldID:         "f-1",
		FieldRegistryID: "r-1",
		FieldFilingID:   float64(99),
		FieldEntityID:   "42",
	})

	assert.Equal(t, "f-1", f.ID)
	assert.Equal(t, "99", f.FilingID)
	assert.Equal(t, "42", f.Key(FieldEntityID))
	assert.False(t, f.Linked())

	f.EntityLink = "e-1"
	assert.True(t, f.Linked())
}

func TestEntity_IsOrphan(t *testing.T) {
	natural := EntityFromDocument(map[string]any{FieldOriginalData: map[string]any{"Town": "x"}})
	orphan := EntityFromDocument(map[string]any{FieldOriginalData: map[string]any{
		BreadcrumbCreatedFrom: OrphanProvenance,
	}})

	assert.False(t, natural.IsOrphan())
	assert.True(t, orphan.IsOrphan())
}

func TestRegistry_DocumentRoundTrip(t *testing.T) {
	done := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	r := Registry{
		Name:            "Australia - ACNC Charity Register",
		Source:          "https://data.gov.au",
		LegalNotices:    []LegalNotice{{Title: "CC BY 3.0 AU", URL: "https://creativecommons.org/licenses/by/3.0/au/"}},
		LastCompletedAt: &done,
	}

	doc := r.Document()
	// documents come back from the store with JSON-shaped values
	doc[FieldLegalNotices] = []any{map[string]any{"title": "CC BY 3.0 AU", "url": "https://creativecommons.org/licenses/by/3.0/au/"}}
	doc[FieldID] = "reg-1"
	back := RegistryFromDocument(doc)

	assert.Equal(t, "reg-1", back.ID)
	assert.Equal(t, r.Name, back.Name)
	assert.Equal(t, r.LegalNotices, back.LegalNotices)
	if assert.NotNil(t, back.LastCompletedAt) {
		assert.True(t, done.Equal(*back.LastCompletedAt))
	}
}
