package engine

import (
	"time"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// orphanFields are copied from a filing onto the entity synthesized for it.
var orphanFields = []string{
	record.FieldRegistryID,
	record.FieldRegistryName,
	record.FieldEntityID,
	record.FieldEntityName,
	record.FieldEstablishedDate,
	record.FieldWebsiteURL,
}

// orphanEntity builds the entity document for a filing with no owner. The
// match field carries the transformed key so later filings of the same
// entity resolve to it.
func orphanEntity(f record.Filing, cfg MatchConfig, key string, at time.Time) store.Document {
	doc := store.Document{}
	for _, field := range orphanFields {
		if v, ok := f.Doc[field]; ok && v != nil {
			doc[field] = v
		}
	}
	doc[record.FieldRegistryID] = f.RegistryID
	doc[cfg.field()] = key
	doc[record.FieldOriginalData] = map[string]any{
		record.BreadcrumbCreatedFrom:  record.OrphanProvenance,
		record.BreadcrumbSourceFiling: f.ID,
		record.BreadcrumbCreatedAt:    at.UTC().Format(time.RFC3339),
	}
	return doc
}
