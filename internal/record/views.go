package record

import (
	"fmt"
	"time"
)

// Entity is a typed view over a persisted organization document.
type Entity struct {
	ID           string
	RegistryID   string
	RegistryName string
	EntityID     string
	EntityIndex  string
	EntityName   string

	// Doc is the full document, including originalData.
	Doc map[string]any
}

// EntityFromDocument builds an Entity view. Missing fields are left empty.
func EntityFromDocument(doc map[string]any) Entity {
	return Entity{
		ID:           stringField(doc, FieldID),
		RegistryID:   stringField(doc, FieldRegistryID),
		RegistryName: stringField(doc, FieldRegistryName),
		EntityID:     KeyString(doc[FieldEntityID]),
		EntityIndex:  KeyString(doc[FieldEntityIndex]),
		EntityName:   stringField(doc, FieldEntityName),
		Doc:          doc,
	}
}

// IsOrphan reports whether the entity was synthesized from an orphan filing.
func (e Entity) IsOrphan() bool {
	original, ok := e.Doc[FieldOriginalData].(map[string]any)
	if !ok {
		return false
	}
	return original[BreadcrumbCreatedFrom] == OrphanProvenance
}

// Orphan breadcrumb keys, stored under originalData of a synthesized entity.
const (
	BreadcrumbCreatedFrom  = "createdFrom"
	BreadcrumbSourceFiling = "sourceFilingId"
	BreadcrumbCreatedAt    = "createdAt"

	OrphanProvenance = "orphan_filing"
)

// Filing is a typed view over a persisted filing document.
type Filing struct {
	ID           string
	RegistryID   string
	RegistryName string
	FilingID     string
	FilingIndex  string

	// EntityLink is the owning entity's _id, empty while unlinked.
	EntityLink string

	Doc map[string]any
}

// FilingFromDocument builds a Filing view.
func FilingFromDocument(doc map[string]any) Filing {
	return Filing{
		ID:           stringField(doc, FieldID),
		RegistryID:   stringField(doc, FieldRegistryID),
		RegistryName: stringField(doc, FieldRegistryName),
		FilingID:     KeyString(doc[FieldFilingID]),
		FilingIndex:  KeyString(doc[FieldFilingIndex]),
		EntityLink:   stringField(doc, FieldEntityLink),
		Doc:          doc,
	}
}

// Linked reports whether the filing has reached its terminal LINKED state.
func (f Filing) Linked() bool {
	return f.EntityLink != ""
}

// Key returns the normalized natural-key value of field on the filing.
func (f Filing) Key(field string) string {
	return KeyString(f.Doc[field])
}

// LegalNotice is a licensing notice attached to a registry.
type LegalNotice struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Registry is the metadata record of one data source.
type Registry struct {
	ID              string
	Name            string
	Source          string
	Description     string
	LegalNotices    []LegalNotice
	LastCompletedAt *time.Time
}

// Document returns the persisted form, without _id.
func (r Registry) Document() map[string]any {
	notices := make([]any, 0, len(r.LegalNotices))
	for _, n := range r.LegalNotices {
		notices = append(notices, map[string]any{
			"title":       n.Title,
			"description": n.Description,
			"url":         n.URL,
		})
	}
	doc := map[string]any{
		FieldName:         r.Name,
		FieldSource:       r.Source,
		FieldDescription:  r.Description,
		FieldLegalNotices: notices,
	}
	if r.LastCompletedAt != nil {
		doc[FieldLastCompletedAt] = r.LastCompletedAt.UTC().Format(time.RFC3339)
	}
	return doc
}

// RegistryFromDocument builds a Registry view. An unparsable completion
// timestamp is treated as "not completed".
func RegistryFromDocument(doc map[string]any) Registry {
	r := Registry{
		ID:          stringField(doc, FieldID),
		Name:        stringField(doc, FieldName),
		Source:      stringField(doc, FieldSource),
		Description: stringField(doc, FieldDescription),
	}
	if raw, ok := doc[FieldLegalNotices].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			r.LegalNotices = append(r.LegalNotices, LegalNotice{
				Title:       stringField(m, "title"),
				Description: stringField(m, "description"),
				URL:         stringField(m, "url"),
			})
		}
	}
	if ts := stringField(doc, FieldLastCompletedAt); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			r.LastCompletedAt = &t
		}
	}
	return r
}

func stringField(doc map[string]any, field string) string {
	switch v := doc[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
