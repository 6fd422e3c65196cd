package record

import "slices"

// Persisted field names. These are an external contract consumed by
// downstream readers and must stay stable.
const (
	FieldID           = "_id"
	FieldRegistryID   = "registryID"
	FieldRegistryName = "registryName"
	FieldLegalNotices = "legalNotices"
	FieldOriginalData = "originalData"

	FieldEntityID        = "entityId"
	FieldEntityIndex     = "entityIndex"
	FieldEntityName      = "entityName"
	FieldSubsidiaryIndex = "subsidiaryIndex"
	FieldEstablishedDate = "establishedDate"
	FieldWebsiteURL      = "websiteUrl"

	FieldFilingID       = "filingId"
	FieldFilingIndex    = "filingIndex"
	FieldEntityLink     = "entityLink"
	FieldSubmissionDate = "submissionDate"

	FieldName            = "name"
	FieldSource          = "source"
	FieldDescription     = "description"
	FieldLastCompletedAt = "lastCompletedAt"
)

// Mapping levels. A FieldRule may be restricted to one of them.
const (
	LevelEntities = "entities"
	LevelFilings  = "filings"
)

// Targets is the fixed target vocabulary a FieldMapping may rename into.
var Targets = []string{
	// entity identity and description
	FieldEntityID,
	FieldEntityIndex,
	FieldSubsidiaryIndex,
	FieldEntityName,
	"alternateName",
	"entityType",
	"status",
	FieldEstablishedDate,
	"registrationDate",
	"removalDate",
	FieldWebsiteURL,
	"email",
	"phone",
	"address",
	"locality",
	"region",
	"postcode",
	"country",
	"activities",
	"beneficiaries",

	// filing identity, period and totals
	FieldFilingID,
	FieldFilingIndex,
	"fiscalYearStart",
	"fiscalYearEnd",
	FieldSubmissionDate,
	"totalIncome",
	"totalExpenditure",
	"totalAssets",
	"totalLiabilities",
	"employees",
	"volunteers",
}

// identityFields are normalized to key strings by Apply.
var identityFields = []string{
	FieldEntityID,
	FieldEntityIndex,
	FieldFilingID,
	FieldFilingIndex,
}

// IsTarget reports whether name belongs to the target vocabulary.
func IsTarget(name string) bool {
	return slices.Contains(Targets, name)
}

// IsIdentityField reports whether the field holds a natural key.
func IsIdentityField(name string) bool {
	return slices.Contains(identityFields, name)
}

// RawRecord is one source row as produced by a source reader.
type RawRecord map[string]any

// StaticAmendments are fields constant for a whole import run (registry
// identity, display name, legal notices). They always win key conflicts.
type StaticAmendments map[string]any

// MappedRecord is a RawRecord after field mapping.
type MappedRecord struct {
	// Fields holds mapped targets plus the merged static amendments.
	Fields map[string]any

	// OriginalData holds every source field no rule consumed, unmodified.
	OriginalData map[string]any

	// Unparsed lists targets whose format hint failed. Their value in Fields
	// is the raw source value.
	Unparsed []string
}

// Get returns a mapped field.
func (m MappedRecord) Get(field string) (any, bool) {
	v, ok := m.Fields[field]
	return v, ok
}

// Key returns the normalized natural-key string for field, or "" when the
// record has no usable value there.
func (m MappedRecord) Key(field string) string {
	v, ok := m.Fields[field]
	if !ok {
		return ""
	}
	return KeyString(v)
}

// Document returns the record as it is persisted on insert: mapped fields,
// amendments and the originalData sub-object.
func (m MappedRecord) Document() map[string]any {
	doc := make(map[string]any, len(m.Fields)+1)
	for k, v := range m.Fields {
		doc[k] = v
	}
	original := make(map[string]any, len(m.OriginalData))
	for k, v := range m.OriginalData {
		original[k] = v
	}
	doc[FieldOriginalData] = original
	return doc
}

// UpdateSet returns the field-level $set applied to an existing document.
// Targets listed in Unparsed are left out so the stored value survives.
func (m MappedRecord) UpdateSet() map[string]any {
	doc := m.Document()
	for _, field := range m.Unparsed {
		delete(doc, field)
	}
	delete(doc, FieldID)
	return doc
}
