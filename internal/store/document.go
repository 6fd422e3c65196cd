package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// IDField is the reserved document key holding the store identity.
const IDField = "_id"

// Document is a schemaless JSON object. Numbers read back from the store
// decode as float64.
type Document map[string]any

// ID returns the store identity, or "" for a document not yet persisted.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// IDGenerator produces document identities.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-ordered UUIDv7 identities.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
// Panics if the system random source fails, which is unrecoverable.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// encode serializes a document body without its _id, which lives in its own
// column.
func encode(doc Document) (string, error) {
	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == IDField {
			continue
		}
		body[k] = v
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(b), nil
}

func decode(id string, raw []byte) (Document, error) {
	doc := Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	doc[IDField] = id
	return doc, nil
}
