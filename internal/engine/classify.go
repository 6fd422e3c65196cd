package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// DefaultParallelism bounds concurrent existence queries per classification.
const DefaultParallelism = 4

// Classification partitions an incoming batch into records already stored
// and records that are new. Both partitions keep input order.
type Classification struct {
	New      []record.MappedRecord
	Existing []record.MappedRecord

	// NewIndices and ExistingIndices are positions in the input batch.
	NewIndices      []int
	ExistingIndices []int
}

// Counts returns the exact partition sizes.
func (c Classification) Counts() (newCount, existingCount int) {
	return len(c.New), len(c.Existing)
}

// Total returns the size of the classified batch.
func (c Classification) Total() int {
	return len(c.New) + len(c.Existing)
}

// Classifier compares incoming records against stored ones without writing.
type Classifier struct {
	store       Store
	logger      *slog.Logger
	parallelism int
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithClassifierLogger sets the classifier logger.
func WithClassifierLogger(l *slog.Logger) ClassifierOption {
	return func(c *Classifier) {
		c.logger = l
	}
}

// WithParallelism bounds concurrent existence queries. Values below 1 mean 1.
func WithParallelism(n int) ClassifierOption {
	return func(c *Classifier) {
		if n < 1 {
			n = 1
		}
		c.parallelism = n
	}
}

// NewClassifier creates a Classifier over st.
func NewClassifier(st Store, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		store:       st,
		logger:      slog.Default(),
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify partitions incoming by whether a document with the same
// uniqueField value already exists in collection for registryID.
//
// Distinct key values are checked with bulk set-membership queries, never
// one query per record. Records without a usable key are new.
func (c *Classifier) Classify(ctx context.Context, incoming []record.MappedRecord, collection, uniqueField, registryID string) (Classification, error) {
	if uniqueField == "" || registryID == "" {
		return Classification{}, NewPreconditionError("classify needs a unique field and a registry ID")
	}
	if err := EnsureIndexes(ctx, c.store, collection); err != nil {
		return Classification{}, err
	}
	if err := ensureKeyIndex(ctx, c.store, collection, uniqueField); err != nil {
		return Classification{}, err
	}

	keys := make([]string, len(incoming))
	var distinct []string
	seen := make(map[string]struct{}, len(incoming))
	for i, rec := range incoming {
		keys[i] = rec.Key(uniqueField)
		if keys[i] == "" {
			continue
		}
		if _, ok := seen[keys[i]]; !ok {
			seen[keys[i]] = struct{}{}
			distinct = append(distinct, keys[i])
		}
	}

	stored, err := c.lookup(ctx, collection, uniqueField, registryID, distinct)
	if err != nil {
		return Classification{}, err
	}

	var out Classification
	for i, rec := range incoming {
		if _, ok := stored[keys[i]]; ok && keys[i] != "" {
			out.Existing = append(out.Existing, rec)
			out.ExistingIndices = append(out.ExistingIndices, i)
			continue
		}
		out.New = append(out.New, rec)
		out.NewIndices = append(out.NewIndices, i)
	}

	c.logger.Debug("classified batch",
		"collection", collection,
		"registry", registryID,
		"field", uniqueField,
		"new", len(out.New),
		"existing", len(out.Existing),
	)
	return out, nil
}

// lookup maps every stored key value among keys to the IDs of the documents
// carrying it. Chunks run concurrently; they only read.
func (c *Classifier) lookup(ctx context.Context, collection, field, registryID string, keys []string) (map[string][]string, error) {
	out := make(map[string][]string)
	if len(keys) == 0 {
		return out, nil
	}

	size := c.store.MaxBatch()
	if size <= 0 {
		size = 500
	}
	var chunks [][]string
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunks = append(chunks, keys[start:end])
	}

	results := make([][]store.Projection, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, chunk := range chunks {
		g.Go(func() error {
			filter := store.Where(
				store.Eq(record.FieldRegistryID, registryID),
				store.InStrings(field, chunk),
			)
			rows, err := c.store.Project(gctx, collection, filter, field)
			if err != nil {
				return fmt.Errorf("lookup %s keys: %w", field, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, rows := range results {
		for _, p := range rows {
			k := record.KeyString(p.Value)
			out[k] = append(out[k], p.ID)
		}
	}
	return out, nil
}
