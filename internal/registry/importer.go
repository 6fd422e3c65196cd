package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/record"
)

// Importer runs one registry import: metadata lookup, field mapping,
// synchronization and the completion stamp.
type Importer struct {
	store      engine.Store
	sync       *engine.Synchronizer
	classifier *engine.Classifier
	logger     *slog.Logger
	now        func() time.Time
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithImportLogger sets the logger. Defaults to slog.Default().
func WithImportLogger(l *slog.Logger) ImporterOption {
	return func(im *Importer) {
		if l != nil {
			im.logger = l
		}
	}
}

// WithSynchronizer replaces the default synchronizer, e.g. to attach a
// progress callback.
func WithSynchronizer(s *engine.Synchronizer) ImporterOption {
	return func(im *Importer) {
		im.sync = s
	}
}

// WithImportClock sets the time source of the completion stamp.
func WithImportClock(now func() time.Time) ImporterOption {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

// NewImporter returns an Importer writing to st.
func NewImporter(st engine.Store, opts ...ImporterOption) *Importer {
	im := &Importer{
		store:  st,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	im.classifier = engine.NewClassifier(st, engine.WithClassifierLogger(im.logger))
	if im.sync == nil {
		im.sync = engine.NewSynchronizer(st,
			engine.WithSyncLogger(im.logger),
			engine.WithClassifier(im.classifier),
		)
	}
	return im
}

// ImportRequest is one batch of raw records for one level of a registry.
type ImportRequest struct {
	Level    string
	Strategy engine.Strategy
	Records  []record.RawRecord
	Confirm  engine.ReplaceConfirmation
}

// ImportResult reports an import run.
type ImportResult struct {
	Registry record.Registry

	// Created is set when the registry's metadata record was created by
	// this run.
	Created bool

	// MappingWarnings are the data-quality problems found while mapping.
	MappingWarnings []record.Warning

	Sync engine.SyncResult
}

// Batch is a level's records mapped for one registry, ready to classify or
// sync.
type Batch struct {
	Registry    record.Registry
	Created     bool
	Collection  string
	UniqueField string
	Records     []record.MappedRecord
	Warnings    []record.Warning
}

// Prepare resolves the registry's metadata record, creating it when absent,
// and maps raw through the level's mapping with the registry's amendments.
func (im *Importer) Prepare(ctx context.Context, def *Definition, level string, raw []record.RawRecord) (Batch, error) {
	c, err := def.Collection(level)
	if err != nil {
		return Batch{}, err
	}
	collection, err := engine.CollectionFor(level)
	if err != nil {
		return Batch{}, err
	}
	reg, created, err := engine.EnsureRegistry(ctx, im.store, def.Registry())
	if err != nil {
		return Batch{}, err
	}
	if created {
		im.logger.Info("registry created", "registry", reg.Name, "id", reg.ID)
	}

	mapped, warnings := record.ApplyAll(raw, def.MappingFor(level), def.Amendments(reg))
	for _, w := range warnings {
		im.logger.Warn("unparsed value", "registry", reg.Name, "level", level, "warning", w.String())
	}
	return Batch{
		Registry:    reg,
		Created:     created,
		Collection:  collection,
		UniqueField: c.UniqueField,
		Records:     mapped,
		Warnings:    warnings,
	}, nil
}

// Preview classifies the mapped batch against the store without writing
// records. The registry's metadata record is still created when absent.
func (im *Importer) Preview(ctx context.Context, def *Definition, level string, raw []record.RawRecord) (Batch, engine.Classification, error) {
	b, err := im.Prepare(ctx, def, level, raw)
	if err != nil {
		return Batch{}, engine.Classification{}, err
	}
	cls, err := im.classifier.Classify(ctx, b.Records, b.Collection, b.UniqueField, b.Registry.ID)
	if err != nil {
		return b, engine.Classification{}, err
	}
	return b, cls, nil
}

// Import maps and writes req.Records. The registry is stamped completed
// only when the sync finished without error.
func (im *Importer) Import(ctx context.Context, def *Definition, req ImportRequest) (ImportResult, error) {
	b, err := im.Prepare(ctx, def, req.Level, req.Records)
	if err != nil {
		return ImportResult{}, err
	}
	return im.Write(ctx, b, req.Strategy, req.Confirm, nil)
}

// Write syncs an already prepared batch. cls, when not nil, is reused by an
// insert-only run instead of classifying again.
func (im *Importer) Write(ctx context.Context, b Batch, strategy engine.Strategy, confirm engine.ReplaceConfirmation, cls *engine.Classification) (ImportResult, error) {
	res := ImportResult{Registry: b.Registry, Created: b.Created, MappingWarnings: b.Warnings}

	var err error
	res.Sync, err = im.sync.Sync(ctx, engine.SyncRequest{
		Strategy:       strategy,
		Collection:     b.Collection,
		UniqueField:    b.UniqueField,
		RegistryID:     b.Registry.ID,
		Records:        b.Records,
		Classification: cls,
		Confirm:        confirm,
	})
	if err != nil {
		return res, err
	}

	at := im.now()
	if err := engine.MarkCompleted(ctx, im.store, b.Registry.ID, at); err != nil {
		return res, err
	}
	res.Registry.LastCompletedAt = &at
	im.logger.Info("import finished", "registry", b.Registry.Name, "collection", b.Collection, "result", res.Sync.String())
	return res, nil
}

// Matcher builds a matcher configured with the definition's match rule for
// the stored registry reg.
func Matcher(st engine.Store, def *Definition, reg record.Registry, opts ...engine.MatcherOption) *engine.Matcher {
	opts = append(opts, engine.WithMatchConfig(reg.ID, def.MatchConfig()))
	return engine.NewMatcher(st, opts...)
}
