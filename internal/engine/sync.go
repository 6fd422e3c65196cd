package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// Strategy selects how a batch is written. The caller chooses it; the engine
// never asks.
type Strategy int

const (
	// StrategyInsert inserts new records and skips existing ones.
	StrategyInsert Strategy = iota
	// StrategyReplace deletes every stored record of the registry, then
	// inserts the batch. Requires ConfirmReplace.
	StrategyReplace
	// StrategyUpsert updates matches field by field, one operation per record.
	StrategyUpsert
	// StrategyRefresh is StrategyUpsert issued as one bulk write.
	StrategyRefresh
)

var strategyNames = map[Strategy]string{
	StrategyInsert:  "insert",
	StrategyReplace: "replace",
	StrategyUpsert:  "upsert",
	StrategyRefresh: "refresh",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy resolves a strategy name. "insert-only" and "incremental"
// are accepted for insert, "bulk-refresh" for refresh.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "insert", "insert-only", "incremental":
		return StrategyInsert, nil
	case "replace":
		return StrategyReplace, nil
	case "upsert":
		return StrategyUpsert, nil
	case "refresh", "bulk-refresh":
		return StrategyRefresh, nil
	}
	return 0, NewPreconditionError("unknown strategy %q (want insert, replace, upsert or refresh)", name)
}

// ReplaceConfirmation acknowledges that a replace run irreversibly deletes
// the registry's stored records. Only ConfirmReplace carries the
// acknowledgement; the zero value does not.
type ReplaceConfirmation struct {
	confirmed bool
}

// ConfirmReplace is the explicit signal a replace run requires.
var ConfirmReplace = ReplaceConfirmation{confirmed: true}

// SyncRequest is one batch to write.
type SyncRequest struct {
	Strategy Strategy

	// Collection is the store collection, store.Organizations or store.Filings.
	Collection string

	// UniqueField is the natural key used to find stored counterparts.
	UniqueField string

	RegistryID string
	Records    []record.MappedRecord

	// Classification optionally carries a precomputed partition of Records
	// for StrategyInsert, e.g. the one shown in a preview.
	Classification *Classification

	// Confirm must be ConfirmReplace for StrategyReplace.
	Confirm ReplaceConfirmation
}

// Failure is one record that could not be written.
type Failure struct {
	// Index is the record's position in the request.
	Index int
	Key   string
	Err   error
}

// SyncResult accounts for every record of a sync run.
type SyncResult struct {
	Strategy  Strategy
	Attempted int
	Inserted  int
	Updated   int
	Skipped   int
	Failed    int

	// Deleted counts records removed before a replace.
	Deleted int64

	// Warnings counts fields kept unparsed (data-quality problems).
	Warnings int

	Failures []Failure
}

func (r SyncResult) String() string {
	s := fmt.Sprintf("%s: %d attempted, %d inserted, %d updated, %d skipped, %d failed",
		r.Strategy, r.Attempted, r.Inserted, r.Updated, r.Skipped, r.Failed)
	if r.Strategy == StrategyReplace {
		s += fmt.Sprintf(", %d deleted first", r.Deleted)
	}
	if r.Warnings > 0 {
		s += fmt.Sprintf(", %d data-quality warnings", r.Warnings)
	}
	return s
}

func (r *SyncResult) fail(index int, key string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{Index: index, Key: key, Err: err})
}

// Synchronizer writes mapped batches to the store.
type Synchronizer struct {
	store         Store
	classifier    *Classifier
	logger        *slog.Logger
	progressEvery int
	progress      ProgressFunc
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithSyncLogger sets the synchronizer logger.
func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(s *Synchronizer) {
		s.logger = l
	}
}

// WithProgressEvery sets the record cadence of progress reports.
//
// Default: 100 (DefaultProgressEvery). Insert batches are also committed in
// chunks of this size.
func WithProgressEvery(n int) SyncOption {
	return func(s *Synchronizer) {
		s.progressEvery = n
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) SyncOption {
	return func(s *Synchronizer) {
		s.progress = fn
	}
}

// WithClassifier overrides the classifier used by insert-only runs.
func WithClassifier(c *Classifier) SyncOption {
	return func(s *Synchronizer) {
		s.classifier = c
	}
}

// NewSynchronizer creates a Synchronizer over st.
func NewSynchronizer(st Store, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		store:         st,
		logger:        slog.Default(),
		progressEvery: DefaultProgressEvery,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.progressEvery <= 0 {
		s.progressEvery = DefaultProgressEvery
	}
	if s.classifier == nil {
		s.classifier = NewClassifier(st, WithClassifierLogger(s.logger))
	}
	return s
}

// Sync writes req.Records with req.Strategy.
//
// Per-record failures (unserializable documents, duplicate stored keys) are
// accumulated in the result and the batch continues. A store error aborts the
// run and is returned together with the counts reached so far.
func (s *Synchronizer) Sync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	res := SyncResult{Strategy: req.Strategy, Attempted: len(req.Records)}

	if err := s.validate(req); err != nil {
		return res, err
	}
	if err := EnsureIndexes(ctx, s.store, req.Collection); err != nil {
		return res, err
	}
	if req.UniqueField != "" {
		if err := ensureKeyIndex(ctx, s.store, req.Collection, req.UniqueField); err != nil {
			return res, err
		}
	}

	var err error
	switch req.Strategy {
	case StrategyInsert:
		err = s.insertOnly(ctx, req, &res)
	case StrategyReplace:
		err = s.replace(ctx, req, &res)
	case StrategyUpsert:
		err = s.upsert(ctx, req, &res)
	case StrategyRefresh:
		err = s.refresh(ctx, req, &res)
	}

	s.logger.Info("sync finished",
		"strategy", req.Strategy.String(),
		"collection", req.Collection,
		"registry", req.RegistryID,
		"attempted", res.Attempted,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"deleted", res.Deleted,
	)
	return res, err
}

func (s *Synchronizer) validate(req SyncRequest) error {
	if _, ok := strategyNames[req.Strategy]; !ok {
		return NewPreconditionError("unknown strategy %d", int(req.Strategy))
	}
	if req.Collection != store.Organizations && req.Collection != store.Filings {
		return NewPreconditionError("cannot sync into collection %q", req.Collection)
	}
	if req.RegistryID == "" {
		return NewPreconditionError("sync needs a registry ID")
	}
	if req.Strategy == StrategyReplace {
		if !req.Confirm.confirmed {
			return ErrReplaceNotConfirmed
		}
		return nil
	}
	if req.UniqueField == "" {
		return NewPreconditionError("%s needs a unique field", req.Strategy)
	}
	if req.Classification != nil && req.Classification.Total() != len(req.Records) {
		return NewPreconditionError("classification covers %d records, batch has %d",
			req.Classification.Total(), len(req.Records))
	}
	return nil
}

func (s *Synchronizer) insertOnly(ctx context.Context, req SyncRequest, res *SyncResult) error {
	cls := req.Classification
	if cls == nil {
		c, err := s.classifier.Classify(ctx, req.Records, req.Collection, req.UniqueField, req.RegistryID)
		if err != nil {
			return err
		}
		cls = &c
	}
	res.Skipped = len(cls.Existing)
	return s.insertChunks(ctx, req, cls.NewIndices, res)
}

func (s *Synchronizer) replace(ctx context.Context, req SyncRequest, res *SyncResult) error {
	deleted, err := DeleteRegistryRecords(ctx, s.store, req.Collection, req.RegistryID)
	if err != nil {
		return err
	}
	res.Deleted = deleted

	all := make([]int, len(req.Records))
	for i := range all {
		all[i] = i
	}
	return s.insertChunks(ctx, req, all, res)
}

// insertChunks inserts the records at indices, one transaction per
// progress-cadence chunk.
func (s *Synchronizer) insertChunks(ctx context.Context, req SyncRequest, indices []int, res *SyncResult) error {
	progress := newProgressCounter(req.Strategy, len(indices), s.progressEvery, s.progress, s.logger)

	for start := 0; start < len(indices); start += s.progressEvery {
		end := min(start+s.progressEvery, len(indices))
		chunk := indices[start:end]

		docs := make([]store.Document, len(chunk))
		for j, idx := range chunk {
			rec := req.Records[idx]
			res.Warnings += s.warnUnparsed(req, idx, rec, "stored raw")
			docs[j] = store.Document(rec.Document())
		}

		bulk, err := s.store.InsertMany(ctx, req.Collection, docs)
		if err != nil {
			return fmt.Errorf("insert %s records %d-%d: %w", req.Collection, chunk[0], chunk[len(chunk)-1], err)
		}
		res.Inserted += bulk.Inserted
		for _, we := range bulk.Errors {
			idx := chunk[we.Index]
			res.fail(idx, req.Records[idx].Key(req.UniqueField), we.Err)
		}
		progress.advance(end)
	}
	return nil
}

func (s *Synchronizer) upsert(ctx context.Context, req SyncRequest, res *SyncResult) error {
	progress := newProgressCounter(req.Strategy, len(req.Records), s.progressEvery, s.progress, s.logger)

	for i, rec := range req.Records {
		if err := s.upsertOne(ctx, req, i, rec, res); err != nil {
			return err
		}
		progress.advance(i + 1)
	}
	return nil
}

func (s *Synchronizer) upsertOne(ctx context.Context, req SyncRequest, i int, rec record.MappedRecord, res *SyncResult) error {
	key := rec.Key(req.UniqueField)

	var matches []store.Document
	if key != "" {
		var err error
		matches, err = s.store.Find(ctx, req.Collection, store.Where(
			store.Eq(record.FieldRegistryID, req.RegistryID),
			store.Eq(req.UniqueField, key),
		), store.FindOptions{Limit: 2})
		if err != nil {
			return fmt.Errorf("upsert lookup %s=%s: %w", req.UniqueField, key, err)
		}
	}

	switch len(matches) {
	case 0:
		res.Warnings += s.warnUnparsed(req, i, rec, "stored raw")
		_, err := s.store.InsertOne(ctx, req.Collection, store.Document(rec.Document()))
		if err != nil {
			if store.IsDocumentError(err) {
				res.fail(i, key, err)
				return nil
			}
			return fmt.Errorf("upsert insert %s=%s: %w", req.UniqueField, key, err)
		}
		res.Inserted++
	case 1:
		res.Warnings += s.warnUnparsed(req, i, rec, "stored value kept")
		matched, err := s.store.UpdateOne(ctx, req.Collection, matches[0].ID(), rec.UpdateSet())
		if err != nil {
			if store.IsDocumentError(err) {
				res.fail(i, key, err)
				return nil
			}
			return fmt.Errorf("upsert update %s=%s: %w", req.UniqueField, key, err)
		}
		if matched {
			res.Updated++
		}
	default:
		err := NewDuplicateKeyError(req.RegistryID, req.UniqueField, key, len(matches))
		s.logger.Error("upsert skipped record", "index", i, "error", err)
		res.fail(i, key, err)
	}
	return nil
}

func (s *Synchronizer) refresh(ctx context.Context, req SyncRequest, res *SyncResult) error {
	keys := make([]string, len(req.Records))
	var distinct []string
	seen := map[string]struct{}{}
	for i, rec := range req.Records {
		keys[i] = rec.Key(req.UniqueField)
		if keys[i] == "" {
			continue
		}
		if _, ok := seen[keys[i]]; !ok {
			seen[keys[i]] = struct{}{}
			distinct = append(distinct, keys[i])
		}
	}

	stored, err := s.classifier.lookup(ctx, req.Collection, req.UniqueField, req.RegistryID, distinct)
	if err != nil {
		return err
	}

	progress := newProgressCounter(req.Strategy, len(req.Records), s.progressEvery, s.progress, s.logger)

	ops := make([]store.WriteOp, 0, len(req.Records))
	opIndex := make([]int, 0, len(req.Records))
	// A key repeated within the batch updates the insert queued for its
	// first occurrence, as a row-wise upsert would.
	pending := make(map[string]int)
	merged := make(map[int][]int)
	for i, rec := range req.Records {
		if i+1 < len(req.Records) {
			progress.advance(i + 1)
		}

		var ids []string
		if keys[i] != "" {
			ids = stored[keys[i]]
		}
		switch len(ids) {
		case 0:
			if at, ok := pending[keys[i]]; ok {
				res.Warnings += s.warnUnparsed(req, i, rec, "stored value kept")
				for k, v := range rec.UpdateSet() {
					ops[at].Insert[k] = v
				}
				merged[at] = append(merged[at], i)
				continue
			}
			res.Warnings += s.warnUnparsed(req, i, rec, "stored raw")
			if keys[i] != "" {
				pending[keys[i]] = len(ops)
			}
			ops = append(ops, store.InsertOp(store.Document(rec.Document())))
		case 1:
			res.Warnings += s.warnUnparsed(req, i, rec, "stored value kept")
			ops = append(ops, store.UpdateOp(ids[0], rec.UpdateSet()))
		default:
			err := NewDuplicateKeyError(req.RegistryID, req.UniqueField, keys[i], len(ids))
			s.logger.Error("refresh skipped record", "index", i, "error", err)
			res.fail(i, keys[i], err)
			continue
		}
		opIndex = append(opIndex, i)
	}

	bulk, err := s.store.BulkWrite(ctx, req.Collection, ops)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", req.Collection, err)
	}
	res.Inserted = bulk.Inserted
	res.Updated = bulk.Matched
	for _, idx := range merged {
		res.Updated += len(idx)
	}
	for _, we := range bulk.Errors {
		idx := opIndex[we.Index]
		res.fail(idx, keys[idx], we.Err)
		for _, m := range merged[we.Index] {
			res.Updated--
			res.fail(m, keys[m], we.Err)
		}
	}

	progress.advance(len(req.Records))
	return nil
}

// warnUnparsed logs each field of rec kept unparsed and returns how many
// there were.
func (s *Synchronizer) warnUnparsed(req SyncRequest, index int, rec record.MappedRecord, outcome string) int {
	for _, field := range rec.Unparsed {
		err := NewDataQualityError(req.RegistryID, field, outcome)
		s.logger.Warn("data quality", "index", index, "key", rec.Key(req.UniqueField), "error", err)
	}
	return len(rec.Unparsed)
}
