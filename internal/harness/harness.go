package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/registry"
	"github.com/roach88/regeindary/internal/store"
	"github.com/roach88/regeindary/internal/testutil"
)

// Harness holds the components of one scenario run.
type Harness struct {
	store    *store.Store
	def      *registry.Definition
	reg      record.Registry
	importer *registry.Importer
	matcher  *engine.Matcher
	logger   *slog.Logger

	// setupIDs are the document IDs written by setup, per collection.
	setupIDs map[string][]string
}

// Run executes a scenario against a fresh in-memory store.
//
// Execution flow:
//  1. open the store with sequential IDs and a fixed clock
//  2. load the registry definition and create its metadata record
//  3. write setup documents
//  4. run the flow, checking each step's expect clause
//  5. evaluate assertions and take the state snapshot
//
// Failed expectations and assertions are reported in Result.Errors; the
// returned error is reserved for problems that stop the run.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithIDGenerator(testutil.NewSequentialIDGenerator("doc")))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	def, err := registry.Load(scenario.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}

	ctx := context.Background()
	reg, _, err := engine.EnsureRegistry(ctx, st, def.Registry())
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	// Step 0 keeps every timestamp at the epoch, however many times the
	// engine reads the clock.
	clock := testutil.NewDeterministicClock(testutil.Epoch, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	syncOpts := []engine.SyncOption{engine.WithSyncLogger(logger)}
	if scenario.Options.ProgressEvery > 0 {
		syncOpts = append(syncOpts, engine.WithProgressEvery(scenario.Options.ProgressEvery))
	}

	h := &Harness{
		store: st,
		def:   def,
		reg:   reg,
		importer: registry.NewImporter(st,
			registry.WithImportLogger(logger),
			registry.WithImportClock(clock.Now),
			registry.WithSynchronizer(engine.NewSynchronizer(st, syncOpts...)),
		),
		matcher: registry.Matcher(st, def, reg,
			engine.WithMatcherLogger(logger),
			engine.WithCreateOrphans(scenario.Options.CreateOrphans),
			engine.WithClock(clock.Now),
		),
		logger:   logger,
		setupIDs: make(map[string][]string),
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, SetupIDs: h.setupIDs}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	state, err := h.snapshot(ctx, scenario.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot state: %w", err)
	}
	result.State = state
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []SetupStep) error {
	for i, step := range setup {
		docs := make([]store.Document, 0, len(step.Documents))
		for _, d := range step.Documents {
			docs = append(docs, h.stamp(d))
		}
		if step.Generate != nil {
			for _, raw := range step.Generate.records() {
				docs = append(docs, h.stamp(raw))
			}
		}

		res, err := h.store.InsertMany(ctx, step.Collection, docs)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("setup step %d: document %d: %w", i, res.Errors[0].Index, res.Errors[0].Err)
		}
		h.setupIDs[step.Collection] = append(h.setupIDs[step.Collection], res.InsertedIDs...)

		h.logger.Info("setup step completed", "step", i, "collection", step.Collection, "inserted", res.Inserted)
	}
	return nil
}

// stamp copies a setup document and adds the registry's identity fields.
func (h *Harness) stamp(d map[string]any) store.Document {
	doc := make(store.Document, len(d)+2)
	for k, v := range d {
		doc[k] = v
	}
	doc[record.FieldRegistryID] = h.reg.ID
	doc[record.FieldRegistryName] = h.reg.Name
	return doc
}

func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		var (
			out map[string]any
			err error
		)
		switch step.Op {
		case OpClassify:
			out, err = h.classify(ctx, step)
		case OpSync:
			out, err = h.sync(ctx, step)
		case OpMatchOne:
			out, err = h.matchOne(ctx, step)
		case OpMatchAll:
			out, err = h.matchAll(ctx, step)
		}
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
		}
		result.AddTrace(i, step.Op, out)

		for _, msg := range compareExpect(out, step.Expect) {
			result.AddError(fmt.Sprintf("flow step %d (%s): %s", i, step.Op, msg))
		}

		h.logger.Info("flow step completed", "step", i, "op", step.Op)
	}
	return nil
}

func (h *Harness) raw(step FlowStep) []record.RawRecord {
	out := make([]record.RawRecord, 0, len(step.Records))
	for _, r := range step.Records {
		out = append(out, record.RawRecord(r))
	}
	if step.Generate != nil {
		out = append(out, step.Generate.records()...)
	}
	return out
}

func (h *Harness) classify(ctx context.Context, step FlowStep) (map[string]any, error) {
	_, cls, err := h.importer.Preview(ctx, h.def, step.Level, h.raw(step))
	if err != nil {
		return nil, err
	}
	newCount, existingCount := cls.Counts()
	return map[string]any{
		"new":      newCount,
		"existing": existingCount,
	}, nil
}

func (h *Harness) sync(ctx context.Context, step FlowStep) (map[string]any, error) {
	strategy, err := engine.ParseStrategy(step.Strategy)
	if err != nil {
		return nil, err
	}
	req := registry.ImportRequest{
		Level:    step.Level,
		Strategy: strategy,
		Records:  h.raw(step),
	}
	if step.Confirm {
		req.Confirm = engine.ConfirmReplace
	}

	res, err := h.importer.Import(ctx, h.def, req)
	if err != nil && !engine.IsPreconditionError(err) {
		return nil, err
	}
	out := map[string]any{
		"strategy":  res.Sync.Strategy.String(),
		"attempted": res.Sync.Attempted,
		"inserted":  res.Sync.Inserted,
		"updated":   res.Sync.Updated,
		"skipped":   res.Sync.Skipped,
		"failed":    res.Sync.Failed,
		"deleted":   res.Sync.Deleted,
		"warnings":  res.Sync.Warnings,
	}
	if err != nil {
		out["error"] = errorCode(err)
	}
	return out, nil
}

func (h *Harness) matchOne(ctx context.Context, step FlowStep) (map[string]any, error) {
	docs, err := h.store.Find(ctx, store.Filings, whereFilter(step.Filing), store.FindOptions{})
	if err != nil {
		return nil, err
	}
	if len(docs) != 1 {
		return nil, fmt.Errorf("filing %v: %d documents match, want 1", step.Filing, len(docs))
	}

	res, err := h.matcher.MatchOne(ctx, record.FilingFromDocument(docs[0]))
	if err != nil && !engine.IsIntegrityError(err) {
		return nil, err
	}
	out := map[string]any{
		"filing":         res.FilingID,
		"outcome":        res.Outcome.String(),
		"key":            res.Key,
		"already_linked": res.AlreadyLinked,
	}
	if res.EntityID != "" {
		out["entity"] = res.EntityID
	}
	if len(res.Candidates) > 0 {
		out["candidates"] = res.Candidates
	}
	if err != nil {
		out["error"] = errorCode(err)
	}
	return out, nil
}

func (h *Harness) matchAll(ctx context.Context, step FlowStep) (map[string]any, error) {
	res, err := h.matcher.MatchAll(ctx, step.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"backlog":          res.Backlog,
		"processed":        res.Processed,
		"linked":           res.Linked,
		"orphans_created":  res.OrphansCreated,
		"unmatched":        res.Unmatched,
		"multiple_matches": res.MultipleMatches,
		"interrupted":      res.Interrupted,
	}, nil
}

// snapshot records collection counts and the selected documents, in store
// order.
func (h *Harness) snapshot(ctx context.Context, specs []SnapshotSpec) (map[string]any, error) {
	counts := make(map[string]any, 3)
	for _, c := range []string{store.Registries, store.Organizations, store.Filings} {
		n, err := h.store.Count(ctx, c, store.Filter{})
		if err != nil {
			return nil, err
		}
		counts[c] = n
	}
	state := map[string]any{"counts": counts}

	for _, spec := range specs {
		docs, err := h.store.Find(ctx, spec.Collection, store.Filter{}, store.FindOptions{})
		if err != nil {
			return nil, err
		}
		rows := make([]any, 0, len(docs))
		for _, d := range docs {
			row := map[string]any{record.FieldID: d.ID()}
			for _, f := range spec.Fields {
				if v, ok := lookupPath(d, f); ok {
					row[f] = v
				}
			}
			rows = append(rows, row)
		}
		state[spec.Collection] = rows
	}
	return state, nil
}

// whereFilter turns a where map into a store filter. Keys are sorted so the
// generated SQL is stable.
func whereFilter(where map[string]any) store.Filter {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]store.Cond, 0, len(keys))
	for _, k := range keys {
		if where[k] == nil {
			conds = append(conds, store.Missing(k))
		} else {
			conds = append(conds, store.Eq(k, where[k]))
		}
	}
	return store.Where(conds...)
}

func errorCode(err error) string {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return string(ee.Code)
	}
	return "ERROR"
}
