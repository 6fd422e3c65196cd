package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// Key transforms applied to a filing's match value before lookup.
const (
	TransformNone = ""
	// TransformPad9 left-pads numeric keys with zeros to nine digits
	// (US employer identification numbers).
	TransformPad9 = "pad9"
)

// Matcher defaults.
const (
	DefaultMatchBatchSize   = 1000
	DefaultProgressInterval = 5 * time.Minute
)

// MatchConfig is the per-registry matching rule.
type MatchConfig struct {
	// Field is the entity field compared with the same field on the filing.
	// Empty means entityId.
	Field string

	// KeyTransform normalizes the filing's value before lookup.
	KeyTransform string

	// ExcludeSubsidiaries restricts candidates to entities whose
	// subsidiaryIndex is missing or 0.
	ExcludeSubsidiaries bool
}

func (c MatchConfig) field() string {
	if c.Field == "" {
		return record.FieldEntityID
	}
	return c.Field
}

// Transform applies the configured key transform.
func (c MatchConfig) Transform(key string) string {
	if key == "" {
		return ""
	}
	switch c.KeyTransform {
	case TransformPad9:
		return record.PadKey(key, 9)
	}
	return key
}

// Validate rejects unknown transforms.
func (c MatchConfig) Validate() error {
	switch c.KeyTransform {
	case TransformNone, TransformPad9:
		return nil
	}
	return NewPreconditionError("unknown key transform %q", c.KeyTransform)
}

// MatchOutcome is the result of matching one filing.
type MatchOutcome int

const (
	// OutcomeLinked means the filing references exactly one entity.
	OutcomeLinked MatchOutcome = iota
	// OutcomeOrphanCreated means an entity was synthesized and linked.
	OutcomeOrphanCreated
	// OutcomeUnmatched means no entity exists and none was created.
	OutcomeUnmatched
	// OutcomeMultipleMatches means the key resolves to several entities.
	OutcomeMultipleMatches
)

func (o MatchOutcome) String() string {
	switch o {
	case OutcomeLinked:
		return "linked"
	case OutcomeOrphanCreated:
		return "orphan_created"
	case OutcomeUnmatched:
		return "unmatched"
	case OutcomeMultipleMatches:
		return "multiple_matches"
	}
	return fmt.Sprintf("MatchOutcome(%d)", int(o))
}

// MatchResult describes what MatchOne did with a filing.
type MatchResult struct {
	// FilingID is the filing's _id.
	FilingID string
	Outcome  MatchOutcome
	// EntityID is the linked entity's _id for linked and orphan outcomes.
	EntityID string
	// Key is the transformed match value; empty when the filing had none.
	Key string
	// Candidates lists the entity IDs of a multiple match.
	Candidates []string
	// AlreadyLinked is set when the filing was linked before the call.
	AlreadyLinked bool
	// Cached is set when the entity came from the lookup cache.
	Cached bool
}

// MatchProgress is one periodic report of a MatchAll run.
type MatchProgress struct {
	Elapsed   time.Duration
	Processed int
	// Delta is the number of filings processed since the previous report.
	Delta   int
	Rate    float64
	ETA     time.Duration
	Backlog int64
}

// BatchMatchResult accounts for every filing a MatchAll run touched.
type BatchMatchResult struct {
	Processed       int
	Linked          int
	OrphansCreated  int
	Unmatched       int
	MultipleMatches int

	// Integrity holds one error per filing that matched several entities.
	Integrity []error

	CacheHits   int
	CacheMisses int

	// Interrupted is set when the context was cancelled before the backlog
	// was exhausted. It is not an error.
	Interrupted bool

	Duration time.Duration

	// Backlog is the number of unlinked filings when the run started.
	Backlog int64
}

func (r BatchMatchResult) String() string {
	status := "completed"
	if r.Interrupted {
		status = "interrupted"
	}
	return fmt.Sprintf("%s after %s: %d of %d filings processed, %d linked, %d orphans created, %d unmatched, %d multiple matches (cache %d hits, %d misses)",
		status, r.Duration.Round(time.Millisecond), r.Processed, r.Backlog,
		r.Linked, r.OrphansCreated, r.Unmatched, r.MultipleMatches,
		r.CacheHits, r.CacheMisses)
}

// TickerFunc starts a wall-clock ticker and returns its channel and a stop
// function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Matcher links filings to their owning entity by natural key.
//
// Thread-safety: MatchOne may be called concurrently; MatchAll processes
// filings sequentially in store order.
type Matcher struct {
	store         Store
	logger        *slog.Logger
	createOrphans bool
	defaults      MatchConfig
	now           func() time.Time
	interval      time.Duration
	batchSize     int
	ticker        TickerFunc
	progress      func(MatchProgress)
	cache         *lookupCache

	mu      sync.RWMutex
	configs map[string]MatchConfig
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithMatcherLogger sets the matcher logger.
func WithMatcherLogger(l *slog.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = l
	}
}

// WithCreateOrphans enables synthesizing an entity for unmatched filings.
func WithCreateOrphans(enabled bool) MatcherOption {
	return func(m *Matcher) {
		m.createOrphans = enabled
	}
}

// WithDefaultMatchConfig sets the rule for registries without their own.
func WithDefaultMatchConfig(cfg MatchConfig) MatcherOption {
	return func(m *Matcher) {
		m.defaults = cfg
	}
}

// WithMatchConfig sets the rule of one registry.
func WithMatchConfig(registryID string, cfg MatchConfig) MatcherOption {
	return func(m *Matcher) {
		m.configs[registryID] = cfg
	}
}

// WithClock replaces time.Now for timestamps and elapsed time.
func WithClock(now func() time.Time) MatcherOption {
	return func(m *Matcher) {
		m.now = now
	}
}

// WithProgressInterval sets the wall-clock interval of MatchAll progress
// reports.
//
// Default: 5 minutes (DefaultProgressInterval).
func WithProgressInterval(d time.Duration) MatcherOption {
	return func(m *Matcher) {
		m.interval = d
	}
}

// WithTicker replaces the wall-clock ticker.
func WithTicker(fn TickerFunc) MatcherOption {
	return func(m *Matcher) {
		m.ticker = fn
	}
}

// WithMatchBatchSize sets how many unlinked filings MatchAll reads per page.
func WithMatchBatchSize(n int) MatcherOption {
	return func(m *Matcher) {
		m.batchSize = n
	}
}

// WithMatchProgress registers a callback for periodic progress reports.
func WithMatchProgress(fn func(MatchProgress)) MatcherOption {
	return func(m *Matcher) {
		m.progress = fn
	}
}

// NewMatcher creates a Matcher over st.
func NewMatcher(st Store, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		store:     st,
		logger:    slog.Default(),
		now:       time.Now,
		interval:  DefaultProgressInterval,
		batchSize: DefaultMatchBatchSize,
		ticker:    realTicker,
		cache:     newLookupCache(),
		configs:   make(map[string]MatchConfig),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.batchSize <= 0 {
		m.batchSize = DefaultMatchBatchSize
	}
	if m.interval <= 0 {
		m.interval = DefaultProgressInterval
	}
	return m
}

// SetMatchConfig sets the rule of one registry.
func (m *Matcher) SetMatchConfig(registryID string, cfg MatchConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[registryID] = cfg
}

func (m *Matcher) configFor(registryID string) MatchConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cfg, ok := m.configs[registryID]; ok {
		return cfg
	}
	return m.defaults
}

// CacheStats returns lookup cache hits and misses since the last ClearCache.
func (m *Matcher) CacheStats() (hits, misses int) {
	return m.cache.stats()
}

// ClearCache drops every cached lookup and resets the counters.
func (m *Matcher) ClearCache() {
	m.cache.clear()
}

// MatchOne links one filing to its entity.
//
// A filing that is already linked is returned as linked and left untouched.
// A filing without a match value is unmatched; no orphan is created for it.
// Several candidates yield OutcomeMultipleMatches together with an
// IntegrityError, and the filing stays unlinked.
func (m *Matcher) MatchOne(ctx context.Context, f record.Filing) (MatchResult, error) {
	res := MatchResult{FilingID: f.ID}
	if f.Linked() {
		res.Outcome = OutcomeLinked
		res.EntityID = f.EntityLink
		res.AlreadyLinked = true
		return res, nil
	}

	cfg := m.configFor(f.RegistryID)
	field := cfg.field()
	key := cfg.Transform(f.Key(field))
	res.Key = key
	if key == "" {
		res.Outcome = OutcomeUnmatched
		return res, nil
	}

	ck := cacheKey{registryID: f.RegistryID, field: field, key: key}
	if id, ok := m.cache.get(ck); ok {
		if err := m.link(ctx, f.ID, id); err != nil {
			return res, err
		}
		res.Outcome = OutcomeLinked
		res.EntityID = id
		res.Cached = true
		return res, nil
	}

	filter := store.Where(
		store.Eq(record.FieldRegistryID, f.RegistryID),
		store.Eq(field, key),
	)
	if cfg.ExcludeSubsidiaries {
		filter = filter.And(store.Or(
			store.Missing(record.FieldSubsidiaryIndex),
			store.In(record.FieldSubsidiaryIndex, 0, "0"),
		))
	}
	candidates, err := m.store.Project(ctx, store.Organizations, filter, field)
	if err != nil {
		return res, fmt.Errorf("match filing %s: %w", f.ID, err)
	}

	switch len(candidates) {
	case 0:
		if !m.createOrphans {
			res.Outcome = OutcomeUnmatched
			return res, nil
		}
		id, err := m.store.InsertOne(ctx, store.Organizations, orphanEntity(f, cfg, key, m.now()))
		if err != nil {
			return res, fmt.Errorf("create orphan for filing %s: %w", f.ID, err)
		}
		m.cache.put(ck, id)
		if err := m.link(ctx, f.ID, id); err != nil {
			return res, err
		}
		m.logger.Debug("orphan entity created", "filing", f.ID, "entity", id, "registry", f.RegistryID, "key", key)
		res.Outcome = OutcomeOrphanCreated
		res.EntityID = id
		return res, nil

	case 1:
		id := candidates[0].ID
		m.cache.put(ck, id)
		if err := m.link(ctx, f.ID, id); err != nil {
			return res, err
		}
		res.Outcome = OutcomeLinked
		res.EntityID = id
		return res, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	res.Outcome = OutcomeMultipleMatches
	res.Candidates = ids
	return res, NewMultipleMatchError(f.RegistryID, field, key, f.ID, ids)
}

func (m *Matcher) link(ctx context.Context, filingID, entityID string) error {
	matched, err := m.store.UpdateOne(ctx, store.Filings, filingID, map[string]any{
		record.FieldEntityLink: entityID,
	})
	if err != nil {
		return fmt.Errorf("link filing %s: %w", filingID, err)
	}
	if !matched {
		return fmt.Errorf("link filing %s: filing not found", filingID)
	}
	return nil
}

// MatchAll links every unlinked filing, up to limit when limit > 0.
//
// Filings are read in store order with a keyset cursor, so a filing left
// unmatched is not retried within the run. Cancelling ctx stops the loop
// between filings; the in-flight filing completes on a context detached from
// the cancellation and every link already written stays. Multiple-match
// filings are recorded in Integrity and the loop continues. Any store error
// stops the run and is returned with the partial result.
func (m *Matcher) MatchAll(ctx context.Context, limit int) (BatchMatchResult, error) {
	var res BatchMatchResult
	start := m.now()
	hits0, misses0 := m.cache.stats()
	work := context.WithoutCancel(ctx)

	finish := func() {
		hits, misses := m.cache.stats()
		res.CacheHits = hits - hits0
		res.CacheMisses = misses - misses0
		res.Duration = m.now().Sub(start)
		m.logger.Info("match finished",
			"processed", res.Processed,
			"linked", res.Linked,
			"orphans", res.OrphansCreated,
			"unmatched", res.Unmatched,
			"multiple", res.MultipleMatches,
			"interrupted", res.Interrupted,
			"duration", res.Duration,
		)
	}

	if err := EnsureIndexes(work, m.store); err != nil {
		return res, err
	}
	if err := m.ensureMatchIndexes(work); err != nil {
		return res, err
	}

	unlinked := store.Where(store.Missing(record.FieldEntityLink))
	backlog, err := m.store.Count(work, store.Filings, unlinked)
	if err != nil {
		return res, fmt.Errorf("count unlinked filings: %w", err)
	}
	res.Backlog = backlog
	m.logger.Info("matching filings", "backlog", backlog, "limit", limit, "orphans", m.createOrphans)

	ticks, stop := m.ticker(m.interval)
	defer stop()
	lastReported := 0

	cursor := ""
	for {
		pageSize := m.batchSize
		if limit > 0 {
			pageSize = min(pageSize, limit-res.Processed)
		}
		if pageSize <= 0 {
			break
		}

		page, err := m.store.Find(work, store.Filings, unlinked, store.FindOptions{Limit: pageSize, After: cursor})
		if err != nil {
			finish()
			return res, fmt.Errorf("read unlinked filings: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, doc := range page {
			if ctx.Err() != nil {
				res.Interrupted = true
				finish()
				return res, nil
			}

			select {
			case <-ticks:
				m.report(&res, start, &lastReported)
			default:
			}

			mr, err := m.MatchOne(work, record.FilingFromDocument(doc))
			cursor = doc.ID()
			if err != nil && !IsIntegrityError(err) {
				finish()
				return res, err
			}

			res.Processed++
			switch mr.Outcome {
			case OutcomeLinked:
				res.Linked++
			case OutcomeOrphanCreated:
				res.OrphansCreated++
			case OutcomeUnmatched:
				res.Unmatched++
			case OutcomeMultipleMatches:
				res.MultipleMatches++
				res.Integrity = append(res.Integrity, err)
				m.logger.Error("filing matches several entities", "filing", mr.FilingID, "error", err)
			}
		}
	}

	finish()
	return res, nil
}

func (m *Matcher) ensureMatchIndexes(ctx context.Context) error {
	fields := map[string]bool{m.defaults.field(): true}
	m.mu.RLock()
	for _, cfg := range m.configs {
		fields[cfg.field()] = true
	}
	m.mu.RUnlock()

	for field := range fields {
		if err := ensureKeyIndex(ctx, m.store, store.Organizations, field); err != nil {
			return err
		}
	}
	return nil
}

func (m *Matcher) report(res *BatchMatchResult, start time.Time, lastReported *int) {
	elapsed := m.now().Sub(start)
	p := MatchProgress{
		Elapsed:   elapsed,
		Processed: res.Processed,
		Delta:     res.Processed - *lastReported,
		Backlog:   res.Backlog,
	}
	*lastReported = res.Processed
	if secs := elapsed.Seconds(); secs > 0 {
		p.Rate = float64(res.Processed) / secs
	}
	if p.Rate > 0 {
		remaining := float64(res.Backlog - int64(res.Processed))
		if remaining > 0 {
			p.ETA = time.Duration(remaining / p.Rate * float64(time.Second))
		}
	}

	m.logger.Info("match progress",
		"elapsed", p.Elapsed.Round(time.Second),
		"processed", p.Processed,
		"delta", p.Delta,
		"rate", fmt.Sprintf("%.1f/s", p.Rate),
		"eta", p.ETA.Round(time.Second),
	)
	if m.progress != nil {
		m.progress(p)
	}
}
