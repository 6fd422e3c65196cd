package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/registry"
)

// MatchOptions holds flags for the match command.
type MatchOptions struct {
	*RootOptions
	Registries    []string
	Limit         int
	CreateOrphans bool
	BatchSize     int
}

// MatchSummary is the output of the match command.
type MatchSummary struct {
	Backlog         int64    `json:"backlog"`
	Processed       int      `json:"processed"`
	Linked          int      `json:"linked"`
	OrphansCreated  int      `json:"orphansCreated"`
	Unmatched       int      `json:"unmatched"`
	MultipleMatches int      `json:"multipleMatches"`
	Interrupted     bool     `json:"interrupted"`
	CacheHits       int      `json:"cacheHits"`
	CacheMisses     int      `json:"cacheMisses"`
	DurationMS      int64    `json:"durationMs"`
	Integrity       []string `json:"integrity,omitempty"`

	result engine.BatchMatchResult
}

func (s MatchSummary) String() string {
	out := s.result.String()
	for _, msg := range s.Integrity {
		out += "\n  " + msg
	}
	return out
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Link unlinked filings to their entities",
		Long: `Resolve every filing without an entity link to the entity of the same
registry with the same match key, and record the link.

Registries whose definitions are passed with --registry use the definition's
match rule (field, key transform, subsidiary exclusion); the others match on
entityId. Interrupting the run stops it after the current filing; the links
written so far are kept.

Exit codes:
  0 - Run finished
  1 - Filings matched several entities, or a store error
  2 - Command error (bad definition, missing database)`,
		Example: `  regeindary match
  regeindary match --registry registries/irs.yaml --create-orphans
  regeindary match --limit 10000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Registries, "registry", nil, "registry definition supplying a match rule (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum filings to process (0 = all)")
	cmd.Flags().BoolVar(&opts.CreateOrphans, "create-orphans", false, "create an entity for filings with no owner (default $REGEINDARY_CREATE_ORPHANS)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "filings fetched per page (default $REGEINDARY_MATCH_BATCH_SIZE)")

	return cmd
}

func runMatch(opts *MatchOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.log()

	if opts.Limit < 0 || opts.BatchSize < 0 {
		_ = f.Error(ErrCodePrecondition, "--limit and --batch-size must not be negative", nil)
		return NewExitError(ExitCommandError, "--limit and --batch-size must not be negative")
	}

	defs := make([]*registry.Definition, 0, len(opts.Registries))
	for _, path := range opts.Registries {
		def, err := registry.Load(path)
		if err != nil {
			return fail(f, "load definition", err)
		}
		defs = append(defs, def)
	}

	st, cfg, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	createOrphans := cfg.CreateOrphans
	if cmd.Flags().Changed("create-orphans") {
		createOrphans = opts.CreateOrphans
	}
	batchSize := cfg.MatchBatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	m := engine.NewMatcher(st,
		engine.WithMatcherLogger(logger),
		engine.WithCreateOrphans(createOrphans),
		engine.WithMatchBatchSize(batchSize),
		engine.WithProgressInterval(cfg.ProgressInterval),
		engine.WithMatchProgress(func(p engine.MatchProgress) {
			logger.Info("match progress",
				"processed", p.Processed, "backlog", p.Backlog,
				"rate", fmt.Sprintf("%.1f/s", p.Rate), "eta", p.ETA.Round(time.Second).String())
		}),
	)

	ctx, stop := signalContext(cmd)
	defer stop()

	for _, def := range defs {
		reg, found, err := engine.FindRegistry(ctx, st, def.Name)
		if err != nil {
			return fail(f, "find registry", err)
		}
		if !found {
			logger.Warn("registry not imported yet, rule ignored", "registry", def.Name)
			continue
		}
		m.SetMatchConfig(reg.ID, def.MatchConfig())
		f.VerboseLog("match rule for %s: %+v", reg.Name, def.MatchConfig())
	}

	res, err := m.MatchAll(ctx, opts.Limit)
	if err != nil {
		return fail(f, "match", err)
	}

	summary := MatchSummary{
		Backlog:         res.Backlog,
		Processed:       res.Processed,
		Linked:          res.Linked,
		OrphansCreated:  res.OrphansCreated,
		Unmatched:       res.Unmatched,
		MultipleMatches: res.MultipleMatches,
		Interrupted:     res.Interrupted,
		CacheHits:       res.CacheHits,
		CacheMisses:     res.CacheMisses,
		DurationMS:      res.Duration.Milliseconds(),
		result:          res,
	}
	for _, ierr := range res.Integrity {
		summary.Integrity = append(summary.Integrity, ierr.Error())
	}
	if err := f.Success(summary); err != nil {
		return err
	}
	if res.MultipleMatches > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d filings matched several entities", res.MultipleMatches))
	}
	return nil
}
