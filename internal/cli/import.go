package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/registry"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Level    string
	Strategy string
	Yes      bool
}

// ImportSummary is the output of the import command.
type ImportSummary struct {
	Registry        string   `json:"registry"`
	RegistryID      string   `json:"registryId"`
	Created         bool     `json:"created"`
	Level           string   `json:"level"`
	Strategy        string   `json:"strategy"`
	Attempted       int      `json:"attempted"`
	Inserted        int      `json:"inserted"`
	Updated         int      `json:"updated"`
	Skipped         int      `json:"skipped"`
	Failed          int      `json:"failed"`
	Deleted         int64    `json:"deleted"`
	Warnings        int      `json:"warnings"`
	MappingWarnings []string `json:"mappingWarnings,omitempty"`
	Failures        []string `json:"failures,omitempty"`
	CompletedAt     string   `json:"completedAt,omitempty"`
}

func (s ImportSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d attempted, %d inserted, %d updated, %d skipped, %d failed",
		s.Registry, s.Level, s.Attempted, s.Inserted, s.Updated, s.Skipped, s.Failed)
	if s.Strategy == engine.StrategyReplace.String() {
		fmt.Fprintf(&b, ", %d deleted first", s.Deleted)
	}
	if n := len(s.MappingWarnings); n > 0 {
		fmt.Fprintf(&b, "\n%d data-quality warnings", n)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "\n  failed: %s", f)
	}
	return b.String()
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <definition> <file>",
		Short: "Import a registry source file",
		Long: `Map the records of a source file through a registry definition and write
them with the chosen strategy.

Strategies:
  insert   add records whose unique key is not stored yet (default)
  replace  delete the registry's records of this level, then insert all (needs --yes)
  upsert   update stored records in place, insert the rest
  refresh  bulk update by unique key, insert the rest

Exit codes:
  0 - Import finished
  1 - Records failed, or a store or integrity error
  2 - Command error (bad definition, unsupported file, missing database, unconfirmed replace)`,
		Example: `  regeindary import registries/irs.yaml eo_bmf.csv --level entities
  regeindary import registries/irs.yaml 990.csv --level filings --strategy refresh
  regeindary import registries/ccew.cue charities.json --level entities --strategy replace --yes`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Level, "level", record.LevelEntities, "record level (entities|filings)")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", engine.StrategyInsert.String(), "sync strategy (insert|replace|upsert|refresh)")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm a replace import")

	return cmd
}

func runImport(opts *ImportOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.log()

	strategy, err := engine.ParseStrategy(opts.Strategy)
	if err != nil {
		return fail(f, "strategy", err)
	}
	confirm := engine.ReplaceConfirmation{}
	if strategy == engine.StrategyReplace {
		if !opts.Yes {
			_ = f.Error(ErrCodePrecondition, "replace deletes every stored record of the registry at this level; rerun with --yes to confirm", nil)
			return NewExitError(ExitCommandError, "replace not confirmed")
		}
		confirm = engine.ConfirmReplace
	}

	def, file, err := loadInputs(f, args[0], args[1])
	if err != nil {
		return err
	}

	st, cfg, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	sync := engine.NewSynchronizer(st,
		engine.WithSyncLogger(logger),
		engine.WithClassifier(engine.NewClassifier(st, engine.WithClassifierLogger(logger))),
		engine.WithProgressEvery(cfg.ProgressEvery),
		engine.WithProgress(func(p engine.Progress) {
			logger.Info("import progress", "strategy", p.Strategy.String(), "done", p.Done, "total", p.Total)
		}),
	)
	im := registry.NewImporter(st, registry.WithImportLogger(logger), registry.WithSynchronizer(sync))

	ctx, stop := signalContext(cmd)
	defer stop()

	res, err := im.Import(ctx, def, registry.ImportRequest{
		Level:    opts.Level,
		Strategy: strategy,
		Records:  file.Records,
		Confirm:  confirm,
	})
	if err != nil {
		return fail(f, "import", err)
	}

	summary := newImportSummary(opts.Level, res)
	if err := f.Success(summary); err != nil {
		return err
	}
	if res.Sync.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d records failed", res.Sync.Failed))
	}
	return nil
}

func newImportSummary(level string, res registry.ImportResult) ImportSummary {
	s := ImportSummary{
		Registry:        res.Registry.Name,
		RegistryID:      res.Registry.ID,
		Created:         res.Created,
		Level:           level,
		Strategy:        res.Sync.Strategy.String(),
		Attempted:       res.Sync.Attempted,
		Inserted:        res.Sync.Inserted,
		Updated:         res.Sync.Updated,
		Skipped:         res.Sync.Skipped,
		Failed:          res.Sync.Failed,
		Deleted:         res.Sync.Deleted,
		Warnings:        res.Sync.Warnings,
	}
	for _, w := range res.MappingWarnings {
		s.MappingWarnings = append(s.MappingWarnings, w.String())
	}
	for _, fl := range res.Sync.Failures {
		s.Failures = append(s.Failures, fmt.Sprintf("record %d (%s): %v", fl.Index, fl.Key, fl.Err))
	}
	if res.Registry.LastCompletedAt != nil {
		s.CompletedAt = res.Registry.LastCompletedAt.UTC().Format(time.RFC3339)
	}
	return s
}
