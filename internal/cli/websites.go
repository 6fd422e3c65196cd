package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/regeindary/internal/engine"
)

// WebsitesOptions holds flags for the websites command.
type WebsitesOptions struct {
	*RootOptions
	Limit int
}

// WebsitesSummary is the output of the websites command.
type WebsitesSummary struct {
	Candidates  int64 `json:"candidates"`
	Processed   int   `json:"processed"`
	Filled      int   `json:"filled"`
	NoURL       int   `json:"noUrl"`
	Interrupted bool  `json:"interrupted"`

	result engine.WebsiteResult
}

func (s WebsitesSummary) String() string {
	return s.result.String()
}

// NewWebsitesCommand creates the websites command.
func NewWebsitesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WebsitesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "websites",
		Short: "Copy website URLs from filings onto their entities",
		Long: `Give every entity without a websiteUrl the URL of its most recent linked
filing. Entities none of whose filings carry a URL are marked with a null
websiteUrl and skipped by later runs. Run match first so filings are linked.

Exit codes:
  0 - Run finished
  1 - Store error
  2 - Command error (bad flags, missing database)`,
		Example: `  regeindary websites
  regeindary websites --limit 1000 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWebsites(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entities to process (0 = all)")

	return cmd
}

func runWebsites(opts *WebsitesOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if opts.Limit < 0 {
		_ = f.Error(ErrCodePrecondition, "--limit must not be negative", nil)
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}

	st, _, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	res, err := engine.BackfillWebsites(ctx, st, opts.Limit)
	if err != nil {
		return fail(f, "backfill websites", err)
	}

	return f.Success(WebsitesSummary{
		Candidates:  res.Candidates,
		Processed:   res.Processed,
		Filled:      res.Filled,
		NoURL:       res.NoURL,
		Interrupted: res.Interrupted,
		result:      res,
	})
}
