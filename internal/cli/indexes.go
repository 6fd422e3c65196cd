package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/store"
)

// IndexesOptions holds flags for the indexes command.
type IndexesOptions struct {
	*RootOptions
	Ensure bool
}

// CollectionIndexes lists the indexes of one collection.
type CollectionIndexes struct {
	Collection string   `json:"collection"`
	Indexes    []string `json:"indexes"`
	// Missing are required indexes that do not exist.
	Missing []string `json:"missing,omitempty"`
}

// IndexesSummary is the output of the indexes command.
type IndexesSummary struct {
	Collections []CollectionIndexes `json:"collections"`
}

func (s IndexesSummary) String() string {
	var b strings.Builder
	for i, c := range s.Collections {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s:", c.Collection)
		for _, name := range c.Indexes {
			fmt.Fprintf(&b, "\n  %s", name)
		}
		for _, name := range c.Missing {
			fmt.Fprintf(&b, "\n  %s (missing)", name)
		}
	}
	return b.String()
}

// NewIndexesCommand creates the indexes command.
func NewIndexesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "List or create the lookup indexes",
		Long: `List the document indexes of the organizations and filings collections and
flag the required ones that are missing. With --ensure, create them first.

Imports and match runs create the indexes they need; --ensure is for
preparing a database ahead of a large load.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexes(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Ensure, "ensure", false, "create missing required indexes")

	return cmd
}

func runIndexes(opts *IndexesOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, _, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	collections := []string{store.Organizations, store.Filings}
	if opts.Ensure {
		if err := engine.EnsureIndexes(ctx, st, collections...); err != nil {
			return fail(f, "ensure indexes", err)
		}
	}

	summary := IndexesSummary{}
	for _, c := range collections {
		names, err := st.Indexes(ctx, c)
		if err != nil {
			return fail(f, "list indexes", err)
		}
		ci := CollectionIndexes{Collection: c, Indexes: names}
		if ci.Indexes == nil {
			ci.Indexes = []string{}
		}
		existing := make(map[string]struct{}, len(names))
		for _, n := range names {
			existing[n] = struct{}{}
		}
		for _, fields := range engine.RequiredIndexes[c] {
			name := store.IndexName(c, fields)
			if _, ok := existing[name]; !ok {
				ci.Missing = append(ci.Missing, name)
			}
		}
		summary.Collections = append(summary.Collections, ci)
	}
	return f.Success(summary)
}
