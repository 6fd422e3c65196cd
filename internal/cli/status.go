package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/regeindary/internal/engine"
)

// RegistryRow is one registry of the status output.
type RegistryRow struct {
	Name            string  `json:"name"`
	ID              string  `json:"id"`
	Entities        int64   `json:"entities"`
	Filings         int64   `json:"filings"`
	Share           float64 `json:"share"`
	LastCompletedAt string  `json:"lastCompletedAt,omitempty"`
}

// StatusSummary is the output of the status command.
type StatusSummary struct {
	Registries      []RegistryRow `json:"registries"`
	TotalEntities   int64         `json:"totalEntities"`
	TotalFilings    int64         `json:"totalFilings"`
	UnlinkedFilings int64         `json:"unlinkedFilings"`
}

func (s StatusSummary) String() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGISTRY\tENTITIES\tFILINGS\tSHARE\tLAST COMPLETED")
	for _, r := range s.Registries {
		completed := r.LastCompletedAt
		if completed == "" {
			completed = "never"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\t%s\n", r.Name, r.Entities, r.Filings, r.Share*100, completed)
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t\t\n", s.TotalEntities, s.TotalFilings)
	tw.Flush()
	fmt.Fprintf(&b, "%d filings not linked to an entity", s.UnlinkedFilings)
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show entity and filing counts per registry",
		Long: `Show, for every registry in the store, its entity and filing counts, its
share of all entities and when its last import completed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, _, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	rep, err := engine.Status(commandContext(cmd), st)
	if err != nil {
		return fail(f, "status", err)
	}

	summary := StatusSummary{
		Registries:      make([]RegistryRow, 0, len(rep.Registries)),
		TotalEntities:   rep.TotalEntities,
		TotalFilings:    rep.TotalFilings,
		UnlinkedFilings: rep.UnlinkedFilings,
	}
	for _, rs := range rep.Registries {
		row := RegistryRow{
			Name:     rs.Registry.Name,
			ID:       rs.Registry.ID,
			Entities: rs.Entities,
			Filings:  rs.Filings,
			Share:    rs.Share,
		}
		if rs.Registry.LastCompletedAt != nil {
			row.LastCompletedAt = rs.Registry.LastCompletedAt.UTC().Format(time.RFC3339)
		}
		summary.Registries = append(summary.Registries, row)
	}
	return f.Success(summary)
}
