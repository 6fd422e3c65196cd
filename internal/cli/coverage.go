package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/registry"
	"github.com/roach88/regeindary/internal/source"
)

// CoverageOptions holds flags for the coverage command.
type CoverageOptions struct {
	*RootOptions
	Level string
}

// CoverageSummary is the output of the coverage command.
type CoverageSummary struct {
	Registry string `json:"registry"`
	registry.CoverageReport
}

func (s CoverageSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d of %d targets mapped", s.Registry, s.Level, len(s.Mapped), len(s.Mapped)+len(s.Unmapped))
	for _, m := range s.Mapped {
		marker := " "
		if !m.Present {
			marker = "!"
		}
		fmt.Fprintf(&b, "\n %s %-20s <- %s", marker, m.Target, m.Origin)
	}
	if len(s.Unmapped) > 0 {
		fmt.Fprintf(&b, "\nunmapped: %s", strings.Join(s.Unmapped, ", "))
	}
	for _, target := range s.Unmapped {
		if hs := s.Suggestions[target]; len(hs) > 0 {
			fmt.Fprintf(&b, "\n  %s could come from: %s", target, strings.Join(hs, ", "))
		}
	}
	if len(s.UnusedHeaders) > 0 {
		fmt.Fprintf(&b, "\nunused headers (kept in originalData): %s", strings.Join(s.UnusedHeaders, ", "))
	}
	return b.String()
}

// NewCoverageCommand creates the coverage command.
func NewCoverageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CoverageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "coverage <definition> [file]",
		Short: "Compare a mapping with the target vocabulary",
		Long: `List which common targets a registry definition fills at a level and which
it leaves unmapped.

With a source file, also mark rules whose origin column is missing (!), list
the headers no rule consumes and suggest headers for unmapped targets.`,
		Example: `  regeindary coverage registries/irs.yaml
  regeindary coverage registries/irs.yaml 990.csv --level filings`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoverage(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Level, "level", record.LevelEntities, "record level (entities|filings)")

	return cmd
}

func runCoverage(opts *CoverageOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	def, err := registry.Load(args[0])
	if err != nil {
		return fail(f, "load definition", err)
	}
	if _, err := def.Collection(opts.Level); err != nil {
		return fail(f, "coverage", err)
	}

	var headers []string
	if len(args) == 2 {
		file, err := source.ReadFile(args[1])
		if err != nil {
			return fail(f, "read source", err)
		}
		headers = file.Headers
	}

	return f.Success(CoverageSummary{
		Registry:       def.Name,
		CoverageReport: def.Coverage(opts.Level, headers),
	})
}
