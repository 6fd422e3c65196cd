package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/registry"
)

// PreviewOptions holds flags for the preview command.
type PreviewOptions struct {
	*RootOptions
	Level  string
	Sample int
}

// PreviewSummary is the output of the preview command.
type PreviewSummary struct {
	Registry    string           `json:"registry"`
	Level       string           `json:"level"`
	Collection  string           `json:"collection"`
	UniqueField string           `json:"uniqueField"`
	Records     int              `json:"records"`
	New         int              `json:"new"`
	Existing    int              `json:"existing"`
	Warnings    []string         `json:"warnings,omitempty"`
	Samples     []map[string]any `json:"samples,omitempty"`
}

func (s PreviewSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -> %s (unique field %s)\n", s.Registry, s.Level, s.Collection, s.UniqueField)
	fmt.Fprintf(&b, "%d records: %d new, %d already stored", s.Records, s.New, s.Existing)
	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "\n  warning: %s", w)
	}
	for i, doc := range s.Samples {
		data, err := json.MarshalIndent(doc, "  ", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\nsample %d:\n  %s", i+1, data)
	}
	return b.String()
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preview <definition> <file>",
		Short: "Show what an import would write",
		Long: `Map a source file through a registry definition and classify every record
as new or already stored, without writing records.

The registry's metadata record is created when it does not exist yet.`,
		Example: `  regeindary preview registries/irs.yaml eo_bmf.csv
  regeindary preview registries/irs.yaml 990.csv --level filings --sample 3`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Level, "level", record.LevelEntities, "record level (entities|filings)")
	cmd.Flags().IntVar(&opts.Sample, "sample", 0, "number of mapped records to show")

	return cmd
}

func runPreview(opts *PreviewOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if opts.Sample < 0 {
		_ = f.Error(ErrCodePrecondition, "--sample must not be negative", nil)
		return NewExitError(ExitCommandError, "--sample must not be negative")
	}

	def, file, err := loadInputs(f, args[0], args[1])
	if err != nil {
		return err
	}

	st, _, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	im := registry.NewImporter(st, registry.WithImportLogger(opts.log()))
	b, cls, err := im.Preview(commandContext(cmd), def, opts.Level, file.Records)
	if err != nil {
		return fail(f, "preview", err)
	}

	newCount, existing := cls.Counts()
	summary := PreviewSummary{
		Registry:    b.Registry.Name,
		Level:       opts.Level,
		Collection:  b.Collection,
		UniqueField: b.UniqueField,
		Records:     len(b.Records),
		New:         newCount,
		Existing:    existing,
	}
	for _, w := range b.Warnings {
		summary.Warnings = append(summary.Warnings, w.String())
	}
	for i := 0; i < opts.Sample && i < len(b.Records); i++ {
		summary.Samples = append(summary.Samples, b.Records[i].Document())
	}
	return f.Success(summary)
}
