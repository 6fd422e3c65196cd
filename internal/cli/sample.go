package cli

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/record"
)

// SampleOptions holds flags for the sample command.
type SampleOptions struct {
	*RootOptions
	NoOriginal bool
	Seed       uint64
}

// NewSampleCommand creates the sample command.
func NewSampleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SampleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sample <registry-name>",
		Short: "Print one random entity of a registry",
		Long: `Pick one stored entity of the named registry at random and print it, for
eyeballing a mapping after an import.`,
		Example: `  regeindary sample "IRS Exempt Organizations"
  regeindary sample ACNC --no-original --seed 42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoOriginal, "no-original", false, "omit the originalData sub-object")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (default: time based)")

	return cmd
}

func runSample(opts *SampleOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	name := args[0]

	st, _, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	reg, found, err := engine.FindRegistry(ctx, st, name)
	if err != nil {
		return fail(f, "find registry", err)
	}
	if !found {
		_ = f.Error(ErrCodePrecondition, fmt.Sprintf("registry %q not found", name), nil)
		return NewExitError(ExitCommandError, "registry not found")
	}

	seed := opts.Seed
	if !cmd.Flags().Changed("seed") {
		seed = uint64(time.Now().UnixNano())
	}
	e, found, err := engine.RandomEntity(ctx, st, reg.ID, rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		return fail(f, "sample", err)
	}
	if !found {
		_ = f.Error(ErrCodePrecondition, fmt.Sprintf("registry %q has no entities", name), nil)
		return NewExitError(ExitFailure, "registry has no entities")
	}

	doc := make(map[string]any, len(e.Doc))
	for k, v := range e.Doc {
		if opts.NoOriginal && k == record.FieldOriginalData {
			continue
		}
		doc[k] = v
	}

	if opts.Format == "json" {
		return f.Success(doc)
	}
	return f.Success(dumpDocument(doc))
}

// dumpDocument renders a document with sorted keys.
func dumpDocument(doc map[string]any) string {
	cfg := spew.ConfigState{
		Indent:                  "  ",
		SortKeys:                true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}
	return strings.TrimRight(cfg.Sdump(doc), "\n")
}
