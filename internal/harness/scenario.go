package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// Scenario is one end-to-end engine test.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Definition is the registry definition file, relative to the scenario
	// file.
	Definition string `yaml:"definition"`

	Options Options `yaml:"options,omitempty"`

	// Setup seeds the store before the flow runs.
	Setup []SetupStep `yaml:"setup,omitempty"`

	Flow []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`

	// Snapshot selects the documents recorded in the golden state.
	Snapshot []SnapshotSpec `yaml:"snapshot,omitempty"`
}

// Options configure the engine components of a run.
type Options struct {
	CreateOrphans bool `yaml:"create_orphans,omitempty"`
	ProgressEvery int  `yaml:"progress_every,omitempty"`
}

// SetupStep writes documents directly into a collection.
type SetupStep struct {
	Collection string           `yaml:"collection"`
	Documents  []map[string]any `yaml:"documents,omitempty"`
	Generate   *Generate        `yaml:"generate,omitempty"`
}

// Generate produces Count records numbered Start, Start+1, ... Each field
// value is a template in which {n} is replaced by the record number.
type Generate struct {
	Count  int               `yaml:"count"`
	Start  int               `yaml:"start,omitempty"`
	Fields map[string]string `yaml:"fields"`
}

// FlowStep is one engine operation.
type FlowStep struct {
	// Op is classify, sync, match_one or match_all.
	Op string `yaml:"op"`

	// Level is entities or filings (classify, sync).
	Level string `yaml:"level,omitempty"`

	// Strategy is a sync strategy name (sync).
	Strategy string `yaml:"strategy,omitempty"`

	// Confirm acknowledges a replace (sync).
	Confirm bool `yaml:"confirm,omitempty"`

	// Records are raw source rows (classify, sync).
	Records  []map[string]any `yaml:"records,omitempty"`
	Generate *Generate        `yaml:"generate,omitempty"`

	// Filing selects the filing to match (match_one).
	Filing map[string]any `yaml:"filing,omitempty"`

	// Limit caps a match_all run; 0 means no limit.
	Limit int `yaml:"limit,omitempty"`

	// Expect is a subset match against the step's result.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion checks the final store contents.
type Assertion struct {
	// Type is count, document, linked or ids_preserved.
	Type string `yaml:"type"`

	Collection string `yaml:"collection,omitempty"`

	// Where selects documents by top-level field equality; a null value
	// selects documents without the field.
	Where map[string]any `yaml:"where,omitempty"`

	// Count is the expected number of matching documents (count).
	Count *int `yaml:"count,omitempty"`

	// Expect is a subset match against the single matching document
	// (document). Keys may be dotted paths; a null value requires the field
	// to be absent.
	Expect map[string]any `yaml:"expect,omitempty"`

	// To selects the entity the filings matched by Where must link to
	// (linked).
	To map[string]any `yaml:"to,omitempty"`
}

// SnapshotSpec selects documents and fields for the golden state.
type SnapshotSpec struct {
	Collection string   `yaml:"collection"`
	Fields     []string `yaml:"fields"`
}

// Flow operations.
const (
	OpClassify = "classify"
	OpSync     = "sync"
	OpMatchOne = "match_one"
	OpMatchAll = "match_all"
)

// Assertion types.
const (
	AssertCount        = "count"
	AssertDocument     = "document"
	AssertLinked       = "linked"
	AssertIDsPreserved = "ids_preserved"
)

// LoadScenario reads a scenario file and resolves its definition path
// against the scenario's directory. Unknown keys are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Definition != "" && !filepath.IsAbs(scenario.Definition) {
		scenario.Definition = filepath.Join(filepath.Dir(path), scenario.Definition)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Definition == "" {
		return fmt.Errorf("definition is required")
	}
	if _, err := os.Stat(s.Definition); os.IsNotExist(err) {
		return fmt.Errorf("definition file not found: %s", s.Definition)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if !isCollection(step.Collection) {
			return fmt.Errorf("setup[%d]: unknown collection %q", i, step.Collection)
		}
		if len(step.Documents) == 0 && step.Generate == nil {
			return fmt.Errorf("setup[%d]: documents or generate is required", i)
		}
		if err := validateGenerate(step.Generate); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if err := validateFlowStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	for i, snap := range s.Snapshot {
		if !isCollection(snap.Collection) {
			return fmt.Errorf("snapshot[%d]: unknown collection %q", i, snap.Collection)
		}
		if len(snap.Fields) == 0 {
			return fmt.Errorf("snapshot[%d]: fields is required", i)
		}
	}
	return nil
}

func validateFlowStep(step FlowStep) error {
	switch step.Op {
	case OpClassify, OpSync:
		if _, err := engine.CollectionFor(step.Level); err != nil {
			return err
		}
		if step.Op == OpSync {
			if _, err := engine.ParseStrategy(step.Strategy); err != nil {
				return err
			}
		}
		return validateGenerate(step.Generate)
	case OpMatchOne:
		if len(step.Filing) == 0 {
			return fmt.Errorf("filing is required for match_one")
		}
	case OpMatchAll:
		if step.Limit < 0 {
			return fmt.Errorf("limit must be non-negative")
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !isCollection(a.Collection) && a.Type != AssertLinked {
		return fmt.Errorf("unknown collection %q", a.Collection)
	}
	switch a.Type {
	case AssertCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("a non-negative count is required for count")
		}
	case AssertDocument:
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for document")
		}
	case AssertLinked:
		if len(a.Where) == 0 || len(a.To) == 0 {
			return fmt.Errorf("where and to are required for linked")
		}
	case AssertIDsPreserved:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func validateGenerate(g *Generate) error {
	if g == nil {
		return nil
	}
	if g.Count <= 0 {
		return fmt.Errorf("generate: count must be positive")
	}
	if len(g.Fields) == 0 {
		return fmt.Errorf("generate: fields is required")
	}
	return nil
}

func isCollection(name string) bool {
	switch name {
	case store.Registries, store.Organizations, store.Filings:
		return true
	}
	return false
}

// records expands a generate clause into raw records.
func (g *Generate) records() []record.RawRecord {
	out := make([]record.RawRecord, 0, g.Count)
	for i := 0; i < g.Count; i++ {
		n := fmt.Sprint(g.Start + i)
		rec := make(record.RawRecord, len(g.Fields))
		for field, tmpl := range g.Fields {
			rec[field] = strings.ReplaceAll(tmpl, "{n}", n)
		}
		out = append(out, rec)
	}
	return out
}
