package registry

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/regeindary/internal/engine"
	"github.com/roach88/regeindary/internal/record"
)

//go:embed schema.cue
var schemaCUE string

// Collection is the import rule of one level.
type Collection struct {
	UniqueField string             `json:"uniqueField"`
	Mapping     record.FieldMapping `json:"mapping"`
}

// Match is the filing-to-entity matching rule of the registry.
type Match struct {
	Field               string `json:"field,omitempty"`
	KeyTransform        string `json:"keyTransform,omitempty"`
	ExcludeSubsidiaries bool   `json:"excludeSubsidiaries,omitempty"`
}

// Definition is a decoded registry definition.
type Definition struct {
	Name         string               `json:"name"`
	Source       string               `json:"source,omitempty"`
	Description  string               `json:"description,omitempty"`
	LegalNotices []record.LegalNotice `json:"legalNotices,omitempty"`
	Mapping      record.FieldMapping  `json:"mapping,omitempty"`
	Entities     *Collection          `json:"entities,omitempty"`
	Filings      *Collection          `json:"filings,omitempty"`
	Match        Match                `json:"match,omitempty"`

	// Path is the file the definition was loaded from.
	Path string `json:"-"`
}

// Load reads a definition file. The format follows the extension: .cue,
// .json, .yaml or .yml. Schema and mapping violations are precondition
// errors.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry definition: %w", err)
	}
	def, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	def.Path = path
	return def, nil
}

// Parse decodes a definition held in memory; name selects the format by
// extension and labels error positions.
func Parse(name string, data []byte) (*Definition, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Registry"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile registry schema: %w", err)
	}

	var value cue.Value
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".cue", ".json":
		value = ctx.CompileBytes(data, cue.Filename(name))
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, engine.NewPreconditionError("%s: invalid YAML: %v", name, err)
		}
		value = ctx.Encode(raw)
	default:
		return nil, engine.NewPreconditionError("%s: unsupported definition format %q", name, ext)
	}
	if err := value.Err(); err != nil {
		return nil, engine.NewPreconditionError("%s", formatCUEError(name, err))
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, engine.NewPreconditionError("%s", formatCUEError(name, err))
	}

	var def Definition
	if err := unified.Decode(&def); err != nil {
		return nil, engine.NewPreconditionError("%s: %v", name, err)
	}
	if err := def.Validate(); err != nil {
		return nil, engine.NewPreconditionError("%s: %v", name, err)
	}
	return &def, nil
}

// Validate checks what the schema cannot: the target vocabulary, origin
// uniqueness and that every unique field is actually mapped.
func (d *Definition) Validate() error {
	if d.Entities == nil && d.Filings == nil {
		return fmt.Errorf("registry %q defines neither entities nor filings", d.Name)
	}
	if err := d.Mapping.Validate(); err != nil {
		return fmt.Errorf("shared mapping: %w", err)
	}
	for _, level := range []string{record.LevelEntities, record.LevelFilings} {
		c, err := d.Collection(level)
		if err != nil {
			continue
		}
		mapping := d.MappingFor(level)
		if err := mapping.Validate(); err != nil {
			return fmt.Errorf("%s mapping: %w", level, err)
		}
		if _, ok := mapping.TargetSet()[c.UniqueField]; !ok {
			return fmt.Errorf("%s: unique field %q is not a mapping target", level, c.UniqueField)
		}
	}
	return d.MatchConfig().Validate()
}

// Collection returns the import rule of level.
func (d *Definition) Collection(level string) (Collection, error) {
	var c *Collection
	switch level {
	case record.LevelEntities:
		c = d.Entities
	case record.LevelFilings:
		c = d.Filings
	}
	if c == nil {
		return Collection{}, engine.NewPreconditionError("registry %q has no %s definition", d.Name, level)
	}
	return *c, nil
}

// MappingFor returns the shared rules for level followed by the level's own
// rules.
func (d *Definition) MappingFor(level string) record.FieldMapping {
	out := d.Mapping.ForLevel(level)
	if c, err := d.Collection(level); err == nil {
		out = append(out, c.Mapping...)
	}
	return out
}

// Registry returns the metadata record described by the definition.
func (d *Definition) Registry() record.Registry {
	return record.Registry{
		Name:         d.Name,
		Source:       d.Source,
		Description:  d.Description,
		LegalNotices: d.LegalNotices,
	}
}

// Amendments returns the static fields stamped on every record of the
// registry stored as meta.
func (d *Definition) Amendments(meta record.Registry) record.StaticAmendments {
	notices := make([]any, 0, len(d.LegalNotices))
	for _, n := range d.LegalNotices {
		notices = append(notices, map[string]any{
			"title":       n.Title,
			"description": n.Description,
			"url":         n.URL,
		})
	}
	return record.StaticAmendments{
		record.FieldRegistryID:   meta.ID,
		record.FieldRegistryName: meta.Name,
		record.FieldLegalNotices: notices,
	}
}

// MatchConfig returns the matcher rule of the registry.
func (d *Definition) MatchConfig() engine.MatchConfig {
	return engine.MatchConfig{
		Field:               d.Match.Field,
		KeyTransform:        d.Match.KeyTransform,
		ExcludeSubsidiaries: d.Match.ExcludeSubsidiaries,
	}
}

// formatCUEError reports the first error at its position in the definition
// file, falling back to the file name when CUE only knows schema positions.
func formatCUEError(name string, err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return name + ": " + err.Error()
	}
	first := errs[0]
	loc := name
	for _, pos := range cueerrors.Positions(first) {
		if pos.Filename() == name {
			loc = fmt.Sprintf("%s:%d:%d", name, pos.Line(), pos.Column())
			break
		}
	}
	msg := loc + ": " + first.Error()
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
	}
	return msg
}
