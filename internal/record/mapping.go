package record

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Format hints understood by Apply.
const (
	FormatDate   = "date"
	FormatNumber = "number"

	// formatDateLayoutPrefix selects an explicit Go layout, e.g. "date:02/01/2006".
	formatDateLayoutPrefix = "date:"
)

// FieldRule renames one source field into a target field.
type FieldRule struct {
	Origin string   `json:"origin" yaml:"origin"`
	Target string   `json:"target" yaml:"target"`
	Format string   `json:"format,omitempty" yaml:"format,omitempty"`
	Levels []string `json:"level,omitempty" yaml:"level,omitempty"`
}

// AppliesTo reports whether the rule is used for the given level.
// A rule without levels applies to every level.
func (r FieldRule) AppliesTo(level string) bool {
	return len(r.Levels) == 0 || slices.Contains(r.Levels, level)
}

// FieldMapping is an ordered list of rename rules.
type FieldMapping []FieldRule

// ForLevel returns the rules that apply to level, in order.
func (m FieldMapping) ForLevel(level string) FieldMapping {
	out := make(FieldMapping, 0, len(m))
	for _, r := range m {
		if r.AppliesTo(level) {
			out = append(out, r)
		}
	}
	return out
}

// OriginFor returns the first origin renamed into target.
func (m FieldMapping) OriginFor(target string) (string, bool) {
	for _, r := range m {
		if r.Target == target {
			return r.Origin, true
		}
	}
	return "", false
}

// TargetSet returns the distinct targets of the mapping.
func (m FieldMapping) TargetSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m))
	for _, r := range m {
		set[r.Target] = struct{}{}
	}
	return set
}

// Validate checks origin uniqueness, the target vocabulary and format hints.
// All problems are reported together.
func (m FieldMapping) Validate() error {
	var errs []error
	seen := make(map[string]int, len(m))
	for i, r := range m {
		if strings.TrimSpace(r.Origin) == "" {
			errs = append(errs, fmt.Errorf("rule %d: empty origin", i))
			continue
		}
		if prev, ok := seen[r.Origin]; ok {
			errs = append(errs, fmt.Errorf("rule %d: origin %q already mapped by rule %d", i, r.Origin, prev))
		}
		seen[r.Origin] = i
		if !IsTarget(r.Target) {
			errs = append(errs, fmt.Errorf("rule %d: unknown target %q", i, r.Target))
		}
		if !validFormat(r.Format) {
			errs = append(errs, fmt.Errorf("rule %d: unknown format hint %q", i, r.Format))
		}
		for _, level := range r.Levels {
			if level != LevelEntities && level != LevelFilings {
				errs = append(errs, fmt.Errorf("rule %d: unknown level %q", i, level))
			}
		}
	}
	return errors.Join(errs...)
}

func validFormat(format string) bool {
	switch {
	case format == "", format == FormatDate, format == FormatNumber:
		return true
	case strings.HasPrefix(format, formatDateLayoutPrefix):
		return len(format) > len(formatDateLayoutPrefix)
	default:
		return false
	}
}
