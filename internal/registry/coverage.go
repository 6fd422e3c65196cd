package registry

import (
	"slices"
	"strings"
	"unicode"

	"github.com/roach88/regeindary/internal/record"
)

// MappedTarget is a vocabulary target fed by a mapping rule.
type MappedTarget struct {
	Target string `json:"target"`
	Origin string `json:"origin"`

	// Present is false when headers were supplied and the origin is not
	// among them.
	Present bool `json:"present"`
}

// CoverageReport compares a level's mapping with the target vocabulary and,
// optionally, with the headers of a source file.
type CoverageReport struct {
	Level    string         `json:"level"`
	Mapped   []MappedTarget `json:"mapped"`
	Unmapped []string       `json:"unmapped"`

	// UnusedHeaders are source headers no rule consumes. They land in
	// originalData on import.
	UnusedHeaders []string `json:"unusedHeaders,omitempty"`

	// Suggestions lists, per unmapped target, the unused headers whose name
	// contains the target's keywords.
	Suggestions map[string][]string `json:"suggestions,omitempty"`
}

// Coverage reports which vocabulary targets the level's mapping fills.
// With headers, it also flags missing origins and suggests headers for
// unmapped targets by keyword.
func (d *Definition) Coverage(level string, headers []string) CoverageReport {
	mapping := d.MappingFor(level)
	report := CoverageReport{Level: level, Mapped: []MappedTarget{}, Unmapped: []string{}}

	headerSet := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		headerSet[h] = struct{}{}
	}

	targets := mapping.TargetSet()
	for _, target := range record.Targets {
		if _, ok := targets[target]; !ok {
			report.Unmapped = append(report.Unmapped, target)
			continue
		}
		origin, _ := mapping.OriginFor(target)
		present := true
		if len(headers) > 0 {
			_, present = headerSet[origin]
		}
		report.Mapped = append(report.Mapped, MappedTarget{Target: target, Origin: origin, Present: present})
	}

	if len(headers) == 0 {
		return report
	}

	consumed := make(map[string]struct{}, len(mapping))
	for _, r := range mapping {
		consumed[r.Origin] = struct{}{}
	}
	for _, h := range headers {
		if _, ok := consumed[h]; !ok {
			report.UnusedHeaders = append(report.UnusedHeaders, h)
		}
	}

	for _, target := range report.Unmapped {
		words := keywords(target)
		for _, h := range report.UnusedHeaders {
			if matchesKeywords(h, words) {
				if report.Suggestions == nil {
					report.Suggestions = make(map[string][]string)
				}
				report.Suggestions[target] = append(report.Suggestions[target], h)
			}
		}
	}
	return report
}

// synonyms widen the keyword search for targets whose source headers rarely
// use the same word.
var synonyms = map[string][]string{
	"income":      {"revenue", "receipts"},
	"expenditure": {"expenses", "spending"},
	"postcode":    {"zip", "postal"},
	"website":     {"web", "url"},
	"established": {"founded", "formed"},
	"submission":  {"received", "filed"},
}

// keywords splits a camelCase target into lower-case words. Generic words
// that would match almost any header are dropped.
func keywords(target string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		w := strings.ToLower(cur.String())
		cur.Reset()
		switch w {
		case "total", "date", "id", "index", "url":
			return
		}
		words = append(words, w)
	}
	for _, r := range target {
		if unicode.IsUpper(r) {
			flush()
		}
		cur.WriteRune(r)
	}
	flush()
	return words
}

func matchesKeywords(header string, words []string) bool {
	if len(words) == 0 {
		return false
	}
	h := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, header)
	for _, w := range words {
		if strings.Contains(h, w) {
			continue
		}
		if slices.ContainsFunc(synonyms[w], func(s string) bool { return strings.Contains(h, s) }) {
			continue
		}
		return false
	}
	return true
}
