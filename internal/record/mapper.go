package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// isoDate is the persisted calendar-date layout.
const isoDate = "2006-01-02"

// dateLayouts are tried in order for the plain "date" hint. Day-first comes
// before month-first because most registries in scope publish day-first.
var dateLayouts = []string{
	isoDate,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"02/01/2006",
	"2/1/2006",
	"01/02/2006",
	"02-01-2006",
	"02.01.2006",
	"20060102",
	"2 January 2006",
	"January 2, 2006",
	"02-Jan-2006",
}

// Warning records a data-quality problem found while mapping. Warnings are
// never fatal; the raw value is kept.
type Warning struct {
	Origin string
	Target string
	Value  any
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s -> %s: %s (value %v)", w.Origin, w.Target, w.Reason, w.Value)
}

// Apply maps one raw record through mapping and merges amendments.
//
// For each rule whose origin is present, the value is copied into the target
// after applying the rule's format hint. A value the hint cannot parse is
// copied as-is and reported as a Warning and in MappedRecord.Unparsed; the raw
// value is also kept in OriginalData under its origin, so it survives an
// update that leaves the target untouched.
// Raw fields no rule consumed are copied unmodified into OriginalData.
// Amendments are merged last and override mapped content.
func Apply(raw RawRecord, mapping FieldMapping, amendments StaticAmendments) (MappedRecord, []Warning) {
	out := MappedRecord{
		Fields:       make(map[string]any, len(mapping)+len(amendments)),
		OriginalData: make(map[string]any),
	}
	var warnings []Warning

	consumed := make(map[string]struct{}, len(mapping))
	for _, rule := range mapping {
		value, ok := raw[rule.Origin]
		if !ok {
			continue
		}
		consumed[rule.Origin] = struct{}{}

		converted, err := convert(value, rule.Format)
		if err != nil {
			warnings = append(warnings, Warning{
				Origin: rule.Origin,
				Target: rule.Target,
				Value:  value,
				Reason: err.Error(),
			})
			out.Unparsed = appendUnique(out.Unparsed, rule.Target)
			out.Fields[rule.Target] = value
			out.OriginalData[rule.Origin] = value
			continue
		}
		if IsIdentityField(rule.Target) {
			converted = KeyString(converted)
		}
		out.Fields[rule.Target] = converted
		out.Unparsed = removeValue(out.Unparsed, rule.Target)
	}

	for k, v := range raw {
		if _, ok := consumed[k]; ok {
			continue
		}
		out.OriginalData[k] = v
	}

	for k, v := range amendments {
		out.Fields[k] = v
		out.Unparsed = removeValue(out.Unparsed, k)
	}

	return out, warnings
}

// ApplyAll maps a batch. Warnings carry no record position; callers that
// need one map records individually.
func ApplyAll(raws []RawRecord, mapping FieldMapping, amendments StaticAmendments) ([]MappedRecord, []Warning) {
	out := make([]MappedRecord, 0, len(raws))
	var warnings []Warning
	for _, raw := range raws {
		m, w := Apply(raw, mapping, amendments)
		out = append(out, m)
		warnings = append(warnings, w...)
	}
	return out, warnings
}

func convert(value any, format string) (any, error) {
	switch {
	case format == "":
		return value, nil
	case format == FormatDate:
		return parseDate(value, dateLayouts)
	case strings.HasPrefix(format, formatDateLayoutPrefix):
		return parseDate(value, []string{strings.TrimPrefix(format, formatDateLayoutPrefix)})
	case format == FormatNumber:
		return parseNumber(value)
	default:
		return nil, fmt.Errorf("unknown format hint %q", format)
	}
}

func parseDate(value any, layouts []string) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v.Format(isoDate), nil
	}

	s := KeyString(value)
	if s == "" {
		return value, nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate), nil
		}
	}
	return nil, fmt.Errorf("unparsable date %q", s)
}

func parseNumber(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("unparsable number %q", v.String())
		}
		return f, nil
	}

	s := strings.TrimSpace(fmt.Sprint(value))
	if s == "" {
		return value, nil
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\u00a0', '$', '£', '€', '¥':
			return -1
		}
		return r
	}, s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("unparsable number %q", fmt.Sprint(value))
	}
	if negative {
		f = -f
	}
	return f, nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func removeValue(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
