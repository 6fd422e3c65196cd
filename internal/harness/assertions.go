package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  expected: %s\n  actual: %s", e.Type, e.Expected, e.Actual)
}

// AssertionContext gives assertions access to the final store.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store

	// SetupIDs are the document IDs written by setup, per collection.
	SetupIDs map[string][]string
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCount:
			err = assertCount(actx, a)
		case AssertDocument:
			err = assertDocument(actx, a)
		case AssertLinked:
			err = assertLinked(actx, a)
		case AssertIDsPreserved:
			err = assertIDsPreserved(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertCount(actx *AssertionContext, a Assertion) error {
	n, err := actx.Store.Count(actx.Ctx, a.Collection, whereFilter(a.Where))
	if err != nil {
		return err
	}
	if n != int64(*a.Count) {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d %s where %s", *a.Count, a.Collection, formatWhere(a.Where)),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

func assertDocument(actx *AssertionContext, a Assertion) error {
	doc, err := findSingle(actx, a.Collection, a.Where)
	if err != nil {
		return err
	}
	if msgs := compareExpect(doc, a.Expect); len(msgs) > 0 {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("%s where %s: %v", a.Collection, formatWhere(a.Where), a.Expect),
			Actual:   strings.Join(msgs, "; "),
		}
	}
	return nil
}

// assertLinked checks that every filing selected by Where links to the one
// entity selected by To.
func assertLinked(actx *AssertionContext, a Assertion) error {
	entity, err := findSingle(actx, store.Organizations, a.To)
	if err != nil {
		return err
	}
	filings, err := actx.Store.Find(actx.Ctx, store.Filings, whereFilter(a.Where), store.FindOptions{})
	if err != nil {
		return err
	}
	if len(filings) == 0 {
		return &AssertionError{
			Type:     AssertLinked,
			Expected: fmt.Sprintf("filings where %s", formatWhere(a.Where)),
			Actual:   "no filing matches",
		}
	}
	for _, f := range filings {
		if link := record.FilingFromDocument(f).EntityLink; link != entity.ID() {
			return &AssertionError{
				Type:     AssertLinked,
				Expected: fmt.Sprintf("filing %s linked to entity %s", f.ID(), entity.ID()),
				Actual:   fmt.Sprintf("entityLink %q", link),
			}
		}
	}
	return nil
}

// assertIDsPreserved checks that every document written by setup still
// exists under its original ID.
func assertIDsPreserved(actx *AssertionContext, a Assertion) error {
	want := actx.SetupIDs[a.Collection]
	if len(want) == 0 {
		return fmt.Errorf("no setup documents in %s", a.Collection)
	}
	docs, err := actx.Store.Find(actx.Ctx, a.Collection, store.Where(store.InStrings(record.FieldID, want)), store.FindOptions{})
	if err != nil {
		return err
	}
	if len(docs) != len(want) {
		return &AssertionError{
			Type:     AssertIDsPreserved,
			Expected: fmt.Sprintf("%d setup documents in %s", len(want), a.Collection),
			Actual:   fmt.Sprintf("%d found", len(docs)),
		}
	}
	return nil
}

func findSingle(actx *AssertionContext, collection string, where map[string]any) (store.Document, error) {
	docs, err := actx.Store.Find(actx.Ctx, collection, whereFilter(where), store.FindOptions{Limit: 2})
	if err != nil {
		return nil, err
	}
	if len(docs) != 1 {
		return nil, &AssertionError{
			Type:     "find",
			Expected: fmt.Sprintf("exactly one %s where %s", collection, formatWhere(where)),
			Actual:   fmt.Sprintf("%d found", len(docs)),
		}
	}
	return docs[0], nil
}

// compareExpect checks that actual contains every key of expected with an
// equal value. Keys are dotted paths; a nil expected value requires the key
// to be absent. Messages are sorted by key.
func compareExpect(actual map[string]any, expected map[string]any) []string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, k := range keys {
		want := expected[k]
		got, ok := lookupPath(actual, k)
		switch {
		case want == nil && ok:
			msgs = append(msgs, fmt.Sprintf("%s: want absent, got %v", k, got))
		case want == nil:
		case !ok:
			msgs = append(msgs, fmt.Sprintf("%s: want %v, missing", k, want))
		case !valuesEqual(got, want):
			msgs = append(msgs, fmt.Sprintf("%s: want %v, got %v", k, want, got))
		}
	}
	return msgs
}

// lookupPath resolves a dotted path through nested maps.
func lookupPath(doc map[string]any, path string) (any, bool) {
	var cur any = map[string]any(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// valuesEqual compares YAML-decoded expectations with store or engine
// values. Numbers compare by value whatever their Go type.
func valuesEqual(actual, expected any) bool {
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case store.Document:
		return normalize(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = e
		}
		return out
	}
	return v
}

// formatWhere renders where conditions in key order.
func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}
