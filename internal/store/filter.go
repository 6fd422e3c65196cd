package store

import (
	"fmt"
	"regexp"
	"strings"
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Cond is one predicate over a top-level document field.
type Cond interface {
	render(d dialect, args *argList) (string, error)
}

// Filter is a conjunction of conditions. The zero Filter matches every
// document.
type Filter struct {
	conds []Cond
}

// Where builds a filter matching documents that satisfy all conds.
func Where(conds ...Cond) Filter {
	return Filter{conds: conds}
}

// And returns a copy of f with more conditions.
func (f Filter) And(conds ...Cond) Filter {
	out := make([]Cond, 0, len(f.conds)+len(conds))
	out = append(out, f.conds...)
	out = append(out, conds...)
	return Filter{conds: out}
}

type eqCond struct {
	field string
	value any
}

// Eq matches documents whose field equals value.
func Eq(field string, value any) Cond { return eqCond{field, value} }

func (c eqCond) render(d dialect, args *argList) (string, error) {
	if err := checkField(c.field); err != nil {
		return "", err
	}
	if c.value == nil {
		return d.field(c.field) + " IS NULL", nil
	}
	return d.field(c.field) + " = " + args.add(d, c.value), nil
}

type inCond struct {
	field  string
	values []any
}

// In matches documents whose field equals any of values. An empty list
// matches nothing.
func In(field string, values ...any) Cond { return inCond{field, values} }

// InStrings is In for a string slice.
func InStrings(field string, values []string) Cond {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return inCond{field, vs}
}

func (c inCond) render(d dialect, args *argList) (string, error) {
	if err := checkField(c.field); err != nil {
		return "", err
	}
	if len(c.values) == 0 {
		return "1 = 0", nil
	}
	ph := make([]string, len(c.values))
	for i, v := range c.values {
		ph[i] = args.add(d, v)
	}
	return d.field(c.field) + " IN (" + strings.Join(ph, ", ") + ")", nil
}

type existsCond struct {
	field   string
	present bool
}

// Exists matches documents that carry field, whatever its value.
func Exists(field string) Cond { return existsCond{field, true} }

// Missing matches documents without field.
func Missing(field string) Cond { return existsCond{field, false} }

func (c existsCond) render(d dialect, _ *argList) (string, error) {
	if err := checkField(c.field); err != nil {
		return "", err
	}
	if c.present {
		return d.exists(c.field), nil
	}
	return "NOT (" + d.exists(c.field) + ")", nil
}

type orCond struct {
	conds []Cond
}

// Or matches documents satisfying at least one of conds.
func Or(conds ...Cond) Cond { return orCond{conds} }

func (c orCond) render(d dialect, args *argList) (string, error) {
	if len(c.conds) == 0 {
		return "1 = 0", nil
	}
	parts := make([]string, len(c.conds))
	for i, sub := range c.conds {
		s, err := sub.render(d, args)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + s + ")"
	}
	return strings.Join(parts, " OR "), nil
}

type argList struct {
	values []any
}

func (a *argList) add(d dialect, v any) string {
	a.values = append(a.values, d.bind(v))
	return d.placeholder(len(a.values))
}

// raw appends v without dialect conversion.
func (a *argList) raw(d dialect, v any) string {
	a.values = append(a.values, v)
	return d.placeholder(len(a.values))
}

// where renders the filter as a WHERE clause body.
func (f Filter) where(d dialect, args *argList) (string, error) {
	if len(f.conds) == 0 {
		return "1 = 1", nil
	}
	parts := make([]string, len(f.conds))
	for i, c := range f.conds {
		s, err := c.render(d, args)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + s + ")"
	}
	return strings.Join(parts, " AND "), nil
}

func checkField(name string) error {
	if name == IDField {
		return nil
	}
	if !fieldName.MatchString(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}
