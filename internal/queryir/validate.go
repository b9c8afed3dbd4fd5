package queryir

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks that a query stays inside the supported fragment:
// plain identifiers, explicit columns, an explicit order and scalar
// literal values. It returns a *ValidationError or nil.
//
// Validate is a pure function with no side effects.
func Validate(query Query) error {
	v := &validator{}
	v.validateQuery(query)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query)
	case nil:
		v.addProblem("nil query")
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.validateIdent("table", sel.From)
	if len(sel.Columns) == 0 {
		v.addProblem("no columns selected")
	}
	for _, c := range sel.Columns {
		v.validateIdent("column", c)
	}
	if len(sel.OrderBy) == 0 {
		v.addProblem("no order given")
	}
	for _, c := range sel.OrderBy {
		v.validateIdent("order column", c)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) validateIdent(what, name string) {
	if !identPattern.MatchString(name) {
		v.addProblem("%s %q is not a plain identifier", what, name)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateIdent("field", pred.Field)
		v.validateValue(pred.Field, pred.Value)
	case In:
		v.validateIdent("field", pred.Field)
		for _, val := range pred.Values {
			v.validateValue(pred.Field, val)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateValue(field string, val any) {
	switch val.(type) {
	case string, int, int64, bool:
	case nil:
		v.addProblem("field %q compared to null", field)
	default:
		v.addProblem("field %q compared to unsupported %T", field, val)
	}
}
