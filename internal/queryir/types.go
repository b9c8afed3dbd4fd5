package queryir

// Query is a read over one source.
type Query interface {
	queryNode()
}

// Predicate is a row filter.
type Predicate interface {
	predicateNode()
}

// Select reads Columns from From, keeping rows that satisfy Filter, in
// OrderBy order.
//
//	Select{
//	  From:    "events",
//	  Columns: []string{"seq", "kind"},
//	  Filter:  And{Predicates: []Predicate{Equals{Field: "run_id", Value: "run-0001"}}},
//	  OrderBy: []string{"seq"},
//	}
//
// compiles to
//
//	SELECT seq, kind FROM events WHERE run_id = ? ORDER BY seq ASC
type Select struct {
	From    string
	Columns []string
	Filter  Predicate // nil matches every row
	OrderBy []string  // ascending; required
}

func (Select) queryNode() {}

// Equals matches rows whose Field equals Value.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// In matches rows whose Field equals any of Values. An empty In matches
// nothing.
type In struct {
	Field  string
	Values []any
}

func (In) predicateNode() {}

// And matches rows that satisfy every predicate. An empty And matches
// every row.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or matches rows that satisfy at least one predicate. An empty Or
// matches nothing.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Eq is shorthand for Equals{Field: field, Value: v}.
func Eq(field string, v any) Equals {
	return Equals{Field: field, Value: v}
}

// AllOf joins predicates with And, dropping nil entries. It returns nil
// when nothing is left and the single predicate when only one is.
func AllOf(preds ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Predicates: kept}
	}
}
