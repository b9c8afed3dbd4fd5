// Package querysql compiles queryir queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/banish/internal/queryir"
)

// Compile converts a query to SQL and its positional parameters.
//
// The query is validated first. Every query carries its ORDER BY, with
// COLLATE BINARY on each key so text ordering does not depend on the
// SQLite build. Values are always bound as ? parameters.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		sel = *query
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
	return compileSelect(sel)
}

func compileSelect(q queryir.Select) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(q.Columns, ", "), q.From)

	var params []any
	if q.Filter != nil {
		where, p, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = p
	}

	keys := make([]string, len(q.OrderBy))
	for i, col := range q.OrderBy {
		keys[i] = col + " COLLATE BINARY ASC"
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(keys, ", "))

	return b.String(), params, nil
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return pred.Field + " = ?", []any{param(pred.Value)}, nil
	case queryir.In:
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		params := make([]any, len(pred.Values))
		for i, v := range pred.Values {
			params[i] = param(v)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
		return fmt.Sprintf("%s IN (%s)", pred.Field, placeholders), params, nil
	case queryir.And:
		return compileJunction(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return compileJunction(pred.Predicates, " OR ", "1 = 0")
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileJunction joins sub-predicates, parenthesizing each compound
// operand. empty is the SQL for a junction with no operands.
func compileJunction(preds []queryir.Predicate, op, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	parts := make([]string, 0, len(preds))
	var params []any
	for _, sub := range preds {
		sql, p, err := compilePredicate(sub)
		if err != nil {
			return "", nil, err
		}
		switch sub.(type) {
		case queryir.And, queryir.Or:
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	return strings.Join(parts, op), params, nil
}

// param normalizes a literal for database/sql.
func param(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}
