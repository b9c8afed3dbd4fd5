package store

import (
	"context"
	"fmt"

	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/queryir"
	"github.com/roach88/banish/internal/querysql"
)

var eventColumns = []string{"run_id", "seq", "kind", "state", "rule", "pass", "target", "detail"}

// EventFilter selects part of a run's trace. Zero fields match
// everything.
type EventFilter struct {
	RunID string
	// State keeps events in the state and transitions into it.
	State string
	// Kinds keeps only the listed event kinds.
	Kinds []ir.EventKind
}

// Query describes the filter as a read over the events table.
func (f EventFilter) Query() queryir.Select {
	var state, kinds queryir.Predicate
	if f.State != "" {
		state = queryir.Or{Predicates: []queryir.Predicate{
			queryir.Eq("state", f.State),
			queryir.Eq("target", f.State),
		}}
	}
	if len(f.Kinds) > 0 {
		values := make([]any, len(f.Kinds))
		for i, k := range f.Kinds {
			values[i] = string(k)
		}
		kinds = queryir.In{Field: "kind", Values: values}
	}
	return queryir.Select{
		From:    "events",
		Columns: eventColumns,
		Filter:  queryir.AllOf(queryir.Eq("run_id", f.RunID), state, kinds),
		OrderBy: []string{"seq"},
	}
}

// QueryEvents returns the events of f.RunID that match f, ordered by seq.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryEvents(ctx context.Context, f EventFilter) ([]ir.Event, error) {
	if f.RunID == "" {
		return nil, fmt.Errorf("query events: run id is required")
	}
	sql, params, err := querysql.Compile(f.Query())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}
