package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/banish/internal/ir"
)

const runColumns = `id, file, program_hash, source, env, max_passes, require_return,
	engine_version, ir_version, replay_of, status, returned, result, final_state,
	passes, transitions, error_code, error`

// ReadRun returns a single run by ID.
// Returns ErrRunNotFound if no such run exists.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run in start order (ORDER BY id; run IDs are UUIDv7).
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id COLLATE BINARY ASC`)
}

// ListRunsForProgram returns every run of the program with the given hash.
func (s *Store) ListRunsForProgram(ctx context.Context, programHash string) ([]Run, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE program_hash = ? ORDER BY id COLLATE BINARY ASC`, programHash)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns a run's trace ordered by seq.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, kind, state, rule, pass, target, detail
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]ir.Event, error) {
	events := []ir.Event{}
	for rows.Next() {
		var (
			ev   ir.Event
			kind string
		)
		if err := rows.Scan(&ev.RunID, &ev.Seq, &kind, &ev.State, &ev.Rule, &ev.Pass, &ev.Target, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = ir.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// RuleStats counts how often one rule fired in a run.
type RuleStats struct {
	State string `json:"state"`
	Rule  string `json:"rule"`
	Fired int    `json:"fired"`
	Else  int    `json:"else"`
}

// Stats summarizes a run's trace.
type Stats struct {
	Events      int
	Entries     map[string]int // state -> times entered
	Rules       []RuleStats    // in first-fired order
	Transitions int
}

// ReadStats aggregates a run's events in SQL.
func (s *Store) ReadStats(ctx context.Context, runID string) (Stats, error) {
	st := Stats{Entries: map[string]int{}, Rules: []RuleStats{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(kind = ?), 0)
		FROM events WHERE run_id = ?
	`, string(ir.EventTransitioned), runID).Scan(&st.Events, &st.Transitions)
	if err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT state, COUNT(*)
		FROM events
		WHERE run_id = ? AND kind = ?
		GROUP BY state
	`, runID, string(ir.EventStateEntered))
	if err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("scan entry stats: %w", err)
		}
		st.Entries[state] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate entry stats: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT state, rule, SUM(kind = ?), SUM(kind = ?), MIN(seq) AS first
		FROM events
		WHERE run_id = ? AND kind IN (?, ?)
		GROUP BY state, rule
		ORDER BY first ASC
	`,
		string(ir.EventRuleFired), string(ir.EventElseFired),
		runID,
		string(ir.EventRuleFired), string(ir.EventElseFired),
	)
	if err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rs    RuleStats
			first int64
		)
		if err := rows.Scan(&rs.State, &rs.Rule, &rs.Fired, &rs.Else, &first); err != nil {
			return Stats{}, fmt.Errorf("scan rule stats: %w", err)
		}
		st.Rules = append(st.Rules, rs)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate rule stats: %w", err)
	}
	return st, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run     Run
		envJSON string
		status  string
	)
	err := row.Scan(
		&run.ID,
		&run.File,
		&run.ProgramHash,
		&run.Source,
		&envJSON,
		&run.MaxPasses,
		&run.RequireReturn,
		&run.EngineVersion,
		&run.IRVersion,
		&run.ReplayOf,
		&status,
		&run.Returned,
		&run.Result,
		&run.FinalState,
		&run.Passes,
		&run.Transitions,
		&run.ErrorCode,
		&run.Error,
	)
	if err != nil {
		return Run{}, err
	}
	run.Status = ir.RunStatus(status)

	if run.Env, err = UnmarshalEnv(envJSON); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return run, nil
}
