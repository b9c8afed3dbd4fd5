package store

import (
	"context"
	"fmt"

	"github.com/roach88/banish/internal/ir"
)

// RunState is a run together with its trace, for replay and recovery.
type RunState struct {
	Run    Run
	Events []ir.Event

	// Complete is true when the run has a terminal status and its trace
	// ends with the matching terminal event.
	Complete bool

	// LastSeq is the highest seq recorded for the run (0 if none).
	LastSeq int64
}

// GetRunState retrieves a run and its trace with a completeness check.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, err
	}
	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return RunState{}, err
	}

	state := RunState{Run: run, Events: events}
	if n := len(events); n > 0 {
		state.LastSeq = events[n-1].Seq
		state.Complete = terminalFor(run.Status) == events[n-1].Kind
	}
	return state, nil
}

// terminalFor maps a run status to the event that ends its trace.
func terminalFor(status ir.RunStatus) ir.EventKind {
	switch status {
	case ir.RunReturned:
		return ir.EventReturned
	case ir.RunExhausted:
		return ir.EventExhausted
	case ir.RunFailed:
		return ir.EventFailed
	}
	return ""
}

// FindIncompleteRuns returns runs that never recorded an outcome, which
// means the recording process died mid-run. Runs are not resumable; the
// result is for inspection and cleanup.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]Run, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY id COLLATE BINARY ASC`,
		string(ir.RunRunning))
}

// GetLastSeq returns the highest seq recorded for a run (0 if none).
func (s *Store) GetLastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}
