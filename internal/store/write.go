package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/banish/internal/ir"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded execution.
type Run struct {
	ID            string
	File          string
	ProgramHash   string
	Source        string
	Env           map[string]any
	MaxPasses     int
	RequireReturn bool
	EngineVersion string
	IRVersion     string

	// ReplayOf is the ID of the run this one replayed, if any.
	ReplayOf string

	Outcome
}

// Outcome is how a run ended. A run still in progress (or one whose
// process died) has Status ir.RunRunning.
type Outcome struct {
	Status      ir.RunStatus
	Returned    bool
	Result      string // JSON of the return value; empty for a bare return
	FinalState  string
	Passes      int
	Transitions int
	ErrorCode   string
	Error       string
}

// CreateRun inserts a run in the running status.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
//
// The run's Env is serialized to JSON with sorted keys for deterministic replay.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	envJSON, err := MarshalEnv(run.Env)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, file, program_hash, source, env, max_passes, require_return, engine_version, ir_version, replay_of, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.File,
		run.ProgramHash,
		run.Source,
		envJSON,
		run.MaxPasses,
		run.RequireReturn,
		run.EngineVersion,
		run.IRVersion,
		run.ReplayOf,
		string(ir.RunRunning),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	return nil
}

// FinishRun records a run's outcome.
// Returns ErrRunNotFound if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, id string, out Outcome) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, returned = ?, result = ?, final_state = ?,
		    passes = ?, transitions = ?, error_code = ?, error = ?
		WHERE id = ?
	`,
		string(out.Status),
		out.Returned,
		out.Result,
		out.FinalState,
		out.Passes,
		out.Transitions,
		out.ErrorCode,
		out.Error,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// AppendEvent inserts a trace event.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency - re-recording an
// event is silently ignored.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) AppendEvent(ctx context.Context, ev ir.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, kind, state, rule, pass, target, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		ev.RunID,
		ev.Seq,
		string(ev.Kind),
		ev.State,
		ev.Rule,
		ev.Pass,
		ev.Target,
		ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("append event %s#%d: %w", ev.RunID, ev.Seq, err)
	}
	return nil
}
