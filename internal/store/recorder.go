package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/banish/internal/engine"
	"github.com/roach88/banish/internal/ir"
)

// RunFor builds the replay inputs of a run of prog. The ID is filled in by
// the Recorder when the run starts.
func RunFor(prog *ir.Program, source string, env map[string]any) (Run, error) {
	hash, err := ir.ProgramHash(prog)
	if err != nil {
		return Run{}, fmt.Errorf("hash program: %w", err)
	}
	return Run{
		File:          prog.File,
		ProgramHash:   hash,
		Source:        source,
		Env:           env,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}, nil
}

// Recorder is an engine.Observer that writes one run to the store.
//
// The run row is created when the run_started event arrives, because the
// engine assigns the run ID. A Recorder records a single run; use a new
// one for each Run call.
type Recorder struct {
	store    *Store
	template Run
	runID    string
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder that stores runs described by template.
func NewRecorder(s *Store, template Run) *Recorder {
	return &Recorder{store: s, template: template}
}

// Observe implements engine.Observer.
func (r *Recorder) Observe(ctx context.Context, ev ir.Event) error {
	if ev.Kind == ir.EventRunStarted {
		if r.runID != "" && r.runID != ev.RunID {
			return fmt.Errorf("recorder already bound to run %s", r.runID)
		}
		run := r.template
		run.ID = ev.RunID
		if err := r.store.CreateRun(ctx, run); err != nil {
			return err
		}
		r.runID = ev.RunID
	}
	return r.store.AppendEvent(ctx, ev)
}

// RunID returns the ID of the recorded run, or "" before it started.
func (r *Recorder) RunID() string {
	return r.runID
}

// Finish records the outcome of the run from the values engine.Run returned.
func (r *Recorder) Finish(ctx context.Context, res *engine.Result, runErr error) error {
	if r.runID == "" {
		return errors.New("recorder: no run started")
	}
	out, err := OutcomeOf(res, runErr)
	if err != nil {
		return err
	}
	return r.store.FinishRun(ctx, r.runID, out)
}

// OutcomeOf converts the return values of engine.Run to an Outcome.
func OutcomeOf(res *engine.Result, runErr error) (Outcome, error) {
	if runErr != nil {
		out := Outcome{Status: ir.RunFailed, Error: runErr.Error()}
		var re *engine.RuntimeError
		if errors.As(runErr, &re) {
			out.ErrorCode = string(re.Code)
			out.FinalState = re.State
		}
		return out, nil
	}
	if res == nil {
		return Outcome{}, errors.New("outcome: nil result without error")
	}

	out := Outcome{
		Status:      res.Status,
		Returned:    res.Returned,
		FinalState:  res.FinalState,
		Passes:      res.Passes,
		Transitions: res.Transitions,
	}
	if res.Value != nil {
		v, err := MarshalValue(res.Value)
		if err != nil {
			return Outcome{}, fmt.Errorf("outcome: %w", err)
		}
		out.Result = v
	}
	return out, nil
}
