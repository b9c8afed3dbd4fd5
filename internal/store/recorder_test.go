package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/banish/internal/compiler"
	"github.com/roach88/banish/internal/engine"
	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/script"
)

const counter = `
@count
    tick ? n < 3 { n += 1; }
@done
    finish ? { return {n: n}; }
`

func recordRun(t *testing.T, s *Store, src string, env map[string]any, opts ...engine.EngineOption) (*Recorder, *engine.Result, error) {
	t.Helper()
	prog, err := compiler.Compile("counter.banish", src)
	require.NoError(t, err)

	host, err := script.New(script.WithGlobals(env))
	require.NoError(t, err)

	tmpl, err := RunFor(prog, src, env)
	require.NoError(t, err)
	rec := NewRecorder(s, tmpl)

	opts = append(opts, engine.WithObserver(rec), engine.WithRunIDGenerator(engine.NewSequentialGenerator("")))
	eng, err := engine.New(prog, host, opts...)
	require.NoError(t, err)

	res, runErr := eng.Run(context.Background())
	require.NoError(t, rec.Finish(context.Background(), res, runErr))
	return rec, res, runErr
}

func TestRecorder_RecordsRunAndTrace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, res, err := recordRun(t, s, counter, map[string]any{"n": 0})
	require.NoError(t, err)
	assert.Equal(t, "run-0001", rec.RunID())

	run, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, "counter.banish", run.File)
	assert.Equal(t, counter, run.Source)
	assert.Equal(t, map[string]any{"n": int64(0)}, run.Env, "initial env, not final")
	assert.Equal(t, ir.RunReturned, run.Status)
	assert.True(t, run.Returned)
	assert.Equal(t, `{"n":3}`, run.Result)
	assert.Equal(t, "done", run.FinalState)
	assert.Equal(t, res.Passes, run.Passes)

	prog, err := compiler.Compile("", counter)
	require.NoError(t, err)
	assert.Equal(t, ir.MustProgramHash(prog), run.ProgramHash)

	state, err := s.GetRunState(ctx, "run-0001")
	require.NoError(t, err)
	assert.True(t, state.Complete)
	assert.Equal(t, ir.EventRunStarted, state.Events[0].Kind)
	assert.Equal(t, ir.EventReturned, state.Events[len(state.Events)-1].Kind)
}

func TestRecorder_RecordsFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, runErr := recordRun(t, s, "@spin\n  r ? true { n++; }", map[string]any{"n": 0}, engine.WithMaxPasses(3))
	require.Error(t, runErr)

	run, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, ir.RunFailed, run.Status)
	assert.Equal(t, string(engine.ErrCodePassLimitExceeded), run.ErrorCode)
	assert.Equal(t, "spin", run.FinalState)

	state, err := s.GetRunState(ctx, "run-0001")
	require.NoError(t, err)
	assert.True(t, state.Complete, "failed event closes the trace")
}

func TestRecorder_FinishBeforeStart(t *testing.T) {
	rec := NewRecorder(createTestStore(t), Run{})
	assert.Error(t, rec.Finish(context.Background(), &engine.Result{}, nil))
}

func TestOutcomeOf(t *testing.T) {
	out, err := OutcomeOf(&engine.Result{Returned: true, Status: ir.RunReturned, FinalState: "s"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", out.Result, "bare return stores no value")

	out, err = OutcomeOf(nil, errors.New("plain"))
	require.NoError(t, err)
	assert.Equal(t, ir.RunFailed, out.Status)
	assert.Empty(t, out.ErrorCode)
	assert.Equal(t, "plain", out.Error)

	_, err = OutcomeOf(nil, nil)
	assert.Error(t, err)
}
