package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/banish/internal/ir"
)

func TestCreateRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-0001")
	run.Env = map[string]any{"n": int64(3), "ratio": 0.5, "name": "<x>", "tags": []any{"a", int64(2)}}
	run.MaxPasses = 50
	run.RequireReturn = true
	run.ReplayOf = "run-0000"
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)

	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.File, got.File)
	assert.Equal(t, run.Source, got.Source)
	assert.Equal(t, run.Env, got.Env, "integers survive as int64")
	assert.Equal(t, 50, got.MaxPasses)
	assert.True(t, got.RequireReturn)
	assert.Equal(t, "run-0000", got.ReplayOf)
	assert.Equal(t, ir.RunRunning, got.Status)
}

func TestCreateRun_DuplicateIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertTestRun(t, s, "run-0001")
	dup := createTestRun("run-0001")
	dup.File = "other.banish"
	require.NoError(t, s.CreateRun(ctx, dup))

	got, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, "light.banish", got.File, "first write wins")
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertTestRun(t, s, "run-0001")

	out := Outcome{
		Status:      ir.RunReturned,
		Returned:    true,
		Result:      `{"total":3}`,
		FinalState:  "yellow",
		Passes:      18,
		Transitions: 5,
	}
	require.NoError(t, s.FinishRun(ctx, "run-0001", out))

	got, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, out, got.Outcome)
}

func TestFinishRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.FinishRun(context.Background(), "missing", Outcome{Status: ir.RunFailed})
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestAppendEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertTestRun(t, s, "run-0001")

	ev := ir.Event{RunID: "run-0001", Seq: 1, Kind: ir.EventRunStarted}
	require.NoError(t, s.AppendEvent(ctx, ev))
	require.NoError(t, s.AppendEvent(ctx, ev))

	events, err := s.ReadEvents(ctx, "run-0001")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAppendEvent_RequiresRun(t *testing.T) {
	s := createTestStore(t)

	err := s.AppendEvent(context.Background(), ir.Event{RunID: "ghost", Seq: 1, Kind: ir.EventRunStarted})
	assert.Error(t, err, "foreign key rejects events of unknown runs")
}
