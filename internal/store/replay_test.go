package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/banish/internal/ir"
)

func appendTrace(t *testing.T, s *Store, runID string, kinds ...ir.EventKind) {
	t.Helper()
	for i, k := range kinds {
		require.NoError(t, s.AppendEvent(context.Background(), ir.Event{RunID: runID, Seq: int64(i + 1), Kind: k}))
	}
}

func TestGetRunState_Complete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertTestRun(t, s, "run-0001")
	appendTrace(t, s, "run-0001", ir.EventRunStarted, ir.EventStateEntered, ir.EventReturned)
	require.NoError(t, s.FinishRun(ctx, "run-0001", Outcome{Status: ir.RunReturned, Returned: true}))

	state, err := s.GetRunState(ctx, "run-0001")
	require.NoError(t, err)
	assert.True(t, state.Complete)
	assert.Equal(t, int64(3), state.LastSeq)
	assert.Len(t, state.Events, 3)
}

func TestGetRunState_IncompleteTrace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertTestRun(t, s, "run-0001")
	appendTrace(t, s, "run-0001", ir.EventRunStarted, ir.EventStateEntered)

	state, err := s.GetRunState(ctx, "run-0001")
	require.NoError(t, err)
	assert.False(t, state.Complete)
	assert.Equal(t, ir.RunRunning, state.Run.Status)

	// A status that disagrees with the last event is not complete either.
	require.NoError(t, s.FinishRun(ctx, "run-0001", Outcome{Status: ir.RunExhausted}))
	state, err = s.GetRunState(ctx, "run-0001")
	require.NoError(t, err)
	assert.False(t, state.Complete)
}

func TestFindIncompleteRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertTestRun(t, s, "run-0001")
	insertTestRun(t, s, "run-0002")
	require.NoError(t, s.FinishRun(ctx, "run-0001", Outcome{Status: ir.RunExhausted}))

	runs, err := s.FindIncompleteRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-0002", runs[0].ID)
}

func TestGetLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertTestRun(t, s, "run-0001")

	seq, err := s.GetLastSeq(ctx, "run-0001")
	require.NoError(t, err)
	assert.Zero(t, seq)

	appendTrace(t, s, "run-0001", ir.EventRunStarted, ir.EventStateEntered)
	seq, err = s.GetLastSeq(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}
