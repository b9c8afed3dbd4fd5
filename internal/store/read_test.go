package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/banish/internal/ir"
)

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListRuns_OrderedByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.NotNil(t, runs, "empty slice, not nil")
	assert.Empty(t, runs)

	for _, id := range []string{"run-0003", "run-0001", "run-0002"} {
		insertTestRun(t, s, id)
	}

	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-0001", runs[0].ID)
	assert.Equal(t, "run-0002", runs[1].ID)
	assert.Equal(t, "run-0003", runs[2].ID)
}

func TestListRunsForProgram(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	insertTestRun(t, s, "run-0001")
	other := createTestRun("run-0002")
	other.ProgramHash = "other-hash"
	require.NoError(t, s.CreateRun(ctx, other))

	runs, err := s.ListRunsForProgram(ctx, "other-hash")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-0002", runs[0].ID)
}

func TestReadEvents_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertTestRun(t, s, "run-0001")

	// Insert out of order
	for _, ev := range []ir.Event{
		{RunID: "run-0001", Seq: 3, Kind: ir.EventRuleFired, State: "a", Rule: "r", Pass: 1},
		{RunID: "run-0001", Seq: 1, Kind: ir.EventRunStarted},
		{RunID: "run-0001", Seq: 2, Kind: ir.EventStateEntered, State: "a", Detail: "start"},
	} {
		require.NoError(t, s.AppendEvent(ctx, ev))
	}

	events, err := s.ReadEvents(ctx, "run-0001")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, ir.Event{RunID: "run-0001", Seq: 3, Kind: ir.EventRuleFired, State: "a", Rule: "r", Pass: 1}, events[2])

	none, err := s.ReadEvents(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReadStats(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertTestRun(t, s, "run-0001")

	events := []ir.Event{
		{Kind: ir.EventRunStarted},
		{Kind: ir.EventStateEntered, State: "a"},
		{Kind: ir.EventRuleFired, State: "a", Rule: "tick", Pass: 1},
		{Kind: ir.EventElseFired, State: "a", Rule: "wait", Pass: 1},
		{Kind: ir.EventRuleFired, State: "a", Rule: "tick", Pass: 2},
		{Kind: ir.EventElseFired, State: "a", Rule: "wait", Pass: 2},
		{Kind: ir.EventTransitioned, State: "a", Rule: "tick", Pass: 2, Target: "b"},
		{Kind: ir.EventStateEntered, State: "b"},
		{Kind: ir.EventRuleFired, State: "b", Rule: "back", Pass: 1},
		{Kind: ir.EventTransitioned, State: "b", Rule: "back", Pass: 1, Target: "a"},
		{Kind: ir.EventStateEntered, State: "a"},
		{Kind: ir.EventExhausted, State: "b"},
	}
	for i, ev := range events {
		ev.RunID = "run-0001"
		ev.Seq = int64(i + 1)
		require.NoError(t, s.AppendEvent(ctx, ev))
	}

	st, err := s.ReadStats(ctx, "run-0001")
	require.NoError(t, err)

	assert.Equal(t, len(events), st.Events)
	assert.Equal(t, 2, st.Transitions)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, st.Entries)
	assert.Equal(t, []RuleStats{
		{State: "a", Rule: "tick", Fired: 2},
		{State: "a", Rule: "wait", Else: 2},
		{State: "b", Rule: "back", Fired: 1},
	}, st.Rules)
}
