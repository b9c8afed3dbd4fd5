package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/banish/internal/compiler"
	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/store"
	"github.com/roach88/banish/internal/testutil"
)

// recordRun runs src with --db and a fixed run ID. Runtime failures are
// recorded too, so only command errors fail the test.
func recordRun(t *testing.T, dbPath, runID, src string, args ...string) {
	t.Helper()
	program := testutil.WriteFile(t, runID+".banish", src)
	_, _, err := execute(t, runCommand("text", runID), append([]string{program, "--db", dbPath}, args...)...)
	if err != nil {
		require.Equal(t, ExitFailure, GetExitCode(err), "command error: %v", err)
	}
}

func recordLight(t *testing.T, dbPath string) {
	t.Helper()
	recordRun(t, dbPath, "run-light", testutil.TrafficLight, "--var", "ticks=0", "--var", "loop_count=0")
}

func emptyDatabase(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	return dbPath
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "run-light")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", "/nonexistent/path/runs.db")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "database not found")
}

func TestTraceListEmpty(t *testing.T) {
	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", emptyDatabase(t))
	require.NoError(t, err)
	assert.Equal(t, "No runs found in database.\n", out)
}

func TestTraceList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordLight(t, dbPath)
	recordRun(t, dbPath, "run-spin", "@spin\n  forever ? true { n++; }", "--var", "n=0", "--max-passes", "3")

	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 run(s)")
	assert.Contains(t, out, "run-light  returned")
	assert.Contains(t, out, "run-spin  failed")

	out, _, err = execute(t, NewTraceCommand(&RootOptions{Format: "json"}), "--db", dbPath)
	require.NoError(t, err)
	resp, _ := decodeResponse(t, out)
	runs, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-light", runs[0].(map[string]any)["id"])
	assert.Equal(t, "yellow", runs[0].(map[string]any)["final_state"])
}

func TestTraceListIncomplete(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordLight(t, dbPath)

	// A run whose process died after the first event.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, store.Run{ID: "run-crashed", File: "x.banish", ProgramHash: "h", Source: "@a"}))
	require.NoError(t, st.AppendEvent(ctx, ir.Event{RunID: "run-crashed", Seq: 1, Kind: ir.EventRunStarted}))
	require.NoError(t, st.Close())

	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--incomplete")
	require.NoError(t, err)
	assert.Contains(t, out, "1 run(s)")
	assert.Contains(t, out, "run-crashed  running   x.banish (stopped after seq 1)")
	assert.NotContains(t, out, "run-light")

	out, _, err = execute(t, NewTraceCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--incomplete")
	require.NoError(t, err)
	resp, _ := decodeResponse(t, out)
	runs, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, runs, 1)
	assert.Equal(t, float64(1), runs[0].(map[string]any)["last_seq"])
}

func TestTraceListProgram(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordLight(t, dbPath)
	recordRun(t, dbPath, "run-spin", "@spin\n  forever ? true { n++; }", "--var", "n=0", "--max-passes", "3")

	prog, err := compiler.Compile("light.banish", testutil.TrafficLight)
	require.NoError(t, err)
	hash := ir.MustProgramHash(prog)

	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--program", hash)
	require.NoError(t, err)
	assert.Contains(t, out, "1 run(s)")
	assert.Contains(t, out, "run-light  returned")
	assert.NotContains(t, out, "run-spin")
	assert.NotContains(t, out, "stopped after", "complete runs carry no last seq")

	out, _, err = execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--program", "no-such-hash")
	require.NoError(t, err)
	assert.Equal(t, "No runs found in database.\n", out)

	_, _, err = execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--program", hash, "--incomplete")
	require.Error(t, err)
}

func TestTraceRun_Text(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordLight(t, dbPath)

	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-light")
	require.NoError(t, err)

	assert.Contains(t, out, "Trace for Run: run-light")
	assert.Contains(t, out, "Status: returned, complete")
	assert.Contains(t, out, "=== Timeline ===\n  [1] START\n  [2] ENTER @red (start)\n  [3] FIRE @red.announce (pass 1)\n")
	assert.Contains(t, out, "  [7] SETTLE @red (pass 4)\n  [8] ENTER @green (fallthrough)\n")
	assert.Contains(t, out, "  [10] JUMP @green.go => @yellow (pass 1)\n")
	assert.Contains(t, out, "  [37] RETURN @yellow.stop\n")

	assert.Contains(t, out, "Total Events: 37")
	assert.Contains(t, out, "Passes:       18")
	assert.Contains(t, out, "Transitions:  5")
	assert.Contains(t, out, "Entries:      @green=3, @red=3, @yellow=3")
	assert.Contains(t, out, "@red.timer: 9 fired, 0 else")
}

func TestTraceRun_StateFilter(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordLight(t, dbPath)

	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "json"}), "--db", dbPath, "run-light", "--state", "green")
	require.NoError(t, err)

	_, data := decodeResponse(t, out)
	timeline, ok := data["timeline"].([]any)
	require.True(t, ok)
	// per visit: entry, go fired, jump to yellow
	assert.Len(t, timeline, 3*3)
	for _, raw := range timeline {
		assert.Equal(t, "green", raw.(map[string]any)["state"])
	}

	stats := data["stats"].(map[string]any)
	assert.Equal(t, float64(37), stats["total_events"], "stats cover the whole run")
	assert.Equal(t, true, stats["is_complete"])
}

func TestTraceRun_Failure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordRun(t, dbPath, "run-spin", "@spin\n  forever ? true { n++; }", "--var", "n=0", "--max-passes", "3")

	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", dbPath, "run-spin")
	require.NoError(t, err, "tracing a failed run is not a command failure")
	assert.Contains(t, out, "Status: failed, complete")
	assert.Contains(t, out, "Error: PASS_LIMIT_EXCEEDED")
	assert.Contains(t, out, "[6] FAIL @spin PASS_LIMIT_EXCEEDED: pass 4 exceeds limit of 3")
}

func TestTraceRun_NotFound(t *testing.T) {
	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", emptyDatabase(t), "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "run not found: missing")
}

func TestTraceRun_KindFilter(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	recordLight(t, dbPath)

	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}),
		"--db", dbPath, "run-light", "--state", "@red", "--kind", "transitioned,state_entered")
	require.NoError(t, err)

	timeline := timelineSection(t, out)
	assert.Contains(t, timeline, "  [2] ENTER @red (start)\n")
	assert.Contains(t, timeline, "JUMP @yellow.count => @red")
	assert.Equal(t, 3, strings.Count(timeline, "ENTER @red"))
	assert.NotContains(t, timeline, "FIRE")
	assert.NotContains(t, timeline, "@green")

	// Stats describe the whole run regardless of the timeline filters.
	assert.Contains(t, out, "  Total Events: 37\n")
	assert.Contains(t, out, "@green.go: 3 fired")
}

// timelineSection returns the text between the Timeline and Stats headers.
func timelineSection(t *testing.T, out string) string {
	t.Helper()
	_, rest, ok := strings.Cut(out, "=== Timeline ===\n")
	require.True(t, ok, "missing timeline header")
	timeline, _, ok := strings.Cut(rest, "=== Stats ===")
	require.True(t, ok, "missing stats header")
	return timeline
}

func TestTraceRun_UnknownKind(t *testing.T) {
	out, _, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", emptyDatabase(t), "run-light", "--kind", "fired")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `unknown event kind "fired"`)
}

func TestTimelineFilter(t *testing.T) {
	f, err := timelineFilter("run-1", &TraceOptions{State: "@red", Kinds: []string{"settled"}})
	require.NoError(t, err)
	assert.Equal(t, store.EventFilter{RunID: "run-1", State: "red", Kinds: []ir.EventKind{ir.EventSettled}}, f)
}

func TestFormatTimelineEvent(t *testing.T) {
	tests := []struct {
		ev   ir.Event
		want string
	}{
		{ir.Event{Kind: ir.EventElseFired, State: "a", Rule: "r", Pass: 2}, "ELSE @a.r (pass 2)"},
		{ir.Event{Kind: ir.EventReturned, State: "a", Rule: "r", Detail: `{"n":1}`}, `RETURN @a.r {"n":1}`},
		{ir.Event{Kind: ir.EventExhausted, State: "z"}, "EXHAUST @z"},
		{ir.Event{Kind: ir.EventFailed, State: "a", Rule: "r", Detail: "ACTION_FAILED: boom"}, "FAIL @a.r ACTION_FAILED: boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTimelineEvent(tt.ev))
	}
}

func TestFormatArgs(t *testing.T) {
	assert.Equal(t, "{}", formatArgs(nil))
	assert.Equal(t,
		`{a=1, b="x", c=[true, null], d={e=2}}`,
		formatArgs(map[string]any{"b": "x", "a": 1, "c": []any{true, nil}, "d": map[string]any{"e": 2}}))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "run-light", truncateID("run-light"))
	assert.Equal(t, "01928c7e...9a0b1c2d", truncateID("01928c7e-aaaa-bbbb-cccc-00009a0b1c2d"))
}
