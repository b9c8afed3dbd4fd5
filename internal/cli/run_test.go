package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/store"
	"github.com/roach88/banish/internal/testutil"
)

// execute runs cmd with args and returns what it wrote to stdout and stderr.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// runCommand builds a run command with a fixed run ID.
func runCommand(format, runID string) *cobra.Command {
	return newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: format},
		RunIDs:      testutil.NewFixedRunIDGenerator(runID),
	})
}

func lightFiles(t *testing.T) (program, env string) {
	t.Helper()
	program = testutil.WriteFile(t, "light.banish", testutil.TrafficLight)
	env = testutil.WriteFile(t, "env.yaml", "ticks: 0\nloop_count: 0\n")
	return program, env
}

// decodeResponse decodes a JSON CLI response with its data as a map.
func decodeResponse(t *testing.T, out string) (CLIResponse, map[string]any) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func TestRun_TrafficLight(t *testing.T) {
	program, env := lightFiles(t)

	out, _, err := execute(t, runCommand("text", "run-light"), program, "--env", env)
	require.NoError(t, err)

	assert.Contains(t, out, "red\nred\nred\n✓ Returned from @yellow\n")
	assert.Contains(t, out, "Passes: 18, Transitions: 5")
	assert.Contains(t, out, "Env: {loop_count=2, ticks=0}")
}

func TestRun_VarsOnly(t *testing.T) {
	program, _ := lightFiles(t)

	out, _, err := execute(t, runCommand("text", ""), program, "--var", "ticks=0", "--var", "loop_count=1")
	require.NoError(t, err)
	assert.Contains(t, out, "Passes: 12, Transitions: 3", "one cycle fewer than from zero")
}

func TestRun_JSON(t *testing.T) {
	program, env := lightFiles(t)

	out, _, err := execute(t, runCommand("json", "run-light"), program, "--env", env)
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-light", resp.RunID)
	assert.Equal(t, "run-light", data["run_id"])
	assert.Equal(t, "returned", data["status"])
	assert.Equal(t, true, data["returned"])
	assert.Equal(t, "yellow", data["final_state"])
	assert.Equal(t, float64(18), data["passes"])
	assert.Equal(t, float64(5), data["transitions"])
	assert.Equal(t, "red\nred\nred\n", data["output"], "print output is captured, not written")
	assert.Equal(t, map[string]any{"ticks": float64(0), "loop_count": float64(2)}, data["env"])
	assert.NotContains(t, data, "value")
}

func TestRun_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		args []string
		want []string
	}{
		{
			name: "return value",
			src:  "@a\n  r ? { n = 2; return n * 10; }",
			want: []string{"✓ Returned from @a: 20"},
		},
		{
			name: "return object",
			src:  "@a\n  r ? { return {total: 3, tag: \"x\"}; }",
			want: []string{`✓ Returned from @a: {"tag":"x","total":3}`},
		},
		{
			name: "exhausted",
			src:  "@a\n  r ? { n += 1; }\n@b",
			args: []string{"--var", "n=0"},
			want: []string{"✓ Exhausted after @b", "Env: {n=1}"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program := testutil.WriteFile(t, "p.banish", tt.src)
			out, _, err := execute(t, runCommand("text", ""), append([]string{program}, tt.args...)...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		args     []string
		exitCode int
		want     string
	}{
		{name: "host error", src: `@a r ? { throw new Error("boom"); }`, exitCode: ExitFailure, want: "ACTION_FAILED"},
		{name: "pass limit", src: "@spin\n  r ? true { n++; }", args: []string{"--var", "n=0", "--max-passes", "3"}, exitCode: ExitFailure, want: "PASS_LIMIT_EXCEEDED"},
		{name: "timeout", src: "@a r ? true { }", args: []string{"--timeout", "20ms"}, exitCode: ExitFailure, want: "CANCELED"},
		{name: "require return", src: "@a", args: []string{"--require-return"}, exitCode: ExitFailure, want: "NO_RETURN"},
		{name: "syntax", src: "@a r ? n > 1", exitCode: ExitFailure, want: "Error [E100]"},
		{name: "validation", src: "@a r ? { => @b; }", exitCode: ExitFailure, want: "Error [E203]"},
		{name: "bind", src: "@a r ? n > { }", exitCode: ExitFailure, want: "Error [E110]"},
		{name: "bad var", src: "@a", args: []string{"--var", "novalue"}, exitCode: ExitCommandError, want: "Error [E006]"},
		{name: "negative max passes", src: "@a", args: []string{"--max-passes", "-1"}, exitCode: ExitCommandError, want: "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program := testutil.WriteFile(t, "p.banish", tt.src)
			out, _, err := execute(t, runCommand("text", ""), append([]string{program}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestRun_RuntimeFailureJSON(t *testing.T) {
	program := testutil.WriteFile(t, "spin.banish", "@spin\n  r ? true { n++; }")

	out, _, err := execute(t, runCommand("json", "run-spin"), program, "--var", "n=0", "--max-passes", "3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PASS_LIMIT_EXCEEDED", resp.Error.Code)
	assert.Equal(t, "run-spin", data["run_id"])
	assert.Equal(t, "spin", data["final_state"])
	assert.Equal(t, map[string]any{"n": float64(3)}, data["env"], "side effects are not rolled back")
}

func TestRun_MissingProgram(t *testing.T) {
	out, _, err := execute(t, runCommand("text", ""), "/nonexistent/light.banish")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "program not found")
}

func TestRun_RecordsToDatabase(t *testing.T) {
	program, env := lightFiles(t)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	_, _, err := execute(t, runCommand("text", "run-light"), program, "--env", env, "--db", dbPath, "--max-passes", "100")
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(context.Background(), "run-light")
	require.NoError(t, err)
	assert.Equal(t, ir.RunReturned, run.Status)
	assert.Equal(t, "yellow", run.FinalState)
	assert.Equal(t, 18, run.Passes)
	assert.Equal(t, 100, run.MaxPasses)
	assert.Equal(t, testutil.TrafficLight, run.Source)
	assert.Equal(t, map[string]any{"ticks": int64(0), "loop_count": int64(0)}, run.Env, "initial env")

	events, err := st.ReadEvents(context.Background(), "run-light")
	require.NoError(t, err)
	assert.Len(t, events, 37)
}

func TestRun_VerboseLogsEngineToStderr(t *testing.T) {
	program, env := lightFiles(t)
	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: "text", Verbose: true},
		RunIDs:      testutil.NewFixedRunIDGenerator("run-light"),
	})

	out, stderr, err := execute(t, cmd, program, "--env", env)
	require.NoError(t, err)

	assert.Contains(t, stderr, `msg="state entered" run_id=run-light state=red via=start`)
	assert.Contains(t, stderr, `msg="run returned"`)
	assert.NotContains(t, out, "state entered", "logs never mix with program output")
}

func TestRun_QuietLogsOnlyFailures(t *testing.T) {
	program, env := lightFiles(t)

	_, stderr, err := execute(t, runCommand("text", "run-light"), program, "--env", env)
	require.NoError(t, err)
	assert.Empty(t, stderr)

	spin := testutil.WriteFile(t, "spin.banish", "@spin\n  r ? true { n++; }")
	_, stderr, err = execute(t, runCommand("text", "run-spin"), spin, "--var", "n=0", "--max-passes", "3")
	require.Error(t, err)
	assert.Contains(t, stderr, `level=ERROR msg="run failed" run_id=run-spin`)
}
