package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: counter
description: "Counts to two and settles"
source: |
  @count
      tick ? n < 2 { n += 1; }
env:
  n: 0
run_id: run-counter
expect:
  returned: false
  final_state: count
  env:
    n: 2
`

const failingScenario = `name: wrong
description: "Expects exhaustion but the rule returns"
source: |
  @a
      r ? { return 1; }
run_id: run-wrong
expect:
  returned: false
`

func testCommand(format string) *cobra.Command {
	return NewTestCommand(&RootOptions{Format: format})
}

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, _, err := execute(t, testCommand("text"), "../harness/testdata")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ traffic_light\n")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_PassAndFail(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"counter.yaml": passingScenario, "wrong.yaml": failingScenario})

	out, _, err := execute(t, testCommand("text"), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ counter\n")
	assert.Contains(t, out, "✗ wrong\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")

	out, _, err = execute(t, testCommand("json"), dir)
	require.Error(t, err)
	resp, data := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(1), data["failed"])
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"counter.yaml": passingScenario, "wrong.yaml": failingScenario})

	out, _, err := execute(t, testCommand("text"), dir, "--filter", "count*")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.NotContains(t, out, "wrong")
}

func TestTestCommand_UpdateThenMatchGolden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"counter.yaml": passingScenario})
	golden := filepath.Join(dir, "golden", "counter.golden")

	out, _, err := execute(t, testCommand("text"), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter (golden updated)")
	require.FileExists(t, golden)

	out, _, err = execute(t, testCommand("text"), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter\n")

	require.NoError(t, os.WriteFile(golden, []byte("stale\n"), 0o644))
	out, _, err = execute(t, testCommand("text"), dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file (run with --update to regenerate)")
}

func TestTestCommand_NoScenarios(t *testing.T) {
	out, _, err := execute(t, testCommand("text"), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommand_MissingDirectory(t *testing.T) {
	out, _, err := execute(t, testCommand("text"), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "scenarios directory not found")
}

func TestTestCommand_InvalidScenario(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"broken.yaml": "name: [unclosed\n"})

	out, _, err := execute(t, testCommand("text"), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml\n  failed to load scenario:")
}
