package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/banish/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All lines use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	RunID        string
	Status       ir.RunStatus
	ErrorCode    string
	Trace        []ir.Event
}

// Marshal renders the snapshot as a header line followed by one line per
// event. Run IDs are stated once in the header.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	header := map[string]any{
		"scenario": s.ScenarioName,
		"status":   string(s.Status),
	}
	if s.RunID != "" {
		header["run_id"] = s.RunID
	}
	if s.ErrorCode != "" {
		header["error_code"] = s.ErrorCode
	}

	var buf bytes.Buffer
	line, err := ir.MarshalCanonical(header)
	if err != nil {
		return nil, err
	}
	buf.Write(line)
	buf.WriteByte('\n')

	for _, ev := range s.Trace {
		line, err := ir.MarshalCanonical(eventMap(ev))
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// eventMap converts an event to a map[string]any for canonical JSON,
// dropping empty fields.
func eventMap(ev ir.Event) map[string]any {
	m := map[string]any{
		"seq":  ev.Seq,
		"kind": string(ev.Kind),
	}
	if ev.State != "" {
		m["state"] = ev.State
	}
	if ev.Rule != "" {
		m["rule"] = ev.Rule
	}
	if ev.Pass != 0 {
		m["pass"] = ev.Pass
	}
	if ev.Target != "" {
		m["target"] = ev.Target
	}
	if ev.Detail != "" {
		m["detail"] = ev.Detail
	}
	return m
}

// SnapshotOf builds the snapshot of a scenario result.
func SnapshotOf(name string, result *Result) *TraceSnapshot {
	return &TraceSnapshot{
		ScenarioName: name,
		RunID:        result.RunID,
		Status:       result.Status,
		ErrorCode:    result.ErrorCode,
		Trace:        result.Trace,
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := SnapshotOf(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
