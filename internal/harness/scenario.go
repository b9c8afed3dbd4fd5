package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout bounds a scenario run when the scenario sets none.
const DefaultTimeout = 5 * time.Second

// Scenario defines a conformance test scenario.
// A scenario runs one banish program against an initial environment and
// checks the outcome, the final environment and the shape of the trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is a path to a .banish file, relative to the scenario file.
	// Exactly one of Program and Source must be set.
	Program string `yaml:"program,omitempty"`

	// Source is inline banish source.
	Source string `yaml:"source,omitempty"`

	// Env seeds host globals before the run.
	Env map[string]any `yaml:"env,omitempty"`

	// MaxPasses overrides the engine pass quota when positive.
	MaxPasses int `yaml:"max_passes,omitempty"`

	// RequireReturn makes falling off the last state an error.
	RequireReturn bool `yaml:"require_return,omitempty"`

	// Timeout bounds the run (Go duration syntax). Defaults to DefaultTimeout.
	Timeout string `yaml:"timeout,omitempty"`

	// RunID is an optional fixed run ID for deterministic traces.
	// If empty, defaults to "test-run-default" for golden file comparison.
	RunID string `yaml:"run_id,omitempty"`

	// Expect checks the outcome of the run.
	Expect Expectation `yaml:"expect,omitempty"`

	// Assertions validate the recorded trace.
	// Supported types: fire_count, else_count, enter_count, transition_count, state_order
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Expectation specifies the expected run outcome. Unset fields are not
// checked.
type Expectation struct {
	// Returned is whether a return action ended the run.
	Returned *bool `yaml:"returned,omitempty"`

	// Value is the expected return value, compared as JSON.
	Value any `yaml:"value,omitempty"`

	// FinalState is the state the run ended in.
	FinalState string `yaml:"final_state,omitempty"`

	// Env lists expected global values after the run (subset match).
	Env map[string]any `yaml:"env,omitempty"`

	// Output is the exact text written by print().
	Output *string `yaml:"output,omitempty"`

	// Error is the expected failure code: a runtime code such as
	// PASS_LIMIT_EXCEEDED, a validation code such as E201, or SYNTAX or
	// BIND for static failures.
	Error string `yaml:"error,omitempty"`
}

func (e Expectation) empty() bool {
	return e.Returned == nil && e.Value == nil && e.FinalState == "" &&
		len(e.Env) == 0 && e.Output == nil && e.Error == ""
}

// Assertion validates the trace of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "fire_count": rule body ran exactly Count times
	// - "else_count": rule else-clause ran exactly Count times
	// - "enter_count": state was entered exactly Count times
	// - "transition_count": Count explicit transitions, optionally filtered
	//   by source State and Target
	// - "state_order": States were entered in this order (gaps allowed)
	Type string `yaml:"type"`

	// State names the state (fire_count, else_count, enter_count, and the
	// source filter for transition_count).
	State string `yaml:"state,omitempty"`

	// Rule names the rule (fire_count, else_count).
	Rule string `yaml:"rule,omitempty"`

	// Target filters transition_count by destination state.
	Target string `yaml:"target,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	// States is the expected entry order (state_order).
	States []string `yaml:"states,omitempty"`
}

// Assertion type constants.
const (
	AssertFireCount       = "fire_count"
	AssertElseCount       = "else_count"
	AssertEnterCount      = "enter_count"
	AssertTransitionCount = "transition_count"
	AssertStateOrder      = "state_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Program path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving a relative Program path
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve program path BEFORE validation
	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) && baseDir != "" {
		scenario.Program = filepath.Join(baseDir, scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Program == "" && s.Source == "":
		return fmt.Errorf("one of program or source is required")
	case s.Program != "" && s.Source != "":
		return fmt.Errorf("program and source are mutually exclusive")
	}

	if s.Program != "" {
		if _, err := os.Stat(s.Program); os.IsNotExist(err) {
			return fmt.Errorf("program file not found: %s", s.Program)
		}
	}

	if s.MaxPasses < 0 {
		return fmt.Errorf("max_passes must be non-negative")
	}

	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
	}

	if s.Expect.empty() && len(s.Assertions) == 0 {
		return fmt.Errorf("scenario must set expect or assertions")
	}

	if s.Expect.Error != "" && (s.Expect.Returned != nil || s.Expect.Value != nil) {
		return fmt.Errorf("expect.error cannot be combined with returned or value")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertFireCount, AssertElseCount:
		if a.State == "" || a.Rule == "" {
			return fmt.Errorf("assertions[%d]: state and rule are required for %s", index, a.Type)
		}
	case AssertEnterCount:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for enter_count", index)
		}
	case AssertTransitionCount:
		// State and Target are optional filters.
	case AssertStateOrder:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for state_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// timeout returns the scenario's run timeout. validateScenario has already
// rejected malformed durations.
func (s *Scenario) timeout() time.Duration {
	if s.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}
