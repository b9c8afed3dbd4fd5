// Package harness runs banish programs as conformance scenarios.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: traffic_light
//	description: "What this scenario validates"
//	program: programs/traffic_light.banish   # or inline source:
//	env: { ticks: 0, loop_count: 0 }
//	max_passes: 100
//	require_return: true
//	run_id: run-traffic-light
//	expect:
//	  returned: true
//	  value: { total: 3 }
//	  final_state: yellow
//	  env: { loop_count: 2 }
//	  output: "red\nred\nred\n"
//	assertions:
//	  - type: fire_count
//	    state: red
//	    rule: timer
//	    count: 9
//	  - type: state_order
//	    states: [red, green, yellow, red]
//
// A scenario that expects a failure sets expect.error to the failure code:
// a runtime code (PASS_LIMIT_EXCEEDED, ACTION_FAILED, ...), a validation
// code (E201, ...), SYNTAX or BIND.
//
// # Assertion Types
//
//   - fire_count: a rule body ran exactly N times
//   - else_count: a rule else-clause ran exactly N times
//   - enter_count: a state was entered exactly N times
//   - transition_count: N explicit transitions, optionally from state / to target
//   - state_order: states were entered in the given order (gaps allowed)
//
// Count assertions are answered from the run log store, so they exercise
// the same recording path as "banish run --db".
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run ID (testutil.FixedRunIDGenerator),
// the engine's per-run logical clock and a fresh in-memory SQLite store.
// Identical scenarios therefore produce byte-identical traces, which are
// compared against golden files under testdata/golden.
package harness
