package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"

	"github.com/roach88/banish/internal/compiler"
	"github.com/roach88/banish/internal/engine"
	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/script"
	"github.com/roach88/banish/internal/store"
	"github.com/roach88/banish/internal/testutil"
)

// Static failure codes reported in Result.ErrorCode.
const (
	CodeSyntax = "SYNTAX"
	CodeBind   = "BIND"
)

// Harness is the test execution engine.
// It runs scenarios with fixed run IDs against a fresh store.
type Harness struct {
	store  *store.Store
	runIDs *testutil.FixedRunIDGenerator
	logger *slog.Logger
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger routes engine, host and harness logging to l. By default
// logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// Run executes a test scenario and returns the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a test scenario under ctx.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Compile the program (static failures end the scenario here)
// 3. Seed a goja host with the scenario env
// 4. Run the engine with the store recorder attached
// 5. Check the expectation and evaluate assertions
//
// The returned error covers harness failures only. Program failures are
// reported in the Result and matched against Expect.Error.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		runIDs: testutil.NewFixedRunIDGenerator(scenario.RunID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(h)
	}

	result, err := h.execute(ctx, scenario)
	if err != nil {
		return nil, err
	}

	checkExpectation(result, scenario.Expect)

	if len(scenario.Assertions) > 0 {
		if result.RunID == "" {
			result.AddError("assertions require a run, but the program never ran")
		} else {
			actx := &AssertionContext{Store: st, Ctx: ctx, RunID: result.RunID}
			for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
				result.AddError(msg)
			}
		}
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"run_id", result.RunID,
		"status", result.Status,
		"pass", result.Pass,
	)
	return result, nil
}

// execute compiles and runs the scenario program, filling in the outcome.
func (h *Harness) execute(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()

	file, source := "scenario.banish", scenario.Source
	if scenario.Program != "" {
		data, err := os.ReadFile(scenario.Program)
		if err != nil {
			return nil, fmt.Errorf("failed to read program: %w", err)
		}
		file, source = scenario.Program, string(data)
	}

	prog, err := compiler.Compile(file, source)
	if err != nil {
		result.Status = ir.RunFailed
		result.ErrorCode, result.Error = ErrorCode(err), err.Error()
		return result, nil
	}

	var out bytes.Buffer
	host, err := script.New(
		script.WithGlobals(scenario.Env),
		script.WithOutput(&out),
		script.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	tmpl, err := store.RunFor(prog, source, scenario.Env)
	if err != nil {
		return nil, err
	}
	tmpl.MaxPasses = scenario.MaxPasses
	tmpl.RequireReturn = scenario.RequireReturn
	rec := store.NewRecorder(h.store, tmpl)
	trace := engine.NewCollector()

	opts := []engine.EngineOption{
		engine.WithRunIDGenerator(h.runIDs),
		engine.WithLogger(h.logger),
		engine.WithObserver(trace),
		engine.WithObserver(rec),
	}
	if scenario.MaxPasses > 0 {
		opts = append(opts, engine.WithMaxPasses(scenario.MaxPasses))
	}
	if scenario.RequireReturn {
		opts = append(opts, engine.WithRequireReturn())
	}

	eng, err := engine.New(prog, host, opts...)
	if err != nil {
		result.Status = ir.RunFailed
		result.ErrorCode, result.Error = ErrorCode(err), err.Error()
		return result, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, scenario.timeout())
	defer cancel()
	res, runErr := eng.Run(runCtx)

	if err := rec.Finish(ctx, res, runErr); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	result.RunID = rec.RunID()
	result.Trace = trace.Events()
	result.Output = out.String()
	result.Env = host.Snapshot()

	if runErr != nil {
		result.Status = ir.RunFailed
		result.ErrorCode, result.Error = ErrorCode(runErr), runErr.Error()
		return result, nil
	}
	result.Status = res.Status
	result.Returned = res.Returned
	result.Value = res.Value
	result.FinalState = res.FinalState
	result.Passes = res.Passes
	result.Transitions = res.Transitions

	// Globals named only in the expectation are read back too.
	for name := range scenario.Expect.Env {
		if _, seen := result.Env[name]; seen {
			continue
		}
		if v, ok := host.Get(name); ok {
			result.Env[name] = v
		}
	}
	return result, nil
}

// ErrorCode classifies a compile, bind or run failure.
func ErrorCode(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs.First().Code
	}
	var serr *compiler.SyntaxError
	if errors.As(err, &serr) {
		return CodeSyntax
	}
	var berr *engine.BindError
	if errors.As(err, &berr) {
		return CodeBind
	}
	return "ERROR"
}

// checkExpectation compares the outcome with the scenario's expect block.
func checkExpectation(result *Result, exp Expectation) {
	if exp.Error != "" {
		if result.ErrorCode != exp.Error {
			result.AddError(fmt.Sprintf("expected error %s, got %s", exp.Error, describeOutcome(result)))
		}
	} else if result.Status == ir.RunFailed {
		result.AddError(fmt.Sprintf("unexpected failure: %s", result.Error))
		return
	}

	if exp.Returned != nil && *exp.Returned != result.Returned {
		result.AddError(fmt.Sprintf("expected returned=%t, got %s", *exp.Returned, describeOutcome(result)))
	}
	if exp.Value != nil && !jsonEqual(exp.Value, result.Value) {
		result.AddError(fmt.Sprintf("expected value %s, got %s", jsonString(exp.Value), jsonString(result.Value)))
	}
	if exp.FinalState != "" && exp.FinalState != result.FinalState {
		result.AddError(fmt.Sprintf("expected final state %q, got %q", exp.FinalState, result.FinalState))
	}
	if exp.Output != nil && *exp.Output != result.Output {
		result.AddError(fmt.Sprintf("expected output %q, got %q", *exp.Output, result.Output))
	}
	for _, name := range sortedNames(exp.Env) {
		actual, ok := result.Env[name]
		if !ok {
			result.AddError(fmt.Sprintf("expected env %s = %s, but it is undefined", name, jsonString(exp.Env[name])))
			continue
		}
		if !jsonEqual(exp.Env[name], actual) {
			result.AddError(fmt.Sprintf("expected env %s = %s, got %s", name, jsonString(exp.Env[name]), jsonString(actual)))
		}
	}
}

func describeOutcome(r *Result) string {
	switch r.Status {
	case ir.RunFailed:
		return fmt.Sprintf("failure %s (%s)", r.ErrorCode, r.Error)
	case ir.RunReturned:
		return fmt.Sprintf("return from %q", r.FinalState)
	default:
		return fmt.Sprintf("%s in %q", r.Status, r.FinalState)
	}
}

// jsonEqual compares values by their JSON encoding, so YAML ints match
// host int64s and float64s alike.
func jsonEqual(expected, actual any) bool {
	var e, a any
	if err := json.Unmarshal([]byte(jsonString(expected)), &e); err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(jsonString(actual)), &a); err != nil {
		return false
	}
	return reflect.DeepEqual(e, a)
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
