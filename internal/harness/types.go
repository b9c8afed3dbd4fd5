package harness

import "github.com/roach88/banish/internal/ir"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expectation and all assertions match.
	Pass bool `json:"pass"`

	RunID string `json:"run_id,omitempty"`

	// Status is the terminal run status. Static failures (syntax,
	// validation, bind) report RunFailed with an empty trace.
	Status ir.RunStatus `json:"status"`

	Returned    bool   `json:"returned"`
	Value       any    `json:"value,omitempty"`
	FinalState  string `json:"final_state,omitempty"`
	Passes      int    `json:"passes"`
	Transitions int    `json:"transitions"`

	// ErrorCode classifies a failed run (see Expectation.Error).
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`

	// Output is everything the program printed.
	Output string `json:"output"`

	// Env is the final value of every seeded global.
	Env map[string]any `json:"env,omitempty"`

	// Trace contains every event of the run in order.
	// Used for trace assertions and golden comparison.
	Trace []ir.Event `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []ir.Event{},
		Errors: []string{},
		Env:    map[string]any{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
