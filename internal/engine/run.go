package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/banish/internal/ir"
)

// Result is the outcome of a run that ended without error.
type Result struct {
	RunID string `json:"run_id"`

	// Returned is true when a return action ended the run. It is false
	// when the run fell off the last state.
	Returned bool `json:"returned"`

	// Value is the evaluated return expression, or nil for a bare return.
	Value any `json:"value,omitempty"`

	// FinalState is the state that returned or the last state exhausted.
	FinalState string `json:"final_state,omitempty"`

	// Passes counts passes across all states; Transitions counts explicit
	// jumps (fallthrough is not a transition).
	Passes      int `json:"passes"`
	Transitions int `json:"transitions"`

	Status ir.RunStatus `json:"status"`
}

// Entry reasons recorded in state_entered events.
const (
	EnteredStart       = "start"
	EnteredFallthrough = "fallthrough"
	EnteredTransition  = "transition"
)

type outcome int

const (
	outcomeContinue outcome = iota
	outcomeJump
	outcomeReturn
)

// dispatch is what executing a rule tells the driver to do next.
type dispatch struct {
	outcome  outcome
	target   int
	value    any
	hasValue bool
	rule     string
	pos      ir.Pos
}

// execution is the mutable state of one run.
// CRITICAL: never shared between runs.
type execution struct {
	eng   *Engine
	runID string
	clock *Clock
	quota *QuotaEnforcer

	current     int
	firstPass   bool
	interaction bool
	pass        int

	result *Result
}

// Run executes the program once from its first state.
//
// Host side effects persist in the host after Run returns, whether or not
// it failed; they are never rolled back. On failure Run returns a
// *RuntimeError and a nil Result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	x := &execution{
		eng:   e,
		runID: e.runIDs.Generate(),
		clock: NewClock(),
		quota: NewQuotaEnforcer(e.maxPasses),
	}
	x.result = &Result{RunID: x.runID, Status: ir.RunRunning}

	res, err := x.run(ctx)
	if err != nil {
		x.recordFailure(ctx, err)
		return nil, err
	}
	return res, nil
}

func (x *execution) run(ctx context.Context) (*Result, error) {
	states := x.eng.states
	x.eng.logger.Debug("run started", "run_id", x.runID, "states", len(states))

	if err := x.emit(ctx, ir.Event{Kind: ir.EventRunStarted}); err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return x.exhaust(ctx)
	}

	x.current = 0
	via := EnteredStart
	for {
		st := &states[x.current]
		x.eng.logger.Debug("state entered", "run_id", x.runID, "state", st.name, "via", via)
		if err := x.emit(ctx, ir.Event{Kind: ir.EventStateEntered, State: st.name, Detail: via}); err != nil {
			return nil, err
		}

		d, err := x.runState(ctx, st)
		if err != nil {
			return nil, err
		}

		switch d.outcome {
		case outcomeReturn:
			return x.finishReturn(ctx, d)

		case outcomeJump:
			target := states[d.target].name
			x.eng.logger.Debug("transition", "run_id", x.runID, "from", st.name, "to", target, "rule", d.rule)
			if err := x.emit(ctx, ir.Event{
				Kind:   ir.EventTransitioned,
				State:  st.name,
				Rule:   d.rule,
				Pass:   x.pass,
				Target: target,
			}); err != nil {
				return nil, err
			}
			x.result.Transitions++
			x.current = d.target
			via = EnteredTransition

		default:
			if x.current == len(states)-1 {
				return x.exhaust(ctx)
			}
			x.current++
			via = EnteredFallthrough
		}
	}
}

// runState drives passes over one state until a fixed point, a jump or a
// return. Every entry starts over with firstPass set.
func (x *execution) runState(ctx context.Context, st *boundState) (dispatch, error) {
	x.firstPass = true
	x.pass = 0

	for {
		if err := ctx.Err(); err != nil {
			return dispatch{}, x.runtimeError(ErrCodeCanceled, "run canceled", "", ir.Pos{}, err)
		}
		if err := x.quota.Check(); err != nil {
			x.eng.logger.Error("pass quota exceeded",
				"run_id", x.runID,
				"state", st.name,
				"passes", x.result.Passes,
				"limit", x.quota.MaxPasses(),
			)
			return dispatch{}, x.runtimeError(ErrCodePassLimitExceeded, err.Error(), "", ir.Pos{}, err)
		}
		x.pass++
		x.result.Passes++
		x.interaction = false

		for i := range st.rules {
			d, err := x.dispatchRule(ctx, st, &st.rules[i])
			if err != nil {
				return dispatch{}, err
			}
			if d.outcome != outcomeContinue {
				return d, nil
			}
		}

		x.firstPass = false
		if !x.interaction {
			if err := x.emit(ctx, ir.Event{Kind: ir.EventSettled, State: st.name, Pass: x.pass}); err != nil {
				return dispatch{}, err
			}
			return dispatch{outcome: outcomeContinue}, nil
		}
	}
}

// dispatchRule evaluates one rule within the current pass.
func (x *execution) dispatchRule(ctx context.Context, st *boundState, r *boundRule) (dispatch, error) {
	if r.cond == nil {
		if !x.firstPass {
			return dispatch{}, nil
		}
		x.interaction = true
		if err := x.emit(ctx, ir.Event{Kind: ir.EventRuleFired, State: st.name, Rule: r.name, Pass: x.pass}); err != nil {
			return dispatch{}, err
		}
		return x.runSteps(ctx, r.name, r.body)
	}

	ok, err := r.cond.Eval(ctx)
	if err != nil {
		return dispatch{}, x.hostFailure(ctx, ErrCodeConditionFailed, "condition failed", r.name, r.condPos, err)
	}
	if ok {
		x.interaction = true
		if err := x.emit(ctx, ir.Event{Kind: ir.EventRuleFired, State: st.name, Rule: r.name, Pass: x.pass}); err != nil {
			return dispatch{}, err
		}
		return x.runSteps(ctx, r.name, r.body)
	}

	// Else-clauses run on every pass where the condition is false and do
	// not count as interaction.
	if r.hasElse {
		if err := x.emit(ctx, ir.Event{Kind: ir.EventElseFired, State: st.name, Rule: r.name, Pass: x.pass}); err != nil {
			return dispatch{}, err
		}
		return x.runSteps(ctx, r.name, r.els)
	}
	return dispatch{}, nil
}

// runSteps executes a block. The first jump or return abandons the rest of
// the block and is handed back to the driver.
func (x *execution) runSteps(ctx context.Context, rule string, steps []step) (dispatch, error) {
	for i := range steps {
		s := &steps[i]
		switch s.kind {
		case stepHost:
			if err := s.stmt.Exec(ctx); err != nil {
				return dispatch{}, x.hostFailure(ctx, ErrCodeActionFailed, "statement failed", rule, s.pos, err)
			}

		case stepJump:
			return dispatch{outcome: outcomeJump, target: s.target, rule: rule, pos: s.pos}, nil

		case stepReturn:
			d := dispatch{outcome: outcomeReturn, rule: rule, pos: s.pos}
			if s.value != nil {
				v, err := s.value.Value(ctx)
				if err != nil {
					return dispatch{}, x.hostFailure(ctx, ErrCodeReturnFailed, "return value failed", rule, s.pos, err)
				}
				d.value, d.hasValue = v, true
			}
			return d, nil

		case stepBranch:
			ok, err := s.cond.Eval(ctx)
			if err != nil {
				return dispatch{}, x.hostFailure(ctx, ErrCodeConditionFailed, "branch condition failed", rule, s.pos, err)
			}
			arm := s.els
			if ok {
				arm = s.then
			}
			d, err := x.runSteps(ctx, rule, arm)
			if err != nil || d.outcome != outcomeContinue {
				return d, err
			}
		}
	}
	return dispatch{}, nil
}

func (x *execution) finishReturn(ctx context.Context, d dispatch) (*Result, error) {
	st := x.eng.states[x.current].name

	detail := ""
	if d.hasValue {
		detail = valueDetail(d.value)
	}
	if err := x.emit(ctx, ir.Event{
		Kind:   ir.EventReturned,
		State:  st,
		Rule:   d.rule,
		Pass:   x.pass,
		Detail: detail,
	}); err != nil {
		return nil, err
	}

	x.result.Returned = true
	x.result.Value = d.value
	x.result.FinalState = st
	x.result.Status = ir.RunReturned

	x.eng.logger.Info("run returned",
		"run_id", x.runID,
		"state", st,
		"rule", d.rule,
		"passes", x.result.Passes,
		"transitions", x.result.Transitions,
	)
	return x.result, nil
}

// exhaust ends a run that fell off the last state.
func (x *execution) exhaust(ctx context.Context) (*Result, error) {
	last := ""
	if n := len(x.eng.states); n > 0 {
		last = x.eng.states[n-1].name
	}
	if x.eng.requireReturn {
		x.current = len(x.eng.states) - 1
		return nil, x.runtimeError(ErrCodeNoReturn, "run ended without a return", "", ir.Pos{}, nil)
	}

	if err := x.emit(ctx, ir.Event{Kind: ir.EventExhausted, State: last, Pass: x.pass}); err != nil {
		return nil, err
	}

	x.result.FinalState = last
	x.result.Status = ir.RunExhausted

	x.eng.logger.Info("run exhausted",
		"run_id", x.runID,
		"state", last,
		"passes", x.result.Passes,
		"transitions", x.result.Transitions,
	)
	return x.result, nil
}

// emit stamps an event and hands it to every observer.
//
// Observers see a context that is never cancelled, so a run that is being
// cancelled can still record why it stopped.
func (x *execution) emit(ctx context.Context, ev ir.Event) error {
	ev.RunID = x.runID
	ev.Seq = x.clock.Next()

	octx := context.WithoutCancel(ctx)
	for _, o := range x.eng.observers {
		if err := o.Observe(octx, ev); err != nil {
			return &RuntimeError{
				Code:    ErrCodeRecordFailed,
				Message: fmt.Sprintf("observer rejected %s event", ev.Kind),
				RunID:   x.runID,
				State:   ev.State,
				Rule:    ev.Rule,
				Err:     err,
			}
		}
	}
	return nil
}

// recordFailure emits the terminal failed event. An observer that already
// rejected an event is not asked again.
func (x *execution) recordFailure(ctx context.Context, err error) {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return
	}
	x.eng.logger.Error("run failed",
		"run_id", x.runID,
		"code", re.Code,
		"state", re.State,
		"rule", re.Rule,
		"error", err,
	)
	if re.Code == ErrCodeRecordFailed {
		return
	}
	_ = x.emit(ctx, ir.Event{
		Kind:   ir.EventFailed,
		State:  re.State,
		Rule:   re.Rule,
		Pass:   x.pass,
		Detail: fmt.Sprintf("%s: %s", re.Code, re.Message),
	})
}

// hostFailure wraps a host error. A host that fails because the run
// context ended reports cancellation rather than its own failure.
func (x *execution) hostFailure(ctx context.Context, code RuntimeErrorCode, msg, rule string, pos ir.Pos, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return x.runtimeError(ErrCodeCanceled, "run canceled", rule, pos, fmt.Errorf("%w: %w", ctxErr, err))
	}
	return x.runtimeError(code, msg, rule, pos, err)
}

func (x *execution) runtimeError(code RuntimeErrorCode, msg, rule string, pos ir.Pos, err error) *RuntimeError {
	state := ""
	if x.current >= 0 && x.current < len(x.eng.states) {
		state = x.eng.states[x.current].name
	}
	return &RuntimeError{
		Code:    code,
		Message: msg,
		RunID:   x.runID,
		State:   state,
		Rule:    rule,
		Pos:     pos,
		Err:     err,
	}
}

// valueDetail renders a return value for the trace. Canonical JSON is
// preferred so that equal values always produce equal traces.
func valueDetail(v any) string {
	if b, err := ir.MarshalCanonical(v); err == nil {
		return string(b)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
