package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/banish/internal/ir"
)

// Engine is a linked program bound to a host.
//
// The engine holds only immutable bound state; each Run creates its own
// execution context.
//
// INVARIANTS:
//   - states slice order NEVER changes after construction (it is the jump index)
//   - every transition target is a valid index into states
//   - every host fragment was compiled before the first Run
type Engine struct {
	program       *ir.Program
	states        []boundState
	runIDs        RunIDGenerator
	observers     []Observer
	maxPasses     int
	requireReturn bool
	logger        *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxPasses sets the maximum number of passes per run, counted across
// all states.
//
// Default: 0 (unlimited). A program whose conditions never settle then
// runs until its context is cancelled.
func WithMaxPasses(n int) EngineOption {
	return func(e *Engine) {
		e.maxPasses = n
	}
}

// WithRequireReturn makes falling off the last state a NO_RETURN runtime
// error instead of an empty result.
func WithRequireReturn() EngineOption {
	return func(e *Engine) {
		e.requireReturn = true
	}
}

// WithObserver adds an observer that receives every trace event.
// Observers are called in the order they were added.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithRunIDGenerator overrides the UUIDv7 run ID generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.runIDs = g
		}
	}
}

// WithLogger routes the engine's run logging to l.
//
// Default: slog.Default() at the time New is called.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New binds a linked program to a host.
//
// Every condition, statement and return value is compiled here, in
// declaration order. The first fragment that fails yields a *BindError.
// Nothing executes during New.
func New(prog *ir.Program, host Host, opts ...EngineOption) (*Engine, error) {
	if prog == nil {
		return nil, errors.New("engine: nil program")
	}
	if !prog.Linked {
		return nil, ErrNotLinked
	}
	if host == nil {
		return nil, errors.New("engine: nil host")
	}

	e := &Engine{
		program: prog,
		runIDs:  UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	b := &binder{host: host, states: len(prog.States)}
	e.states = make([]boundState, len(prog.States))
	for i, st := range prog.States {
		bs, err := b.bindState(st)
		if err != nil {
			return nil, err
		}
		e.states[i] = bs
	}
	return e, nil
}

// Program returns the program the engine was built from.
func (e *Engine) Program() *ir.Program {
	return e.program
}

// boundState is a state whose rules are ready to execute.
type boundState struct {
	name  string
	rules []boundRule
}

type boundRule struct {
	name    string
	pos     ir.Pos
	cond    Condition // nil for a conditionless rule
	condPos ir.Pos
	body    []step
	els     []step
	hasElse bool
}

type stepKind int

const (
	stepHost stepKind = iota
	stepJump
	stepReturn
	stepBranch
)

// step is one executable action.
type step struct {
	kind stepKind
	pos  ir.Pos

	stmt Statement // stepHost

	target     int // stepJump
	targetName string

	value Expression // stepReturn; nil for a bare return

	cond Condition // stepBranch
	then []step
	els  []step
}

type binder struct {
	host   Host
	states int

	state string
	rule  string
}

func (b *binder) fail(pos ir.Pos, src string, err error) *BindError {
	return &BindError{State: b.state, Rule: b.rule, Pos: pos, Source: src, Err: err}
}

func (b *binder) bindState(st *ir.State) (boundState, error) {
	b.state = st.Name
	bs := boundState{name: st.Name, rules: make([]boundRule, 0, len(st.Rules))}
	for _, rule := range st.Rules {
		b.rule = rule.Name
		br := boundRule{name: rule.Name, pos: rule.Pos, hasElse: rule.HasElse()}

		if rule.Condition != nil {
			cond, err := b.host.Condition(*rule.Condition)
			if err != nil {
				return bs, b.fail(rule.Condition.Pos, rule.Condition.Text, err)
			}
			br.cond = cond
			br.condPos = rule.Condition.Pos
		}

		var err error
		if br.body, err = b.bindBlock(rule.Body); err != nil {
			return bs, err
		}
		if br.els, err = b.bindBlock(rule.Else); err != nil {
			return bs, err
		}
		bs.rules = append(bs.rules, br)
	}
	return bs, nil
}

// bindBlock binds a block of actions. Each maximal run of consecutive host
// statements is bound as one Statement so that they share a scope.
func (b *binder) bindBlock(actions []ir.Action) ([]step, error) {
	var (
		steps []step
		run   []*ir.HostStatement
	)

	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		texts := make([]string, len(run))
		for i, hs := range run {
			texts[i] = hs.Source.Text
		}
		src := ir.Source{Text: strings.Join(texts, "\n"), Pos: run[0].Source.Pos}
		run = run[:0]

		stmt, err := b.host.Statement(src)
		if err != nil {
			return b.fail(src.Pos, src.Text, err)
		}
		steps = append(steps, step{kind: stepHost, pos: src.Pos, stmt: stmt})
		return nil
	}

	for _, a := range actions {
		if hs, ok := a.(*ir.HostStatement); ok {
			run = append(run, hs)
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}

		switch act := a.(type) {
		case *ir.Transition:
			if act.Index < 0 || act.Index >= b.states {
				return nil, b.fail(act.Pos, act.Target, fmt.Errorf("unresolved transition target %q", act.Target))
			}
			steps = append(steps, step{kind: stepJump, pos: act.Pos, target: act.Index, targetName: act.Target})

		case *ir.Return:
			s := step{kind: stepReturn, pos: act.Pos}
			if act.Value != nil {
				expr, err := b.host.Expression(*act.Value)
				if err != nil {
					return nil, b.fail(act.Value.Pos, act.Value.Text, err)
				}
				s.value = expr
			}
			steps = append(steps, s)

		case *ir.Branch:
			cond, err := b.host.Condition(act.Condition)
			if err != nil {
				return nil, b.fail(act.Condition.Pos, act.Condition.Text, err)
			}
			s := step{kind: stepBranch, pos: act.Pos, cond: cond}
			if s.then, err = b.bindBlock(act.Then); err != nil {
				return nil, err
			}
			if s.els, err = b.bindBlock(act.Else); err != nil {
				return nil, err
			}
			steps = append(steps, s)

		default:
			return nil, b.fail(a.Position(), "", fmt.Errorf("unsupported action %T", a))
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return steps, nil
}
