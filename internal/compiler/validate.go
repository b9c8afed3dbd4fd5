package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/banish/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// Structural defects, only reachable from hand-built programs (E200)
	ErrMalformedProgram = "E200"

	// Name and reference errors (E201-E209)
	ErrDuplicateState       = "E201" // duplicate state name
	ErrDuplicateRule        = "E202" // duplicate rule in state
	ErrInvalidTarget        = "E203" // transition target is not a state
	ErrElseWithoutCondition = "E204" // else-clause on a conditionless rule
)

// ValidationError represents a static program error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks name uniqueness, transition targets and else placement.
// Returns all errors found in declaration order (does not fail-fast), so
// the first element is the first violation.
func Validate(p *ir.Program) []ValidationError {
	if p == nil {
		return []ValidationError{{
			Field:   "program",
			Message: "program is nil",
			Code:    ErrMalformedProgram,
		}}
	}

	v := &validator{names: make(map[string]bool, len(p.States))}
	for _, st := range p.States {
		if st != nil {
			v.names[st.Name] = true
		}
	}

	seenStates := make(map[string]bool, len(p.States))
	for i, st := range p.States {
		field := fmt.Sprintf("states[%d]", i)
		if st == nil {
			v.add(field, "state is nil", ErrMalformedProgram, ir.Pos{})
			continue
		}
		if strings.TrimSpace(st.Name) == "" {
			v.add(field+".name", "state name is empty", ErrMalformedProgram, st.Pos)
		}

		// E201: duplicate state name
		if seenStates[st.Name] {
			v.add(field+".name", fmt.Sprintf("duplicate state name %q", st.Name), ErrDuplicateState, st.Pos)
		}
		seenStates[st.Name] = true

		v.validateRules(field, st)
	}
	return v.errs
}

type validator struct {
	names map[string]bool
	errs  []ValidationError
}

func (v *validator) add(field, msg, code string, pos ir.Pos) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: msg,
		Code:    code,
		Line:    pos.Line,
	})
}

func (v *validator) validateRules(stateField string, st *ir.State) {
	seenRules := make(map[string]bool, len(st.Rules))
	for j, rule := range st.Rules {
		field := fmt.Sprintf("%s.rules[%d]", stateField, j)
		if rule == nil {
			v.add(field, "rule is nil", ErrMalformedProgram, st.Pos)
			continue
		}
		if strings.TrimSpace(rule.Name) == "" {
			v.add(field+".name", "rule name is empty", ErrMalformedProgram, rule.Pos)
		}

		// E202: duplicate rule within this state
		if seenRules[rule.Name] {
			v.add(field+".name",
				fmt.Sprintf("duplicate rule %q in state %q", rule.Name, st.Name),
				ErrDuplicateRule, rule.Pos)
		}
		seenRules[rule.Name] = true

		if rule.Condition != nil && strings.TrimSpace(rule.Condition.Text) == "" {
			v.add(field+".condition", "condition is empty", ErrMalformedProgram, rule.Pos)
		}

		v.validateBlock(field+".body", rule.Body)

		// E204: else requires a condition
		if rule.Else != nil {
			if rule.Condition == nil {
				v.add(field+".else",
					fmt.Sprintf("else-clause requires a condition (rule %q)", rule.Name),
					ErrElseWithoutCondition, rule.Pos)
			}
			v.validateBlock(field+".else", rule.Else)
		}
	}
}

func (v *validator) validateBlock(field string, block []ir.Action) {
	for k, a := range block {
		f := fmt.Sprintf("%s[%d]", field, k)
		switch act := a.(type) {
		case nil:
			v.add(f, "action is nil", ErrMalformedProgram, ir.Pos{})
		case *ir.HostStatement:
			if strings.TrimSpace(act.Source.Text) == "" {
				v.add(f, "host statement is empty", ErrMalformedProgram, act.Source.Pos)
			}
		case *ir.Transition:
			// E203: target must name a declared state
			if !v.names[act.Target] {
				v.add(f+".target", fmt.Sprintf("invalid transition target %q", act.Target), ErrInvalidTarget, act.Pos)
			}
		case *ir.Return:
			if act.Value != nil && strings.TrimSpace(act.Value.Text) == "" {
				v.add(f+".value", "return value is empty", ErrMalformedProgram, act.Pos)
			}
		case *ir.Branch:
			if strings.TrimSpace(act.Condition.Text) == "" {
				v.add(f+".condition", "branch condition is empty", ErrMalformedProgram, act.Pos)
			}
			v.validateBlock(f+".then", act.Then)
			v.validateBlock(f+".else", act.Else)
		default:
			v.add(f, fmt.Sprintf("unsupported action %T", a), ErrMalformedProgram, ir.Pos{})
		}
	}
}
