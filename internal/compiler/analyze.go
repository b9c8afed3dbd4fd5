package compiler

import (
	"fmt"

	"github.com/roach88/banish/internal/ir"
)

// Analysis warning codes (W300-W399). Warnings never block execution.
const (
	WarnUnreachableState  = "W301" // no control path from the first state
	WarnTransitionCycle   = "W302" // states form a loop
	WarnEmptyState        = "W303" // state has no rules
	WarnUnreachableAction = "W304" // action after a transition or return
)

// Warning is a static analysis finding.
type Warning struct {
	Code    string   `json:"code"`
	State   string   `json:"state,omitempty"`
	Rule    string   `json:"rule,omitempty"`
	Path    []string `json:"path,omitempty"`
	Message string   `json:"message"`
	Line    int      `json:"line,omitempty"`
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s", w.Code, w.Line, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}

// Analyze reports suspicious but legal program structure. The program must
// be valid (see Validate); Analyze does not require it to be linked.
//
// Order: per-state findings (W303, W304) in declaration order, then
// unreachable states (W301), then cycles (W302).
func Analyze(p *ir.Program) []Warning {
	warnings := []Warning{}
	if p == nil || len(p.States) == 0 {
		return warnings
	}

	for _, st := range p.States {
		if len(st.Rules) == 0 {
			warnings = append(warnings, Warning{
				Code:    WarnEmptyState,
				State:   st.Name,
				Message: fmt.Sprintf("state %q has no rules and falls through immediately", st.Name),
				Line:    st.Pos.Line,
			})
		}
		for _, rule := range st.Rules {
			warnings = append(warnings, unreachableActions(st, rule, rule.Body)...)
			warnings = append(warnings, unreachableActions(st, rule, rule.Else)...)
		}
	}

	g := buildControlGraph(p)
	reached := reachable(g)
	for _, st := range p.States {
		if !reached[st.Name] {
			warnings = append(warnings, Warning{
				Code:    WarnUnreachableState,
				State:   st.Name,
				Message: fmt.Sprintf("state %q is unreachable from %q", st.Name, p.States[0].Name),
				Line:    st.Pos.Line,
			})
		}
	}

	return append(warnings, findCycles(g)...)
}

// unreachableActions flags the first action following an exit in each
// block, descending into branch arms.
func unreachableActions(st *ir.State, rule *ir.Rule, block []ir.Action) []Warning {
	var out []Warning
	for i, a := range block {
		if br, ok := a.(*ir.Branch); ok {
			out = append(out, unreachableActions(st, rule, br.Then)...)
			out = append(out, unreachableActions(st, rule, br.Else)...)
		}
		if i+1 < len(block) && ir.Exits(block[i:i+1]) {
			dead := block[i+1]
			out = append(out, Warning{
				Code:    WarnUnreachableAction,
				State:   st.Name,
				Rule:    rule.Name,
				Message: fmt.Sprintf("unreachable %s action in rule %q after %s", dead.Kind(), rule.Name, a.Kind()),
				Line:    dead.Position().Line,
			})
			break
		}
	}
	return out
}

// reachable returns the states reachable from the first declared state.
func reachable(g controlGraph) map[string]bool {
	seen := map[string]bool{g.order[0]: true}
	queue := []string{g.order[0]}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.edges[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}
