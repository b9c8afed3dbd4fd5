package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/banish/internal/ir"
)

// controlGraph maps state name → states control can move to next, either
// by transition or by falling through at the fixed point.
type controlGraph struct {
	order []string // declaration order, for deterministic traversal
	edges map[string][]string
}

// buildControlGraph constructs the state control-flow graph.
//
// For each state:
//   - Add an edge to every transition target in its rules (at any depth)
//   - Add a fallthrough edge to the next state unless the state always exits
func buildControlGraph(p *ir.Program) controlGraph {
	g := controlGraph{edges: make(map[string][]string, len(p.States))}
	for i, st := range p.States {
		g.order = append(g.order, st.Name)
		seen := make(map[string]bool)
		add := func(target string) {
			if !seen[target] {
				seen[target] = true
				g.edges[st.Name] = append(g.edges[st.Name], target)
			}
		}

		for _, rule := range st.Rules {
			visit := func(a ir.Action) bool {
				if t, ok := a.(*ir.Transition); ok {
					add(t.Target)
				}
				return true
			}
			ir.Walk(rule.Body, visit)
			ir.Walk(rule.Else, visit)
		}

		if i+1 < len(p.States) && !alwaysExits(st) {
			add(p.States[i+1].Name)
		}
		if g.edges[st.Name] == nil {
			g.edges[st.Name] = []string{}
		}
	}
	return g
}

// alwaysExits reports whether the first pass of a state is guaranteed to
// transition or return, so the state can never reach its fixed point.
//
// A conditionless rule whose body always exits guarantees this, as does a
// conditioned rule whose body and else-clause both always exit.
func alwaysExits(st *ir.State) bool {
	for _, rule := range st.Rules {
		if rule.Conditionless() && ir.Exits(rule.Body) {
			return true
		}
		if !rule.Conditionless() && rule.HasElse() && ir.Exits(rule.Body) && ir.Exits(rule.Else) {
			return true
		}
	}
	return false
}

// findCycles reports every strongly connected component of the control
// graph that is a cycle: more than one state, or a state that targets
// itself.
//
// Cycles are warnings, not errors. Most state machines loop on purpose
// (a traffic light cycles forever until a rule returns).
func findCycles(g controlGraph) []Warning {
	var warnings []Warning
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || hasSelfLoop(scc[0], g) {
			warnings = append(warnings, cycleSCCToWarning(scc, g))
		}
	}
	return warnings
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g controlGraph) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Nodes are visited in declaration order so output is deterministic.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g controlGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// Root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cycleSCCToWarning converts an SCC to a W302 warning whose path starts at
// the earliest declared state in the cycle.
func cycleSCCToWarning(scc []string, g controlGraph) Warning {
	members := make(map[string]bool, len(scc))
	for _, s := range scc {
		members[s] = true
	}
	var start string
	for _, s := range g.order {
		if members[s] {
			start = s
			break
		}
	}

	if len(scc) == 1 {
		return Warning{
			Code:    WarnTransitionCycle,
			State:   start,
			Path:    []string{start, start},
			Message: fmt.Sprintf("state %q transitions to itself", start),
		}
	}

	path := reconstructCyclePath(start, members, g)
	return Warning{
		Code:    WarnTransitionCycle,
		State:   start,
		Path:    path,
		Message: fmt.Sprintf("transition cycle: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath follows edges inside the SCC from start until it
// returns to start.
func reconstructCyclePath(start string, members map[string]bool, g controlGraph) []string {
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
