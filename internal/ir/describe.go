package ir

import "fmt"

// Describe renders a program as a JSON-ready tree of maps and slices.
//
// The tree includes positions and is what `banish parse --format json`
// prints. Describe(p) always marshals with MarshalCanonical.
func Describe(p *Program) (map[string]any, error) {
	if p == nil {
		return nil, fmt.Errorf("Describe: nil program")
	}
	return describe(p, true)
}

func describe(p *Program, withPos bool) (map[string]any, error) {
	states := make([]any, 0, len(p.States))
	for i, st := range p.States {
		if st == nil {
			return nil, fmt.Errorf("states[%d]: nil state", i)
		}
		rules := make([]any, 0, len(st.Rules))
		for j, r := range st.Rules {
			if r == nil {
				return nil, fmt.Errorf("states[%d].rules[%d]: nil rule", i, j)
			}
			rule := map[string]any{"name": r.Name}
			if r.Condition != nil {
				rule["condition"] = r.Condition.Text
			}
			body, err := describeActions(r.Body, withPos)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			rule["body"] = body
			if r.Else != nil {
				els, err := describeActions(r.Else, withPos)
				if err != nil {
					return nil, fmt.Errorf("rule %q else: %w", r.Name, err)
				}
				rule["else"] = els
			}
			if withPos {
				rule["pos"] = describePos(r.Pos)
			}
			rules = append(rules, rule)
		}
		state := map[string]any{"name": st.Name, "rules": rules}
		if withPos {
			state["pos"] = describePos(st.Pos)
		}
		states = append(states, state)
	}

	out := map[string]any{
		"ir_version": IRVersion,
		"states":     states,
	}
	if withPos && p.File != "" {
		out["file"] = p.File
	}
	return out, nil
}

func describeActions(actions []Action, withPos bool) ([]any, error) {
	out := make([]any, 0, len(actions))
	for i, a := range actions {
		var m map[string]any
		switch act := a.(type) {
		case *HostStatement:
			m = map[string]any{"kind": string(ActionHost), "source": act.Source.Text}
		case *Transition:
			m = map[string]any{"kind": string(ActionTransition), "target": act.Target}
		case *Return:
			m = map[string]any{"kind": string(ActionReturn)}
			if act.Value != nil {
				m["value"] = act.Value.Text
			}
		case *Branch:
			then, err := describeActions(act.Then, withPos)
			if err != nil {
				return nil, fmt.Errorf("actions[%d].then: %w", i, err)
			}
			m = map[string]any{"kind": string(ActionBranch), "condition": act.Condition.Text, "then": then}
			if act.Else != nil {
				els, err := describeActions(act.Else, withPos)
				if err != nil {
					return nil, fmt.Errorf("actions[%d].else: %w", i, err)
				}
				m["else"] = els
			}
		default:
			return nil, fmt.Errorf("actions[%d]: unsupported action %T", i, a)
		}
		if withPos {
			m["pos"] = describePos(a.Position())
		}
		out = append(out, m)
	}
	return out, nil
}

func describePos(p Pos) map[string]any {
	return map[string]any{"line": p.Line, "column": p.Column}
}
