package compiler

import "github.com/roach88/banish/internal/ir"

// Link validates p and resolves every transition target to its state
// index, then marks the program linked. On failure p is left untouched
// and the returned error is a ValidationErrors.
func Link(p *ir.Program) error {
	if errs := Validate(p); len(errs) > 0 {
		return ValidationErrors(errs)
	}

	index := make(map[string]int, len(p.States))
	for i, st := range p.States {
		index[st.Name] = i
	}

	resolve := func(a ir.Action) bool {
		if t, ok := a.(*ir.Transition); ok {
			t.Index = index[t.Target]
		}
		return true
	}
	for _, st := range p.States {
		for _, rule := range st.Rules {
			ir.Walk(rule.Body, resolve)
			ir.Walk(rule.Else, resolve)
		}
	}

	p.Linked = true
	return nil
}
