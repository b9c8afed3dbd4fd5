package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    []ir.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// State entries and transitions give enough context without the
	// per-rule noise.
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nState path:\n")
		for _, ev := range e.Trace {
			switch ev.Kind {
			case ir.EventStateEntered:
				fmt.Fprintf(&buf, "  [%d] enter @%s (%s)\n", ev.Seq, ev.State, ev.Detail)
			case ir.EventTransitioned:
				fmt.Fprintf(&buf, "  [%d] %s => @%s\n", ev.Seq, ev.Rule, ev.Target)
			}
		}
	}

	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// Rule and state counts are read back from the store, so actx must carry
// the store the run was recorded into.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	var stats *store.Stats
	loadStats := func() (*store.Stats, error) {
		if stats != nil {
			return stats, nil
		}
		if actx == nil || actx.Store == nil {
			return nil, fmt.Errorf("count assertions require database context")
		}
		st, err := actx.Store.ReadStats(actx.Ctx, actx.RunID)
		if err != nil {
			return nil, fmt.Errorf("read stats: %w", err)
		}
		stats = &st
		return stats, nil
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFireCount, AssertElseCount, AssertEnterCount:
			var st *store.Stats
			if st, err = loadStats(); err == nil {
				err = assertCount(result.Trace, st, assertion)
			}
		case AssertTransitionCount:
			err = assertTransitionCount(result.Trace, assertion)
		case AssertStateOrder:
			err = assertStateOrder(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertCount checks fire_count, else_count and enter_count against the
// aggregated stats of the run.
func assertCount(trace []ir.Event, st *store.Stats, assertion Assertion) error {
	var actual int
	var subject string

	switch assertion.Type {
	case AssertEnterCount:
		actual = st.Entries[assertion.State]
		subject = fmt.Sprintf("entries of @%s", assertion.State)
	default:
		for _, rs := range st.Rules {
			if rs.State == assertion.State && rs.Rule == assertion.Rule {
				if assertion.Type == AssertFireCount {
					actual = rs.Fired
				} else {
					actual = rs.Else
				}
				break
			}
		}
		what := "firings"
		if assertion.Type == AssertElseCount {
			what = "else firings"
		}
		subject = fmt.Sprintf("%s of @%s.%s", what, assertion.State, assertion.Rule)
	}

	if actual != assertion.Count {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("%d %s", assertion.Count, subject),
			Actual:   fmt.Sprintf("%d %s", actual, subject),
			Trace:    trace,
		}
	}
	return nil
}

// assertTransitionCount counts transitioned events, optionally filtered by
// source state and target.
func assertTransitionCount(trace []ir.Event, assertion Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Kind != ir.EventTransitioned {
			continue
		}
		if assertion.State != "" && ev.State != assertion.State {
			continue
		}
		if assertion.Target != "" && ev.Target != assertion.Target {
			continue
		}
		count++
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTransitionCount,
			Expected: fmt.Sprintf("%d transitions%s", assertion.Count, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d transitions", count),
			Trace:    trace,
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.State != "" {
		parts = append(parts, "from @"+a.State)
	}
	if a.Target != "" {
		parts = append(parts, "to @"+a.Target)
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

// assertStateOrder checks that states were entered in the given order.
// Entries don't need to be consecutive (intervening entries are allowed),
// and a state may repeat in the expected order to require repeated visits.
func assertStateOrder(trace []ir.Event, assertion Assertion) error {
	var entered []string
	for _, ev := range trace {
		if ev.Kind == ir.EventStateEntered {
			entered = append(entered, ev.State)
		}
	}

	next := 0
	for _, state := range entered {
		if next < len(assertion.States) && state == assertion.States[next] {
			next++
		}
	}

	if next < len(assertion.States) {
		return &AssertionError{
			Type:     AssertStateOrder,
			Expected: fmt.Sprintf("states entered in order: %v", assertion.States),
			Actual:   fmt.Sprintf("entered %v; missing @%s after %v", entered, assertion.States[next], assertion.States[:next]),
			Trace:    trace,
		}
	}
	return nil
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
