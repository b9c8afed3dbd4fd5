package ir

// EventKind categorizes trace events emitted during a run.
type EventKind string

const (
	EventRunStarted   EventKind = "run_started"
	EventStateEntered EventKind = "state_entered"
	EventRuleFired    EventKind = "rule_fired"
	EventElseFired    EventKind = "else_fired"
	EventTransitioned EventKind = "transitioned"
	EventSettled      EventKind = "settled"
	EventReturned     EventKind = "returned"
	EventExhausted    EventKind = "exhausted"
	EventFailed       EventKind = "failed"
)

// EventKinds lists every event kind in the order a run can produce them.
var EventKinds = []EventKind{
	EventRunStarted, EventStateEntered, EventRuleFired, EventElseFired,
	EventTransitioned, EventSettled, EventReturned, EventExhausted, EventFailed,
}

// Known reports whether k is one of EventKinds.
func (k EventKind) Known() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one entry in a run's trace.
//
// Seq comes from the run's logical clock and is strictly increasing within
// a run. Pass is the 1-based pass number inside the current state entry
// (zero for events outside a pass).
type Event struct {
	RunID  string    `json:"run_id"`
	Seq    int64     `json:"seq"`
	Kind   EventKind `json:"kind"`
	State  string    `json:"state,omitempty"`
	Rule   string    `json:"rule,omitempty"`
	Pass   int       `json:"pass,omitempty"`
	Target string    `json:"target,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// SameStep reports whether two events describe the same step, ignoring
// run identity. Used to compare a replay against a recorded trace.
func (e Event) SameStep(other Event) bool {
	return e.Seq == other.Seq &&
		e.Kind == other.Kind &&
		e.State == other.State &&
		e.Rule == other.Rule &&
		e.Pass == other.Pass &&
		e.Target == other.Target &&
		e.Detail == other.Detail
}

// RunStatus is the terminal status recorded for a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunReturned  RunStatus = "returned"
	RunExhausted RunStatus = "exhausted"
	RunFailed    RunStatus = "failed"
)
