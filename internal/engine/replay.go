// Package engine implements the banish execution engine.
//
// # Replay and Determinism
//
// This file documents how replay works and why it reproduces a run.
//
// ## Structural Determinism
//
// Replay in banish is STRUCTURAL, not a special "replay mode".
// A replay is an ordinary Run of the same program against a host seeded
// with the same initial globals.
//
// Three mechanisms make two such runs comparable:
//
// 1. Per-run Logical Clock
//
//	seq := x.clock.Next()
//
// Every Run owns a fresh Clock. Seq restarts at 1 and never depends on
// wall time.
//
// 2. Declaration-Order Evaluation
//
// Rules are evaluated in declaration order, states are entered in jump
// or fallthrough order, and nothing runs concurrently within a run.
//
// 3. Content-Addressed Programs
//
//	hash := ir.ProgramHash(prog)
//
// The run log stores the program hash. A replay whose program hashes
// differently is not a replay of that run.
//
// ## Replay Flow
//
//	[Stored run] → [Source + initial env] → [Compile] → [Bind] → [Run]
//	                                                              ↓
//	                                        [CompareTraces(recorded, replayed)]
//	                                                              ↓
//	                                  nil → deterministic
//	                                  *Divergence → first differing step
//
// ## What Can Diverge
//
// The engine is deterministic; hosts need not be. A condition reading a
// clock or a random source can take a different branch on replay. The
// divergence report names the first step where that happened.
//
// Run IDs always differ between the two runs and are ignored.
package engine

import (
	"fmt"

	"github.com/roach88/banish/internal/ir"
)

// Divergence describes the first step at which two traces differ.
//
// Index is the position in the traces. Recorded or Replayed is nil when
// the corresponding trace ended early.
type Divergence struct {
	Index    int
	Recorded *ir.Event
	Replayed *ir.Event
}

// Error implements the error interface so a divergence can be returned
// directly from replay commands.
func (d *Divergence) Error() string {
	switch {
	case d.Recorded == nil:
		return fmt.Sprintf("replay diverged at step %d: unexpected extra event %s", d.Index, describeEvent(*d.Replayed))
	case d.Replayed == nil:
		return fmt.Sprintf("replay diverged at step %d: missing event %s", d.Index, describeEvent(*d.Recorded))
	default:
		return fmt.Sprintf("replay diverged at step %d: recorded %s, replayed %s",
			d.Index, describeEvent(*d.Recorded), describeEvent(*d.Replayed))
	}
}

// CompareTraces compares two traces step by step, ignoring run IDs.
// Returns nil when they describe the same execution.
func CompareTraces(recorded, replayed []ir.Event) *Divergence {
	n := max(len(recorded), len(replayed))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(recorded):
			ev := replayed[i]
			return &Divergence{Index: i, Replayed: &ev}
		case i >= len(replayed):
			ev := recorded[i]
			return &Divergence{Index: i, Recorded: &ev}
		case !recorded[i].SameStep(replayed[i]):
			rec, rep := recorded[i], replayed[i]
			return &Divergence{Index: i, Recorded: &rec, Replayed: &rep}
		}
	}
	return nil
}

func describeEvent(ev ir.Event) string {
	s := fmt.Sprintf("#%d %s", ev.Seq, ev.Kind)
	if ev.State != "" {
		s += " @" + ev.State
	}
	if ev.Rule != "" {
		s += " " + ev.Rule
	}
	if ev.Target != "" {
		s += " => @" + ev.Target
	}
	if ev.Detail != "" {
		s += " (" + ev.Detail + ")"
	}
	return s
}
