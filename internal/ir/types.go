package ir

import "fmt"

// Pos is a 1-based source position. The zero value means unknown.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// IsValid reports whether the position carries a line number.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Source is an opaque host fragment: a condition, a statement, or a
// return value expression. The engine never interprets Text.
type Source struct {
	Text string `json:"text"`
	Pos  Pos    `json:"pos"`
}

// Program is an ordered sequence of states.
//
// A state's position in States is its jump index. Programs built by the
// compiler are linked: every Transition carries a resolved Index.
type Program struct {
	File   string   `json:"file,omitempty"`
	States []*State `json:"states"`

	// Linked is set by compiler.Link once validation succeeded and all
	// transition targets are resolved. The engine refuses unlinked programs.
	Linked bool `json:"-"`
}

// StateIndex returns the index of the named state, or -1.
func (p *Program) StateIndex(name string) int {
	for i, st := range p.States {
		if st != nil && st.Name == name {
			return i
		}
	}
	return -1
}

// State is a named, ordered group of rules.
type State struct {
	Name  string  `json:"name"`
	Pos   Pos     `json:"pos"`
	Rules []*Rule `json:"rules"`
}

// Rule is a named unit of conditional or unconditional logic.
//
// Invariant: Else != nil implies Condition != nil.
type Rule struct {
	Name      string   `json:"name"`
	Pos       Pos      `json:"pos"`
	Condition *Source  `json:"condition,omitempty"`
	Body      []Action `json:"-"`
	Else      []Action `json:"-"`
}

// Conditionless reports whether the rule fires once per state entry.
func (r *Rule) Conditionless() bool {
	return r.Condition == nil
}

// HasElse reports whether an else-clause is attached.
func (r *Rule) HasElse() bool {
	return r.Else != nil
}

// ActionKind identifies the Action variant.
type ActionKind string

const (
	ActionHost       ActionKind = "host"
	ActionTransition ActionKind = "transition"
	ActionReturn     ActionKind = "return"
	ActionBranch     ActionKind = "branch"
)

// Action is one step of a rule body. It is a closed set of variants:
// *HostStatement, *Transition, *Return and *Branch.
type Action interface {
	Kind() ActionKind
	Position() Pos
	actionMarker()
}

// HostStatement is an opaque operation executed by the host.
type HostStatement struct {
	Source Source `json:"source"`
}

func (a *HostStatement) Kind() ActionKind { return ActionHost }
func (a *HostStatement) Position() Pos    { return a.Source.Pos }
func (a *HostStatement) actionMarker()    {}

// Transition jumps to another state, abandoning the current pass.
// Index is -1 until the program is linked.
type Transition struct {
	Target string `json:"target"`
	Index  int    `json:"index"`
	Pos    Pos    `json:"pos"`
}

func (a *Transition) Kind() ActionKind { return ActionTransition }
func (a *Transition) Position() Pos    { return a.Pos }
func (a *Transition) actionMarker()    {}

// Return halts the whole run. Value is nil for a bare return.
type Return struct {
	Value *Source `json:"value,omitempty"`
	Pos   Pos     `json:"pos"`
}

func (a *Return) Kind() ActionKind { return ActionReturn }
func (a *Return) Position() Pos    { return a.Pos }
func (a *Return) actionMarker()    {}

// Branch is an if/else whose arms may themselves transition or return.
// Else is nil when there is no else arm; an else-if chain nests a single
// Branch in Else. Evaluating a branch is not a rule interaction.
type Branch struct {
	Condition Source   `json:"condition"`
	Then      []Action `json:"-"`
	Else      []Action `json:"-"`
	Pos       Pos      `json:"pos"`
}

func (a *Branch) Kind() ActionKind { return ActionBranch }
func (a *Branch) Position() Pos    { return a.Pos }
func (a *Branch) actionMarker()    {}

// Terminal reports whether the action always ends the current pass.
func Terminal(a Action) bool {
	switch a.(type) {
	case *Transition, *Return:
		return true
	default:
		return false
	}
}

// Exits reports whether executing the block always ends the pass, either
// through a top-level transition or return or a branch whose arms all exit.
func Exits(block []Action) bool {
	for _, a := range block {
		switch act := a.(type) {
		case *Transition, *Return:
			return true
		case *Branch:
			if act.Else != nil && Exits(act.Then) && Exits(act.Else) {
				return true
			}
		}
	}
	return false
}

// Walk calls fn for every action in block, descending into branch arms.
// Walk stops early when fn returns false.
func Walk(block []Action, fn func(Action) bool) bool {
	for _, a := range block {
		if !fn(a) {
			return false
		}
		if br, ok := a.(*Branch); ok {
			if !Walk(br.Then, fn) || !Walk(br.Else, fn) {
				return false
			}
		}
	}
	return true
}
