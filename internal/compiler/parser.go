package compiler

import (
	"fmt"

	"github.com/roach88/banish/internal/ir"
	"github.com/roach88/banish/internal/lexer"
)

// compoundKeywords start host statements that may end with a closing brace
// instead of a semicolon.
var compoundKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "do": true, "switch": true,
	"try": true, "function": true, "class": true,
}

// Parse turns banish source text into an unlinked program.
//
// Host fragments (conditions, statements, return values) are captured as
// the exact source text they span. Parse performs no semantic checks;
// see Validate and Link.
func Parse(file, src string) (*ir.Program, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, fromLexError(file, err)
	}
	p := &parser{file: file, src: src, toks: toks}
	return p.parseProgram()
}

type parser struct {
	file string
	src  string
	toks []lexer.Token
	pos  int
}

func (p *parser) peek() lexer.Token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) lexer.Token {
	if i := p.pos + n; i < len(p.toks) {
		return p.toks[i]
	}
	return p.toks[len(p.toks)-1]
}

// next consumes one token. EOF is never consumed.
func (p *parser) next() lexer.Token {
	t := p.toks[p.pos]
	if t.Kind != lexer.EOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(at lexer.Token, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		File:   p.file,
		Line:   at.Line,
		Column: at.Column,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// span returns the verbatim source between two tokens, inclusive.
func (p *parser) span(first, last lexer.Token) ir.Source {
	return ir.Source{Text: p.src[first.Start:last.End], Pos: first.Pos()}
}

func (p *parser) parseProgram() (*ir.Program, error) {
	prog := &ir.Program{File: p.file}
	for p.peek().Kind != lexer.EOF {
		tok := p.peek()
		if !tok.Is("@") {
			if tok.Kind == lexer.Ident && p.peekAt(1).Is("?") {
				return nil, p.errorf(tok, "rule %q declared before any state header", tok.Text)
			}
			return nil, p.errorf(tok, "expected state header '@name', found %s", tok)
		}
		st, err := p.parseState()
		if err != nil {
			return nil, err
		}
		prog.States = append(prog.States, st)
	}
	return prog, nil
}

func (p *parser) parseState() (*ir.State, error) {
	at := p.next()
	name := p.next()
	if name.Kind != lexer.Ident {
		return nil, p.errorf(name, "expected state name after '@', found %s", name)
	}

	st := &ir.State{Name: name.Text, Pos: at.Pos(), Rules: []*ir.Rule{}}
	for {
		tok := p.peek()
		if tok.Kind == lexer.EOF || tok.Is("@") {
			return st, nil
		}
		rule, err := p.parseRule(st.Name)
		if err != nil {
			return nil, err
		}
		st.Rules = append(st.Rules, rule)
	}
}

func (p *parser) parseRule(state string) (*ir.Rule, error) {
	name := p.next()
	if name.Kind != lexer.Ident {
		return nil, p.errorf(name, "expected rule name in state %q, found %s", state, name)
	}
	if q := p.next(); !q.Is("?") {
		return nil, p.errorf(q, "expected '?' after rule name %q, found %s", name.Text, q)
	}

	rule := &ir.Rule{Name: name.Text, Pos: name.Pos()}
	if !p.peek().Is("{") {
		cond, err := p.parseCondition(rule.Name)
		if err != nil {
			return nil, err
		}
		rule.Condition = &cond
	}

	body, err := p.parseBlock(rule.Name)
	if err != nil {
		return nil, err
	}
	rule.Body = body

	if p.peek().Is("!?") {
		bang := p.next()
		if rule.Condition == nil {
			return nil, p.errorf(bang, "else-clause requires a condition (rule %q)", rule.Name)
		}
		els, err := p.parseBlock(rule.Name)
		if err != nil {
			return nil, err
		}
		rule.Else = els
	}
	return rule, nil
}

// parseCondition accumulates tokens up to, not including, the first '{'
// at bracket depth zero. Braces nested in parentheses or brackets belong
// to the condition.
func (p *parser) parseCondition(rule string) (ir.Source, error) {
	first := p.peek()
	var last lexer.Token
	depth := 0
	for {
		tok := p.peek()
		switch {
		case tok.Kind == lexer.EOF:
			return ir.Source{}, p.errorf(tok, "unexpected end of input in condition of rule %q", rule)
		case depth == 0 && tok.Is("{"):
			return p.span(first, last), nil
		case depth == 0 && tok.Is("@"):
			return ir.Source{}, p.errorf(tok, "expected '{' to open body of rule %q, found %s", rule, tok)
		case opens(tok):
			depth++
		case closes(tok):
			if depth == 0 {
				return ir.Source{}, p.errorf(tok, "unbalanced %s in condition of rule %q", tok, rule)
			}
			depth--
		}
		last = p.next()
	}
}

// parseBlock parses a brace-delimited list of actions. The result is never
// nil so that an empty else-clause is still recorded as present.
func (p *parser) parseBlock(rule string) ([]ir.Action, error) {
	if open := p.peek(); !open.Is("{") {
		return nil, p.errorf(open, "expected '{' to open body of rule %q, found %s", rule, open)
	}
	p.next()

	actions := []ir.Action{}
	for {
		tok := p.peek()
		switch {
		case tok.Kind == lexer.EOF:
			return nil, p.errorf(tok, "unexpected end of input in body of rule %q", rule)
		case tok.Is("}"):
			p.next()
			return actions, nil
		case tok.Is(";"):
			p.next()
			continue
		}

		act, err := p.parseStatement(rule)
		if err != nil {
			return nil, err
		}
		actions = append(actions, act)
	}
}

func (p *parser) parseStatement(rule string) (ir.Action, error) {
	tok := p.peek()
	switch {
	case tok.Is("=>"):
		return p.parseTransition()
	case tok.IsIdent("return"):
		return p.parseReturn(rule)
	case tok.IsIdent("if"):
		// An if-chain becomes a Branch only when it carries control flow;
		// otherwise the whole chain stays one opaque host statement.
		start := p.pos
		br, ok, err := p.parseIf(rule)
		if err != nil {
			return nil, err
		}
		if ok && carriesControl(br) {
			return br, nil
		}
		p.pos = start
	}
	return p.parseHost(rule)
}

func (p *parser) parseTransition() (ir.Action, error) {
	arrow := p.next()
	at := p.next()
	if !at.Is("@") {
		return nil, p.errorf(at, "malformed transition: expected '@' after '=>', found %s", at)
	}
	target := p.next()
	if target.Kind != lexer.Ident {
		return nil, p.errorf(target, "malformed transition: expected state name after '=> @', found %s", target)
	}
	if semi := p.next(); !semi.Is(";") {
		return nil, p.errorf(semi, "malformed transition: expected ';' after '=> @%s', found %s", target.Text, semi)
	}
	return &ir.Transition{Target: target.Text, Index: -1, Pos: arrow.Pos()}, nil
}

func (p *parser) parseReturn(rule string) (ir.Action, error) {
	ret := p.next()
	act := &ir.Return{Pos: ret.Pos()}

	first := p.peek()
	var last lexer.Token
	hasValue, depth := false, 0
	for {
		tok := p.peek()
		switch {
		case tok.Kind == lexer.EOF:
			return nil, p.errorf(tok, "unexpected end of input in return statement of rule %q", rule)
		case depth == 0 && (tok.Is(";") || tok.Is("}")):
			if tok.Is(";") {
				p.next()
			}
			if hasValue {
				value := p.span(first, last)
				act.Value = &value
			}
			return act, nil
		case opens(tok):
			depth++
		case closes(tok):
			if depth == 0 {
				return nil, p.errorf(tok, "unbalanced %s in return statement of rule %q", tok, rule)
			}
			depth--
		}
		last = p.next()
		hasValue = true
	}
}

// parseIf parses `if (cond) {...} [else if (...) {...}] [else {...}]`.
// ok is false when the chain does not have that braced shape, in which case
// the caller rewinds and treats it as a host statement.
func (p *parser) parseIf(rule string) (br *ir.Branch, ok bool, err error) {
	ifTok := p.next()
	if !p.peek().Is("(") {
		return nil, false, nil
	}
	p.next()

	var first, last lexer.Token
	count, depth := 0, 1
	for {
		tok := p.peek()
		if tok.Kind == lexer.EOF {
			return nil, false, p.errorf(tok, "unexpected end of input in body of rule %q", rule)
		}
		if opens(tok) {
			depth++
		} else if closes(tok) {
			depth--
		}
		if depth == 0 {
			p.next()
			break
		}
		if count == 0 {
			first = tok
		}
		last = p.next()
		count++
	}
	if count == 0 || !p.peek().Is("{") {
		return nil, false, nil
	}

	br = &ir.Branch{Condition: p.span(first, last), Pos: ifTok.Pos()}
	if br.Then, err = p.parseBlock(rule); err != nil {
		return nil, false, err
	}
	if !p.peek().IsIdent("else") {
		return br, true, nil
	}
	p.next()

	switch {
	case p.peek().IsIdent("if"):
		inner, ok, err := p.parseIf(rule)
		if err != nil || !ok {
			return nil, ok, err
		}
		br.Else = []ir.Action{inner}
	case p.peek().Is("{"):
		if br.Else, err = p.parseBlock(rule); err != nil {
			return nil, false, err
		}
	default:
		return nil, false, nil
	}
	return br, true, nil
}

// parseHost captures one opaque host statement. A simple statement ends at
// a ';' at depth zero or before the '}' closing the enclosing block. A
// compound statement also ends after its closing brace unless an else,
// catch or finally continues it.
func (p *parser) parseHost(rule string) (ir.Action, error) {
	first := p.peek()
	compound := first.Is("{") || (first.Kind == lexer.Ident && compoundKeywords[first.Text])
	doLoop := first.IsIdent("do")
	// Class methods have no function keyword to mark their bodies.
	checkReturn := compound && !first.IsIdent("class")

	var last lexer.Token
	depth := 0
	// fnBodies holds the depth of each enclosing nested function body.
	var fnBodies []int
	pendingFn := false
	for {
		tok := p.peek()
		if tok.Kind == lexer.EOF {
			return nil, p.errorf(tok, "unexpected end of input in body of rule %q", rule)
		}
		if tok.Is("=>") && p.peekAt(1).Is("@") {
			if depth == 0 {
				return nil, p.errorf(tok, "expected ';' before transition in rule %q", rule)
			}
			return nil, p.errorf(tok, "transition inside '%s' statement in rule %q; only if/else blocks may contain transitions", first.Text, rule)
		}
		if checkReturn && len(fnBodies) == 0 && tok.IsIdent("return") && !last.Is(".") && !p.peekAt(1).Is(":") {
			return nil, p.errorf(tok, "return inside '%s' statement in rule %q; only if/else blocks may contain returns", first.Text, rule)
		}
		switch {
		case tok.IsIdent("function"):
			pendingFn = true
		case tok.Is("=>") && p.peekAt(1).Is("{"):
			pendingFn = true
		}

		if depth == 0 {
			if tok.Is("}") {
				break
			}
			if tok.Is(";") {
				last = p.next()
				next := p.peek()
				if compound && next.IsIdent("else") {
					continue
				}
				if doLoop && next.IsIdent("while") {
					doLoop, compound = false, false
					continue
				}
				break
			}
		}

		switch {
		case opens(tok):
			depth++
			if pendingFn && tok.Is("{") {
				fnBodies = append(fnBodies, depth)
				pendingFn = false
			}
		case closes(tok):
			if depth == 0 {
				return nil, p.errorf(tok, "unbalanced %s in body of rule %q", tok, rule)
			}
			if n := len(fnBodies); n > 0 && fnBodies[n-1] == depth {
				fnBodies = fnBodies[:n-1]
			}
			depth--
		}
		last = p.next()

		if compound && depth == 0 && last.Is("}") {
			next := p.peek()
			if next.IsIdent("else") || next.IsIdent("catch") || next.IsIdent("finally") {
				continue
			}
			if doLoop && next.IsIdent("while") {
				doLoop, compound = false, false
				continue
			}
			break
		}
	}
	return &ir.HostStatement{Source: p.span(first, last)}, nil
}

func opens(t lexer.Token) bool {
	return t.Is("(") || t.Is("[") || t.Is("{")
}

func closes(t lexer.Token) bool {
	return t.Is(")") || t.Is("]") || t.Is("}")
}

// carriesControl reports whether a transition or return appears anywhere
// inside the branch.
func carriesControl(br *ir.Branch) bool {
	return !ir.Walk([]ir.Action{br}, func(a ir.Action) bool {
		return !ir.Terminal(a)
	})
}
