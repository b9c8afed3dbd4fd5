package lexer

import (
	"fmt"

	"github.com/roach88/banish/internal/ir"
)

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	Ident
	Number
	String
	Template
	Regex
	Punct
)

var kindNames = [...]string{
	EOF:      "EOF",
	Ident:    "identifier",
	Number:   "number",
	String:   "string",
	Template: "template",
	Regex:    "regexp",
	Punct:    "punctuation",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is one lexical unit.
//
// Start and End are byte offsets into the source so that a run of tokens
// can be reproduced verbatim as src[first.Start:last.End]. Text is the
// token as written, except identifiers, which are NFC normalized.
type Token struct {
	Kind   Kind
	Text   string
	Line   int
	Column int
	Start  int
	End    int
}

// Is reports whether the token is the given punctuator.
func (t Token) Is(punct string) bool {
	return t.Kind == Punct && t.Text == punct
}

// IsIdent reports whether the token is the given identifier or keyword.
func (t Token) IsIdent(name string) bool {
	return t.Kind == Ident && t.Text == name
}

// Pos returns the token's source position.
func (t Token) Pos() ir.Pos {
	return ir.Pos{Line: t.Line, Column: t.Column}
}

func (t Token) String() string {
	if t.Kind == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.Text)
}

// Error is a lexical error with its position.
type Error struct {
	Line   int
	Column int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}
