// Package lexer turns banish source text into tokens.
//
// The token set is a superset of JavaScript's so that host conditions and
// statements survive tokenization intact. The only banish-specific
// punctuators are "@", "=>" and "!?".
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// punctuators ordered longest first for maximal munch.
var punctuators = []string{
	">>>=",
	"===", "!==", "**=", "<<=", ">>=", ">>>", "...", "&&=", "||=", "??=",
	"=>", "!?", "==", "!=", "<=", ">=", "&&", "||", "??", "?.", "++", "--",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "**", "<<", ">>",
	"{", "}", "(", ")", "[", "]", ";", ",", "<", ">", "+", "-", "*", "/",
	"%", "&", "|", "^", "!", "~", "?", ":", "=", ".", "@", "#",
}

// regexPrefixKeywords may be followed by a regular expression literal.
var regexPrefixKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

type lexer struct {
	src    string
	pos    int
	line   int
	column int
	tokens []Token
}

// Tokenize splits src into tokens, ending with a single EOF token.
// Whitespace and comments are dropped.
func Tokenize(src string) ([]Token, error) {
	l := &lexer{src: src, line: 1, column: 1}
	for {
		if err := l.skipSpaceAndComments(); err != nil {
			return nil, err
		}
		if l.pos >= len(l.src) {
			l.tokens = append(l.tokens, Token{
				Kind: EOF, Line: l.line, Column: l.column, Start: l.pos, End: l.pos,
			})
			return l.tokens, nil
		}
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
	}
}

func (l *lexer) peek(offset int) rune {
	i := l.pos
	for ; offset > 0 && i < len(l.src); offset-- {
		_, w := utf8.DecodeRuneInString(l.src[i:])
		i += w
	}
	if i >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[i:])
	return r
}

func (l *lexer) advance() rune {
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += w
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func (l *lexer) errorf(line, col int, msg string) *Error {
	return &Error{Line: line, Column: col, Msg: msg}
}

func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		r := l.peek(0)
		switch {
		case unicode.IsSpace(r) || r == '\uFEFF':
			l.advance()
		case r == '/' && l.peek(1) == '/':
			for l.pos < len(l.src) && l.peek(0) != '\n' {
				l.advance()
			}
		case r == '/' && l.peek(1) == '*':
			line, col := l.line, l.column
			l.advance()
			l.advance()
			closed := false
			for l.pos < len(l.src) {
				if l.peek(0) == '*' && l.peek(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				return l.errorf(line, col, "unterminated block comment")
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) next() (Token, error) {
	start, line, col := l.pos, l.line, l.column
	r := l.peek(0)

	switch {
	case isIdentStart(r):
		for l.pos < len(l.src) && isIdentPart(l.peek(0)) {
			l.advance()
		}
		return Token{
			Kind: Ident, Text: norm.NFC.String(l.src[start:l.pos]),
			Line: line, Column: col, Start: start, End: l.pos,
		}, nil

	case isDigit(r) || (r == '.' && isDigit(l.peek(1))):
		l.scanNumber()
		return l.token(Number, start, line, col), nil

	case r == '"' || r == '\'':
		if err := l.scanString(r); err != nil {
			return Token{}, err
		}
		return l.token(String, start, line, col), nil

	case r == '`':
		if err := l.scanTemplate(); err != nil {
			return Token{}, err
		}
		return l.token(Template, start, line, col), nil

	case r == '/' && l.regexAllowed():
		if err := l.scanRegex(); err != nil {
			return Token{}, err
		}
		return l.token(Regex, start, line, col), nil
	}

	rest := l.src[l.pos:]
	for _, p := range punctuators {
		if !strings.HasPrefix(rest, p) {
			continue
		}
		// "a ?.5 : b" is a conditional, not optional chaining.
		if p == "?." && len(rest) > 2 && isDigit(rune(rest[2])) {
			p = "?"
		}
		for range p {
			l.advance()
		}
		return l.token(Punct, start, line, col), nil
	}

	return Token{}, l.errorf(line, col, "unexpected character "+quoteRune(r))
}

func (l *lexer) token(kind Kind, start, line, col int) Token {
	return Token{
		Kind: kind, Text: l.src[start:l.pos],
		Line: line, Column: col, Start: start, End: l.pos,
	}
}

func (l *lexer) scanNumber() {
	for l.pos < len(l.src) {
		r := l.peek(0)
		switch {
		case isDigit(r) || isASCIILetter(r) || r == '_' || r == '.':
			exp := r == 'e' || r == 'E'
			l.advance()
			if exp && (l.peek(0) == '+' || l.peek(0) == '-') && !l.hexNumberSoFar() {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) hexNumberSoFar() bool {
	// Walk back to the start of the current number token.
	i := l.pos
	for i > 0 {
		c := l.src[i-1]
		if !(c == '.' || c == '_' || c < utf8.RuneSelf && (isDigit(rune(c)) || isASCIILetter(rune(c)))) {
			break
		}
		i--
	}
	lit := l.src[i:l.pos]
	return len(lit) > 1 && lit[0] == '0' && (lit[1] == 'x' || lit[1] == 'X')
}

func (l *lexer) scanString(quote rune) error {
	line, col := l.line, l.column
	l.advance()
	for l.pos < len(l.src) {
		r := l.advance()
		switch r {
		case '\\':
			if l.pos < len(l.src) {
				l.advance()
			}
		case quote:
			return nil
		case '\n':
			return l.errorf(line, col, "unterminated string literal")
		}
	}
	return l.errorf(line, col, "unterminated string literal")
}

// scanTemplate consumes a template literal, including nested templates
// inside ${...} substitutions.
func (l *lexer) scanTemplate() error {
	line, col := l.line, l.column
	l.advance()
	for l.pos < len(l.src) {
		r := l.advance()
		switch {
		case r == '\\':
			if l.pos < len(l.src) {
				l.advance()
			}
		case r == '`':
			return nil
		case r == '$' && l.peek(0) == '{':
			l.advance()
			if err := l.scanSubstitution(); err != nil {
				return err
			}
		}
	}
	return l.errorf(line, col, "unterminated template literal")
}

func (l *lexer) scanSubstitution() error {
	line, col := l.line, l.column
	depth := 1
	for l.pos < len(l.src) {
		r := l.peek(0)
		switch r {
		case '{':
			depth++
			l.advance()
		case '}':
			l.advance()
			depth--
			if depth == 0 {
				return nil
			}
		case '"', '\'':
			if err := l.scanString(r); err != nil {
				return err
			}
		case '`':
			if err := l.scanTemplate(); err != nil {
				return err
			}
		default:
			l.advance()
		}
	}
	return l.errorf(line, col, "unterminated template substitution")
}

// regexAllowed reports whether a '/' at the current position starts a
// regular expression rather than a division operator.
func (l *lexer) regexAllowed() bool {
	if len(l.tokens) == 0 {
		return true
	}
	return !isOperand(l.tokens[len(l.tokens)-1])
}

func isOperand(t Token) bool {
	switch t.Kind {
	case Number, String, Template, Regex:
		return true
	case Ident:
		return !regexPrefixKeywords[t.Text]
	case Punct:
		return t.Text == ")" || t.Text == "]" || t.Text == "}"
	}
	return false
}

func (l *lexer) scanRegex() error {
	line, col := l.line, l.column
	l.advance()
	inClass := false
	for l.pos < len(l.src) {
		r := l.advance()
		switch {
		case r == '\n':
			return l.errorf(line, col, "unterminated regular expression")
		case r == '\\':
			if l.pos < len(l.src) && l.peek(0) != '\n' {
				l.advance()
			}
		case r == '[':
			inClass = true
		case r == ']':
			inClass = false
		case r == '/' && !inClass:
			for l.pos < len(l.src) && isIdentPart(l.peek(0)) {
				l.advance()
			}
			return nil
		}
	}
	return l.errorf(line, col, "unterminated regular expression")
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func quoteRune(r rune) string {
	return "'" + string(r) + "'"
}
