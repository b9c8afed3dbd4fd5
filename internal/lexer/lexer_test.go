package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(toks []Token) []string {
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.Kind == EOF {
			continue
		}
		out = append(out, t.Text)
	}
	return out
}

func TestTokenizeRuleHeader(t *testing.T) {
	toks, err := Tokenize("@red\n  timer ? ticks < 3 { ticks += 1; }")
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"@", "red", "timer", "?", "ticks", "<", "3", "{", "ticks", "+=", "1", ";", "}"},
		texts(toks))
	assert.Equal(t, EOF, toks[len(toks)-1].Kind)
}

func TestTokenizePositions(t *testing.T) {
	src := "@a\n  r ? {\n  }"
	toks, err := Tokenize(src)
	require.NoError(t, err)

	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 1, toks[0].Column)
	assert.Equal(t, 2, toks[2].Line, "rule name")
	assert.Equal(t, 3, toks[2].Column)
	assert.Equal(t, 3, toks[5].Line, "closing brace")

	for _, tok := range toks[:len(toks)-1] {
		assert.Equal(t, tok.Text, src[tok.Start:tok.End])
	}
}

func TestTokenizeBanishPunctuators(t *testing.T) {
	toks, err := Tokenize("=> @b; } !? { x !== y ?? z }")
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"=>", "@", "b", ";", "}", "!?", "{", "x", "!==", "y", "??", "z", "}"},
		texts(toks))
}

func TestTokenizeOptionalChainingVersusConditional(t *testing.T) {
	toks, err := Tokenize("a?.b ?.5 : c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "?.", "b", "?", ".5", ":", "c"}, texts(toks))
}

func TestTokenizeComments(t *testing.T) {
	toks, err := Tokenize("a // line\n/* block\n comment */ b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, texts(toks))
	assert.Equal(t, 3, toks[1].Line)
}

func TestTokenizeStringsKeepBraces(t *testing.T) {
	toks, err := Tokenize(`log("{ not a block }"); x = '}' + "\"";`)
	require.NoError(t, err)

	require.Equal(t, String, toks[2].Kind)
	assert.Equal(t, `"{ not a block }"`, toks[2].Text)
	assert.Equal(t, `'}'`, toks[7].Text)
	assert.Equal(t, `"\""`, toks[9].Text)
}

func TestTokenizeTemplateWithSubstitution(t *testing.T) {
	toks, err := Tokenize("print(`n=${ {a: 1}.a } ${`inner ${x}`}`);")
	require.NoError(t, err)

	assert.Equal(t, Template, toks[2].Kind)
	assert.Equal(t, "`n=${ {a: 1}.a } ${`inner ${x}`}`", toks[2].Text)
	assert.True(t, toks[3].Is(")"))
}

func TestTokenizeRegexVersusDivision(t *testing.T) {
	toks, err := Tokenize("ok = /a{2}\\/[/]/g.test(s); half = n / 2 / 1;")
	require.NoError(t, err)

	assert.Equal(t, Regex, toks[2].Kind)
	assert.Equal(t, "/a{2}\\/[/]/g", toks[2].Text)

	var divisions int
	for _, tok := range toks {
		if tok.Is("/") {
			divisions++
		}
	}
	assert.Equal(t, 2, divisions)
}

func TestTokenizeNumbers(t *testing.T) {
	toks, err := Tokenize("1 2.5 1e-3 0xFF 1_000n .5")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2.5", "1e-3", "0xFF", "1_000n", ".5"}, texts(toks))
	for _, tok := range toks[:len(toks)-1] {
		assert.Equal(t, Number, tok.Kind, tok.Text)
	}
}

func TestTokenizeIdentifiersNFC(t *testing.T) {
	src := "@cafe\u0301"
	toks, err := Tokenize(src)
	require.NoError(t, err)

	assert.Equal(t, "caf\u00e9", toks[1].Text)
	assert.Equal(t, len(src)-1, toks[1].End-toks[1].Start, "offsets cover the source bytes")
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
		line int
		col  int
	}{
		{"unterminated string", "x = \"abc\ny", "unterminated string literal", 1, 5},
		{"unterminated comment", "a /* never", "unterminated block comment", 1, 3},
		{"unterminated template", "`abc", "unterminated template literal", 1, 1},
		{"unterminated regex", "x = /ab\n", "unterminated regular expression", 1, 5},
		{"unexpected character", "a \\ b", "unexpected character '\\'", 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.src)
			require.Error(t, err)

			var lexErr *Error
			require.ErrorAs(t, err, &lexErr)
			assert.Equal(t, tt.msg, lexErr.Msg)
			assert.Equal(t, tt.line, lexErr.Line)
			assert.Equal(t, tt.col, lexErr.Column)
		})
	}
}

func TestTokenHelpers(t *testing.T) {
	tok := Token{Kind: Punct, Text: "@", Line: 2, Column: 4}
	assert.True(t, tok.Is("@"))
	assert.False(t, tok.IsIdent("@"))
	assert.Equal(t, 2, tok.Pos().Line)
	assert.Equal(t, `"@"`, tok.String())
	assert.Equal(t, "end of input", Token{Kind: EOF}.String())
	assert.Equal(t, "identifier", Ident.String())
}
