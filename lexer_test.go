package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allTokens(src string) []Token {
	l := NewLexer("test.em", src)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks
		}
	}
}

func TestLexerOperators(t *testing.T) {
	toks := allTokens("+ - += -= *= /= %= &= |= ^= <<= >>= ++ -- == != <= >=")
	kinds := make([]Kind, 0, len(toks))
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []Kind{
		PLUS, MINUS, PLUS_ASSIGN, MINUS_ASSIGN, ASTERISK_ASSIGN, SLASH_ASSIGN,
		PERCENT_ASSIGN, BIT_AND_ASSIGN, BIT_OR_ASSIGN, BIT_XOR_ASSIGN,
		LSHIFT_ASSIGN, RSHIFT_ASSIGN, PLUS_PLUS, MINUS_MINUS, EQ, NOT_EQ, LT_EQ, GT_EQ, EOF,
	}, kinds)
}

func TestLexerKeywords(t *testing.T) {
	toks := allTokens("fn const var true false if else return while break for in continue null import recover")
	for i, k := range []Kind{
		FUNCTION, CONST, VAR, TRUE, FALSE, IF, ELSE, RETURN, WHILE, BREAK,
		FOR, IN, CONTINUE, NULL, IMPORT, RECOVER,
	} {
		assert.Equal(t, k, toks[i].Kind)
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"123", "123"},
		{"3.14", "3.14"},
		{"1e10", "1e10"},
		{"1.5e-3", "1.5e-3"},
		{"0xFF", "0xFF"},
		{"0x10", "0x10"},
	}
	for _, tt := range tests {
		toks := allTokens(tt.src)
		require.Equal(t, NUMBER, toks[0].Kind)
		assert.Equal(t, tt.want, toks[0].Literal)
	}
}

func TestLexerString(t *testing.T) {
	toks := allTokens(`"hello\nworld"`)
	require.Equal(t, STRING, toks[0].Kind)
	assert.Equal(t, "hello\nworld", toks[0].Literal)
}

func TestLexerComments(t *testing.T) {
	toks := allTokens("1 // a comment\n2 /* block /* nested */ still */ 3")
	var nums []string
	for _, tok := range toks {
		if tok.Kind == NUMBER {
			nums = append(nums, tok.Literal)
		}
	}
	assert.Equal(t, []string{"1", "2", "3"}, nums)
}

func TestLexerTemplateString(t *testing.T) {
	l := NewLexer("test.em", "`hello ${name}!`")
	first := l.NextToken()
	require.Equal(t, TEMPLATE_STRING, first.Kind)
	assert.Equal(t, "hello ", first.Literal)

	ident := l.NextToken()
	require.Equal(t, IDENT, ident.Kind)
	assert.Equal(t, "name", ident.Literal)

	closeBrace := l.NextToken()
	require.Equal(t, RBRACE, closeBrace.Kind)

	rest := l.ContinueTemplateString()
	require.Equal(t, STRING, rest.Kind)
	assert.Equal(t, "!", rest.Literal)
}

func TestLexerNamespacedIdentifier(t *testing.T) {
	toks := allTokens("math::pi + 1")
	require.Equal(t, IDENT, toks[0].Kind)
	assert.Equal(t, "math::pi", toks[0].Literal)
	assert.Equal(t, PLUS, toks[1].Kind)
}

func TestLexerSingleColonStaysAColon(t *testing.T) {
	toks := allTokens("a ? b : c")
	kinds := []Kind{toks[0].Kind, toks[1].Kind, toks[2].Kind, toks[3].Kind, toks[4].Kind}
	assert.Equal(t, []Kind{IDENT, QUESTION, IDENT, COLON, IDENT}, kinds)
}

func TestLexerIllegalCharacterRecordsErrorAndContinues(t *testing.T) {
	toks := allTokens("1 @ 2")
	require.True(t, len(toks) >= 3)
	assert.Equal(t, NUMBER, toks[0].Kind)
	assert.Equal(t, ILLEGAL, toks[1].Kind)
	assert.Equal(t, NUMBER, toks[2].Kind)
}

func TestLexerUnread(t *testing.T) {
	l := NewLexer("test.em", "a b")
	a := l.NextToken()
	require.Equal(t, "a", a.Literal)
	l.Unread()
	again := l.NextToken()
	assert.Equal(t, a, again)
}
