package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/queryir"
)

func tokenTypes(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func TestTokenize_Aggregation(t *testing.T) {
	toks := Tokenize("vendas_mes = somar valor DE vendas;")

	assert.Equal(t, []TokenType{
		TokenIdent, TokenEq, TokenKeyword, TokenIdent, TokenKeyword, TokenIdent, TokenSemicolon, TokenEOF,
	}, tokenTypes(toks))
	assert.Equal(t, grammar.KwSomar, toks[2].Keyword)
	assert.Equal(t, "somar", toks[2].Text, "raw text is preserved")
}

func TestTokenize_Operators(t *testing.T) {
	toks := Tokenize(">= <= != <> > < = ( ) , : * + - /")

	assert.Equal(t, []TokenType{
		TokenGe, TokenLe, TokenNe, TokenNe, TokenGt, TokenLt, TokenEq,
		TokenLParen, TokenRParen, TokenComma, TokenColon,
		TokenStar, TokenPlus, TokenMinus, TokenSlash, TokenEOF,
	}, tokenTypes(toks))
}

func TestTokenize_Literals(t *testing.T) {
	toks := Tokenize(`12.5 42 "olá \"mundo\"" 'pago'`)
	require.Len(t, toks, 5)

	assert.Equal(t, TokenNumber, toks[0].Type)
	assert.Equal(t, "12.5", toks[0].Text)
	assert.Equal(t, "42", toks[1].Text)
	assert.Equal(t, TokenString, toks[2].Type)
	assert.Equal(t, `olá "mundo"`, toks[2].Value)
	assert.Equal(t, "pago", toks[3].Value)
}

func TestTokenize_AccentedKeywords(t *testing.T) {
	toks := Tokenize("MÉDIA máximo GRÁFICO título")
	require.Len(t, toks, 5)

	assert.Equal(t, grammar.KwMedia, toks[0].Keyword)
	assert.Equal(t, grammar.KwMaximo, toks[1].Keyword)
	assert.Equal(t, grammar.KwGrafico, toks[2].Keyword)
	assert.Equal(t, grammar.KwTitulo, toks[3].Keyword)
}

func TestTokenize_Positions(t *testing.T) {
	toks := Tokenize("a = 1;\n  -- comentário\n  ção = 2")

	assert.Equal(t, queryir.Pos{Offset: 0, Line: 1, Column: 1}, toks[0].Pos)
	assert.True(t, toks[0].LineStart)
	assert.False(t, toks[1].LineStart)

	// "ção" is on line 3, column 3 (runes, not bytes)
	ident := toks[4]
	assert.Equal(t, "ção", ident.Text)
	assert.Equal(t, 3, ident.Pos.Line)
	assert.Equal(t, 3, ident.Pos.Column)
	assert.True(t, ident.LineStart, "comment lines do not count as tokens")
	assert.Equal(t, ident.Pos.Offset+len("ção"), ident.End)
}

func TestTokenize_Comment(t *testing.T) {
	toks := Tokenize("-- só comentário\nCONTAR")
	require.Len(t, toks, 2)
	assert.Equal(t, grammar.KwContar, toks[0].Keyword)
}

func TestTokenize_Illegal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"unterminated string", `a = "abc`, "unterminated string"},
		{"bang", "a ! b", "did you mean '!='"},
		{"unknown char", "a # b", "unexpected character"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := Tokenize(tt.input)
			require.GreaterOrEqual(t, len(toks), 2)
			illegal := toks[len(toks)-2]
			assert.Equal(t, TokenIllegal, illegal.Type)
			assert.Contains(t, illegal.Value, tt.message)
			assert.Equal(t, TokenEOF, toks[len(toks)-1].Type)
		})
	}
}

func TestTokenize_Empty(t *testing.T) {
	toks := Tokenize("   \n\t")
	require.Len(t, toks, 1)
	assert.Equal(t, TokenEOF, toks[0].Type)
}
