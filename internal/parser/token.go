package parser

import (
	"fmt"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/queryir"
)

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal
	TokenIdent
	TokenKeyword
	TokenNumber
	TokenString
	TokenSemicolon
	TokenColon
	TokenComma
	TokenLParen
	TokenRParen
	TokenStar
	TokenPlus
	TokenMinus
	TokenSlash
	TokenEq // = (assignment and equality)
	TokenNe // !=
	TokenGt // >
	TokenLt // <
	TokenGe // >=
	TokenLe // <=
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "end of input",
	TokenIllegal:   "illegal token",
	TokenIdent:     "identifier",
	TokenKeyword:   "keyword",
	TokenNumber:    "number",
	TokenString:    "string",
	TokenSemicolon: ";",
	TokenColon:     ":",
	TokenComma:     ",",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenStar:      "*",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenSlash:     "/",
	TokenEq:        "=",
	TokenNe:        "!=",
	TokenGt:        ">",
	TokenLt:        "<",
	TokenGe:        ">=",
	TokenLe:        "<=",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a lexical token.
//
// Text is the raw source slice. Value is the decoded payload: the string
// contents for TokenString, the canonical keyword for TokenKeyword and the
// lexical error message for TokenIllegal.
type Token struct {
	Type      TokenType
	Text      string
	Value     string
	Keyword   grammar.Keyword
	Pos       queryir.Pos
	End       int  // byte offset just past the token
	LineStart bool // first token on its source line
}

// Is reports whether the token is the given keyword.
func (t Token) Is(k grammar.Keyword) bool {
	return t.Type == TokenKeyword && t.Keyword == k
}

// isComparator reports whether the token is a comparison operator.
func (t Token) isComparator() bool {
	switch t.Type {
	case TokenEq, TokenNe, TokenGt, TokenLt, TokenGe, TokenLe:
		return true
	default:
		return false
	}
}

// describe renders the token for error messages.
func (t Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenString:
		return fmt.Sprintf("string %q", t.Value)
	default:
		return fmt.Sprintf("%q", t.Text)
	}
}
