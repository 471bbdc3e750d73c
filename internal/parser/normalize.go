package parser

import (
	"errors"
	"strconv"
	"strings"

	"github.com/roach88/tql/internal/queryir"
)

// normalize renders tokens as canonical statement text: keywords in their
// canonical spelling, numbers in shortest form, strings double-quoted and
// single spaces between tokens. Comments and layout never reach it, so two
// statements that differ only in formatting share a cache key.
func normalize(toks []Token) string {
	var sb strings.Builder
	var prev Token
	for i, tok := range toks {
		if i > 0 && needsSpace(prev, tok) {
			sb.WriteByte(' ')
		}
		switch tok.Type {
		case TokenKeyword:
			sb.WriteString(tok.Value)
		case TokenString:
			sb.WriteString(strconv.Quote(tok.Value))
		case TokenNumber:
			if f, err := strconv.ParseFloat(tok.Text, 64); err == nil {
				sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
			} else {
				sb.WriteString(tok.Text)
			}
		default:
			sb.WriteString(tok.Text)
		}
		prev = tok
	}
	return sb.String()
}

func needsSpace(prev, cur Token) bool {
	switch {
	case prev.Type == TokenLParen:
		return false
	case cur.Type == TokenRParen, cur.Type == TokenComma, cur.Type == TokenColon:
		return false
	case cur.Type == TokenLParen && (prev.Type == TokenIdent || prev.Type == TokenKeyword):
		return false
	case prev.Type == TokenMinus && cur.Type == TokenNumber && prev.End == cur.Pos.Offset:
		// keep "-1" glued when written that way
		return false
	default:
		return true
	}
}

// Normalize returns the canonical text of a TQL fragment.
func Normalize(source string) string {
	toks := Tokenize(source)
	end := len(toks)
	for end > 0 && (toks[end-1].Type == TokenEOF || toks[end-1].Type == TokenSemicolon) {
		end--
	}
	return normalize(toks[:end])
}

// Classify returns the query type of a script from statement-kind
// detection alone. It works on scripts that fail to parse: the statement
// that failed is classified by its leading tokens.
func Classify(source string) queryir.QueryType {
	script, err := Parse(source)
	qt := script.QueryType()
	if qt == queryir.QueryTypeDashboard {
		return qt
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		switch pe.Kind.QueryType() {
		case queryir.QueryTypeDashboard:
			return queryir.QueryTypeDashboard
		case queryir.QueryTypeVariable:
			qt = queryir.QueryTypeVariable
		}
	}
	return qt
}
