package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/queryir"
)

// Lexer tokenizes TQL source.
//
// Positions are tracked as byte offset plus 1-based line and rune column.
// The lexer never fails: a lexical error becomes a TokenIllegal token
// after which only TokenEOF follows.
type Lexer struct {
	input string
	pos   int // byte offset of ch
	ch    rune
	width int
	line  int
	col   int

	lastLine int // line of the previously emitted token
	done     bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: 1}
	l.decode()
	return l
}

func (l *Lexer) decode() {
	if l.pos >= len(l.input) {
		l.ch, l.width = 0, 0
		return
	}
	l.ch, l.width = utf8.DecodeRuneInString(l.input[l.pos:])
}

func (l *Lexer) advance() {
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos += l.width
	l.decode()
}

func (l *Lexer) peek() rune {
	next := l.pos + l.width
	if next >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[next:])
	return r
}

func (l *Lexer) eof() bool { return l.pos >= len(l.input) }

func (l *Lexer) here() queryir.Pos {
	return queryir.Pos{Offset: l.pos, Line: l.line, Column: l.col}
}

// skipSpaceAndComments skips whitespace and "--" comments.
func (l *Lexer) skipSpaceAndComments() {
	for !l.eof() {
		switch {
		case unicode.IsSpace(l.ch):
			l.advance()
		case l.ch == '-' && l.peek() == '-':
			for !l.eof() && l.ch != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	if l.done {
		return Token{Type: TokenEOF, Pos: l.here(), End: l.pos}
	}
	l.skipSpaceAndComments()

	start := l.here()
	tok := l.scan(start)
	tok.Pos = start
	tok.End = l.pos
	if tok.Text == "" && tok.Type != TokenEOF {
		tok.Text = l.input[start.Offset:l.pos]
	}
	tok.LineStart = l.lastLine != start.Line
	l.lastLine = start.Line
	if tok.Type == TokenIllegal || tok.Type == TokenEOF {
		l.done = true
	}
	return tok
}

func (l *Lexer) scan(start queryir.Pos) Token {
	if l.eof() {
		return Token{Type: TokenEOF}
	}

	switch {
	case isDigit(l.ch):
		return l.readNumber()
	case l.ch == '"' || l.ch == '\'':
		return l.readString(start)
	case isLetter(l.ch) || l.ch == '_':
		return l.readIdent(start)
	}

	ch := l.ch
	l.advance()
	switch ch {
	case ';':
		return Token{Type: TokenSemicolon}
	case ':':
		return Token{Type: TokenColon}
	case ',':
		return Token{Type: TokenComma}
	case '(':
		return Token{Type: TokenLParen}
	case ')':
		return Token{Type: TokenRParen}
	case '*':
		return Token{Type: TokenStar}
	case '+':
		return Token{Type: TokenPlus}
	case '-':
		return Token{Type: TokenMinus}
	case '/':
		return Token{Type: TokenSlash}
	case '=':
		return Token{Type: TokenEq}
	case '!':
		if l.ch == '=' {
			l.advance()
			return Token{Type: TokenNe}
		}
		return Token{Type: TokenIllegal, Value: "unexpected '!', did you mean '!='?"}
	case '>':
		if l.ch == '=' {
			l.advance()
			return Token{Type: TokenGe}
		}
		return Token{Type: TokenGt}
	case '<':
		if l.ch == '=' {
			l.advance()
			return Token{Type: TokenLe}
		}
		if l.ch == '>' {
			l.advance()
			return Token{Type: TokenNe}
		}
		return Token{Type: TokenLt}
	}

	return Token{Type: TokenIllegal, Value: fmt.Sprintf("unexpected character %q", ch)}
}

func (l *Lexer) readNumber() Token {
	hasDecimal := false
	for isDigit(l.ch) || l.ch == '.' {
		if l.ch == '.' {
			if hasDecimal || !isDigit(l.peek()) {
				break
			}
			hasDecimal = true
		}
		l.advance()
	}
	return Token{Type: TokenNumber}
}

func (l *Lexer) readString(start queryir.Pos) Token {
	quote := l.ch
	l.advance()
	var sb strings.Builder

	for !l.eof() && l.ch != quote && l.ch != '\n' {
		if l.ch == '\\' {
			l.advance()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 0:
				// unterminated, handled below
			default:
				sb.WriteRune(l.ch)
			}
		} else {
			sb.WriteRune(l.ch)
		}
		l.advance()
	}

	if l.ch != quote {
		return Token{
			Type:  TokenIllegal,
			Value: fmt.Sprintf("unterminated string starting at %s", start),
		}
	}
	l.advance()
	return Token{Type: TokenString, Value: sb.String()}
}

func (l *Lexer) readIdent(start queryir.Pos) Token {
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.advance()
	}
	text := l.input[start.Offset:l.pos]
	if k, ok := grammar.LookupKeyword(text); ok {
		return Token{Type: TokenKeyword, Text: text, Value: string(k), Keyword: k}
	}
	return Token{Type: TokenIdent, Text: text, Value: text}
}

// Tokenize lexes the whole input. The result always ends with TokenEOF,
// preceded by a TokenIllegal when lexing stopped at an error.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	toks := []Token{}
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		switch tok.Type {
		case TokenEOF:
			return toks
		case TokenIllegal:
			toks = append(toks, Token{Type: TokenEOF, Pos: l.here(), End: len(input)})
			return toks
		}
	}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch)
}
