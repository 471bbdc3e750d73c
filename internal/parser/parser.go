package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/queryir"
)

// Parser is a recursive-descent parser over a pre-lexed token stream.
type Parser struct {
	src  string
	toks []Token
	pos  int
	cur  Token

	stmtStart int
	stmtIndex int
	stmtKind  queryir.Kind
}

// Parse parses TQL source into a script.
//
// On error the returned script still holds every statement parsed before
// the failing one, and the error is a *ParseError. Whether that prefix may
// run is the caller's decision.
func Parse(source string) (*queryir.Script, error) {
	p := NewParser(source)
	return p.Parse()
}

// NewParser creates a parser for source.
func NewParser(source string) *Parser {
	p := &Parser{src: source, toks: Tokenize(source)}
	p.cur = p.toks[0]
	return p
}

// Parse parses the whole input.
func (p *Parser) Parse() (*queryir.Script, error) {
	script := &queryir.Script{Source: p.src, Statements: []*queryir.Statement{}}
	for {
		for p.cur.Type == TokenSemicolon {
			p.next()
		}
		if p.cur.Type == TokenEOF {
			return script, nil
		}
		st, err := p.parseStatement(len(script.Statements))
		if err != nil {
			return script, err
		}
		script.Statements = append(script.Statements, st)
	}
}

func (p *Parser) next() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	p.cur = p.toks[p.pos]
}

func (p *Parser) peek() Token {
	return p.at(p.pos + 1)
}

// at returns toks[i], or the final EOF past the end.
func (p *Parser) at(i int) Token {
	if i < len(p.toks) {
		return p.toks[i]
	}
	return p.toks[len(p.toks)-1]
}

// asIdent retypes the current keyword token as an identifier, so the
// normalized text keeps the name as written.
func (p *Parser) asIdent() {
	t := &p.toks[p.pos]
	t.Type, t.Value, t.Keyword = TokenIdent, t.Text, ""
	p.cur = *t
}

// atColumnOne reports whether the current token opens a new top-level line.
func (p *Parser) atColumnOne() bool {
	return p.cur.LineStart && p.cur.Pos.Column == 1 && p.pos > p.stmtStart
}

func (p *Parser) parseStatement(index int) (*queryir.Statement, error) {
	p.stmtStart = p.pos
	p.stmtIndex = index
	first := p.cur

	st := &queryir.Statement{Index: index, Pos: first.Pos}
	var err error
	switch {
	case (first.Type == TokenIdent || first.Type == TokenKeyword) && p.peek().Type == TokenEq:
		// "<name> =" is always an assignment, even when the name is a keyword.
		st.Kind = queryir.KindAssignment
		p.stmtKind = st.Kind
		st.Target = first.Text
		st.TargetPos = first.Pos
		p.asIdent()
		p.next()
		p.next()
		st.Expr, err = p.parseExpr()
	case first.Is(grammar.KwDashboard):
		st.Kind = queryir.KindDashboard
		p.stmtKind = st.Kind
		st.Dashboard, err = p.parseDashboard()
	default:
		st.Kind = queryir.KindQuery
		p.stmtKind = st.Kind
		st.Expr, err = p.parseExpr()
	}
	if err != nil {
		return nil, err
	}

	last := p.pos - 1
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	st.RawText = p.src[first.Pos.Offset:p.toks[last].End]
	st.Normalized = normalize(p.toks[p.stmtStart : last+1])
	return st, nil
}

// endStatement accepts ";", end of input, or a token at column 1 on a new
// line (the start of the next statement).
func (p *Parser) endStatement() error {
	switch {
	case p.cur.Type == TokenSemicolon:
		p.next()
		return nil
	case p.cur.Type == TokenEOF:
		return nil
	case p.atColumnOne():
		return nil
	default:
		return p.fail(p.cur, ";")
	}
}

// fail builds a ParseError at tok.
func (p *Parser) fail(tok Token, expected ...string) *ParseError {
	pe := &ParseError{
		Pos:            tok.Pos,
		Expected:       expected,
		Found:          tok.describe(),
		Statement:      p.statementText(),
		StatementIndex: p.stmtIndex,
		Kind:           p.stmtKind,
	}
	if tok.Type == TokenIllegal {
		pe.Expected = nil
		pe.Message = tok.Value
	}
	return pe
}

func (p *Parser) failf(tok Token, format string, args ...any) *ParseError {
	pe := p.fail(tok)
	if pe.Message == "" {
		pe.Message = fmt.Sprintf(format, args...)
	}
	return pe
}

// statementText returns the source of the statement being parsed, up to
// the next ";" or the next column-1 line.
func (p *Parser) statementText() string {
	start := p.toks[p.stmtStart].Pos.Offset
	end := len(p.src)
	for i := p.stmtStart; i < len(p.toks); i++ {
		tok := p.toks[i]
		if tok.Type == TokenSemicolon || tok.Type == TokenEOF ||
			(i > p.stmtStart && tok.LineStart && tok.Pos.Column == 1) {
			end = tok.Pos.Offset
			break
		}
		if tok.Type == TokenIllegal {
			if j := strings.IndexByte(p.src[tok.Pos.Offset:], ';'); j >= 0 {
				end = tok.Pos.Offset + j
			}
			break
		}
	}
	if end < start {
		end = start
	}
	return strings.TrimSpace(p.src[start:end])
}

func (p *Parser) expectType(tt TokenType) (Token, error) {
	tok := p.cur
	if tok.Type != tt {
		return tok, p.fail(tok, tt.String())
	}
	p.next()
	return tok, nil
}

func (p *Parser) expectKeyword(k grammar.Keyword) error {
	if !p.cur.Is(k) {
		return p.fail(p.cur, string(k))
	}
	p.next()
	return nil
}

// expectIdent consumes a name. A keyword where a name is expected is the
// name, except for a keyword in stop, which is taken only when the same
// keyword follows it: "SOMAR de DE vendas" sums field de, while
// "SOMAR DE vendas" is missing its field.
func (p *Parser) expectIdent(what string, stop ...grammar.Keyword) (queryir.Ident, error) {
	tok := p.cur
	switch tok.Type {
	case TokenIdent:
	case TokenKeyword:
		for _, k := range stop {
			if tok.Is(k) && !p.peek().Is(k) {
				return queryir.Ident{}, p.fail(tok, what)
			}
		}
		p.asIdent()
	default:
		return queryir.Ident{}, p.fail(tok, what)
	}
	p.next()
	return queryir.Ident{Name: tok.Text, Pos: tok.Pos}, nil
}

// entityStops are the clauses that may follow an entity name.
var entityStops = []grammar.Keyword{
	grammar.KwOnde, grammar.KwAgrupado, grammar.KwOrdenar, grammar.KwLimite, grammar.KwPor, grammar.KwCom,
}

// expectInt consumes an integer literal. Negative values are accepted only
// when allowNegative is set.
func (p *Parser) expectInt(allowNegative bool) (int, Token, error) {
	start := p.cur
	neg := false
	if allowNegative && p.cur.Type == TokenMinus {
		neg = true
		p.next()
	}
	tok := p.cur
	if tok.Type != TokenNumber || strings.Contains(tok.Text, ".") {
		return 0, tok, p.fail(tok, "integer")
	}
	n, err := strconv.Atoi(tok.Text)
	if err != nil {
		return 0, tok, p.failf(tok, "integer %s out of range", tok.Text)
	}
	p.next()
	if neg {
		n = -n
	}
	return n, start, nil
}

func (p *Parser) expectPositiveInt() (int, error) {
	n, tok, err := p.expectInt(false)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, p.fail(tok, "positive integer")
	}
	return n, nil
}

// Dashboards

func (p *Parser) parseDashboard() (*queryir.Dashboard, error) {
	p.next() // DASHBOARD

	name, err := p.expectType(TokenString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectType(TokenColon); err != nil {
		return nil, err
	}

	d := &queryir.Dashboard{Name: name.Value, NamePos: name.Pos, Widgets: []*queryir.Widget{}}
	for {
		if p.cur.Type == TokenSemicolon || p.cur.Type == TokenEOF || p.atColumnOne() {
			break
		}
		if !p.cur.LineStart {
			return nil, p.failf(p.cur, "widgets must start on a new indented line, found %s", p.cur.describe())
		}
		w, err := p.parseWidget(len(d.Widgets))
		if err != nil {
			return nil, err
		}
		d.Widgets = append(d.Widgets, w)
	}
	if len(d.Widgets) == 0 {
		return nil, p.fail(p.cur, widgetKinds...)
	}
	return d, nil
}

var widgetKinds = []string{string(grammar.KwKPI), string(grammar.KwGrafico), string(grammar.KwTabela)}

func (p *Parser) parseWidget(index int) (*queryir.Widget, error) {
	start := p.cur
	w := &queryir.Widget{Index: index, Pos: start.Pos, Rules: []queryir.FormatRule{}}

	switch {
	case start.Is(grammar.KwKPI):
		w.Kind = queryir.WidgetKPI
	case start.Is(grammar.KwGrafico):
		w.Kind = queryir.WidgetChart
		w.ChartType = grammar.DefaultChartKind
	case start.Is(grammar.KwTabela):
		w.Kind = queryir.WidgetTable
	default:
		return nil, p.fail(start, widgetKinds...)
	}
	p.next()

	// GRAFICO <kind> <expr>: the kind is only taken when an expression
	// follows on the same line, so a variable named like a kind still works.
	if w.Kind == queryir.WidgetChart && p.cur.Type == TokenIdent && grammar.IsChartKind(p.cur.Text) {
		if nxt := p.peek(); !nxt.LineStart && startsExpr(nxt) {
			w.ChartType = strings.ToLower(p.cur.Text)
			p.next()
		}
	}

	src, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	w.Source = src

	titled := false
	for {
		tok := p.cur
		switch {
		case tok.Is(grammar.KwTitulo):
			if titled {
				return nil, p.failf(tok, "duplicate TITULO")
			}
			p.next()
			title, err := p.expectType(TokenString)
			if err != nil {
				return nil, err
			}
			w.Title = title.Value
			titled = true
		case tok.Is(grammar.KwMoeda):
			p.next()
			w.Rules = append(w.Rules, p.parseCurrency())
		case tok.Is(grammar.KwFormato):
			p.next()
			rule, err := p.parseFormatName()
			if err != nil {
				return nil, err
			}
			w.Rules = append(w.Rules, rule)
		case tok.Is(grammar.KwCor):
			p.next()
			rule, err := p.parseColorRule()
			if err != nil {
				return nil, err
			}
			w.Rules = append(w.Rules, rule)
		default:
			w.RawText = p.src[start.Pos.Offset:p.toks[p.pos-1].End]
			return w, nil
		}
	}
}

func (p *Parser) parseCurrency() *queryir.Currency {
	c := &queryir.Currency{}
	if p.cur.Type == TokenString {
		c.Symbol = p.cur.Value
		p.next()
	}
	return c
}

func (p *Parser) parseFormatName() (queryir.FormatRule, error) {
	tok := p.cur
	if tok.Is(grammar.KwMoeda) {
		p.next()
		return p.parseCurrency(), nil
	}
	if tok.Type != TokenIdent {
		return nil, p.fail(tok, grammar.FormatNames...)
	}
	switch grammar.Canonical(tok.Text) {
	case "PERCENTUAL":
		p.next()
		return &queryir.Percentage{}, nil
	case "DECIMAL":
		p.next()
		d := &queryir.Decimal{Places: 2}
		if p.cur.Type == TokenLParen {
			p.next()
			n, _, err := p.expectInt(false)
			if err != nil {
				return nil, err
			}
			if _, err := p.expectType(TokenRParen); err != nil {
				return nil, err
			}
			d.Places = n
		}
		return d, nil
	default:
		return nil, p.fail(tok, grammar.FormatNames...)
	}
}

func (p *Parser) parseColorRule() (queryir.FormatRule, error) {
	tok := p.cur
	if tok.Type != TokenIdent || !grammar.IsColor(tok.Text) {
		return nil, p.fail(tok, grammar.Colors...)
	}
	p.next()
	if err := p.expectKeyword(grammar.KwSe); err != nil {
		return nil, err
	}
	opTok := p.cur
	if !opTok.isComparator() {
		return nil, p.fail(opTok, grammar.Comparators...)
	}
	cmp, _ := queryir.ParseComparator(opTok.Text)
	p.next()

	neg := false
	if p.cur.Type == TokenMinus {
		neg = true
		p.next()
	}
	numTok, err := p.expectType(TokenNumber)
	if err != nil {
		return nil, err
	}
	threshold, _ := strconv.ParseFloat(numTok.Text, 64)
	if neg {
		threshold = -threshold
	}
	return &queryir.ConditionalColor{
		Comparator: cmp,
		Threshold:  threshold,
		Color:      strings.ToLower(tok.Text),
	}, nil
}

// Expressions
//
// Precedence (low to high):
//  1. +, -
//  2. *, /
//  3. unary -
//  4. literals, variables, parenthesized and keyword forms

func (p *Parser) parseExpr() (queryir.Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenPlus || p.cur.Type == TokenMinus {
		opTok := p.cur
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &queryir.BinaryOp{Op: queryir.ArithOp(opTok.Text), Left: left, Right: right, Pos: opTok.Pos}
	}
	return left, nil
}

func (p *Parser) parseTerm() (queryir.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenStar || p.cur.Type == TokenSlash {
		opTok := p.cur
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &queryir.BinaryOp{Op: queryir.ArithOp(opTok.Text), Left: left, Right: right, Pos: opTok.Pos}
	}
	return left, nil
}

func (p *Parser) parseUnary() (queryir.Expr, error) {
	if p.cur.Type != TokenMinus {
		return p.parsePrimary()
	}
	opTok := p.cur
	p.next()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if lit, ok := operand.(*queryir.Literal); ok {
		if f, isNum := lit.Value.Float(); isNum {
			return &queryir.Literal{Value: ir.Number(-f), Pos: opTok.Pos}, nil
		}
	}
	return &queryir.BinaryOp{
		Op:    queryir.OpSub,
		Left:  &queryir.Literal{Value: ir.Number(0), Pos: opTok.Pos},
		Right: operand,
		Pos:   opTok.Pos,
	}, nil
}

func (p *Parser) parsePrimary() (queryir.Expr, error) {
	tok := p.cur
	switch tok.Type {
	case TokenNumber:
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, p.failf(tok, "invalid number %s", tok.Text)
		}
		p.next()
		return &queryir.Literal{Value: ir.Number(f), Pos: tok.Pos}, nil

	case TokenString:
		p.next()
		return &queryir.Literal{Value: ir.Text(tok.Value), Pos: tok.Pos}, nil

	case TokenIdent:
		p.next()
		return &queryir.VariableRef{Name: tok.Text, Pos: tok.Pos}, nil

	case TokenLParen:
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectType(TokenRParen); err != nil {
			return nil, err
		}
		return e, nil

	case TokenKeyword:
		if p.opensForm(p.pos) {
			if _, ok := grammar.LookupFunction(tok.Keyword); ok {
				return p.parseAggregation()
			}
			switch tok.Keyword {
			case grammar.KwBuscar:
				return p.parseSearch()
			case grammar.KwTop:
				return p.parseTop()
			case grammar.KwComparar:
				return p.parseCompare()
			case grammar.KwPrever:
				return p.parseForecast()
			}
		}
		// Any other keyword here names a variable.
		p.asIdent()
		p.next()
		return &queryir.VariableRef{Name: tok.Text, Pos: tok.Pos}, nil
	}
	return nil, p.fail(tok, exprStarters...)
}

// opensForm reports whether the keyword at toks[i] starts one of the
// keyword expressions, judged by the tokens after it. "media + 1" and
// "KPI media TITULO ..." refer to a variable named media; "MEDIA valor DE
// vendas" is an aggregation.
func (p *Parser) opensForm(i int) bool {
	tok, next, after := p.at(i), p.at(i+1), p.at(i+2)
	fieldList := func() bool {
		switch next.Type {
		case TokenIdent:
			return true
		case TokenStar:
			return after.Is(grammar.KwDe)
		case TokenKeyword:
			return next.Is(grammar.KwDe) || after.Is(grammar.KwDe) || after.Type == TokenComma
		}
		return false
	}
	if _, ok := grammar.LookupFunction(tok.Keyword); ok {
		return fieldList()
	}
	switch tok.Keyword {
	case grammar.KwBuscar:
		return fieldList()
	case grammar.KwTop:
		return next.Type == TokenNumber
	case grammar.KwComparar, grammar.KwPrever:
		_, ok := grammar.LookupFunction(next.Keyword)
		return next.Type == TokenKeyword && ok
	}
	return false
}

// exprStarters is the expected-token list for a missing expression.
var exprStarters = func() []string {
	out := []string{"number", "string", "identifier", "("}
	for _, f := range grammar.Functions {
		out = append(out, string(f.Keyword))
	}
	return append(out,
		string(grammar.KwBuscar), string(grammar.KwTop),
		string(grammar.KwComparar), string(grammar.KwPrever))
}()

func startsExpr(tok Token) bool {
	switch tok.Type {
	case TokenNumber, TokenString, TokenIdent, TokenLParen, TokenMinus:
		return true
	case TokenKeyword:
		// Widget options end the source; every other keyword can name a
		// variable.
		switch tok.Keyword {
		case grammar.KwTitulo, grammar.KwMoeda, grammar.KwFormato, grammar.KwCor:
			return false
		}
		return true
	}
	return false
}

var functionNames = func() []string {
	out := make([]string, 0, len(grammar.Functions))
	for _, f := range grammar.Functions {
		out = append(out, string(f.Keyword))
	}
	return out
}()

func (p *Parser) parseAggregation() (*queryir.Aggregation, error) {
	tok := p.cur
	fn, ok := grammar.LookupFunction(tok.Keyword)
	if !ok {
		return nil, p.fail(tok, functionNames...)
	}
	p.next()

	agg := &queryir.Aggregation{Func: fn.Keyword, Pos: tok.Pos}
	if p.cur.Type == TokenStar {
		if !fn.AllowStar {
			return nil, p.failf(p.cur, "%s does not accept *, expected a field", fn.Keyword)
		}
		agg.Star = true
		agg.Field = queryir.Ident{Name: "*", Pos: p.cur.Pos}
		p.next()
	} else {
		field, err := p.expectIdent("field", grammar.KwDe)
		if err != nil {
			return nil, err
		}
		agg.Field = field
	}

	if err := p.expectKeyword(grammar.KwDe); err != nil {
		return nil, err
	}
	entity, err := p.expectIdent("entity", entityStops...)
	if err != nil {
		return nil, err
	}
	agg.Entity = entity

	if p.cur.Is(grammar.KwOnde) {
		p.next()
		if agg.Filter, err = p.parseCondition(); err != nil {
			return nil, err
		}
	}
	if p.cur.Is(grammar.KwAgrupado) {
		p.next()
		if err := p.expectKeyword(grammar.KwPor); err != nil {
			return nil, err
		}
		group, err := p.expectIdent("field")
		if err != nil {
			return nil, err
		}
		agg.GroupBy = &group
	}
	return agg, nil
}

func (p *Parser) parseSearch() (*queryir.Search, error) {
	tok := p.cur
	p.next() // BUSCAR

	s := &queryir.Search{Fields: []queryir.Ident{}, Pos: tok.Pos}
	if p.cur.Type == TokenStar {
		p.next()
	} else {
		for {
			f, err := p.expectIdent("field", grammar.KwDe)
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, f)
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
	}

	if err := p.expectKeyword(grammar.KwDe); err != nil {
		return nil, err
	}
	entity, err := p.expectIdent("entity", entityStops...)
	if err != nil {
		return nil, err
	}
	s.Entity = entity

	if p.cur.Is(grammar.KwOnde) {
		p.next()
		if s.Filter, err = p.parseCondition(); err != nil {
			return nil, err
		}
	}
	if p.cur.Is(grammar.KwOrdenar) {
		p.next()
		if err := p.expectKeyword(grammar.KwPor); err != nil {
			return nil, err
		}
		f, err := p.expectIdent("field")
		if err != nil {
			return nil, err
		}
		s.OrderBy = &f
	}
	if p.cur.Is(grammar.KwLimite) {
		p.next()
		if s.Limit, err = p.expectPositiveInt(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *Parser) parseTop() (*queryir.Top, error) {
	tok := p.cur
	p.next() // TOP

	n, err := p.expectPositiveInt()
	if err != nil {
		return nil, err
	}
	group, err := p.expectIdent("field", grammar.KwPor)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword(grammar.KwPor); err != nil {
		return nil, err
	}
	agg, err := p.parseAggregation()
	if err != nil {
		return nil, err
	}
	return &queryir.Top{N: n, Group: group, Agg: agg, Pos: tok.Pos}, nil
}

func (p *Parser) parseCompare() (*queryir.PeriodCompare, error) {
	tok := p.cur
	p.next() // COMPARAR

	agg, err := p.parseAggregation()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword(grammar.KwCom); err != nil {
		return nil, err
	}
	with, err := p.parseTemporal()
	if err != nil {
		return nil, err
	}
	return &queryir.PeriodCompare{Agg: agg, With: with, Pos: tok.Pos}, nil
}

func (p *Parser) parseForecast() (*queryir.Forecast, error) {
	tok := p.cur
	p.next() // PREVER

	agg, err := p.parseAggregation()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword(grammar.KwPor); err != nil {
		return nil, err
	}
	by, err := p.expectIdent("field")
	if err != nil {
		return nil, err
	}
	f := &queryir.Forecast{Agg: agg, By: by, Pos: tok.Pos}
	if p.cur.Is(grammar.KwProximos) {
		p.next()
		if f.Periods, err = p.expectPositiveInt(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Conditions

func (p *Parser) parseCondition() (queryir.Condition, error) {
	first, err := p.parseAndCondition()
	if err != nil {
		return nil, err
	}
	conds := []queryir.Condition{first}
	for p.cur.Is(grammar.KwOu) {
		p.next()
		c, err := p.parseAndCondition()
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	if len(conds) == 1 {
		return first, nil
	}
	return &queryir.Or{Conditions: conds}, nil
}

func (p *Parser) parseAndCondition() (queryir.Condition, error) {
	first, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	conds := []queryir.Condition{first}
	for p.cur.Is(grammar.KwE) {
		p.next()
		c, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	if len(conds) == 1 {
		return first, nil
	}
	return &queryir.And{Conditions: conds}, nil
}

var conditionOps = append(append([]string{}, grammar.Comparators...), string(grammar.KwEm))

func (p *Parser) parseAtom() (queryir.Condition, error) {
	if p.cur.Type == TokenLParen {
		p.next()
		c, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectType(TokenRParen); err != nil {
			return nil, err
		}
		return c, nil
	}

	field, err := p.expectIdent("field", grammar.KwEm)
	if err != nil {
		return nil, err
	}

	if p.cur.Is(grammar.KwEm) {
		p.next()
		period, err := p.parseTemporal()
		if err != nil {
			return nil, err
		}
		return &queryir.InPeriod{Field: field, Period: period}, nil
	}

	opTok := p.cur
	if !opTok.isComparator() {
		return nil, p.fail(opTok, conditionOps...)
	}
	cmp, _ := queryir.ParseComparator(opTok.Text)
	p.next()

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &queryir.Compare{Field: field, Op: cmp, Value: lit}, nil
}

func (p *Parser) parseLiteral() (*queryir.Literal, error) {
	tok := p.cur
	switch tok.Type {
	case TokenString:
		p.next()
		return &queryir.Literal{Value: ir.Text(tok.Value), Pos: tok.Pos}, nil
	case TokenMinus, TokenNumber:
		neg := tok.Type == TokenMinus
		if neg {
			p.next()
		}
		numTok, err := p.expectType(TokenNumber)
		if err != nil {
			return nil, err
		}
		f, _ := strconv.ParseFloat(numTok.Text, 64)
		if neg {
			f = -f
		}
		return &queryir.Literal{Value: ir.Number(f), Pos: tok.Pos}, nil
	default:
		return nil, p.fail(tok, "number", "string")
	}
}

var unitNames = func() []string {
	out := make([]string, 0, len(grammar.Temporals))
	for _, t := range grammar.Temporals {
		out = append(out, string(t.Unit))
	}
	return out
}()

func (p *Parser) parseTemporal() (*queryir.TemporalFunction, error) {
	start := p.cur
	t := &queryir.TemporalFunction{Window: queryir.WindowCalendar, Pos: start.Pos}
	switch {
	case start.Is(grammar.KwUltimos):
		t.Window = queryir.WindowLast
		p.next()
	case start.Is(grammar.KwProximos):
		t.Window = queryir.WindowNext
		p.next()
	}

	unitTok := p.cur
	unit, ok := grammar.LookupUnit(unitTok.Text)
	if unitTok.Type != TokenIdent || !ok {
		return nil, p.fail(unitTok, unitNames...)
	}
	t.Unit = unit
	p.next()

	if _, err := p.expectType(TokenLParen); err != nil {
		return nil, err
	}
	n, numTok, err := p.expectInt(true)
	if err != nil {
		return nil, err
	}
	if t.Window != queryir.WindowCalendar && n <= 0 {
		return nil, p.failf(numTok, "%s %s needs a positive count", t.Window, unit)
	}
	if _, err := p.expectType(TokenRParen); err != nil {
		return nil, err
	}
	t.Offset = n
	return t, nil
}
