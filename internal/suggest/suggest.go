// Package suggest implements context-aware TQL autocomplete.
//
// Suggest lexes only the text before the cursor, so it works on input
// that does not parse. The last complete token of the current statement
// picks the context; the word under the cursor, if any, filters the
// candidates by prefix.
package suggest

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/parser"
	"github.com/roach88/tql/internal/schema"
)

// Kind is the variant of a suggestion.
type Kind string

const (
	KindFunction Kind = "function"
	KindEntity   Kind = "entity"
	KindField    Kind = "field"
	KindTemporal Kind = "temporal"
	KindKeyword  Kind = "keyword"
	KindNumber   Kind = "number"
	KindList     Kind = "list"
)

// PrefixBoost is added to a function suggestion when the word under the
// cursor is a non-empty prefix of its name.
const PrefixBoost = 2

type kindInfo struct {
	priority int
	icon     string
	category string
}

var kinds = map[Kind]kindInfo{
	KindFunction: {10, "ƒ", "Funções"},
	KindEntity:   {8, "▦", "Entidades"},
	KindTemporal: {7, "◷", "Períodos"},
	KindField:    {6, "◇", "Campos"},
	KindNumber:   {5, "#", "Números"},
	KindList:     {4, "≡", "Valores"},
	KindKeyword:  {3, "⌘", "Palavras-chave"},
}

// Priority returns the static weight of a kind.
func (k Kind) Priority() int { return kinds[k].priority }

// Suggestion is one completion candidate.
type Suggestion struct {
	Label    string `json:"label"`
	Kind     Kind   `json:"kind"`
	Detail   string `json:"detail,omitempty"`
	Icon     string `json:"icon"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

// starters are the keywords that may open an expression.
var starters = []grammar.Keyword{
	grammar.KwBuscar, grammar.KwTop, grammar.KwComparar, grammar.KwPrever,
}

var widgetKeywords = []grammar.Keyword{grammar.KwKPI, grammar.KwGrafico, grammar.KwTabela}

// numberHints are the example values offered where a number is expected.
var numberHints = map[grammar.Keyword][]string{
	grammar.KwTop:      {"5", "10"},
	grammar.KwLimite:   {"10", "100"},
	grammar.KwProximos: {"7", "30"},
}

// Suggest returns the completions for partial with the cursor at byte
// offset cursor, grouped by category and ranked within each group.
// snapshot may be nil, in which case no entities or fields are offered.
func Suggest(partial string, cursor int, snapshot *schema.Snapshot) []Suggestion {
	prefix := partial[:clampCursor(partial, cursor)]

	toks := parser.Tokenize(prefix)
	toks = toks[:len(toks)-1] // EOF
	if n := len(toks); n > 0 && toks[n-1].Type == parser.TokenIllegal {
		return []Suggestion{}
	}

	word := ""
	if n := len(toks); n > 0 && toks[n-1].End == len(prefix) && isWord(toks[n-1]) {
		word = toks[n-1].Text
		toks = toks[:n-1]
	}

	c := &collector{word: grammar.Canonical(word), boost: word != ""}
	complete(c, currentStatement(toks), snapshot)
	return c.ranked()
}

func clampCursor(s string, cursor int) int {
	if cursor < 0 {
		return 0
	}
	if cursor > len(s) {
		return len(s)
	}
	for cursor > 0 && cursor < len(s) && !utf8.RuneStart(s[cursor]) {
		cursor--
	}
	return cursor
}

func isWord(t parser.Token) bool {
	switch t.Type {
	case parser.TokenIdent, parser.TokenKeyword, parser.TokenNumber:
		return true
	default:
		return false
	}
}

// currentStatement returns the tokens after the last ";".
func currentStatement(toks []parser.Token) []parser.Token {
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].Type == parser.TokenSemicolon {
			return toks[i+1:]
		}
	}
	return toks
}

func complete(c *collector, stmt []parser.Token, snapshot *schema.Snapshot) {
	if len(stmt) == 0 {
		c.expressionStart(snapshot)
		c.keywords(grammar.KwDashboard)
		return
	}

	last := stmt[len(stmt)-1]
	switch last.Type {
	case parser.TokenEq:
		if len(stmt) == 2 && stmt[0].Type == parser.TokenIdent {
			c.expressionStart(snapshot)
		}
		return
	case parser.TokenPlus, parser.TokenMinus, parser.TokenStar, parser.TokenSlash:
		c.expressionStart(snapshot)
		return
	case parser.TokenLParen:
		if len(stmt) > 1 && isUnit(stmt[len(stmt)-2]) {
			c.numbers("0", "-1")
		} else {
			c.numbers("1")
		}
		return
	case parser.TokenColon:
		c.keywords(widgetKeywords...)
		return
	case parser.TokenNe, parser.TokenGt, parser.TokenLt, parser.TokenGe, parser.TokenLe, parser.TokenComma:
		return
	case parser.TokenKeyword:
	default:
		c.keywords(clauses...)
		return
	}

	switch kw := last.Keyword; kw {
	case grammar.KwDe:
		c.entities(snapshot)
	case grammar.KwPor, grammar.KwOnde, grammar.KwE, grammar.KwOu:
		c.fields(snapshot, entityOf(stmt), false)
	case grammar.KwEm, grammar.KwCom, grammar.KwUltimos:
		c.temporals()
	case grammar.KwCor:
		c.list(grammar.Colors...)
	case grammar.KwFormato:
		c.list(grammar.FormatNames...)
	case grammar.KwGrafico:
		c.list(grammar.ChartKinds...)
	case grammar.KwTop, grammar.KwLimite:
		c.numbers(numberHints[kw]...)
	case grammar.KwProximos:
		if inForecast(stmt) {
			c.numbers(numberHints[kw]...)
		} else {
			c.temporals()
		}
	case grammar.KwAgrupado, grammar.KwOrdenar:
		c.keywords(grammar.KwPor)
	case grammar.KwComparar, grammar.KwPrever:
		c.functions()
	case grammar.KwKPI, grammar.KwTabela:
		c.expressionStart(snapshot)
	default:
		if f, ok := grammar.LookupFunction(kw); ok {
			c.fields(snapshot, entityOf(stmt), f.Numeric)
			return
		}
		c.keywords(clauses...)
	}
}

// clauses are the keywords offered after a complete operand.
var clauses = []grammar.Keyword{
	grammar.KwDe, grammar.KwOnde, grammar.KwEm, grammar.KwE, grammar.KwOu,
	grammar.KwAgrupado, grammar.KwOrdenar, grammar.KwLimite, grammar.KwCom,
	grammar.KwPor, grammar.KwProximos, grammar.KwTitulo, grammar.KwMoeda,
	grammar.KwFormato, grammar.KwCor, grammar.KwSe,
}

func isUnit(t parser.Token) bool {
	if t.Type != parser.TokenIdent {
		return false
	}
	_, ok := grammar.LookupUnit(t.Text)
	return ok
}

// entityOf returns the entity named after the last DE of stmt, or "".
func entityOf(stmt []parser.Token) string {
	for i := len(stmt) - 2; i >= 0; i-- {
		if stmt[i].Is(grammar.KwDe) && stmt[i+1].Type == parser.TokenIdent {
			return stmt[i+1].Text
		}
	}
	return ""
}

func inForecast(stmt []parser.Token) bool {
	for _, t := range stmt {
		if t.Is(grammar.KwPrever) {
			return true
		}
	}
	return false
}

type collector struct {
	word  string
	boost bool
	out   []Suggestion
	seen  map[string]bool
}

func (c *collector) add(kind Kind, label, detail string) {
	if !strings.HasPrefix(grammar.Canonical(label), c.word) {
		return
	}
	key := string(kind) + "\x00" + label
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[key] {
		return
	}
	c.seen[key] = true

	info := kinds[kind]
	p := info.priority
	if kind == KindFunction && c.boost {
		p += PrefixBoost
	}
	c.out = append(c.out, Suggestion{
		Label:    label,
		Kind:     kind,
		Detail:   detail,
		Icon:     info.icon,
		Category: info.category,
		Priority: p,
	})
}

func (c *collector) functions() {
	for _, f := range grammar.Functions {
		c.add(KindFunction, string(f.Keyword), f.Doc)
	}
}

func (c *collector) keywords(kws ...grammar.Keyword) {
	for _, k := range kws {
		c.add(KindKeyword, string(k), keywordDoc(k))
	}
}

func keywordDoc(k grammar.Keyword) string {
	for _, info := range grammar.Keywords {
		if info.Keyword == k {
			return info.Doc
		}
	}
	return ""
}

func (c *collector) expressionStart(snapshot *schema.Snapshot) {
	c.functions()
	c.keywords(starters...)
	c.entities(snapshot)
}

func (c *collector) entities(snapshot *schema.Snapshot) {
	for _, e := range snapshot.Entities() {
		c.add(KindEntity, e.Name, fmt.Sprintf("%d campos", len(e.Fields)))
	}
}

// fields offers the fields of entity, or of every entity when entity is
// empty. An unknown entity yields nothing.
func (c *collector) fields(snapshot *schema.Snapshot, entity string, numericOnly bool) {
	var scope []*schema.Entity
	if entity != "" {
		e, ok := snapshot.Entity(entity)
		if !ok {
			return
		}
		scope = []*schema.Entity{e}
	} else {
		scope = snapshot.Entities()
	}
	for _, e := range scope {
		for _, f := range e.Fields {
			if numericOnly && f.Type.Known() && !f.Type.IsNumeric() {
				continue
			}
			c.add(KindField, f.Name, string(f.Type))
		}
	}
}

func (c *collector) temporals() {
	for _, t := range grammar.Temporals {
		c.add(KindTemporal, t.Example, t.Doc)
	}
}

func (c *collector) list(values ...string) {
	for _, v := range values {
		c.add(KindList, v, "")
	}
}

func (c *collector) numbers(values ...string) {
	for _, v := range values {
		c.add(KindNumber, v, "")
	}
}

// ranked orders suggestions by category, categories by their best
// priority, and entries by priority then label.
func (c *collector) ranked() []Suggestion {
	best := make(map[string]int)
	for _, s := range c.out {
		if s.Priority > best[s.Category] {
			best[s.Category] = s.Priority
		}
	}
	out := c.out
	if out == nil {
		out = []Suggestion{}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Category != b.Category {
			if best[a.Category] != best[b.Category] {
				return best[a.Category] > best[b.Category]
			}
			return a.Category < b.Category
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Label < b.Label
	})
	return out
}
