// Package format turns raw results into display values.
//
// Formatting never changes the raw value: Display strings are built from
// it, and conditional colors are evaluated against the unformatted
// number. Rules keep declaration order. Among number styles (MOEDA,
// PERCENTUAL, DECIMAL without places) the last one wins; DECIMAL(n) sets
// the fraction digits of whatever style is active; the first matching COR
// rule sets the color.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/queryir"
)

// Defaults used when a Formatter is built without options.
const (
	DefaultCurrency = "R$"
	DefaultLocale   = "pt-BR"
)

// Cell is one formatted value.
type Cell struct {
	Raw     any    `json:"raw"`
	Display string `json:"display"`
	Color   string `json:"color,omitempty"`
}

// FormattedValue is a formatted Scalar or RowSet.
//
// For a scalar, Scalar is set and Color is the resolved widget color. For
// a row set, Columns and Rows are set; colors are resolved per cell in
// the formatted columns and Color is the neutral default.
type FormattedValue struct {
	Shape   ir.Shape `json:"shape"`
	Scalar  *Cell    `json:"scalar,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Rows    [][]Cell `json:"rows,omitempty"`
	Color   string   `json:"color"`
}

// Formatter renders numbers for one locale and default currency.
// Safe for concurrent use.
type Formatter struct {
	currency string
	tag      language.Tag
	printer  *message.Printer
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithCurrency sets the symbol used by MOEDA without an explicit symbol.
func WithCurrency(symbol string) Option {
	return func(f *Formatter) {
		if symbol != "" {
			f.currency = symbol
		}
	}
}

// WithLocale sets the BCP 47 locale. Unparseable tags keep the default.
func WithLocale(locale string) Option {
	return func(f *Formatter) {
		if tag, err := language.Parse(locale); err == nil {
			f.tag = tag
		}
	}
}

// New creates a Formatter. The default is pt-BR with "R$".
func New(opts ...Option) *Formatter {
	f := &Formatter{currency: DefaultCurrency, tag: language.BrazilianPortuguese}
	for _, opt := range opts {
		opt(f)
	}
	f.printer = message.NewPrinter(f.tag)
	return f
}

var defaultFormatter = New()

// Format applies rules with the default formatter.
func Format(v ir.Value, rules []queryir.FormatRule) FormattedValue {
	return defaultFormatter.Format(v, rules)
}

// Format applies rules to v. For a row set the rules apply to its value
// column (the last numeric column); other columns pass through.
func (f *Formatter) Format(v ir.Value, rules []queryir.FormatRule) FormattedValue {
	switch val := v.(type) {
	case ir.Scalar:
		cell := f.scalar(val, rules)
		return FormattedValue{Shape: ir.ShapeScalar, Scalar: &cell, Color: cell.Color}
	case ir.RowSet:
		cols := map[string][]queryir.FormatRule{}
		if c := ValueColumn(val); c != "" {
			cols[c] = rules
		}
		return f.FormatColumns(val, cols)
	default:
		return FormattedValue{Shape: ir.ShapeScalar, Scalar: &Cell{}, Color: grammar.DefaultColor}
	}
}

// FormatColumns formats a row set with rules keyed by column name.
// Columns without rules pass through unformatted.
func (f *Formatter) FormatColumns(rs ir.RowSet, rules map[string][]queryir.FormatRule) FormattedValue {
	out := FormattedValue{
		Shape:   ir.ShapeRowSet,
		Columns: append([]string{}, rs.Columns...),
		Rows:    make([][]Cell, 0, len(rs.Rows)),
		Color:   grammar.DefaultColor,
	}
	// A column with an entry is formatted even when its rule list is nil or
	// empty; only columns without an entry pass through.
	colRules := make([][]queryir.FormatRule, len(rs.Columns))
	formatted := make([]bool, len(rs.Columns))
	for i, c := range rs.Columns {
		colRules[i], formatted[i] = rules[c]
	}
	for _, row := range rs.Rows {
		cells := make([]Cell, len(rs.Columns))
		for i := range rs.Columns {
			var raw any
			if i < len(row) {
				raw = row[i]
			}
			if !formatted[i] {
				cells[i] = Cell{Raw: raw, Display: plain(raw)}
				continue
			}
			cells[i] = f.cell(raw, colRules[i])
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

// ValueColumn returns the last column whose non-null cells are all
// numeric, or "" when there is none.
func ValueColumn(rs ir.RowSet) string {
	for i := len(rs.Columns) - 1; i >= 0; i-- {
		numeric := false
		ok := true
		for _, row := range rs.Rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			if _, isNum := row[i].(float64); !isNum {
				ok = false
				break
			}
			numeric = true
		}
		if ok && numeric {
			return rs.Columns[i]
		}
	}
	return ""
}

func (f *Formatter) scalar(s ir.Scalar, rules []queryir.FormatRule) Cell {
	switch s.Kind {
	case ir.ScalarNumber:
		return f.cell(s.Number, rules)
	case ir.ScalarText:
		return Cell{Raw: s.Text, Display: s.Text, Color: grammar.DefaultColor}
	default:
		return Cell{Raw: nil, Display: "", Color: grammar.DefaultColor}
	}
}

func (f *Formatter) cell(raw any, rules []queryir.FormatRule) Cell {
	n, ok := raw.(float64)
	if !ok {
		return Cell{Raw: raw, Display: plain(raw), Color: grammar.DefaultColor}
	}
	return Cell{Raw: n, Display: f.Number(n, rules), Color: Color(n, rules)}
}

type style int

const (
	stylePlain style = iota
	styleCurrency
	stylePercent
)

// Number renders n according to the number rules in rules.
func (f *Formatter) Number(n float64, rules []queryir.FormatRule) string {
	st := stylePlain
	symbol := ""
	places := -1
	for _, r := range rules {
		switch rule := r.(type) {
		case *queryir.Currency:
			st = styleCurrency
			symbol = rule.Symbol
		case *queryir.Percentage:
			st = stylePercent
		case *queryir.Decimal:
			places = rule.Places
		}
	}
	if symbol == "" {
		symbol = f.currency
	}

	switch st {
	case styleCurrency:
		if places < 0 {
			places = 2
		}
		digits := f.fixed(abs(n), places)
		if n < 0 && digits != f.fixed(0, places) {
			return "-" + symbol + " " + digits
		}
		return symbol + " " + digits
	case stylePercent:
		if places < 0 {
			return f.upTo(n, 1) + "%"
		}
		return f.fixed(n, places) + "%"
	default:
		if places < 0 {
			return f.upTo(n, 2)
		}
		return f.fixed(n, places)
	}
}

// fixed renders exactly places fraction digits, rounding half away from
// zero.
func (f *Formatter) fixed(n float64, places int) string {
	r := decimal.NewFromFloat(n).Round(int32(places)).InexactFloat64()
	return f.printer.Sprint(number.Decimal(r, number.Scale(places)))
}

// upTo renders at most places fraction digits, dropping trailing zeros.
func (f *Formatter) upTo(n float64, places int) string {
	r := decimal.NewFromFloat(n).Round(int32(places)).InexactFloat64()
	return f.printer.Sprint(number.Decimal(r, number.MaxFractionDigits(places)))
}

// Color returns the color of the first ConditionalColor rule matching n,
// or the neutral default.
func Color(n float64, rules []queryir.FormatRule) string {
	for _, r := range rules {
		if c, ok := r.(*queryir.ConditionalColor); ok && c.Comparator.Apply(n, c.Threshold) {
			return c.Color
		}
	}
	return grammar.DefaultColor
}

func plain(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func abs(n float64) float64 {
	if n < 0 {
		return -n
	}
	return n
}
