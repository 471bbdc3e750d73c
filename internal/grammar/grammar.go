// Package grammar holds the static TQL grammar tables.
//
// The lexer, the parser and the autocomplete engine all read from these
// tables, so adding a keyword or function here makes it parseable and
// suggestible at the same time. Nothing in this package has state.
package grammar

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Keyword is the canonical (upper-case, unaccented) spelling of a TQL keyword.
type Keyword string

const (
	KwBuscar    Keyword = "BUSCAR"
	KwSomar     Keyword = "SOMAR"
	KwContar    Keyword = "CONTAR"
	KwMedia     Keyword = "MEDIA"
	KwMinimo    Keyword = "MINIMO"
	KwMaximo    Keyword = "MAXIMO"
	KwOnde      Keyword = "ONDE"
	KwDe        Keyword = "DE"
	KwEm        Keyword = "EM"
	KwAgrupado  Keyword = "AGRUPADO"
	KwPor       Keyword = "POR"
	KwDashboard Keyword = "DASHBOARD"
	KwKPI       Keyword = "KPI"
	KwGrafico   Keyword = "GRAFICO"
	KwTabela    Keyword = "TABELA"
	KwTitulo    Keyword = "TITULO"
	KwMoeda     Keyword = "MOEDA"
	KwFormato   Keyword = "FORMATO"
	KwCor       Keyword = "COR"
	KwSe        Keyword = "SE"
	KwComparar  Keyword = "COMPARAR"
	KwPrever    Keyword = "PREVER"
	KwTop       Keyword = "TOP"
	KwE         Keyword = "E"
	KwOu        Keyword = "OU"
	KwCom       Keyword = "COM"
	KwUltimos   Keyword = "ULTIMOS"
	KwProximos  Keyword = "PROXIMOS"
	KwOrdenar   Keyword = "ORDENAR"
	KwLimite    Keyword = "LIMITE"
)

// KeywordInfo documents a keyword for autocomplete.
type KeywordInfo struct {
	Keyword Keyword
	Doc     string
}

// Keywords lists every reserved word in declaration order.
var Keywords = []KeywordInfo{
	{KwBuscar, "Lista linhas de uma entidade"},
	{KwSomar, "Soma um campo"},
	{KwContar, "Conta registros"},
	{KwMedia, "Média de um campo"},
	{KwMinimo, "Menor valor de um campo"},
	{KwMaximo, "Maior valor de um campo"},
	{KwOnde, "Filtra os registros"},
	{KwDe, "Entidade de origem"},
	{KwEm, "Pertence a um período"},
	{KwAgrupado, "Agrupa o resultado (AGRUPADO POR)"},
	{KwPor, "Campo de agrupamento"},
	{KwDashboard, "Declara um dashboard"},
	{KwKPI, "Widget de indicador"},
	{KwGrafico, "Widget de gráfico"},
	{KwTabela, "Widget de tabela"},
	{KwTitulo, "Título do widget"},
	{KwMoeda, "Formata como moeda"},
	{KwFormato, "Define o formato do valor"},
	{KwCor, "Cor condicional"},
	{KwSe, "Condição da cor"},
	{KwComparar, "Compara dois períodos"},
	{KwPrever, "Projeta uma tendência"},
	{KwTop, "Maiores valores de um grupo"},
	{KwE, "E lógico"},
	{KwOu, "OU lógico"},
	{KwCom, "Período de comparação"},
	{KwUltimos, "Janela móvel para trás"},
	{KwProximos, "Janela móvel para frente"},
	{KwOrdenar, "Ordena as linhas (ORDENAR POR)"},
	{KwLimite, "Limita o número de linhas"},
}

var keywordSet = func() map[Keyword]bool {
	m := make(map[Keyword]bool, len(Keywords))
	for _, k := range Keywords {
		m[k.Keyword] = true
	}
	return m
}()

// aliases maps accented spellings to their canonical keyword.
var aliases = map[string]Keyword{
	"MÉDIA":    KwMedia,
	"MÍNIMO":   KwMinimo,
	"MÁXIMO":   KwMaximo,
	"GRÁFICO":  KwGrafico,
	"TÍTULO":   KwTitulo,
	"ÚLTIMOS":  KwUltimos,
	"PRÓXIMOS": KwProximos,
}

// Canonical returns the NFC-normalized upper-case form of a word.
func Canonical(word string) string {
	return strings.ToUpper(norm.NFC.String(word))
}

// LookupKeyword reports whether word is a keyword (case-insensitive,
// accents accepted for aliased keywords).
func LookupKeyword(word string) (Keyword, bool) {
	upper := Canonical(word)
	if k, ok := aliases[upper]; ok {
		return k, true
	}
	k := Keyword(upper)
	if keywordSet[k] {
		return k, true
	}
	return "", false
}

// Function describes an aggregation function.
type Function struct {
	Keyword   Keyword
	SQL       string
	Doc       string
	Numeric   bool // requires a numeric field
	AllowStar bool // accepts "*" in place of a field
}

// Functions lists the aggregation functions in declaration order.
var Functions = []Function{
	{Keyword: KwSomar, SQL: "SUM", Doc: "SOMAR <campo> DE <entidade>", Numeric: true},
	{Keyword: KwContar, SQL: "COUNT", Doc: "CONTAR <campo|*> DE <entidade>", AllowStar: true},
	{Keyword: KwMedia, SQL: "AVG", Doc: "MEDIA <campo> DE <entidade>", Numeric: true},
	{Keyword: KwMinimo, SQL: "MIN", Doc: "MINIMO <campo> DE <entidade>"},
	{Keyword: KwMaximo, SQL: "MAX", Doc: "MAXIMO <campo> DE <entidade>"},
}

// LookupFunction returns the aggregation function for a keyword.
func LookupFunction(k Keyword) (Function, bool) {
	for _, f := range Functions {
		if f.Keyword == k {
			return f, true
		}
	}
	return Function{}, false
}

// Unit is a calendar unit used by temporal functions.
type Unit string

const (
	UnitDay     Unit = "DIA"
	UnitWeek    Unit = "SEMANA"
	UnitMonth   Unit = "MES"
	UnitQuarter Unit = "TRIMESTRE"
	UnitYear    Unit = "ANO"
)

// TemporalInfo documents a temporal function.
type TemporalInfo struct {
	Unit    Unit
	Example string
	Doc     string
}

// Temporals lists the temporal functions in declaration order.
var Temporals = []TemporalInfo{
	{UnitDay, "DIA(0)", "Dia relativo (0 = hoje, -1 = ontem)"},
	{UnitWeek, "SEMANA(0)", "Semana relativa, começando na segunda"},
	{UnitMonth, "MES(0)", "Mês relativo (0 = mês atual, -1 = anterior)"},
	{UnitQuarter, "TRIMESTRE(0)", "Trimestre relativo"},
	{UnitYear, "ANO(0)", "Ano relativo"},
}

var unitAliases = map[string]Unit{
	"DIA": UnitDay, "DIAS": UnitDay,
	"SEMANA": UnitWeek, "SEMANAS": UnitWeek,
	"MES": UnitMonth, "MÊS": UnitMonth, "MESES": UnitMonth,
	"TRIMESTRE": UnitQuarter, "TRIMESTRES": UnitQuarter,
	"ANO": UnitYear, "ANOS": UnitYear,
}

// LookupUnit resolves a temporal unit name, accepting plurals and accents.
func LookupUnit(word string) (Unit, bool) {
	u, ok := unitAliases[Canonical(word)]
	return u, ok
}

// Colors are the widget colors accepted by COR. The first entry is the
// neutral default used when no conditional rule matches.
var Colors = []string{"cinza", "verde", "amarelo", "vermelho", "azul", "laranja"}

// DefaultColor is the neutral widget color.
const DefaultColor = "cinza"

// IsColor reports whether name is a known widget color.
func IsColor(name string) bool {
	return contains(Colors, strings.ToLower(name))
}

// ChartKinds are the chart types accepted after GRAFICO.
var ChartKinds = []string{"barras", "linhas", "pizza", "area"}

// DefaultChartKind is used when GRAFICO has no explicit kind.
const DefaultChartKind = "barras"

// IsChartKind reports whether name is a known chart type.
func IsChartKind(name string) bool {
	return contains(ChartKinds, strings.ToLower(name))
}

// FormatNames are the formats accepted after FORMATO.
var FormatNames = []string{"PERCENTUAL", "DECIMAL", "MOEDA"}

// Comparators are the comparison operators, longest first so prefix
// matching in the lexer picks ">=" over ">".
var Comparators = []string{">=", "<=", "!=", "=", ">", "<"}

// SortedKeywords returns keyword spellings sorted alphabetically.
func SortedKeywords() []string {
	out := make([]string, 0, len(Keywords))
	for _, k := range Keywords {
		out = append(out, string(k.Keyword))
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
