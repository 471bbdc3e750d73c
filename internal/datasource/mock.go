package datasource

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/tql/internal/ir"
)

// Call is one query received by a Mock.
type Call struct {
	SQL    string
	Params []ir.Param
}

type mockRule struct {
	match string
	value ir.Value
	err   error
	block bool
	panic bool
}

// Mock is a deterministic data source for test mode and tests.
//
// Queries whose SQL contains a registered substring get the registered
// response (the most recent registration wins). Everything else gets
// synthetic data seeded by the SQL and parameter values, so the same query
// always returns the same result.
type Mock struct {
	// Rows is the number of synthetic rows per row set (default 5). A bound
	// :limit parameter caps it.
	Rows int

	mu      sync.Mutex
	rules   []mockRule
	calls   []Call
	release chan struct{}
	once    sync.Once
}

// NewMock creates a mock with synthetic responses only.
func NewMock() *Mock {
	return &Mock{Rows: 5, release: make(chan struct{})}
}

// On returns v for queries containing match.
func (m *Mock) On(match string, v ir.Value) *Mock {
	return m.add(mockRule{match: match, value: v})
}

// FailOn fails queries containing match with a *DataSourceError.
func (m *Mock) FailOn(match string, err error) *Mock {
	return m.add(mockRule{match: match, err: err})
}

// BlockOn makes queries containing match hang until Release, ignoring
// their context, like an adapter that never honors cancellation.
func (m *Mock) BlockOn(match string) *Mock {
	return m.add(mockRule{match: match, block: true})
}

// PanicOn makes queries containing match panic.
func (m *Mock) PanicOn(match string) *Mock {
	return m.add(mockRule{match: match, panic: true})
}

// Release unblocks every query held by BlockOn.
func (m *Mock) Release() {
	m.once.Do(func() { close(m.release) })
}

func (m *Mock) add(r mockRule) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
	return m
}

// Calls returns the queries received so far, in arrival order.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of queries received.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Query implements DataSource.
func (m *Mock) Query(ctx context.Context, sql string, params []ir.Param, shape ir.Shape) (ir.Value, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{SQL: sql, Params: params})
	var rule *mockRule
	for i := len(m.rules) - 1; i >= 0; i-- {
		if strings.Contains(sql, m.rules[i].match) {
			rule = &m.rules[i]
			break
		}
	}
	m.mu.Unlock()

	if rule == nil {
		return m.synthetic(sql, params, shape), nil
	}
	switch {
	case rule.block:
		<-m.release
		return m.synthetic(sql, params, shape), nil
	case rule.panic:
		panic(fmt.Sprintf("mock: panic on %q", rule.match))
	case rule.err != nil:
		return nil, Wrap("mock", rule.err)
	default:
		return rule.value, nil
	}
}

func (m *Mock) synthetic(sql string, params []ir.Param, shape ir.Shape) ir.Value {
	seed := xxhash.New()
	seed.WriteString(sql)
	for _, p := range params {
		fmt.Fprintf(seed, "|%s=%v", p.Name, p.Value)
	}
	sum := seed.Sum64()
	r := rand.New(rand.NewPCG(sum, sum>>7))

	if shape == ir.ShapeScalar {
		return ir.Number(amount(r))
	}

	cols, numeric := selectColumns(sql)
	n := m.Rows
	if n <= 0 {
		n = 5
	}
	for _, p := range params {
		if p.Name == "limit" {
			if l, ok := p.Value.(int64); ok && int(l) < n {
				n = int(l)
			}
		}
	}
	if len(cols) > 0 && cols[0] == "atual" {
		n = 1
	}

	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	rs := ir.RowSet{Columns: cols, Rows: make([]ir.Row, 0, n)}
	for i := 0; i < n; i++ {
		row := make(ir.Row, len(cols))
		for j, c := range cols {
			switch {
			case c == "periodo":
				row[j] = base.AddDate(0, 0, i).Format("2006-01-02")
			case c == "id":
				row[j] = float64(i + 1)
			case numeric[j]:
				row[j] = amount(r)
			default:
				row[j] = fmt.Sprintf("%s %d", c, i+1)
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs
}

func amount(r *rand.Rand) float64 {
	return math.Round((100+r.Float64()*9900)*100) / 100
}

var numericColumns = map[string]bool{"valor": true, "atual": true, "anterior": true}

// selectColumns extracts result column names from a compiled SELECT list.
func selectColumns(sql string) ([]string, []bool) {
	rest, ok := strings.CutPrefix(sql, "SELECT ")
	if !ok {
		return []string{"valor"}, []bool{true}
	}
	list, _, _ := strings.Cut(rest, " FROM ")
	if list == "*" {
		return []string{"id", "descricao", "valor"}, []bool{true, false, true}
	}

	exprs := strings.Split(list, ", ")
	cols := make([]string, len(exprs))
	numeric := make([]bool, len(exprs))
	for i, e := range exprs {
		name := e
		if _, alias, found := strings.Cut(e, " AS "); found {
			name = alias
		}
		cols[i] = name
		numeric[i] = strings.Contains(e, "(") || numericColumns[name]
	}
	return cols, numeric
}
