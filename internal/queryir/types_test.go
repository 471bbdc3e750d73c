package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tql/internal/ir"
)

func TestAggregation_ImplementsExpr(t *testing.T) {
	var e Expr = &Aggregation{Func: "SOMAR", Field: Ident{Name: "valor"}, Entity: Ident{Name: "vendas"}}

	// Sealed interface - can type switch exhaustively
	switch e.(type) {
	case *Aggregation:
		// Expected
	case *BinaryOp, *Literal, *VariableRef:
		t.Fatal("unexpected type")
	}
}

func TestKind_QueryType(t *testing.T) {
	assert.Equal(t, QueryTypeSimple, KindQuery.QueryType())
	assert.Equal(t, QueryTypeVariable, KindAssignment.QueryType())
	assert.Equal(t, QueryTypeDashboard, KindDashboard.QueryType())
	assert.Equal(t, "assignment", KindAssignment.String())
}

func TestScript_QueryType(t *testing.T) {
	tests := []struct {
		name  string
		kinds []Kind
		want  QueryType
	}{
		{"empty", nil, QueryTypeSimple},
		{"single query", []Kind{KindQuery}, QueryTypeSimple},
		{"assignment", []Kind{KindAssignment, KindQuery}, QueryTypeVariable},
		{"dashboard wins", []Kind{KindAssignment, KindDashboard}, QueryTypeDashboard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Script{}
			for i, k := range tt.kinds {
				s.Statements = append(s.Statements, &Statement{Index: i, Kind: k})
			}
			assert.Equal(t, tt.want, s.QueryType())
		})
	}
}

func TestComparator_Apply(t *testing.T) {
	tests := []struct {
		cmp  Comparator
		a, b float64
		want bool
	}{
		{CmpGt, 97, 95, true},
		{CmpGt, 95, 95, false},
		{CmpGe, 95, 95, true},
		{CmpLt, 1, 2, true},
		{CmpLe, 2, 2, true},
		{CmpEq, 3, 3, true},
		{CmpNe, 3, 3, false},
		{Comparator("~"), 1, 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cmp.Apply(tt.a, tt.b), "%v %s %v", tt.a, tt.cmp, tt.b)
	}
}

func TestParseComparator(t *testing.T) {
	c, ok := ParseComparator(">=")
	assert.True(t, ok)
	assert.Equal(t, CmpGe, c)

	_, ok = ParseComparator("=>")
	assert.False(t, ok)
}

func TestTemporalFunction_String(t *testing.T) {
	assert.Equal(t, "MES(0)", (&TemporalFunction{Unit: "MES"}).String())
	assert.Equal(t, "ULTIMOS DIA(30)", (&TemporalFunction{Unit: "DIA", Offset: 30, Window: WindowLast}).String())
}

func TestExprPos(t *testing.T) {
	p := Pos{Offset: 4, Line: 1, Column: 5}
	assert.Equal(t, p, ExprPos(&Literal{Value: ir.Number(1), Pos: p}))
	assert.Equal(t, p, ExprPos(&VariableRef{Name: "a", Pos: p}))
	assert.Equal(t, Pos{}, ExprPos(nil))
	assert.Equal(t, "1:5", p.String())
	assert.True(t, p.IsValid())
	assert.False(t, Pos{}.IsValid())
}
