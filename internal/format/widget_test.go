package format

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/queryir"
)

func TestAssembleWidget_KPI(t *testing.T) {
	w := &queryir.Widget{
		Index: 0,
		Kind:  queryir.WidgetKPI,
		Title: "Receita",
		Rules: []queryir.FormatRule{&queryir.Currency{}, color(queryir.CmpGt, 95, "verde")},
	}
	p := AssembleWidget("dash", w, ir.Number(97), nil)

	assert.Equal(t, "dash/w0", p.ID)
	assert.Equal(t, queryir.WidgetKPI, p.Kind)
	assert.Equal(t, "Receita", p.Title)
	require.NotNil(t, p.Value)
	assert.Equal(t, "R$ 97,00", p.Value.Display)
	assert.Equal(t, "verde", p.Color)
	assert.Nil(t, p.Error)
	assert.Nil(t, p.Rows)
}

func TestAssembleWidget_Chart(t *testing.T) {
	w := &queryir.Widget{Index: 1, Kind: queryir.WidgetChart, ChartType: "linhas"}
	rs := ir.RowSet{Columns: []string{"regiao", "valor"}, Rows: []ir.Row{{"Sul", 1.5}}}
	p := AssembleWidget("dash", w, rs, nil)

	assert.Equal(t, "linhas", p.ChartType)
	assert.Nil(t, p.Value)
	assert.Equal(t, []string{"regiao", "valor"}, p.Columns)
	require.Len(t, p.Rows, 1)
	assert.Equal(t, "1,5", p.Rows[0][1].Display)
}

func TestAssembleWidget_Error(t *testing.T) {
	w := &queryir.Widget{Index: 2, Kind: queryir.WidgetKPI, Title: "Falha"}
	p := AssembleWidget("dash", w, nil, &WidgetError{Message: "timeout", Code: "TIMEOUT"})

	assert.Equal(t, "Falha", p.Title)
	require.NotNil(t, p.Error)
	assert.Equal(t, "timeout", p.Error.Message)
	assert.Nil(t, p.Value)
	assert.Empty(t, p.Color)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"dash/w2","index":2,"kind":"kpi","title":"Falha","error":{"message":"timeout","code":"TIMEOUT"}}`, string(data))

	missing := AssembleWidget("dash", w, nil, nil)
	require.NotNil(t, missing.Error)
}
