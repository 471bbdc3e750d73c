package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/ir"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		atual     any
		anterior  any
		variation any
		trend     any
	}{
		{"rise", 200.0, 100.0, 100.0, TrendUp},
		{"fall", 90.0, 100.0, -10.0, TrendDown},
		{"within threshold", 103.0, 100.0, 3.0, TrendStable},
		{"negative base", -50.0, -100.0, 50.0, TrendUp},
		{"rounds to two places", 1.0, 3.0, -66.67, TrendDown},
		{"zero base", 10.0, 0.0, nil, nil},
		{"null side", nil, 100.0, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := ir.RowSet{Columns: []string{"atual", "anterior"}, Rows: []ir.Row{{tt.atual, tt.anterior}}}
			out, err := Compare(rs, 5)
			require.NoError(t, err)
			assert.Equal(t, []string{"atual", "anterior", "variacao", "tendencia"}, out.Columns)
			assert.Equal(t, ir.Row{tt.atual, tt.anterior, tt.variation, tt.trend}, out.Rows[0])
		})
	}
}

func TestCompare_DoesNotMutateInput(t *testing.T) {
	rs := ir.RowSet{Columns: []string{"atual", "anterior"}, Rows: []ir.Row{{2.0, 1.0}}}
	_, err := Compare(rs, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"atual", "anterior"}, rs.Columns)
	assert.Len(t, rs.Rows[0], 2)
}

func TestCompare_MissingColumns(t *testing.T) {
	_, err := Compare(ir.RowSet{Columns: []string{"valor"}}, 5)
	require.Error(t, err)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeShapeMismatch, re.Code)
}

func TestForecast_Monthly(t *testing.T) {
	rs := ir.RowSet{
		Columns: []string{"periodo", "valor"},
		Rows: []ir.Row{
			{"2026-01-01", 10.0},
			{"2026-02-01", 20.0},
			{"2026-03-01", 30.0},
		},
	}
	out, err := Forecast(rs, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"periodo", "valor", "previsto"}, out.Columns)
	require.Len(t, out.Rows, 5)
	assert.Equal(t, ir.Row{"2026-01-01", 10.0, false}, out.Rows[0])
	assert.Equal(t, ir.Row{"2026-04-01", 40.0, true}, out.Rows[3])
	assert.Equal(t, ir.Row{"2026-05-01", 50.0, true}, out.Rows[4])
}

func TestForecast_SkipsNullsAndRounds(t *testing.T) {
	rs := ir.RowSet{
		Columns: []string{"periodo", "valor"},
		Rows: []ir.Row{
			{"2026-10-01", 1.0},
			{"2026-10-02", nil},
			{"2026-10-03", 2.0},
		},
	}
	out, err := Forecast(rs, 1)
	require.NoError(t, err)

	// Fit over (0,1) and (2,2): slope 0.5, next index 3.
	assert.Equal(t, ir.Row{"2026-10-04", 2.5, true}, out.Rows[3])
}

func TestForecast_Flat(t *testing.T) {
	single := ir.RowSet{Columns: []string{"periodo", "valor"}, Rows: []ir.Row{{"2026-10-01", 7.0}}}
	out, err := Forecast(single, 2)
	require.NoError(t, err)
	assert.Equal(t, ir.Row{"2026-10-02", 7.0, true}, out.Rows[1])
	assert.Equal(t, ir.Row{"2026-10-03", 7.0, true}, out.Rows[2])

	empty := ir.RowSet{Columns: []string{"periodo", "valor"}, Rows: []ir.Row{}}
	out, err = Forecast(empty, 1)
	require.NoError(t, err)
	assert.Equal(t, ir.Row{"+1", 0.0, true}, out.Rows[0])
}

func TestForecast_NumericPeriods(t *testing.T) {
	rs := ir.RowSet{
		Columns: []string{"periodo", "valor"},
		Rows:    []ir.Row{{2024.0, 100.0}, {2025.0, 110.0}},
	}
	out, err := Forecast(rs, 1)
	require.NoError(t, err)
	assert.Equal(t, ir.Row{2026.0, 120.0, true}, out.Rows[2])
}

func TestForecast_MissingColumns(t *testing.T) {
	_, err := Forecast(ir.RowSet{Columns: []string{"x"}}, 1)
	assert.Error(t, err)
}
