package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/querysql"
)

// Columns added by post-processing.
const (
	columnCurrent   = "atual"
	columnPrevious  = "anterior"
	columnVariation = "variacao"
	columnTrend     = "tendencia"
	columnPeriod    = "periodo"
	columnValue     = "valor"
	columnForecast  = "previsto"
)

// Trend labels of a COMPARAR result.
const (
	TrendUp     = "alta"
	TrendDown   = "queda"
	TrendStable = "estavel"
)

func (x *execution) post(v ir.Value, p querysql.Post) (ir.Value, error) {
	switch p.Kind {
	case querysql.PostCompare:
		rs, ok := v.(ir.RowSet)
		if !ok {
			return nil, &RuntimeError{Code: ErrCodeShapeMismatch, Message: "comparison needs a row set"}
		}
		return Compare(rs, x.opts.Threshold)
	case querysql.PostForecast:
		rs, ok := v.(ir.RowSet)
		if !ok {
			return nil, &RuntimeError{Code: ErrCodeShapeMismatch, Message: "forecast needs a row set"}
		}
		n := p.Periods
		if n <= 0 {
			n = x.opts.ForecastDays
		}
		return Forecast(rs, n)
	default:
		return v, nil
	}
}

// Compare appends the variacao and tendencia columns to an atual/anterior
// result.
//
// variacao is the change from anterior to atual in percent, rounded to two
// places; it is null when anterior is zero or either side is null.
// tendencia is "alta" or "queda" when |variacao| exceeds threshold and
// "estavel" otherwise.
func Compare(rs ir.RowSet, threshold float64) (ir.RowSet, error) {
	ci, pi := rs.ColumnIndex(columnCurrent), rs.ColumnIndex(columnPrevious)
	if ci < 0 || pi < 0 {
		return ir.RowSet{}, &RuntimeError{
			Code:    ErrCodeShapeMismatch,
			Message: fmt.Sprintf("comparison needs %s and %s columns, got %v", columnCurrent, columnPrevious, rs.Columns),
		}
	}

	out := ir.RowSet{
		Columns: append(append([]string{}, rs.Columns...), columnVariation, columnTrend),
		Rows:    make([]ir.Row, 0, len(rs.Rows)),
	}
	for _, row := range rs.Rows {
		next := make(ir.Row, len(rs.Columns), len(rs.Columns)+2)
		copy(next, row)

		cur, cok := cell(row, ci)
		prev, pok := cell(row, pi)
		if !cok || !pok || prev == 0 {
			next = append(next, nil, nil)
			out.Rows = append(out.Rows, next)
			continue
		}
		variation := round2((cur - prev) / math.Abs(prev) * 100)
		trend := TrendStable
		switch {
		case variation > threshold:
			trend = TrendUp
		case variation < -threshold:
			trend = TrendDown
		}
		next = append(next, variation, trend)
		out.Rows = append(out.Rows, next)
	}
	return out, nil
}

// Forecast extends a periodo/valor series by n periods along its
// least-squares linear trend over the row index.
//
// Rows with a null valor are skipped by the fit. Appended periods continue
// the spacing of the last two periods in their own layout (dates step by
// months when the series is monthly). The previsto column marks
// extrapolated rows. With fewer than two points the trend is flat.
func Forecast(rs ir.RowSet, n int) (ir.RowSet, error) {
	pi, vi := rs.ColumnIndex(columnPeriod), rs.ColumnIndex(columnValue)
	if pi < 0 || vi < 0 {
		return ir.RowSet{}, &RuntimeError{
			Code:    ErrCodeShapeMismatch,
			Message: fmt.Sprintf("forecast needs %s and %s columns, got %v", columnPeriod, columnValue, rs.Columns),
		}
	}

	out := ir.RowSet{
		Columns: append(append([]string{}, rs.Columns...), columnForecast),
		Rows:    make([]ir.Row, 0, len(rs.Rows)+n),
	}
	periods := make([]any, 0, len(rs.Rows))
	var xs, ys []float64
	for i, row := range rs.Rows {
		next := make(ir.Row, len(rs.Columns), len(rs.Columns)+1)
		copy(next, row)
		out.Rows = append(out.Rows, append(next, false))

		if pi < len(row) {
			periods = append(periods, row[pi])
		}
		if y, ok := cell(row, vi); ok {
			xs = append(xs, float64(i))
			ys = append(ys, y)
		}
	}

	slope, intercept := leastSquares(xs, ys)
	step := periodStepper(periods)
	base := len(rs.Rows)
	for k := 1; k <= n; k++ {
		row := make(ir.Row, len(rs.Columns)+1)
		row[pi] = step(k)
		row[vi] = round2(intercept + slope*float64(base+k-1))
		row[len(rs.Columns)] = true
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// leastSquares fits y = slope*x + intercept.
func leastSquares(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	var sx, sy, sxx, sxy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ys[i]
	}
	den := n*sxx - sx*sx
	if n < 2 || den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

var periodLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "2006-01"}

// periodStepper returns the k-th period after the last one in periods.
func periodStepper(periods []any) func(k int) any {
	if len(periods) == 0 {
		return func(k int) any { return fmt.Sprintf("+%d", k) }
	}
	last := periods[len(periods)-1]
	var prev any
	if len(periods) > 1 {
		prev = periods[len(periods)-2]
	}

	switch l := last.(type) {
	case float64:
		d := 1.0
		if p, ok := prev.(float64); ok && l != p {
			d = l - p
		}
		return func(k int) any { return l + float64(k)*d }
	case string:
		for _, layout := range periodLayouts {
			lt, err := time.Parse(layout, l)
			if err != nil {
				continue
			}
			return timeStepper(lt, prev, layout)
		}
	}
	return func(k int) any { return fmt.Sprintf("%v+%d", last, k) }
}

func timeStepper(last time.Time, prev any, layout string) func(k int) any {
	months := 0
	day := 24 * time.Hour
	var dur time.Duration
	if layout == "2006-01" {
		months = 1
	}
	if ps, ok := prev.(string); ok {
		if pt, err := time.Parse(layout, ps); err == nil && pt.Before(last) {
			md := (last.Year()-pt.Year())*12 + int(last.Month()-pt.Month())
			if md > 0 && pt.Day() == last.Day() && pt.AddDate(0, md, 0).Equal(last) {
				months = md
			} else {
				months = 0
				dur = last.Sub(pt)
			}
		}
	}
	if months == 0 && dur == 0 {
		dur = day
	}
	return func(k int) any {
		if months > 0 {
			return last.AddDate(0, k*months, 0).Format(layout)
		}
		return last.Add(time.Duration(k) * dur).Format(layout)
	}
}

func cell(row ir.Row, i int) (float64, bool) {
	if i >= len(row) || row[i] == nil {
		return 0, false
	}
	return ir.CellFloat(row[i])
}

func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}
