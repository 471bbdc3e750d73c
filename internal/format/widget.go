package format

import (
	"fmt"

	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/queryir"
)

// WidgetError is the per-widget failure payload. Sibling widgets are
// unaffected by it.
type WidgetError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WidgetPayload is the renderable form of one widget. Exactly one of
// Value (KPI), Rows (chart, table) or Error is set.
type WidgetPayload struct {
	ID        string             `json:"id"`
	Index     int                `json:"index"`
	Kind      queryir.WidgetKind `json:"kind"`
	ChartType string             `json:"chartType,omitempty"`
	Title     string             `json:"title,omitempty"`
	Value     *Cell              `json:"value,omitempty"`
	Columns   []string           `json:"columns,omitempty"`
	Rows      [][]Cell           `json:"rows,omitempty"`
	Color     string             `json:"color,omitempty"`
	Error     *WidgetError       `json:"error,omitempty"`
}

// DashboardPayload is a dashboard with its widgets in display order.
type DashboardPayload struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Widgets []WidgetPayload `json:"widgets"`
}

// WidgetID derives the stable ID of a widget from its dashboard ID.
func WidgetID(dashboardID string, index int) string {
	return fmt.Sprintf("%s/w%d", dashboardID, index)
}

// AssembleWidget builds a widget payload with the default formatter.
func AssembleWidget(dashboardID string, w *queryir.Widget, v ir.Value, werr *WidgetError) WidgetPayload {
	return defaultFormatter.AssembleWidget(dashboardID, w, v, werr)
}

// AssembleWidget builds the payload of w from its value, or from werr when
// the widget failed.
func (f *Formatter) AssembleWidget(dashboardID string, w *queryir.Widget, v ir.Value, werr *WidgetError) WidgetPayload {
	p := WidgetPayload{
		ID:        WidgetID(dashboardID, w.Index),
		Index:     w.Index,
		Kind:      w.Kind,
		ChartType: w.ChartType,
		Title:     w.Title,
	}
	if werr != nil {
		p.Error = werr
		return p
	}
	if v == nil {
		p.Error = &WidgetError{Message: "widget produced no value"}
		return p
	}

	fv := f.Format(v, w.Rules)
	p.Color = fv.Color
	switch fv.Shape {
	case ir.ShapeScalar:
		p.Value = fv.Scalar
	case ir.ShapeRowSet:
		p.Columns = fv.Columns
		p.Rows = fv.Rows
	}
	return p
}
