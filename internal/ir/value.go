package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Shape is the result shape of an expression or compiled query.
type Shape int

const (
	// ShapeScalar is a single value (KPI material).
	ShapeScalar Shape = iota
	// ShapeRowSet is a table of columns and rows (chart/table material).
	ShapeRowSet
)

// String returns the wire name of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeRowSet:
		return "rowset"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(b []byte) error {
	switch string(b) {
	case "scalar":
		*s = ShapeScalar
	case "rowset":
		*s = ShapeRowSet
	default:
		return fmt.Errorf("unknown shape %q", string(b))
	}
	return nil
}

// Value is a sealed sum type: Scalar or RowSet.
// Consumers dispatch on the concrete type, never on the shape of the data.
type Value interface {
	Shape() Shape
	value() // Sealed - only Scalar and RowSet implement it
}

// ScalarKind distinguishes the payload of a Scalar.
type ScalarKind int

const (
	ScalarNull ScalarKind = iota
	ScalarNumber
	ScalarText
)

// Scalar is a single aggregated value.
// SUM over zero rows yields a null scalar, not zero.
type Scalar struct {
	Kind   ScalarKind
	Number float64
	Text   string
}

func (Scalar) value() {}

// Shape implements Value.
func (Scalar) Shape() Shape { return ShapeScalar }

// Number creates a numeric scalar.
func Number(f float64) Scalar { return Scalar{Kind: ScalarNumber, Number: f} }

// Text creates a text scalar.
func Text(s string) Scalar { return Scalar{Kind: ScalarText, Text: s} }

// Null creates a null scalar.
func Null() Scalar { return Scalar{Kind: ScalarNull} }

// Float returns the numeric value and whether the scalar is numeric.
func (s Scalar) Float() (float64, bool) {
	return s.Number, s.Kind == ScalarNumber
}

// String renders the raw value without any formatting rules.
func (s Scalar) String() string {
	switch s.Kind {
	case ScalarNumber:
		return strconv.FormatFloat(s.Number, 'f', -1, 64)
	case ScalarText:
		return s.Text
	default:
		return ""
	}
}

// MarshalJSON encodes the scalar as a bare JSON number, string or null.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case ScalarNumber:
		if math.IsNaN(s.Number) || math.IsInf(s.Number, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(s.Number)
	case ScalarText:
		return json.Marshal(s.Text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a bare JSON number, string or null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*s = Null()
	case float64:
		*s = Number(v)
	case string:
		*s = Text(v)
	default:
		return fmt.Errorf("scalar: unsupported JSON type %T", raw)
	}
	return nil
}

// Row is one row of a RowSet. Cells hold float64, string, bool or nil.
type Row []any

// RowSet is a tabular result.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

func (RowSet) value() {}

// Shape implements Value.
func (RowSet) Shape() Shape { return ShapeRowSet }

// ColumnIndex returns the index of a column or -1.
func (r RowSet) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns every cell of the named column.
func (r RowSet) Column(name string) []any {
	idx := r.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		} else {
			out = append(out, nil)
		}
	}
	return out
}

// NormalizeCell converts driver values to the JSON-stable cell types
// (float64, string, bool, nil) so cached and fresh results compare equal.
func NormalizeCell(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case bool:
		return val
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// CellFloat returns a numeric view of a cell. Numeric strings are parsed.
func CellFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ScalarFromCell wraps a normalized cell value as a Scalar.
func ScalarFromCell(v any) Scalar {
	switch val := NormalizeCell(v).(type) {
	case nil:
		return Null()
	case float64:
		return Number(val)
	case bool:
		if val {
			return Number(1)
		}
		return Number(0)
	case string:
		return Text(val)
	default:
		return Text(fmt.Sprint(val))
	}
}

// envelope is the tagged JSON form of a Value.
type envelope struct {
	Type   Shape   `json:"type"`
	Scalar *Scalar `json:"scalar,omitempty"`
	RowSet *RowSet `json:"rowset,omitempty"`
}

// MarshalValue encodes a Value with its shape tag.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Scalar:
		return json.Marshal(envelope{Type: ShapeScalar, Scalar: &val})
	case *Scalar:
		return json.Marshal(envelope{Type: ShapeScalar, Scalar: val})
	case RowSet:
		return json.Marshal(envelope{Type: ShapeRowSet, RowSet: &val})
	case *RowSet:
		return json.Marshal(envelope{Type: ShapeRowSet, RowSet: val})
	default:
		return nil, fmt.Errorf("marshal value: unsupported type %T", v)
	}
}

// UnmarshalValue decodes the tagged form produced by MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	switch env.Type {
	case ShapeScalar:
		if env.Scalar == nil {
			return Null(), nil
		}
		return *env.Scalar, nil
	case ShapeRowSet:
		if env.RowSet == nil {
			return nil, fmt.Errorf("unmarshal value: rowset payload missing")
		}
		return *env.RowSet, nil
	default:
		return nil, fmt.Errorf("unmarshal value: unknown type %v", env.Type)
	}
}
