package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/ir"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Audit    []audit.Record
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Audit) > 0 {
		fmt.Fprintf(&buf, "\nAudit trail:\n")
		for i, r := range e.Audit {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, r.Outcome, r.RawStatement)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return msgs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertAuditCount:
		if len(result.Audit) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d audit record(s)", a.Count),
				Actual:   fmt.Sprintf("%d audit record(s)", len(result.Audit)),
				Audit:    result.Audit,
			}
		}
	case AssertAuditOutcomes:
		got := make([]audit.Outcome, len(result.Audit))
		for i, r := range result.Audit {
			got[i] = r.Outcome
		}
		if !slices.Equal(got, a.Outcomes) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%v", a.Outcomes),
				Actual:   fmt.Sprintf("%v", got),
				Audit:    result.Audit,
			}
		}
	case AssertDataSourceCalls:
		if len(result.Calls) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d data-source call(s)", a.Count),
				Actual:   fmt.Sprintf("%d data-source call(s)", len(result.Calls)),
			}
		}
	case AssertVariable:
		return assertVariable(result, a)
	case AssertUnresolved:
		var got []string
		if last := result.Last(); last != nil {
			got = last.Unresolved
		}
		if !slices.Equal(got, a.Names) && !(len(got) == 0 && len(a.Names) == 0) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%v", a.Names),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func assertVariable(result *Result, a Assertion) error {
	last := result.Last()
	if last == nil {
		return &AssertionError{Type: a.Type, Expected: "variable " + a.Name, Actual: "no script result"}
	}
	v, ok := last.Variables[a.Name]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "variable " + a.Name, Actual: "not defined"}
	}
	s, ok := v.(ir.Scalar)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "a scalar", Actual: fmt.Sprintf("%s value", v.Shape())}
	}
	want := ir.ScalarFromCell(a.Value)
	if s != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %s", a.Name, want),
			Actual:   fmt.Sprintf("%s = %s", a.Name, s),
		}
	}
	return nil
}
