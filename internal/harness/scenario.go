package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/config"
	"github.com/roach88/tql/internal/ir"
)

// Scenario is one end-to-end TQL test.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Schema is an optional CUE schema file. Relative paths resolve
	// against the scenario file; empty means testutil.SalesSchema.
	Schema string `yaml:"schema,omitempty"`

	// Options override config.Default() field by field.
	Options config.Options `yaml:"options"`

	// Mock scripts the data source. When several rules match a query the
	// last one wins; unmatched queries get synthetic data.
	Mock []MockRule `yaml:"mock,omitempty"`

	// Steps run in order against the same engine, so later steps see the
	// cache and audit state of earlier ones.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	dir string
}

// MockRule is one scripted data-source response.
//
// Exactly one response applies, checked in this order: Panic, Block,
// Error, Columns (a row set), Value (a scalar; absent means null).
type MockRule struct {
	Match   string   `yaml:"match"`
	Value   any      `yaml:"value,omitempty"`
	Columns []string `yaml:"columns,omitempty"`
	Rows    [][]any  `yaml:"rows,omitempty"`
	Error   string   `yaml:"error,omitempty"`
	Block   bool     `yaml:"block,omitempty"`
	Panic   bool     `yaml:"panic,omitempty"`
}

// Response converts the rule to the value the mock returns.
func (r MockRule) Response() ir.Value {
	if r.Columns != nil {
		rows := make([]ir.Row, len(r.Rows))
		for i, row := range r.Rows {
			cells := make(ir.Row, len(row))
			for j, c := range row {
				cells[j] = ir.NormalizeCell(c)
			}
			rows[i] = cells
		}
		return ir.RowSet{Columns: r.Columns, Rows: rows}
	}
	return ir.ScalarFromCell(ir.NormalizeCell(r.Value))
}

// Step is one engine run.
type Step struct {
	TQL  string `yaml:"tql"`
	User string `yaml:"user,omitempty"`

	// Advance moves the clock forward before the step runs.
	Advance time.Duration `yaml:"advance,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is checked against the response of a step. Unset fields are not
// checked.
type Expect struct {
	Success    *bool             `yaml:"success,omitempty"`
	ErrorCode  string            `yaml:"error_code,omitempty"`
	QueryType  string            `yaml:"query_type,omitempty"`
	Statements []StatementExpect `yaml:"statements,omitempty"`
}

// StatementExpect is checked against one statement result, by position.
type StatementExpect struct {
	Outcome   audit.Outcome  `yaml:"outcome,omitempty"`
	Display   string         `yaml:"display,omitempty"`
	Color     string         `yaml:"color,omitempty"`
	ErrorCode string         `yaml:"error_code,omitempty"`
	CacheHit  *bool          `yaml:"cache_hit,omitempty"`
	Rows      *int           `yaml:"rows,omitempty"`
	Widgets   []WidgetExpect `yaml:"widgets,omitempty"`
}

// WidgetExpect is checked against one widget payload, by position.
type WidgetExpect struct {
	Display   string `yaml:"display,omitempty"`
	Color     string `yaml:"color,omitempty"`
	ErrorCode string `yaml:"error_code,omitempty"`
}

// Assertion validates the state left by the whole scenario.
type Assertion struct {
	Type     string          `yaml:"type"`
	Count    int             `yaml:"count,omitempty"`
	Outcomes []audit.Outcome `yaml:"outcomes,omitempty"`
	Name     string          `yaml:"name,omitempty"`
	Value    any             `yaml:"value,omitempty"`
	Names    []string        `yaml:"names,omitempty"`
}

// Assertion type constants.
const (
	AssertAuditCount      = "audit_count"
	AssertAuditOutcomes   = "audit_outcomes"
	AssertDataSourceCalls = "datasource_calls"
	AssertVariable        = "variable"
	AssertUnresolved      = "unresolved"
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields
// are rejected so a typo fails instead of silently skipping a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	s := &Scenario{Options: config.Default()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty scenario")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// SchemaPath returns the schema file resolved against the scenario
// directory, or "" when the scenario uses the built-in schema.
func (s *Scenario) SchemaPath() string {
	if s.Schema == "" || filepath.IsAbs(s.Schema) {
		return s.Schema
	}
	return filepath.Join(s.dir, s.Schema)
}

// Validate checks required fields and assertion arguments.
func (s *Scenario) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if err := s.Options.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("options: %w", err))
	}
	if len(s.Steps) == 0 {
		errs = append(errs, errors.New("steps list is required and must be non-empty"))
	}
	for i, m := range s.Mock {
		if m.Match == "" {
			errs = append(errs, fmt.Errorf("mock[%d]: match is required", i))
		}
		if m.Rows != nil && m.Columns == nil {
			errs = append(errs, fmt.Errorf("mock[%d]: rows need columns", i))
		}
		for j, row := range m.Rows {
			if len(row) != len(m.Columns) {
				errs = append(errs, fmt.Errorf("mock[%d].rows[%d]: %d cells for %d columns", i, j, len(row), len(m.Columns)))
			}
		}
	}
	for i, st := range s.Steps {
		if st.TQL == "" {
			errs = append(errs, fmt.Errorf("steps[%d]: tql is required", i))
		}
		if st.Advance < 0 {
			errs = append(errs, fmt.Errorf("steps[%d]: advance must not be negative", i))
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertAuditCount, AssertDataSourceCalls:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for %s", a.Type)
		}
	case AssertAuditOutcomes:
		for _, o := range a.Outcomes {
			if !knownOutcome(o) {
				return fmt.Errorf("unknown outcome %q", o)
			}
		}
	case AssertVariable:
		if a.Name == "" {
			return errors.New("name is required for variable")
		}
	case AssertUnresolved:
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func knownOutcome(o audit.Outcome) bool {
	for _, k := range audit.Outcomes {
		if k == o {
			return true
		}
	}
	return false
}
