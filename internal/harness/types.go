package harness

import (
	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/engine"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors lists the failed checks. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	Steps []StepResult `json:"steps"`

	// Audit is the full audit trail, oldest first.
	Audit []audit.Record `json:"audit"`

	// Calls are the data-source queries, in arrival order.
	Calls []datasource.Call `json:"-"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	TQL      string               `json:"tql"`
	Response engine.Response      `json:"response"`
	Script   *engine.ScriptResult `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Steps:  []StepResult{},
		Audit:  []audit.Record{},
	}
}

// AddError records a failed check and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Last returns the script result of the last step, or nil.
func (r *Result) Last() *engine.ScriptResult {
	if len(r.Steps) == 0 {
		return nil
	}
	return r.Steps[len(r.Steps)-1].Script
}
