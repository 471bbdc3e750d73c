// Package harness runs TQL scenarios against the mock data source.
//
// A scenario scripts the data source, executes one or more TQL steps
// through a real engine and checks the responses, the audit trail and
// the data-source traffic. Scenarios are the executable examples of the
// language: each one pins down how a feature behaves end to end.
//
// # Scenario Format
//
//	name: kpi_dashboard
//	description: "Widgets fail independently"
//	schema: sales.cue            # optional, relative to the scenario file
//	options:                     # optional, decoded over config.Default()
//	  statement_timeout: 50ms
//	mock:                        # later rules win over earlier ones
//	  - match: "SUM(valor)"
//	    value: 1500
//	  - match: "GROUP BY"
//	    columns: [produto, valor]
//	    rows: [["a", 1], ["b", 2]]
//	  - match: "COUNT(*)"
//	    error: "connection reset"
//	steps:
//	  - tql: "SOMAR valor DE vendas"
//	    user: alice
//	    advance: 10m             # move the clock before the step
//	    expect:
//	      success: true
//	      statements:
//	        - outcome: success
//	          display: "1.500"
//	assertions:
//	  - type: audit_count
//	    count: 1
//
// # Assertion Types
//
//   - audit_count: the audit trail holds exactly Count records
//   - audit_outcomes: the audit outcomes, in order, equal Outcomes
//   - datasource_calls: the data source received exactly Count queries
//   - variable: after the last step, variable Name holds Value
//   - unresolved: after the last step, exactly Names are unresolved
//
// # Deterministic Execution
//
// Every scenario gets a fresh engine, mock and audit log. The clock is
// stopped at testutil.ReferenceNow and dashboard IDs come from a fixed
// generator (dash-1, dash-2, ...), so Render output is stable enough to
// compare against golden files.
package harness
