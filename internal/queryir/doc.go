// Package queryir defines the TQL abstract syntax tree.
//
// The parser produces it, the resolver checks it against a schema and the
// SQL compiler lowers it. It is the contract between those stages:
//
//	[TQL text] → [parser] → [queryir] → [resolver] → [querysql] → SQL
//
// SEALED INTERFACES:
//
// Expr, Condition and FormatRule are sealed interfaces using the marker
// method pattern. Only types in this package implement them, so backends
// can switch exhaustively:
//
//	switch e := expr.(type) {
//	case *Aggregation:
//	    // SELECT FUNC(field) FROM entity ...
//	case *BinaryOp:
//	    // engine-side arithmetic
//	default:
//	    // rejected by the resolver
//	}
//
// Literal values are ir.Scalar. They are never rendered into SQL text;
// the compiler binds every literal as a named parameter.
//
// Statement kind (query, assignment, dashboard) is decided by the first
// token of a statement and is exposed to callers as a QueryType
// (simple, variable, dashboard).
package queryir
