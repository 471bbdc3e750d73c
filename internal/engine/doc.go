// Package engine executes compiled TQL programs.
//
// ARCHITECTURE:
//
// Pipeline:
// Engine.Run() parses, resolves and compiles a script, opens the data
// source, then Execute() walks the program. Each statement evaluates its
// plan: query leaves go through the cache and the data source, arithmetic
// nodes combine scalar results, variable nodes read earlier assignments.
//
// Per-query flow:
// 1. Cache key from normalized text, SQL and parameters
// 2. Cache lookup (a hit skips the data source)
// 3. Data-source call under Options.StatementTimeout
// 4. Cache store of the raw result
// 5. Post-processing (COMPARAR variation, PREVER extrapolation)
//
// Dashboards fan their widgets out concurrently, bounded by
// Options.MaxWidgetConcurrency. Widgets share no cancellation and each one
// recovers its own panics, so a failing widget yields an error payload
// while its siblings still return data.
//
// CRITICAL PATTERNS:
//
// Left-to-right evaluation:
// Statements run strictly in script order. A failed assignment becomes
// unresolved; every statement or widget reading it reports "unresolved"
// without running, and unrelated statements continue.
//
// Swallowed infrastructure failures:
// Cache and audit errors are logged and counted in Metrics but never reach
// the caller. A cache failure behaves as a miss.
//
// Audit trail:
// Exactly one audit record per statement, one per widget for dashboards,
// cache hits included. Widget records are appended in display order after
// the fan-out completes.
package engine
