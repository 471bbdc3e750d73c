package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/cache"
	"github.com/roach88/tql/internal/config"
	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/parser"
	"github.com/roach88/tql/internal/querysql"
	"github.com/roach88/tql/internal/resolver"
	"github.com/roach88/tql/internal/schema"
)

// ErrClosed is returned by Run and Execute after Close.
var ErrClosed = errors.New("engine: closed")

// Engine is the process-wide TQL executor.
//
// It is constructed once from a schema provider and a data-source factory
// and shared by every caller. The result cache and the audit log are the
// only mutable state shared across runs; everything else lives in the
// per-run execution.
//
// Thread-safety model:
//   - Run(), Execute(): safe from any goroutine, concurrently
//   - Close(): safe from any goroutine; later runs fail with ErrClosed
//
// INVARIANTS:
//   - Statements of one script execute strictly in order
//   - Every data-source call is bounded by Options.StatementTimeout
//   - Cache and audit failures are logged, never returned
type Engine struct {
	schemas schema.Provider
	sources datasource.Factory
	cache   *cache.Cache
	audit   audit.Log
	now     func() time.Time
	ids     IDGenerator
	opts    config.Options
	metrics *Metrics
	closed  atomic.Bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithCache sets the result cache. Without it New creates an in-memory
// cache of Options.CacheSize entries.
func WithCache(c *cache.Cache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithAuditLog sets the audit trail. Default: an audit.MemoryLog.
func WithAuditLog(l audit.Log) EngineOption {
	return func(e *Engine) {
		e.audit = l
	}
}

// WithClock sets the clock used for temporal ranges, cache expiry and
// audit timestamps. Tests pass a fixed clock for golden output.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithOptions sets the default execution options.
func WithOptions(o config.Options) EngineOption {
	return func(e *Engine) {
		e.opts = o
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator sets the generator of dashboard IDs.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// New creates an Engine.
//
// schemas is asked for a snapshot once per run; sources opens the data
// source a run executes against.
func New(schemas schema.Provider, sources datasource.Factory, opts ...EngineOption) (*Engine, error) {
	if schemas == nil {
		return nil, errors.New("engine: schema provider is required")
	}
	if sources == nil {
		return nil, errors.New("engine: data source factory is required")
	}

	e := &Engine{
		schemas: schemas,
		sources: sources,
		now:     time.Now,
		ids:     UUIDv7Generator{},
		opts:    config.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.opts.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid options: %w", err)
	}
	if e.cache == nil {
		size := e.opts.CacheSize
		if size <= 0 {
			size = config.Default().CacheSize
		}
		c, err := cache.New(size, cache.WithClock(e.now))
		if err != nil {
			return nil, fmt.Errorf("engine: create cache: %w", err)
		}
		e.cache = c
	}
	if e.audit == nil {
		e.audit = audit.NewMemoryLog()
	}
	return e, nil
}

// Options returns the default execution options.
func (e *Engine) Options() config.Options { return e.opts }

// AuditLog returns the audit trail runs append to.
func (e *Engine) AuditLog() audit.Log { return e.audit }

// ClearCache removes every cached result and returns how many were removed.
func (e *Engine) ClearCache() int {
	n := e.cache.Clear()
	slog.Info("cache cleared", "entries", n)
	return n
}

// CacheStats returns a snapshot of cache activity.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

// Close marks the engine closed and drops cached results. In-flight runs
// finish normally.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.cache.Clear()
	slog.Info("engine closed")
	return nil
}

// Request carries the caller-level parameters of one run.
type Request struct {
	// UserID is recorded on every audit record of the run.
	UserID string

	// Options overrides the engine defaults for this run.
	Options *config.Options
}

// Run parses, resolves, compiles and executes source.
//
// Parse and semantic errors abort the run unless Options.ExecutePartial is
// set, in which case the valid prefix executes and Run returns both its
// result and the error. Compile errors always abort: no partial SQL is
// ever executed. Execution-time failures never make Run fail; they are
// reported per statement in the result.
func (e *Engine) Run(ctx context.Context, source string, req Request) (*ScriptResult, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	opts := e.opts
	if req.Options != nil {
		opts = *req.Options
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("invalid options: %w", err)
		}
	}
	if req.UserID != "" {
		ctx = WithUserID(ctx, req.UserID)
	}

	script, prefixErr := parser.Parse(source)
	if prefixErr != nil {
		slog.Warn("parse failed", "error", prefixErr, "partial", opts.ExecutePartial)
		if !opts.ExecutePartial || script == nil {
			return nil, prefixErr
		}
	}

	snapshot, err := e.schemas.GetSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}

	resolved, err := resolver.Resolve(script, snapshot)
	if err != nil {
		slog.Warn("resolution failed", "error", err, "partial", opts.ExecutePartial)
		if !opts.ExecutePartial {
			return nil, err
		}
		if prefixErr == nil {
			prefixErr = err
		}
	}

	prog, err := querysql.NewCompiler(e.now).Compile(resolved)
	if err != nil {
		return nil, err
	}

	ds, err := e.sources(ctx)
	if err != nil {
		return nil, datasource.Wrap("open", err)
	}

	res, err := e.Execute(ctx, prog, ds, opts)
	if err != nil {
		return nil, err
	}
	res.QueryType = parser.Classify(source)
	return res, prefixErr
}

// Execute runs a compiled program against ds, statement by statement.
func (e *Engine) Execute(ctx context.Context, prog *querysql.Program, ds datasource.DataSource, opts config.Options) (*ScriptResult, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if prog == nil {
		return nil, errors.New("engine: nil program")
	}
	if ds == nil {
		return nil, errors.New("engine: nil data source")
	}
	x := newExecution(e, prog, ds, opts, UserIDFrom(ctx))
	return x.run(ctx), nil
}

// Respond builds the response envelope of a run of source, stamped with
// the engine clock. The query type is reported even when the run failed.
func (e *Engine) Respond(source string, res *ScriptResult, err error) Response {
	resp := NewResponse(res, err, e.now())
	if resp.QueryType == "" {
		resp.QueryType = parser.Classify(source)
	}
	return resp
}

type userIDKey struct{}

// WithUserID returns a context carrying the user recorded in audit records.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom returns the user stored by WithUserID, or "".
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
