package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/querysql"
)

// query runs one compiled query: cache lookup, guarded data-source call,
// cache store, then engine-side post-processing. The cache holds the raw
// data-source result, so post-processing always follows the current
// options. hit reports whether the cache served the result.
func (x *execution) query(ctx context.Context, q *querysql.CompiledQuery) (v ir.Value, hit bool, err error) {
	c := x.e.cache
	useCache := x.opts.UseCache && c != nil

	key := ""
	if useCache {
		k, kerr := q.CacheKey()
		if kerr != nil {
			x.e.metrics.failure("cache")
			slog.Warn("cache key failed", "error", kerr)
			useCache = false
		}
		key = k
	}

	var raw ir.Value
	if useCache {
		cached, ok, gerr := c.Get(key)
		if gerr != nil {
			x.e.metrics.failure("cache")
			slog.Warn("cache read failed, treating as miss", "error", gerr)
		}
		x.e.metrics.cacheLookup(ok)
		if ok {
			raw, hit = cached, true
		}
	}

	if !hit {
		raw, err = x.call(ctx, q)
		if err != nil {
			return nil, false, err
		}
		if useCache {
			if serr := c.Set(key, raw, x.opts.CacheTTL); serr != nil {
				x.e.metrics.failure("cache")
				slog.Warn("cache write failed", "error", serr)
			}
		}
	}

	v, err = x.post(raw, q.Post)
	if err != nil {
		return nil, hit, err
	}
	return v, hit, nil
}

type reply struct {
	v   ir.Value
	err error
}

// call invokes the data source under the statement timeout. The adapter
// runs in its own goroutine, so one that ignores its context still cannot
// hold the statement past the deadline; its late reply is dropped.
func (x *execution) call(ctx context.Context, q *querysql.CompiledQuery) (ir.Value, error) {
	timeout := x.opts.StatementTimeout
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: &RuntimeError{
					Code:    ErrCodePanic,
					Message: fmt.Sprintf("data source panicked: %v", r),
				}}
			}
		}()
		v, err := x.ds.Query(cctx, q.SQL, q.Params, q.Shape)
		done <- reply{v: v, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-cctx.Done():
		r = reply{err: cctx.Err()}
	}
	elapsed := time.Since(start)

	if r.err != nil {
		if errors.Is(r.err, context.DeadlineExceeded) {
			x.e.metrics.observe("timeout", elapsed.Seconds())
			slog.Warn("data source timeout", "timeout", timeout, "sql", q.SQL)
			return nil, &TimeoutError{Timeout: timeout, SQL: q.SQL}
		}
		x.e.metrics.observe("error", elapsed.Seconds())
		return nil, r.err
	}
	x.e.metrics.observe("ok", elapsed.Seconds())

	if r.v == nil {
		return nil, &RuntimeError{Code: ErrCodeShapeMismatch, Message: "data source returned no value"}
	}
	if r.v.Shape() != q.Shape {
		return nil, &RuntimeError{
			Code:    ErrCodeShapeMismatch,
			Message: fmt.Sprintf("data source returned a %s, expected a %s", r.v.Shape(), q.Shape),
		}
	}
	slog.Debug("data source call",
		"duration_ms", elapsed.Milliseconds(),
		"shape", q.Shape,
	)
	return r.v, nil
}
