// Package datasource provides the adapters compiled TQL queries run on.
//
// The engine treats a DataSource as opaque: it hands over parameterized SQL
// with named ":name" placeholders and gets back an ir.Value of the expected
// shape. Adapters never manage transactions; TQL is read-only.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/tql/internal/ir"
)

// DataSource executes one compiled query.
//
// shape is the result shape the compiler expects: ShapeScalar returns the
// first column of the first row (null when there are no rows), ShapeRowSet
// returns every row.
type DataSource interface {
	Query(ctx context.Context, sql string, params []ir.Param, shape ir.Shape) (ir.Value, error)
}

// Factory opens the data source for one script run.
type Factory func(ctx context.Context) (DataSource, error)

// Static returns a factory that always hands out ds.
func Static(ds DataSource) Factory {
	return func(context.Context) (DataSource, error) { return ds, nil }
}

// DataSourceError is an adapter failure.
type DataSourceError struct {
	Message string
	Err     error
}

func (e *DataSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data source: %s: %v", e.Message, e.Err)
	}
	return "data source: " + e.Message
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// IsDataSourceError returns true if err is (or wraps) a DataSourceError.
func IsDataSourceError(err error) bool {
	var de *DataSourceError
	return errors.As(err, &de)
}

// Wrap turns any adapter error into a *DataSourceError. Context errors are
// returned unchanged so callers can tell timeouts apart.
func Wrap(message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var de *DataSourceError
	if errors.As(err, &de) {
		return err
	}
	return &DataSourceError{Message: message, Err: err}
}
