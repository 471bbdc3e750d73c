package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/tql/internal/audit"
	"github.com/roach88/tql/internal/config"
	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/engine"
	"github.com/roach88/tql/internal/saved"
	"github.com/roach88/tql/internal/schema"
	"github.com/roach88/tql/internal/store"
)

// Error code constants - unified across all CLI commands. Script errors
// use the engine codes (PARSE_ERROR, UNKNOWN_ENTITY, ...) instead.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfig       = "E002" // Config file unreadable or invalid
	ErrCodeNoSource     = "E003" // No TQL given
	ErrCodeReadFailed   = "E004" // Source file unreadable
	ErrCodeNotFound     = "E005" // Path or saved query not found
	ErrCodeDataSource   = "E006" // Data source or schema unavailable
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeStore        = "E008" // Audit or saved-query store unavailable
	ErrCodeInvalidInput = "E009" // Invalid flag value or query document
)

// OpenMode controls which parts of the environment are opened.
type OpenMode int

const (
	// OpenSchemaOnly opens the data source and schema provider. Audit and
	// saved queries stay in memory.
	OpenSchemaOnly OpenMode = iota
	// OpenFull also opens the configured stores.
	OpenFull
)

// LoadError is a failure to assemble the command environment.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Environment holds the collaborators a command runs against: the
// configuration, schema and data-source adapters and the durable stores.
type Environment struct {
	File     *config.File
	Schemas  schema.Provider
	Sources  datasource.Factory
	Audit    audit.Log
	Saved    saved.Store
	Registry *prometheus.Registry
	Now      func() time.Time

	closers []func() error
}

// NewEnvironment assembles an environment from already-open parts. Nil
// stores default to in-memory ones.
func NewEnvironment(file *config.File, schemas schema.Provider, sources datasource.Factory, log audit.Log, queries saved.Store) *Environment {
	if file == nil {
		file = config.DefaultFile()
	}
	if log == nil {
		log = audit.NewMemoryLog()
	}
	if queries == nil {
		queries = saved.NewMemoryStore(nil)
	}
	return &Environment{
		File:    file,
		Schemas: schemas,
		Sources: sources,
		Audit:   log,
		Saved:   queries,
		Now:     time.Now,
	}
}

// Engine creates an engine over the environment. Its metrics register on
// a fresh Registry.
func (env *Environment) Engine(opts ...engine.EngineOption) (*engine.Engine, error) {
	env.Registry = prometheus.NewRegistry()
	base := []engine.EngineOption{
		engine.WithAuditLog(env.Audit),
		engine.WithOptions(env.File.Options),
		engine.WithClock(env.Now),
		engine.WithMetrics(engine.NewMetrics(env.Registry)),
	}
	eng, err := engine.New(env.Schemas, env.Sources, append(base, opts...)...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: "failed to create engine", Err: err}
	}
	return eng, nil
}

// Close releases everything the environment opened, newest first.
func (env *Environment) Close() error {
	var errs []error
	for i := len(env.closers) - 1; i >= 0; i-- {
		if err := env.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	env.closers = nil
	return errors.Join(errs...)
}

// LoadConfig reads the file named by --config, or the defaults.
func LoadConfig(opts *RootOptions) (*config.File, error) {
	if opts.Config == "" {
		return config.DefaultFile(), nil
	}
	if _, err := os.Stat(opts.Config); os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config file not found: %s", opts.Config)}
	}
	f, err := config.Load(opts.Config)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: "invalid config", Err: err}
	}
	return f, nil
}

// OpenEnvironment builds the environment described by the configuration.
// The caller must Close it. An injected RootOptions.Env is shared, not
// reopened, and its resources stay open.
func OpenEnvironment(ctx context.Context, opts *RootOptions, mode OpenMode) (*Environment, error) {
	if opts.Env != nil {
		return &Environment{
			File:    opts.Env.File,
			Schemas: opts.Env.Schemas,
			Sources: opts.Env.Sources,
			Audit:   opts.Env.Audit,
			Saved:   opts.Env.Saved,
			Now:     opts.Env.Now,
		}, nil
	}

	file, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	env := NewEnvironment(file, nil, nil, nil, nil)

	if err := env.openDataSource(); err != nil {
		env.Close()
		return nil, err
	}
	if mode == OpenFull {
		if err := env.openStores(ctx); err != nil {
			env.Close()
			return nil, err
		}
	}
	return env, nil
}

func (env *Environment) openDataSource() error {
	ds := env.File.DataSource
	sc := env.File.Schema

	if ds.Driver == "mock" {
		env.Sources = datasource.Static(datasource.NewMock())
		env.Schemas = schema.NewCUEProvider(sc.Path)
		slog.Debug("using mock data source", "schema", sc.Path)
		return nil
	}

	db, err := datasource.Open(ds.Driver, ds.DSN)
	if err != nil {
		return &LoadError{Code: ErrCodeDataSource, Message: "failed to open data source", Err: err}
	}
	env.closers = append(env.closers, db.Close)
	env.Sources = datasource.Static(db)

	switch {
	case sc.Source == "cue":
		env.Schemas = schema.NewCUEProvider(sc.Path)
	case db.Dialect() == datasource.DialectPostgres:
		env.Schemas = schema.NewPostgresProvider(db.DB(), sc.Namespace)
	default:
		env.Schemas = schema.NewSQLiteProvider(db.DB())
	}
	slog.Debug("data source opened", "driver", ds.Driver, "schema_source", sc.Source)
	return nil
}

func (env *Environment) openStores(ctx context.Context) error {
	if path := env.File.Store.Path; path != "" {
		st, err := store.Open(path)
		if err != nil {
			return &LoadError{Code: ErrCodeStore, Message: "failed to open store", Err: err}
		}
		env.closers = append(env.closers, st.Close)
		env.Audit = st.AuditLog()
		env.Saved = st.SavedQueries()
		slog.Debug("store opened", "path", path)
	}

	cfg := env.File.Saved
	if cfg.Backend != "s3" {
		return nil
	}
	s3store, err := saved.NewS3Store(ctx, saved.S3Config{
		Bucket:          cfg.Bucket,
		Prefix:          cfg.Prefix,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     os.Getenv("TQL_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("TQL_S3_SECRET_ACCESS_KEY"),
		PathStyle:       cfg.Endpoint != "",
	})
	if err != nil {
		return &LoadError{Code: ErrCodeStore, Message: "failed to open s3 saved-query store", Err: err}
	}
	env.Saved = s3store
	slog.Debug("saved queries on s3", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	return nil
}

// ReadSource returns the TQL a command operates on: the file named by
// path ("-" reads stdin), or else the arguments joined by spaces.
func ReadSource(args []string, path string, stdin io.Reader) (string, error) {
	if path != "" {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return "", &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("failed to read %s", path), Err: err}
		}
		return string(data), nil
	}
	src := strings.Join(args, " ")
	if strings.TrimSpace(src) == "" {
		return "", &LoadError{Code: ErrCodeNoSource, Message: "no TQL given (pass it as an argument or with --file)"}
	}
	return src, nil
}

// failLoad reports an environment or input error with exit code 2.
func failLoad(formatter *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		msg := le.Message
		if le.Err != nil {
			msg = fmt.Sprintf("%s: %v", le.Message, le.Err)
		}
		return formatter.Fail(ExitCommandError, le.Code, msg, err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), err)
}
