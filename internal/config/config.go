// Package config holds the typed TQL configuration.
//
// Callers never pass free-form option maps: every knob is a named field of
// Options, and YAML files are decoded with unknown-field rejection so a typo
// fails loudly instead of being ignored.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Options are the per-execution knobs of the engine.
type Options struct {
	// UseCache enables the result cache.
	UseCache bool `yaml:"use_cache" json:"useCache"`

	// CacheTTL is how long a cached result stays valid.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cacheTTL"`

	// CacheSize bounds the number of cached results.
	CacheSize int `yaml:"cache_size" json:"cacheSize"`

	// StatementTimeout bounds every data-source call.
	StatementTimeout time.Duration `yaml:"statement_timeout" json:"statementTimeout"`

	// ForecastDays is the PREVER horizon when the statement names none.
	ForecastDays int `yaml:"forecast_days" json:"forecastDays"`

	// Threshold is the absolute COMPARAR variation, in percent, above which
	// the comparison is reported as a rise or a fall instead of stable.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// ExecutePartial runs the valid prefix of a script that failed to parse.
	ExecutePartial bool `yaml:"execute_partial" json:"executePartial"`

	// MaxWidgetConcurrency bounds concurrent widget queries per dashboard.
	MaxWidgetConcurrency int `yaml:"max_widget_concurrency" json:"maxWidgetConcurrency"`

	// Currency is the symbol used by MOEDA without an explicit symbol.
	Currency string `yaml:"currency" json:"currency"`

	// Locale selects number formatting (BCP 47, e.g. "pt-BR").
	Locale string `yaml:"locale" json:"locale"`
}

// Default returns the default options.
func Default() Options {
	return Options{
		UseCache:             true,
		CacheTTL:             5 * time.Minute,
		CacheSize:            1024,
		StatementTimeout:     30 * time.Second,
		ForecastDays:         7,
		Threshold:            5,
		ExecutePartial:       false,
		MaxWidgetConcurrency: 4,
		Currency:             "R$",
		Locale:               "pt-BR",
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	var errs []error
	if o.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must not be negative, got %s", o.CacheTTL))
	}
	if o.UseCache && o.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("cache_size must be positive when use_cache is set, got %d", o.CacheSize))
	}
	if o.StatementTimeout <= 0 {
		errs = append(errs, fmt.Errorf("statement_timeout must be positive, got %s", o.StatementTimeout))
	}
	if o.ForecastDays <= 0 {
		errs = append(errs, fmt.Errorf("forecast_days must be positive, got %d", o.ForecastDays))
	}
	if o.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold must not be negative, got %g", o.Threshold))
	}
	if o.MaxWidgetConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("max_widget_concurrency must be positive, got %d", o.MaxWidgetConcurrency))
	}
	if strings.TrimSpace(o.Locale) == "" {
		errs = append(errs, errors.New("locale is required"))
	}
	return errors.Join(errs...)
}

// DataSource selects the database queried by compiled statements.
type DataSource struct {
	// Driver is "sqlite", "postgres" or "mock".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Schema selects where the schema snapshot comes from.
type Schema struct {
	// Source is "cue" (Path is a CUE or JSON file) or "introspect" (the
	// data source is inspected).
	Source string `yaml:"source"`
	Path   string `yaml:"path"`

	// Namespace is the PostgreSQL schema to introspect.
	Namespace string `yaml:"namespace"`
}

// Store is the local SQLite database holding the audit log and saved
// queries.
type Store struct {
	Path string `yaml:"path"`
}

// Saved selects the saved-query backend.
type Saved struct {
	// Backend is "sqlite" (the local store) or "s3".
	Backend  string `yaml:"backend"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// File is the layout of a tql.yaml configuration file.
type File struct {
	Options    Options    `yaml:"options"`
	DataSource DataSource `yaml:"datasource"`
	Schema     Schema     `yaml:"schema"`
	Store      Store      `yaml:"store"`
	Saved      Saved      `yaml:"saved"`
}

// DefaultFile returns the configuration used when no file is given.
func DefaultFile() *File {
	return &File{
		Options:    Default(),
		DataSource: DataSource{Driver: "mock"},
		Schema:     Schema{Source: "cue", Path: "schema.cue"},
		Store:      Store{Path: "tql.db"},
		Saved:      Saved{Backend: "sqlite", Prefix: "tql/saved/"},
	}
}

// Validate checks the whole file.
func (f *File) Validate() error {
	var errs []error
	if err := f.Options.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("options: %w", err))
	}
	switch f.DataSource.Driver {
	case "mock":
	case "sqlite", "postgres":
		if f.DataSource.DSN == "" {
			errs = append(errs, fmt.Errorf("datasource: dsn is required for driver %s", f.DataSource.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("datasource: unknown driver %q (want sqlite, postgres or mock)", f.DataSource.Driver))
	}
	switch f.Schema.Source {
	case "cue":
		if f.Schema.Path == "" {
			errs = append(errs, errors.New("schema: path is required for source cue"))
		}
	case "introspect":
		if f.DataSource.Driver == "mock" {
			errs = append(errs, errors.New("schema: introspect needs a sqlite or postgres datasource"))
		}
	default:
		errs = append(errs, fmt.Errorf("schema: unknown source %q (want cue or introspect)", f.Schema.Source))
	}
	switch f.Saved.Backend {
	case "sqlite":
	case "s3":
		if f.Saved.Bucket == "" {
			errs = append(errs, errors.New("saved: bucket is required for backend s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("saved: unknown backend %q (want sqlite or s3)", f.Saved.Backend))
	}
	return errors.Join(errs...)
}

// Load reads a configuration file. Fields absent from the file keep their
// defaults; unknown fields are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration over the defaults.
func Parse(data []byte) (*File, error) {
	f := DefaultFile()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return f, nil
}
