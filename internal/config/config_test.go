package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	opts := Default()
	require.NoError(t, opts.Validate())
	assert.True(t, opts.UseCache)
	assert.Equal(t, "R$", opts.Currency)
	assert.Equal(t, "pt-BR", opts.Locale)
	require.NoError(t, DefaultFile().Validate())
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		want   string
	}{
		{"negative ttl", func(o *Options) { o.CacheTTL = -time.Second }, "cache_ttl"},
		{"zero cache size", func(o *Options) { o.CacheSize = 0 }, "cache_size"},
		{"zero timeout", func(o *Options) { o.StatementTimeout = 0 }, "statement_timeout"},
		{"zero forecast", func(o *Options) { o.ForecastDays = 0 }, "forecast_days"},
		{"negative threshold", func(o *Options) { o.Threshold = -1 }, "threshold"},
		{"zero concurrency", func(o *Options) { o.MaxWidgetConcurrency = 0 }, "max_widget_concurrency"},
		{"empty locale", func(o *Options) { o.Locale = " " }, "locale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Default()
			tt.mutate(&opts)
			err := opts.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOptions_CacheSizeIgnoredWithoutCache(t *testing.T) {
	opts := Default()
	opts.UseCache = false
	opts.CacheSize = 0
	assert.NoError(t, opts.Validate())
}

func TestParse_OverridesDefaults(t *testing.T) {
	f, err := Parse([]byte(`
options:
  cache_ttl: 90s
  statement_timeout: 2s
  forecast_days: 14
  threshold: 2.5
  execute_partial: true
datasource:
  driver: sqlite
  dsn: file:vendas.db
schema:
  source: introspect
saved:
  backend: s3
  bucket: tql-saved
`))
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, f.Options.CacheTTL)
	assert.Equal(t, 2*time.Second, f.Options.StatementTimeout)
	assert.Equal(t, 14, f.Options.ForecastDays)
	assert.Equal(t, 2.5, f.Options.Threshold)
	assert.True(t, f.Options.ExecutePartial)
	assert.Equal(t, 1024, f.Options.CacheSize, "absent fields keep defaults")
	assert.Equal(t, "sqlite", f.DataSource.Driver)
	assert.Equal(t, "tql/saved/", f.Saved.Prefix)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFile(), f)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("options:\n  use_cahce: false\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use_cahce")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"driver", "datasource:\n  driver: oracle\n", "unknown driver"},
		{"dsn", "datasource:\n  driver: postgres\n", "dsn is required"},
		{"introspect mock", "schema:\n  source: introspect\n", "introspect needs"},
		{"bucket", "saved:\n  backend: s3\n", "bucket is required"},
		{"options", "options:\n  forecast_days: -1\n", "forecast_days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("options:\n  currency: US$\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "US$", f.Options.Currency)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
