package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tql/internal/datasource"
	"github.com/roach88/tql/internal/schema"
	"github.com/roach88/tql/internal/store"
	"github.com/roach88/tql/internal/testutil"
)

// newTestEnv returns an environment over the sales schema and mock, with
// in-memory stores and the reference clock.
func newTestEnv(mock *datasource.Mock) *Environment {
	env := NewEnvironment(nil, schema.NewStatic(testutil.SalesSchema()), datasource.Static(mock), nil, nil)
	env.Now = testutil.NewReferenceClock().Now
	return env
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "q.tql", "CONTAR * DE vendas")

	tests := []struct {
		name     string
		args     []string
		path     string
		stdin    string
		want     string
		wantCode string
	}{
		{name: "args joined", args: []string{"SOMAR", "valor DE vendas"}, want: "SOMAR valor DE vendas"},
		{name: "file", path: file, want: "CONTAR * DE vendas"},
		{name: "file wins over args", args: []string{"x"}, path: file, want: "CONTAR * DE vendas"},
		{name: "stdin", path: "-", stdin: "MEDIA valor DE vendas", want: "MEDIA valor DE vendas"},
		{name: "no input", wantCode: ErrCodeNoSource},
		{name: "blank args", args: []string{"  "}, wantCode: ErrCodeNoSource},
		{name: "missing file", path: filepath.Join(dir, "nope.tql"), wantCode: ErrCodeReadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadSource(tt.args, tt.path, strings.NewReader(tt.stdin))
			if tt.wantCode != "" {
				var le *LoadError
				require.ErrorAs(t, err, &le)
				assert.Equal(t, tt.wantCode, le.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("defaults without file", func(t *testing.T) {
		f, err := LoadConfig(&RootOptions{})
		require.NoError(t, err)
		assert.Equal(t, "mock", f.DataSource.Driver)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(&RootOptions{Config: filepath.Join(dir, "absent.yaml")})
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, ErrCodeNotFound, le.Code)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := writeFile(t, dir, "bad.yaml", "datasource:\n  driver: oracle\n")
		_, err := LoadConfig(&RootOptions{Config: path})
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, ErrCodeConfig, le.Code)
		assert.Contains(t, err.Error(), "oracle")
	})

	t.Run("valid file", func(t *testing.T) {
		path := writeFile(t, dir, "ok.yaml", "options:\n  forecast_days: 14\n")
		f, err := LoadConfig(&RootOptions{Config: path})
		require.NoError(t, err)
		assert.Equal(t, 14, f.Options.ForecastDays)
		assert.True(t, f.Options.UseCache, "unset options keep their defaults")
	})
}

func TestOpenEnvironment_MockWithStore(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.cue", `entities: pedidos: { total: "number", criado: "date" }`)
	cfg := writeFile(t, dir, "tql.yaml", strings.Join([]string{
		"schema:",
		"  source: cue",
		"  path: " + schemaPath,
		"store:",
		"  path: " + filepath.Join(dir, "tql.db"),
	}, "\n"))

	env, err := OpenEnvironment(context.Background(), &RootOptions{Config: cfg}, OpenFull)
	require.NoError(t, err)
	defer env.Close()

	snap, err := env.Schemas.GetSchema(context.Background())
	require.NoError(t, err)
	_, ok := snap.Entity("pedidos")
	assert.True(t, ok)

	assert.IsType(t, &store.AuditLog{}, env.Audit)
	assert.IsType(t, &store.SavedQueries{}, env.Saved)
}

func TestOpenEnvironment_SchemaOnlyKeepsMemoryStores(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "tql.yaml", "store:\n  path: "+filepath.Join(dir, "tql.db")+"\n")

	env, err := OpenEnvironment(context.Background(), &RootOptions{Config: cfg}, OpenSchemaOnly)
	require.NoError(t, err)
	defer env.Close()

	_, err = os.Stat(filepath.Join(dir, "tql.db"))
	assert.True(t, os.IsNotExist(err), "schema-only mode must not create the store")
}

func TestOpenEnvironment_SQLiteIntrospect(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "loja.db")

	db, err := datasource.Open("sqlite", dsn)
	require.NoError(t, err)
	_, err = db.DB().Exec(`CREATE TABLE pedidos (id INTEGER, total REAL, canal TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := writeFile(t, dir, "tql.yaml", strings.Join([]string{
		"datasource:",
		"  driver: sqlite",
		"  dsn: " + dsn,
		"schema:",
		"  source: introspect",
	}, "\n"))

	env, err := OpenEnvironment(context.Background(), &RootOptions{Config: cfg}, OpenSchemaOnly)
	require.NoError(t, err)
	defer env.Close()

	snap, err := env.Schemas.GetSchema(context.Background())
	require.NoError(t, err)
	e, ok := snap.Entity("pedidos")
	require.True(t, ok)
	assert.Len(t, e.Fields, 3)
}

func TestOpenEnvironment_Injected(t *testing.T) {
	injected := newTestEnv(datasource.NewMock())
	closed := false
	injected.closers = append(injected.closers, func() error { closed = true; return nil })

	env, err := OpenEnvironment(context.Background(), &RootOptions{Env: injected}, OpenFull)
	require.NoError(t, err)
	assert.Same(t, injected.Audit, env.Audit)
	require.NoError(t, env.Close())
	assert.False(t, closed, "closing a shared environment must not release its resources")
}

func TestEnvironment_EngineRegistersMetricsPerEngine(t *testing.T) {
	env := newTestEnv(datasource.NewMock())

	first, err := env.Engine()
	require.NoError(t, err)
	defer first.Close()
	second, err := env.Engine()
	require.NoError(t, err)
	defer second.Close()

	families, err := env.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
