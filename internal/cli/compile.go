package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tql/internal/engine"
	"github.com/roach88/tql/internal/ir"
	"github.com/roach88/tql/internal/parser"
	"github.com/roach88/tql/internal/queryir"
	"github.com/roach88/tql/internal/querysql"
	"github.com/roach88/tql/internal/resolver"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	File   string // read TQL from this file ("-" for stdin)
	Output string // output file path
}

// CompiledQueryOutput is one query of a statement.
type CompiledQueryOutput struct {
	Widget *int       `json:"widget,omitempty"`
	SQL    string     `json:"sql"`
	Params []ir.Param `json:"params"`
	Shape  ir.Shape   `json:"shape"`
	Post   string     `json:"post,omitempty"`
}

// CompiledStatementOutput is one compiled statement.
type CompiledStatementOutput struct {
	Index     int                   `json:"index"`
	QueryType queryir.QueryType     `json:"queryType"`
	Target    string                `json:"target,omitempty"`
	Text      string                `json:"text"`
	Shape     ir.Shape              `json:"shape"`
	Deps      []string              `json:"deps,omitempty"`
	Queries   []CompiledQueryOutput `json:"queries"`
}

// CompilationResult holds the compiled statements of a script.
type CompilationResult struct {
	QueryType  queryir.QueryType         `json:"queryType"`
	Now        time.Time                 `json:"now"`
	Statements []CompiledStatementOutput `json:"statements"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [tql...]",
		Short: "Compile TQL to parameterized SQL",
		Long: `Compile a TQL script to the SQL the engine would run, without executing it.

Every literal and temporal bound is shown as a bound parameter. Temporal
functions are evaluated against the current time.

Examples:
  tql compile "SOMAR valor DE vendas ONDE data EM MES(0)"
  tql compile -f relatorio.tql -o relatorio.json
  tql compile -f - --format json < relatorio.tql`,
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read TQL from file (- for stdin)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	src, err := ReadSource(args, opts.File, cmd.InOrStdin())
	if err != nil {
		return failLoad(formatter, err)
	}

	env, err := OpenEnvironment(cmdContext(cmd), opts.RootOptions, OpenSchemaOnly)
	if err != nil {
		return failLoad(formatter, err)
	}
	defer env.Close()

	prog, err := compileSource(cmdContext(cmd), env, src)
	if err != nil {
		return outputScriptError(formatter, err, src)
	}
	formatter.VerboseLog("Compiled %d statement(s) at %s", len(prog.Statements), prog.Now.Format(time.RFC3339))

	result := BuildCompilationResult(prog)
	if opts.Output != "" {
		if err := writeJSONFile(result, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), err)
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	outputCompileText(formatter, result, opts.Output)
	return nil
}

// compileSource parses, resolves and compiles src against the current
// schema of env.
func compileSource(ctx context.Context, env *Environment, src string) (*querysql.Program, error) {
	script, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	snapshot, err := env.Schemas.GetSchema(ctx)
	if err != nil {
		return nil, err
	}
	resolved, err := resolver.Resolve(script, snapshot)
	if err != nil {
		return nil, err
	}
	return querysql.NewCompiler(env.Now).Compile(resolved)
}

// BuildCompilationResult converts a program to its output form.
func BuildCompilationResult(prog *querysql.Program) CompilationResult {
	result := CompilationResult{
		QueryType:  prog.QueryType,
		Now:        prog.Now.UTC(),
		Statements: make([]CompiledStatementOutput, 0, len(prog.Statements)),
	}
	for _, cs := range prog.Statements {
		out := CompiledStatementOutput{
			Index:     cs.Index,
			QueryType: cs.Kind.QueryType(),
			Target:    cs.Target,
			Text:      cs.RawText,
			Shape:     cs.Shape,
			Deps:      cs.Deps,
			Queries:   []CompiledQueryOutput{},
		}
		if cs.Plan != nil {
			for _, q := range planQueries(cs.Plan) {
				out.Queries = append(out.Queries, queryOutput(q, nil))
			}
		}
		for _, w := range cs.Widgets {
			idx := w.Widget.Index
			for _, q := range planQueries(w.Plan) {
				out.Queries = append(out.Queries, queryOutput(q, &idx))
			}
		}
		result.Statements = append(result.Statements, out)
	}
	return result
}

func planQueries(p querysql.Plan) []*querysql.CompiledQuery {
	return (&querysql.CompiledStatement{Plan: p}).Queries()
}

func queryOutput(q *querysql.CompiledQuery, widget *int) CompiledQueryOutput {
	out := CompiledQueryOutput{
		Widget: widget,
		SQL:    q.SQL,
		Params: q.Params,
		Shape:  q.Shape,
	}
	if q.Post.Kind != querysql.PostNone {
		out.Post = q.Post.String()
	}
	return out
}

func outputCompileText(formatter *OutputFormatter, result CompilationResult, outputFile string) {
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d statement(s) (%s)\n", len(result.Statements), result.QueryType)

	for _, st := range result.Statements {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "[%d] %s", st.Index+1, st.QueryType)
		if st.Target != "" {
			fmt.Fprintf(w, " %s", st.Target)
		}
		fmt.Fprintf(w, " (%s)\n", st.Shape)
		if len(st.Queries) == 0 {
			fmt.Fprintln(w, "  (no queries)")
		}
		for _, q := range st.Queries {
			prefix := "  "
			if q.Widget != nil {
				prefix = fmt.Sprintf("  widget %d: ", *q.Widget)
			}
			fmt.Fprintf(w, "%s%s\n", prefix, q.SQL)
			for _, p := range q.Params {
				fmt.Fprintf(w, "    :%s = %s\n", p.Name, formatParam(p.Value))
			}
			if q.Post != "" {
				fmt.Fprintf(w, "    post: %s\n", q.Post)
			}
		}
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote compiled SQL to %s\n", outputFile)
	}
}

func formatParam(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return strconv.Quote(val)
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// outputScriptError reports a parse, semantic or compile error with its
// position. Script errors exit with ExitFailure.
func outputScriptError(formatter *OutputFormatter, err error, src string) error {
	info := engine.ErrorInfoFrom(err)
	if formatter.IsJSON() {
		_ = formatter.Error(info.Code, info.Message, info)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %s\n", info.Code)
		writeErrorLocation(formatter.Writer, info, src)
	}
	return WrapExitError(ExitFailure, info.Code, err)
}

// writeJSONFile writes v to filename as indented JSON.
func writeJSONFile(v any, filename string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// cmdContext returns the command context, or Background when unset.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
