package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tql/internal/config"
	"github.com/roach88/tql/internal/engine"
	"github.com/roach88/tql/internal/format"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	File    string
	Saved   string // run a saved query by ID instead of TQL
	User    string
	NoCache bool
	Partial bool
	Timeout time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [tql...]",
		Short: "Execute a TQL script",
		Long: `Execute a TQL script against the configured data source.

Statements run in order. A failing statement does not stop the script:
later statements that depend on it are reported as unresolved, the rest
still run. Every statement and dashboard widget is written to the audit
log.

Examples:
  tql run "SOMAR valor DE vendas ONDE data EM MES(0)"
  tql run -f painel.tql --user ana
  tql run --saved receita-mensal --no-cache
  tql run --config tql.yaml --timeout 5s -f relatorio.tql`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read TQL from file (- for stdin)")
	cmd.Flags().StringVar(&opts.Saved, "saved", "", "run the saved query with this ID")
	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "user recorded in the audit log")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "bypass the result cache")
	cmd.Flags().BoolVar(&opts.Partial, "partial", false, "run the valid prefix of a script that does not parse")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "statement timeout (0 uses the configured value)")

	return cmd
}

func runScript(opts *RunOptions, args []string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := OpenEnvironment(ctx, opts.RootOptions, OpenFull)
	if err != nil {
		return failLoad(formatter, err)
	}
	defer env.Close()

	src, err := scriptSource(ctx, env, opts, args, cmd.InOrStdin())
	if err != nil {
		return failLoad(formatter, err)
	}

	eng, err := env.Engine()
	if err != nil {
		return failLoad(formatter, err)
	}
	defer eng.Close()

	runOpts, err := opts.overrides(env.File.Options)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), err)
	}

	formatter.VerboseLog("Running %d byte(s) of TQL", len(src))
	res, runErr := eng.Run(ctx, src, engine.Request{UserID: opts.User, Options: runOpts})
	resp := eng.Respond(src, res, runErr)

	if formatter.IsJSON() {
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		writeResponseText(formatter.Writer, resp, src)
	}

	if !resp.Success {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", resp.Error.Code, resp.Error.Message))
	}
	return nil
}

// scriptSource returns the TQL to run: a saved query, a file or the
// arguments.
func scriptSource(ctx context.Context, env *Environment, opts *RunOptions, args []string, stdin io.Reader) (string, error) {
	if opts.Saved == "" {
		return ReadSource(args, opts.File, stdin)
	}
	q, err := env.Saved.Get(ctx, opts.Saved)
	if err != nil {
		return "", savedLoadError(opts.Saved, err)
	}
	return q.TQL, nil
}

// overrides returns the per-run options set by flags, or nil when no flag
// changes the configured ones.
func (opts *RunOptions) overrides(base config.Options) (*config.Options, error) {
	if !opts.NoCache && !opts.Partial && opts.Timeout == 0 {
		return nil, nil
	}
	o := base
	if opts.NoCache {
		o.UseCache = false
	}
	if opts.Partial {
		o.ExecutePartial = true
	}
	if opts.Timeout != 0 {
		o.StatementTimeout = opts.Timeout
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// writeResponseText prints a run response for a terminal.
func writeResponseText(w io.Writer, resp engine.Response, src string) {
	if resp.Data == nil {
		if resp.Error == nil {
			return
		}
		fmt.Fprintf(w, "✗ %s\n", resp.Error.Code)
		fmt.Fprintf(w, "  %s\n", resp.Error.Message)
		writeErrorLocation(w, resp.Error, src)
		return
	}

	for _, st := range resp.Data.Statements {
		writeStatementText(w, st)
	}
	if len(resp.Data.Unresolved) > 0 {
		fmt.Fprintf(w, "\nunresolved: %s\n", strings.Join(resp.Data.Unresolved, ", "))
	}
	if resp.Error != nil {
		fmt.Fprintf(w, "\n✗ %s: %s\n", resp.Error.Code, resp.Error.Message)
		writeErrorLocation(w, resp.Error, src)
	}
}

func writeStatementText(w io.Writer, st *engine.StatementResult) {
	fmt.Fprintf(w, "[%d] ", st.Index+1)
	if st.Target != "" {
		fmt.Fprintf(w, "%s = ", st.Target)
	}

	switch {
	case st.Error != nil:
		fmt.Fprintf(w, "✗ %s: %s\n", st.Error.Code, st.Error.Message)
	case st.Dashboard != nil:
		fmt.Fprintf(w, "dashboard %q (%s)%s\n", st.Dashboard.Name, st.Dashboard.ID, cacheNote(st))
		for _, wp := range st.Dashboard.Widgets {
			writeWidgetText(w, wp)
		}
	case st.Formatted != nil && st.Formatted.Scalar != nil:
		fmt.Fprintf(w, "%s%s\n", st.Formatted.Scalar.Display, cacheNote(st))
	case st.Formatted != nil:
		fmt.Fprintf(w, "%d row(s)%s\n", len(st.Formatted.Rows), cacheNote(st))
		writeTable(w, "    ", st.Formatted.Columns, st.Formatted.Rows)
	default:
		fmt.Fprintf(w, "%s\n", st.Outcome)
	}
}

func writeWidgetText(w io.Writer, wp format.WidgetPayload) {
	label := wp.Title
	if label == "" {
		label = string(wp.Kind)
	}
	switch {
	case wp.Error != nil:
		fmt.Fprintf(w, "    %s: ✗ %s: %s\n", label, wp.Error.Code, wp.Error.Message)
	case wp.Value != nil:
		fmt.Fprintf(w, "    %s: %s\n", label, wp.Value.Display)
	default:
		fmt.Fprintf(w, "    %s:", label)
		if wp.ChartType != "" {
			fmt.Fprintf(w, " %s", wp.ChartType)
		}
		fmt.Fprintln(w)
		writeTable(w, "      ", wp.Columns, wp.Rows)
	}
}

// writeTable prints rows aligned in columns.
func writeTable(w io.Writer, indent string, columns []string, rows [][]format.Cell) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s%s\n", indent, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = c.Display
		}
		fmt.Fprintf(tw, "%s%s\n", indent, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func cacheNote(st *engine.StatementResult) string {
	if st.CacheHit {
		return " (cached)"
	}
	return ""
}
