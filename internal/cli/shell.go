package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/tql/internal/engine"
	"github.com/roach88/tql/internal/suggest"
)

// ShellOptions holds flags for the shell command.
type ShellOptions struct {
	*RootOptions
	User string
}

const shellHelp = `Enter TQL and press return to run it. End a line with \ to continue
the script on the next line.

Commands:
  \cache clear     drop every cached result
  \cache stats     show cache hits, misses and size
  \audit [n]       show the last n audit records (default 10)
  \suggest <tql>   list completions at the end of <tql>
  \metrics         print engine metrics
  \help            show this help
  \q               quit`

// NewShellCommand creates the interactive shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShellOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run TQL interactively against one engine",
		Long: `Start an interactive session. Every script runs on the same engine, so
results cached by one script are served to the next until they expire
or the cache is cleared.

` + shellHelp,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "user recorded in the audit log")

	return cmd
}

type shell struct {
	opts      *ShellOptions
	env       *Environment
	eng       *engine.Engine
	formatter *OutputFormatter
	out       io.Writer
}

func runShell(opts *ShellOptions, cmd *cobra.Command) error {
	ctx := cmdContext(cmd)
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	env, err := OpenEnvironment(ctx, opts.RootOptions, OpenFull)
	if err != nil {
		return failLoad(formatter, err)
	}
	defer env.Close()

	eng, err := env.Engine()
	if err != nil {
		return failLoad(formatter, err)
	}
	defer eng.Close()

	sh := &shell{opts: opts, env: env, eng: eng, formatter: formatter, out: cmd.OutOrStdout()}
	in := cmd.InOrStdin()
	interactive := isTerminal(in)
	if interactive {
		fmt.Fprintln(sh.out, `TQL shell. \help for commands, \q to quit.`)
	}

	scanner := bufio.NewScanner(in)
	var pending strings.Builder
	for {
		if interactive {
			if pending.Len() > 0 {
				fmt.Fprint(sh.out, "...> ")
			} else {
				fmt.Fprint(sh.out, "tql> ")
			}
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if cont, ok := strings.CutSuffix(line, `\`); ok && !strings.HasPrefix(strings.TrimSpace(line), `\`) {
			pending.WriteString(cont)
			pending.WriteString("\n")
			continue
		}
		pending.WriteString(line)
		input := strings.TrimSpace(pending.String())
		pending.Reset()

		switch {
		case input == "":
			continue
		case strings.HasPrefix(input, `\`):
			if quit := sh.meta(cmd, input); quit {
				return nil
			}
		default:
			sh.run(cmd, input)
		}
	}
	if err := scanner.Err(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeReadFailed, "failed to read input", err)
	}
	return nil
}

// run executes one script. Failures are printed, never returned, so the
// session continues.
func (sh *shell) run(cmd *cobra.Command, src string) {
	res, err := sh.eng.Run(cmdContext(cmd), src, engine.Request{UserID: sh.opts.User})
	resp := sh.eng.Respond(src, res, err)
	if sh.formatter.IsJSON() {
		_ = sh.formatter.JSON(resp)
		return
	}
	writeResponseText(sh.out, resp, src)
}

// meta runs a backslash command and reports whether the session ends.
func (sh *shell) meta(cmd *cobra.Command, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case `\q`, `\quit`:
		return true
	case `\help`, `\?`:
		fmt.Fprintln(sh.out, shellHelp)
	case `\cache`:
		sh.cache(fields[1:])
	case `\audit`:
		sh.audit(cmd, fields[1:])
	case `\suggest`:
		sh.suggest(cmd, strings.TrimSpace(strings.TrimPrefix(input, `\suggest`)))
	case `\metrics`:
		sh.metrics()
	default:
		fmt.Fprintf(sh.out, "unknown command %s (\\help for commands)\n", fields[0])
	}
	return false
}

func (sh *shell) cache(args []string) {
	sub := "stats"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "clear":
		n := sh.eng.ClearCache()
		fmt.Fprintf(sh.out, "✓ Cleared %d cached result(s)\n", n)
	case "stats":
		st := sh.eng.CacheStats()
		if sh.formatter.IsJSON() {
			_ = sh.formatter.JSON(st)
			return
		}
		fmt.Fprintf(sh.out, "entries=%d hits=%d misses=%d expired=%d evictions=%d\n",
			st.Entries, st.Hits, st.Misses, st.Expired, st.Evictions)
	default:
		fmt.Fprintf(sh.out, "usage: \\cache clear|stats\n")
	}
}

func (sh *shell) audit(cmd *cobra.Command, args []string) {
	ctx := cmdContext(cmd)
	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			fmt.Fprintf(sh.out, "usage: \\audit [n]\n")
			return
		}
		n = v
	}
	total, err := sh.env.Audit.Count(ctx)
	if err != nil {
		fmt.Fprintf(sh.out, "✗ %v\n", err)
		return
	}
	offset := max(total-n, 0)
	records, err := sh.env.Audit.List(ctx, offset, n)
	if err != nil {
		fmt.Fprintf(sh.out, "✗ %v\n", err)
		return
	}
	result := AuditResult{Records: records, Stats: AuditStats{Total: total}}
	if sh.formatter.IsJSON() {
		_ = sh.formatter.JSON(result)
		return
	}
	outputAuditText(sh.formatter, result, offset)
}

func (sh *shell) suggest(cmd *cobra.Command, partial string) {
	snapshot, err := sh.env.Schemas.GetSchema(cmdContext(cmd))
	if err != nil {
		snapshot = nil
	}
	suggestions := suggest.Suggest(partial, len(partial), snapshot)
	if sh.formatter.IsJSON() {
		_ = sh.formatter.JSON(suggestions)
		return
	}
	labels := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		labels = append(labels, s.Label)
	}
	fmt.Fprintln(sh.out, strings.Join(labels, "  "))
}

func (sh *shell) metrics() {
	families, err := sh.env.Registry.Gather()
	if err != nil {
		fmt.Fprintf(sh.out, "✗ %v\n", err)
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(sh.out, mf); err != nil {
			fmt.Fprintf(sh.out, "✗ %v\n", err)
			return
		}
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
