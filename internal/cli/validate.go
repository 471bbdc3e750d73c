package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tql/internal/engine"
	"github.com/roach88/tql/internal/queryir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	File string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	QueryType  queryir.QueryType `json:"queryType"`
	Statements int               `json:"statements"`
	Error      *engine.ErrorInfo `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [tql...]",
		Short: "Check TQL syntax and names without running it",
		Long: `Parse a TQL script and check every entity, field and variable against
the schema. Nothing is sent to the data source.

On failure the offending statement is printed with the position of the
error and, for syntax errors, the tokens that were expected.`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read TQL from file (- for stdin)")

	return cmd
}

func runValidate(opts *ValidateOptions, args []string, cmd *cobra.Command) error {
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
		return outputValidationError(formatter, err, src)
	}

	result := ValidationResult{Valid: true, QueryType: prog.QueryType, Statements: len(prog.Statements)}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Valid: %d statement(s) (%s)\n", result.Statements, result.QueryType)
	return nil
}

// outputValidationError reports why a script is invalid.
// Validation failures exit with ExitFailure.
func outputValidationError(formatter *OutputFormatter, err error, src string) error {
	info := engine.ErrorInfoFrom(err)
	if formatter.IsJSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Error: info},
			Error:  &CLIError{Code: info.Code, Message: info.Message},
		}
		if encErr := formatter.JSON(response); encErr != nil {
			return encErr
		}
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	fmt.Fprintf(formatter.Writer, "  %s: %s\n", info.Code, info.Message)
	writeErrorLocation(formatter.Writer, info, src)
	return WrapExitError(ExitFailure, "validation failed", err)
}

// writeErrorLocation prints the statement and position of an error. When
// the position is known the source line is shown with a caret under the
// offending column.
func writeErrorLocation(w io.Writer, info *engine.ErrorInfo, src string) {
	if info.StatementIndex != nil {
		fmt.Fprintf(w, "  statement %d", *info.StatementIndex+1)
		if info.Position != nil {
			fmt.Fprintf(w, ", line %d, column %d", info.Position.Line, info.Position.Column)
		}
		fmt.Fprintln(w)
	}
	if line, ok := sourceLine(src, info.Position); ok {
		fmt.Fprintf(w, "    %s\n", line)
		fmt.Fprintf(w, "    %s^\n", strings.Repeat(" ", info.Position.Column-1))
	} else if info.Statement != "" {
		fmt.Fprintf(w, "    %s\n", strings.SplitN(info.Statement, "\n", 2)[0])
	}
	if len(info.Expected) > 0 {
		fmt.Fprintf(w, "  expected: %s\n", strings.Join(info.Expected, ", "))
	}
}

// sourceLine returns the line of src that pos points into.
func sourceLine(src string, pos *engine.Position) (string, bool) {
	if pos == nil || pos.Line <= 0 || pos.Column <= 0 {
		return "", false
	}
	lines := strings.Split(src, "\n")
	if pos.Line > len(lines) {
		return "", false
	}
	line := strings.TrimRight(lines[pos.Line-1], "\r")
	if pos.Column > len([]rune(line))+1 {
		return "", false
	}
	return line, true
}
