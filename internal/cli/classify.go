package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tql/internal/parser"
	"github.com/roach88/tql/internal/queryir"
)

// ClassificationResult is the query type of a script.
type ClassificationResult struct {
	QueryType queryir.QueryType `json:"queryType"`
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "classify [tql...]",
		Short: "Print the query type of a script (simple, variable or dashboard)",
		Long: `Classify a TQL script by its statements: dashboard when any statement
declares a dashboard, variable when any assigns a variable, simple
otherwise. Scripts that do not parse are classified by the statements
detected before the error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := NewOutputFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			src, err := ReadSource(args, file, cmd.InOrStdin())
			if err != nil {
				return failLoad(formatter, err)
			}
			result := ClassificationResult{QueryType: parser.Classify(src)}
			if formatter.IsJSON() {
				return formatter.Success(result)
			}
			fmt.Fprintln(formatter.Writer, result.QueryType)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read TQL from file (- for stdin)")

	return cmd
}
