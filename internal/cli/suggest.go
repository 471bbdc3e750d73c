package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tql/internal/schema"
	"github.com/roach88/tql/internal/suggest"
)

// SuggestOptions holds flags for the suggest command.
type SuggestOptions struct {
	*RootOptions
	File   string
	Cursor int // byte offset; negative means end of input
	Limit  int
}

// NewSuggestCommand creates the suggest command.
func NewSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SuggestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "suggest [partial-tql...]",
		Short: "List completions for partial TQL",
		Long: `List the completions an editor would offer at the cursor: functions,
entities and fields from the schema, temporal functions, keywords and
common values, grouped by category.

Examples:
  tql suggest "SOMAR valor DE "
  tql suggest --cursor 6 "SOMAR valor DE vendas"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read partial TQL from file (- for stdin)")
	cmd.Flags().IntVar(&opts.Cursor, "cursor", -1, "cursor byte offset (default end of input)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of suggestions (0 for all)")

	return cmd
}

func runSuggest(opts *SuggestOptions, args []string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Empty input is valid here: it suggests statement starters.
	src := strings.Join(args, " ")
	if opts.File != "" {
		var err error
		if src, err = ReadSource(nil, opts.File, cmd.InOrStdin()); err != nil {
			return failLoad(formatter, err)
		}
	}

	env, err := OpenEnvironment(cmdContext(cmd), opts.RootOptions, OpenSchemaOnly)
	if err != nil {
		return failLoad(formatter, err)
	}
	defer env.Close()

	var snapshot *schema.Snapshot
	if env.Schemas != nil {
		snapshot, err = env.Schemas.GetSchema(cmdContext(cmd))
		if err != nil {
			slog.Warn("schema unavailable, suggesting without entities", "error", err)
			snapshot = nil
		}
	}

	cursor := opts.Cursor
	if cursor < 0 {
		cursor = len(src)
	}
	suggestions := suggest.Suggest(src, cursor, snapshot)
	if opts.Limit > 0 && len(suggestions) > opts.Limit {
		suggestions = suggestions[:opts.Limit]
	}

	if formatter.IsJSON() {
		return formatter.Success(suggestions)
	}
	if len(suggestions) == 0 {
		fmt.Fprintln(formatter.Writer, "No suggestions")
		return nil
	}
	category := ""
	for _, s := range suggestions {
		if s.Category != category {
			category = s.Category
			fmt.Fprintf(formatter.Writer, "%s\n", category)
		}
		if s.Detail != "" {
			fmt.Fprintf(formatter.Writer, "  %s %s  %s\n", s.Icon, s.Label, s.Detail)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s %s\n", s.Icon, s.Label)
		}
	}
	return nil
}
