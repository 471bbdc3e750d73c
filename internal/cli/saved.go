package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tql/internal/parser"
	"github.com/roach88/tql/internal/saved"
)

// SaveOptions holds flags for saved save.
type SaveOptions struct {
	*RootOptions
	ID          string
	Name        string
	Description string
	Tags        []string
	File        string
	Force       bool // store TQL that does not parse
}

// NewSavedCommand creates the saved command and its subcommands.
func NewSavedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "Manage saved queries and dashboards",
		Long: `Save, list, show and delete named TQL scripts. Saved scripts can be
executed with "tql run --saved <id>".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newSavedSaveCommand(rootOpts))
	cmd.AddCommand(newSavedGetCommand(rootOpts))
	cmd.AddCommand(newSavedListCommand(rootOpts))
	cmd.AddCommand(newSavedDeleteCommand(rootOpts))

	return cmd
}

func newSavedSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save [tql...]",
		Short: "Create or replace a saved query",
		Long: `Store a TQL script under a name. Without --id a new query is created;
with --id the stored query is replaced and keeps its creation time.

Examples:
  tql saved save --name "Receita do mês" "SOMAR valor DE vendas ONDE data EM MES(0)"
  tql saved save --id 0192... --name Painel --tag vendas -f painel.tql`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSavedSave(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "replace the query with this ID")
	cmd.Flags().StringVar(&opts.Name, "name", "", "query name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "free-form description")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read TQL from file (- for stdin)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "save even if the TQL does not parse")

	return cmd
}

func runSavedSave(opts *SaveOptions, args []string, cmd *cobra.Command) error {
	ctx := cmdContext(cmd)
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	src, err := ReadSource(args, opts.File, cmd.InOrStdin())
	if err != nil {
		return failLoad(formatter, err)
	}
	if !opts.Force {
		if _, err := parser.Parse(src); err != nil {
			return outputScriptError(formatter, err, src)
		}
	}

	env, err := OpenEnvironment(ctx, opts.RootOptions, OpenFull)
	if err != nil {
		return failLoad(formatter, err)
	}
	defer env.Close()

	id, err := env.Saved.Save(ctx, saved.Query{
		ID:          opts.ID,
		Name:        opts.Name,
		TQL:         src,
		Description: opts.Description,
		Tags:        opts.Tags,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to save query: %v", err), err)
	}
	q, err := env.Saved.Get(ctx, id)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to read back query %s: %v", id, err), err)
	}

	if formatter.IsJSON() {
		return formatter.Success(q)
	}
	fmt.Fprintf(formatter.Writer, "✓ Saved %q (%s, %s)\n", q.Name, q.ID, q.QueryType)
	return nil
}

func newSavedGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <id>",
		Short:         "Show a saved query",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			formatter := NewOutputFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			env, err := OpenEnvironment(ctx, rootOpts, OpenFull)
			if err != nil {
				return failLoad(formatter, err)
			}
			defer env.Close()

			q, err := env.Saved.Get(ctx, args[0])
			if err != nil {
				return failLoad(formatter, savedLoadError(args[0], err))
			}

			if formatter.IsJSON() {
				return formatter.Success(q)
			}
			w := formatter.Writer
			fmt.Fprintf(w, "%s (%s)\n", q.Name, q.ID)
			fmt.Fprintf(w, "  type:    %s\n", q.QueryType)
			if len(q.Tags) > 0 {
				fmt.Fprintf(w, "  tags:    %s\n", strings.Join(q.Tags, ", "))
			}
			if q.Description != "" {
				fmt.Fprintf(w, "  about:   %s\n", q.Description)
			}
			fmt.Fprintf(w, "  updated: %s\n", q.UpdatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintln(w)
			fmt.Fprintln(w, q.TQL)
			return nil
		},
	}
}

func newSavedListCommand(rootOpts *RootOptions) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List saved queries, oldest first",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			formatter := NewOutputFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			env, err := OpenEnvironment(ctx, rootOpts, OpenFull)
			if err != nil {
				return failLoad(formatter, err)
			}
			defer env.Close()

			qs, err := env.Saved.List(ctx)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list saved queries", err)
			}
			qs = filterByTag(qs, tag)

			if formatter.IsJSON() {
				return formatter.Success(qs)
			}
			if len(qs) == 0 {
				fmt.Fprintln(formatter.Writer, "No saved queries")
				return nil
			}
			for _, q := range qs {
				fmt.Fprintf(formatter.Writer, "%s  %-9s %s", q.ID, q.QueryType, q.Name)
				if len(q.Tags) > 0 {
					fmt.Fprintf(formatter.Writer, " [%s]", strings.Join(q.Tags, ", "))
				}
				fmt.Fprintln(formatter.Writer)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "only queries with this tag")

	return cmd
}

func newSavedDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a saved query",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			formatter := NewOutputFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			env, err := OpenEnvironment(ctx, rootOpts, OpenFull)
			if err != nil {
				return failLoad(formatter, err)
			}
			defer env.Close()

			if err := env.Saved.Delete(ctx, args[0]); err != nil {
				return failLoad(formatter, savedLoadError(args[0], err))
			}

			if formatter.IsJSON() {
				return formatter.Success(map[string]string{"deleted": args[0]})
			}
			fmt.Fprintf(formatter.Writer, "✓ Deleted %s\n", args[0])
			return nil
		},
	}
}

func filterByTag(qs []saved.Query, tag string) []saved.Query {
	if tag == "" {
		return qs
	}
	out := []saved.Query{}
	for _, q := range qs {
		for _, t := range q.Tags {
			if t == tag {
				out = append(out, q)
				break
			}
		}
	}
	return out
}

// savedLoadError maps a saved-store failure for id to a LoadError.
func savedLoadError(id string, err error) *LoadError {
	if saved.IsNotFound(err) {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("saved query not found: %s", id)}
	}
	return &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("failed to read saved query %s", id), Err: err}
}
