package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/tql/internal/audit"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Offset  int
	Limit   int
	Outcome string // optional - filter to one outcome
	User    string // optional - filter to one user
}

// AuditResult holds one page of the audit trail.
type AuditResult struct {
	Records []audit.Record `json:"records"`
	Stats   AuditStats     `json:"stats"`
}

// AuditStats summarizes the whole trail, not just the page.
type AuditStats struct {
	Total     int                   `json:"total"`
	ByOutcome map[audit.Outcome]int `json:"byOutcome,omitempty"`
}

// outcomeCounter is implemented by logs that can aggregate by outcome.
type outcomeCounter interface {
	CountByOutcome(ctx context.Context) (map[audit.Outcome]int, error)
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit records of executed statements",
		Long: `List the audit trail, oldest first. Every executed statement and
dashboard widget has one record with its outcome, duration and user.

Examples:
  tql audit --config tql.yaml
  tql audit --limit 20 --offset 40
  tql audit --outcome error --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "skip this many records")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum records to list (0 for all)")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "filter to outcome (success, cache_hit, error, timeout, unresolved)")
	cmd.Flags().StringVar(&opts.User, "user", "", "filter to user")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	ctx := cmdContext(cmd)
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Offset < 0 || opts.Limit < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "offset and limit must not be negative", nil)
	}
	if opts.Outcome != "" && !validOutcome(audit.Outcome(opts.Outcome)) {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("unknown outcome %q", opts.Outcome), nil)
	}

	env, err := OpenEnvironment(ctx, opts.RootOptions, OpenFull)
	if err != nil {
		return failLoad(formatter, err)
	}
	defer env.Close()

	records, err := env.Audit.List(ctx, opts.Offset, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list audit records", err)
	}
	records = filterRecords(records, audit.Outcome(opts.Outcome), opts.User)

	stats, err := auditStats(ctx, env.Audit)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to count audit records", err)
	}

	result := AuditResult{Records: records, Stats: stats}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	outputAuditText(formatter, result, opts.Offset)
	return nil
}

func validOutcome(o audit.Outcome) bool {
	switch o {
	case audit.OutcomeSuccess, audit.OutcomeCacheHit, audit.OutcomeError, audit.OutcomeTimeout, audit.OutcomeUnresolved:
		return true
	}
	return false
}

// filterRecords keeps the records matching outcome and user; empty
// filters match everything.
func filterRecords(records []audit.Record, outcome audit.Outcome, user string) []audit.Record {
	if outcome == "" && user == "" {
		return records
	}
	out := []audit.Record{}
	for _, r := range records {
		if outcome != "" && r.Outcome != outcome {
			continue
		}
		if user != "" && r.UserID != user {
			continue
		}
		out = append(out, r)
	}
	return out
}

func auditStats(ctx context.Context, log audit.Log) (AuditStats, error) {
	total, err := log.Count(ctx)
	if err != nil {
		return AuditStats{}, err
	}
	stats := AuditStats{Total: total}
	if c, ok := log.(outcomeCounter); ok {
		if stats.ByOutcome, err = c.CountByOutcome(ctx); err != nil {
			return AuditStats{}, err
		}
	}
	return stats, nil
}

func outputAuditText(formatter *OutputFormatter, result AuditResult, offset int) {
	w := formatter.Writer
	if len(result.Records) == 0 {
		fmt.Fprintf(w, "No audit records (%d total)\n", result.Stats.Total)
		return
	}

	fmt.Fprintf(w, "Audit records %d-%d of %d\n\n", offset+1, offset+len(result.Records), result.Stats.Total)
	for _, r := range result.Records {
		fmt.Fprintf(w, "%s  %-10s %-9s stmt=%d", r.Timestamp.Format("2006-01-02 15:04:05"), r.QueryType, r.Outcome, r.StatementIndex+1)
		if r.WidgetIndex != nil {
			fmt.Fprintf(w, " widget=%d", *r.WidgetIndex+1)
		}
		fmt.Fprintf(w, " %dms", r.DurationMs)
		if r.UserID != "" {
			fmt.Fprintf(w, " user=%s", r.UserID)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "    %s\n", r.RawStatement)
		if r.Error != "" {
			fmt.Fprintf(w, "    ✗ %s\n", r.Error)
		}
	}

	if len(result.Stats.ByOutcome) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "By outcome:")
		outcomes := make([]string, 0, len(result.Stats.ByOutcome))
		for o := range result.Stats.ByOutcome {
			outcomes = append(outcomes, string(o))
		}
		sort.Strings(outcomes)
		for _, o := range outcomes {
			fmt.Fprintf(w, "  %-10s %d\n", o, result.Stats.ByOutcome[audit.Outcome(o)])
		}
	}
}
