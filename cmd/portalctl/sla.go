package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/grievance-portal/internal/app"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/service"
)

// operator acts for the CLI. Audit entries written under it carry no
// employee id.
var operator = service.Actor{ID: 0, Role: domain.EmployeeRoleAdmin}

var (
	sweepLimit int
	checkAt    string
)

var slaCmd = &cobra.Command{
	Use:   "sla",
	Short: "Inspect and enforce SLA deadlines",
}

var slaSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Escalate every active issue past its deadline once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
			limit := sweepLimit
			if limit <= 0 {
				limit = svc.Config.Issue.SLASweepBatchSize
			}
			result, err := svc.Issues.SweepBreaches(ctx, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{
				"scanned":   result.Scanned,
				"escalated": result.Escalated,
				"failed":    result.Failed,
			})
		})
	},
}

var slaCheckCmd = &cobra.Command{
	Use:   "check <issue-id>",
	Short: "Show the SLA report for an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid issue id %q", args[0])
		}
		var at time.Time
		if checkAt != "" {
			if at, err = time.Parse(time.RFC3339, checkAt); err != nil {
				return fmt.Errorf("--at must be RFC3339: %w", err)
			}
		}
		return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
			report, err := svc.Issues.GetSLAStatus(ctx, operator, issueID, at)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"issue_id":        issueID,
				"status":          report.Status,
				"deadline":        report.Deadline,
				"remaining_hours": report.RemainingHours,
				"tier_hours":      report.TierHours,
			})
		})
	},
}

func init() {
	slaSweepCmd.Flags().IntVar(&sweepLimit, "limit", 0, "maximum issues to scan (default SLA_SWEEP_BATCH_SIZE)")
	slaCheckCmd.Flags().StringVar(&checkAt, "at", "", "evaluate at this RFC3339 instant instead of now")
	slaCmd.AddCommand(slaSweepCmd, slaCheckCmd)
}
