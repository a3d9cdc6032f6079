package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// SweepCmd returns the sweep command
func SweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run a single timeout sweep and print what it did",
		Long: `Run one pass of the timeout sweep against the configured store.

Expired requests are escalated to the next supervisor or closed as
unresolved. Notifications queued by the sweep are delivered before the
command exits. Useful from cron when the API server runs without a sweep.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			rt, err := bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.pool.Start()
			report, sweepErr := rt.lifecycle.Sweep(ctx)

			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := rt.pool.Stop(drainCtx); err != nil {
				logger.Sugar().Warnw("notification queue not drained", "error", err)
			}
			if sweepErr != nil {
				return sweepErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "examined %d expired request(s) in %s\n",
				report.Examined, report.FinishedAt.Sub(report.StartedAt))
			fmt.Fprintf(out, "  %s %v\n", color.New(color.FgYellow).Sprint("escalated: "), report.Escalated)
			fmt.Fprintf(out, "  %s %v\n", color.New(color.FgRed).Sprint("unresolved:"), report.Unresolved)
			if len(report.Skipped) > 0 {
				fmt.Fprintf(out, "  %s %v\n", color.New(color.Faint).Sprint("skipped:   "), report.Skipped)
			}
			if len(report.Failed) > 0 {
				ids := make([]int64, 0, len(report.Failed))
				for id := range report.Failed {
					ids = append(ids, id)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
				for _, id := range ids {
					fmt.Fprintf(out, "  %s #%d: %s\n", color.New(color.FgRed, color.Bold).Sprint("failed:"), id, report.Failed[id])
				}
				return fmt.Errorf("%d request(s) failed during sweep", len(report.Failed))
			}
			return nil
		},
	}
}
