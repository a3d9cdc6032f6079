package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/service"
)

// StatsCmd returns the stats command
func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print help-request statistics from the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			rt, err := openStore(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := service.NewStatisticsService(rt.repo, nil, 0, logger).GetStatistics(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			header := color.New(color.Bold)
			fmt.Fprintf(out, "%s %d\n", header.Sprint("Total requests:"), stats.TotalRequests)
			fmt.Fprintln(out, header.Sprint("By status:"))
			for _, status := range domain.AllStatuses {
				fmt.Fprintf(out, "  %s %d\n", statusColor(status).Sprintf("%-12s", status), stats.StatusCounts[status])
			}
			fmt.Fprintln(out, header.Sprint("By priority:"))
			for _, priority := range domain.AllPriorities {
				fmt.Fprintf(out, "  %-12s %d\n", priority, stats.PriorityCounts[priority])
			}
			fmt.Fprintf(out, "Avg resolution:       %.1f min\n", stats.AvgResolutionMinutes)
			fmt.Fprintf(out, "Timed out:            %d\n", stats.TimeoutCount)
			fmt.Fprintf(out, "Avg escalation level: %.1f\n", stats.AvgEscalationLevel)
			fmt.Fprintf(out, "Escalation success:   %s\n", successColor(stats.EscalationSuccessRate).Sprintf("%.1f%%", stats.EscalationSuccessRate))
			return nil
		},
	}
}

func statusColor(status domain.RequestStatus) *color.Color {
	switch status {
	case domain.StatusResolved:
		return color.New(color.FgGreen)
	case domain.StatusUnresolved:
		return color.New(color.FgRed)
	case domain.StatusTimeout:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func successColor(rate float64) *color.Color {
	switch {
	case rate >= 80:
		return color.New(color.FgGreen)
	case rate >= 50:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
