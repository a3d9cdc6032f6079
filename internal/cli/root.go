package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helpline/escalation-service/internal/config"
	"github.com/helpline/escalation-service/internal/observability"
)

// NewRootCommand assembles the escalation-service command tree.
func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "escalation-service",
		Short:   "Help-request lifecycle and supervisor escalation service",
		Version: version,
		Long: `escalation-service tracks customer help requests that an assistant could not
answer, escalates them through the supervisor team when they time out, and
reports resolution statistics.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(MigrateCmd())
	rootCmd.AddCommand(SweepCmd())
	rootCmd.AddCommand(StatsCmd())
	rootCmd.AddCommand(HashPasswordCmd())
	return rootCmd
}

// loadEnvironment reads configuration and builds the process logger.
func loadEnvironment() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}
