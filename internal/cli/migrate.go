package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helpline/escalation-service/internal/config"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the help-request schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations to the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.Store.Driver == config.DriverMemory {
				return fmt.Errorf("the memory store has no schema to migrate")
			}
			rt, err := openStore(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			rt.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Store.Driver)
			return nil
		},
	})
	return cmd
}
