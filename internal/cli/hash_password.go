package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helpline/escalation-service/internal/auth"
	"github.com/helpline/escalation-service/internal/config"
)

// HashPasswordCmd returns the hash-password command
func HashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for a supervisor roster entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			hash, err := auth.HashPassword(args[0], cfg.Auth.BcryptCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
