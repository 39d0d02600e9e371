package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-crm/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lead-crm",
	Short: "Lead intake and borrower sync for the loan CRM",
	Long:  "Screens phone numbers against partner lists and existing records, stores leads with their verdict, and keeps borrower reloan buckets in sync with upstream loan data.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
