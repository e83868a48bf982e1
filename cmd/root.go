package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mentor-sync",
	Short: "Mentor reconciliation and ETL engine",
	Long: "Ingests mentor signups, setup forms and fundraising data, reconciles them into one canonical " +
		"record per mentor, logs every judgment call as a conflict and stages contacts for delivery.",
	SilenceUsage: true,
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
