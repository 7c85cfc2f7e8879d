package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "time-capsule",
	Short: "Grade decade-old Hacker News front pages with hindsight",
	Long:  "Fetches a past Hacker News front page, its articles and comment threads, asks Claude how the discussion aged, and renders the grades as a static site.",
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
