package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sealtrack/pncp-radar/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pncp-radar",
	Short: "Security-seal tender discovery over the PNCP registry",
	Long:  "Crawls the Brazilian PNCP procurement registry, scores tenders against a security-seal vocabulary, verifies candidates via item sampling, and persists confirmed matches.",
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
