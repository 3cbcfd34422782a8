package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fedivid/recoserver/internal/config"
	"github.com/fedivid/recoserver/internal/database"
	"github.com/fedivid/recoserver/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "recoctl",
	Short: "recoctl - operate the recommendation engine",
	Long: `recoctl runs maintenance jobs against the recommendation engine's
database: popularity scoring, index snapshot builds, and similarity
cache warming.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		cfg = config.Load()
		if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := database.Initialize(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return database.Migrate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = database.Close()
		_ = logger.Close()
	},
}

func init() {
	rootCmd.AddCommand(popularityCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
