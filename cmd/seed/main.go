package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fedivid/recoserver/internal/config"
	"github.com/fedivid/recoserver/internal/database"
	"github.com/fedivid/recoserver/internal/logger"
	"github.com/fedivid/recoserver/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if err := database.Initialize(); err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("failed to run migrations", zap.Error(err))
	}

	seeder := seed.NewSeeder(database.DB, cfg.EmbeddingDim)

	switch command {
	case "dev":
		if _, err := seeder.SeedDev(1000, 200, 5000); err != nil {
			logger.Log.Fatal("seeding failed", zap.Error(err))
		}
		if err := seeder.ExportSnapshot(cfg.IndexPath); err != nil {
			logger.Log.Fatal("snapshot export failed", zap.Error(err))
		}
		logger.Log.Info("development seed complete", zap.String("snapshot", cfg.IndexPath))
	case "test":
		if _, err := seeder.SeedDev(50, 10, 200); err != nil {
			logger.Log.Fatal("seeding failed", zap.Error(err))
		}
		logger.Log.Info("test seed complete")
	case "clean":
		if err := seeder.Clean(); err != nil {
			logger.Log.Fatal("clean failed", zap.Error(err))
		}
		logger.Log.Info("seed data removed")
	default:
		fmt.Println("Usage: seed [dev|test|clean]")
		fmt.Println("  dev   - Seed development database and export an index snapshot")
		fmt.Println("  test  - Seed a small dataset without a snapshot")
		fmt.Println("  clean - Remove all seeded data")
		os.Exit(1)
	}
}
