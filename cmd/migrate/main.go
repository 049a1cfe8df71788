package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"image-vault/internal/shared/config"
	"image-vault/internal/shared/storage/db"
	"image-vault/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	_ = telemetry.Init(cfg.LogLevel)
	defer telemetry.Sync()
	ctx := context.Background()

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, db.MigratePool().FromEnv())
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err})
		telemetry.Sync()
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err})
		telemetry.Sync()
		os.Exit(1)
	}
}
