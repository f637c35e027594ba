package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/tendant/storageio/pkg/storageio/backend/postgres"
	"github.com/tendant/storageio/pkg/storageio/config"
)

func main() {
	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	if cfg.BackendType != config.BackendPostgres {
		slog.Error("DATABASE_URL must point at postgres", "backend", cfg.BackendType)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := cfg.NewPool(ctx)
	if err != nil {
		slog.Error("Failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.MigratePool(ctx, pool, cfg.DBSchema); err != nil {
		slog.Error("Migration failed", "err", err)
		os.Exit(1)
	}
	slog.Info("migrations applied", "schema", cfg.DBSchema)
}
