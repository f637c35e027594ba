package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"

	"github.com/tendant/storageio/pkg/storageio"
	"github.com/tendant/storageio/pkg/storageio/config"
)

type Config struct {
	Schedule         string        `env:"JANITOR_SCHEDULE" env-default:"@every 1h"`
	NonceTTL         time.Duration `env:"NONCE_TTL" env-default:"3h"`
	PasswordResetTTL time.Duration `env:"PASSWORD_RESET_TTL" env-default:"24h"`
	RunOnce          bool          `env:"JANITOR_RUN_ONCE" env-default:"false"`
	LogLevel         string        `env:"LOG_LEVEL" env-default:"info"`
}

func newLogger(environment, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// sweep removes expired nonces and password reset requests.
func sweep(ctx context.Context, svc storageio.Service, cfg Config, logger *slog.Logger) {
	start := time.Now()
	nonces, err := svc.CleanupNonces(ctx, cfg.NonceTTL)
	if err != nil {
		logger.Error("nonce cleanup failed", "err", err)
	}
	resets, err := svc.CleanupPasswordResets(ctx, cfg.PasswordResetTTL)
	if err != nil {
		logger.Error("password reset cleanup failed", "err", err)
	}
	logger.Info("sweep finished",
		"nonces", nonces,
		"password_resets", resets,
		"duration", time.Since(start))
}

func main() {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	storeConfig, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Failed to load storage configuration", "err", err)
		os.Exit(1)
	}
	logger := newLogger(storeConfig.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := storeConfig.BuildService(ctx, storageio.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer svc.Close()

	if cfg.RunOnce {
		sweep(ctx, svc, cfg, logger)
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() { sweep(ctx, svc, cfg, logger) }); err != nil {
		logger.Error("Invalid janitor schedule", "schedule", cfg.Schedule, "err", err)
		os.Exit(1)
	}
	c.Start()
	logger.Info("janitor started",
		"schedule", cfg.Schedule,
		"backend", storeConfig.BackendType,
		"blob_store", storeConfig.BlobStore.Type)

	<-ctx.Done()
	logger.Info("shutting down janitor")
	<-c.Stop().Done()
}
