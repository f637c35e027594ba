// Package presets builds ready-to-use services for common setups.
package presets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/tendant/storageio/pkg/storageio"
	"github.com/tendant/storageio/pkg/storageio/backend/memory"
	redisbackend "github.com/tendant/storageio/pkg/storageio/backend/redis"
	"github.com/tendant/storageio/pkg/storageio/config"
	fsstorage "github.com/tendant/storageio/pkg/storageio/storage/fs"
	memorystorage "github.com/tendant/storageio/pkg/storageio/storage/memory"
)

type devConfig struct {
	storageDir string
	logger     *slog.Logger
}

// DevelopmentOption configures NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the directory blobs are written to
func WithDevStorage(dir string) DevelopmentOption {
	return func(c *devConfig) {
		c.storageDir = dir
	}
}

// WithDevLogger sets the service logger
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(c *devConfig) {
		c.logger = logger
	}
}

// NewDevelopment creates a service for local development: records in memory,
// blobs on disk under ./dev-data. The returned cleanup function removes the
// blob directory.
//
// Example:
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (storageio.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fsBackend, err := fsstorage.New(fsstorage.Config{BaseDir: cfg.storageDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	svc, err := storageio.New(
		storageio.WithBackend(memory.New()),
		storageio.WithBlobStore(fsBackend),
		storageio.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		_ = svc.Close()
		os.RemoveAll(cfg.storageDir)
	}
	return svc, cleanup, nil
}

type testConfig struct {
	redis   bool
	options []storageio.Option
}

// TestingOption configures NewTesting
type TestingOption func(*testConfig)

// WithRedis backs the test service with an in-process Redis server
func WithRedis() TestingOption {
	return func(c *testConfig) {
		c.redis = true
	}
}

// WithOptions passes extra service options through
func WithOptions(opts ...storageio.Option) TestingOption {
	return func(c *testConfig) {
		c.options = append(c.options, opts...)
	}
}

// NewTesting creates an isolated service for a test. Blobs stay in memory;
// records are in memory too unless WithRedis is given. Everything is closed
// when the test ends.
func NewTesting(t testing.TB, opts ...TestingOption) storageio.Service {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var backend storageio.Backend = memory.New()
	if cfg.redis {
		server := miniredis.RunT(t)
		rb, err := redisbackend.NewFromURL(context.Background(), "redis://"+server.Addr())
		if err != nil {
			t.Fatalf("failed to connect test redis: %v", err)
		}
		backend = rb
	}

	options := []storageio.Option{
		storageio.WithBackend(backend),
		storageio.WithBlobStore(memorystorage.New()),
	}
	svc, err := storageio.New(append(options, cfg.options...)...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	t.Cleanup(func() {
		_ = svc.Close()
	})
	return svc
}

// NewProduction creates a service from environment variables
// (DATABASE_URL, REDIS_URL, STORAGE_URL, ...), see config.WithEnv. Memory
// backends are refused.
func NewProduction(ctx context.Context, extra ...storageio.Option) (storageio.Service, error) {
	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.BackendType == config.BackendMemory {
		return nil, fmt.Errorf("production requires a persistent record backend (set DATABASE_URL or REDIS_URL)")
	}
	if cfg.BlobStore.Type == "memory" {
		return nil, fmt.Errorf("production requires persistent blob storage (set STORAGE_URL)")
	}
	return cfg.BuildService(ctx, extra...)
}
