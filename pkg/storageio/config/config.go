package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/storageio/pkg/storageio"
	"github.com/tendant/storageio/pkg/storageio/backend/memory"
	pgbackend "github.com/tendant/storageio/pkg/storageio/backend/postgres"
	redisbackend "github.com/tendant/storageio/pkg/storageio/backend/redis"
	"github.com/tendant/storageio/pkg/storageio/objectkey"
	fsstorage "github.com/tendant/storageio/pkg/storageio/storage/fs"
	memorystorage "github.com/tendant/storageio/pkg/storageio/storage/memory"
	s3storage "github.com/tendant/storageio/pkg/storageio/storage/s3"
)

// Backend types
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Environment: "development",
		BackendType: BackendMemory,
		DBSchema:    "storageio",
		RedisPrefix: redisbackend.DefaultPrefix,
		BlobStore: StorageBackendConfig{
			Name:   "memory",
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		InlineLimit:        storageio.DefaultInlineLimit,
		MaxRetries:         storageio.DefaultMaxRetries,
		ObjectKeyGenerator: "git-like",
	}
}

// Config represents the storage configuration
type Config struct {
	Environment string // development, production, testing

	// Record backend configuration
	BackendType   string // "memory", "redis", "postgres"
	DatabaseURL   string
	DBSchema      string // Postgres schema to use (default: storageio)
	RunMigrations bool   // Apply embedded migrations when building a postgres backend
	RedisURL      string
	RedisPrefix   string

	// Blob storage configuration
	BlobStore StorageBackendConfig

	// Engine options
	InlineLimit        int64
	MaxRetries         int
	ObjectKeyGenerator string
}

// StorageBackendConfig represents configuration for a blob store
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.BackendType {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required when using redis")
		}
	default:
		return fmt.Errorf("backend_type must be 'memory', 'redis' or 'postgres', got %q", c.BackendType)
	}

	switch c.BlobStore.Type {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("unsupported storage backend type: %s", c.BlobStore.Type)
	}

	if c.InlineLimit < 0 {
		return fmt.Errorf("inline_limit must not be negative, got %d", c.InlineLimit)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if _, err := buildKeyGenerator(c.ObjectKeyGenerator); err != nil {
		return err
	}
	return nil
}

// TieringPolicy returns the default policy with the configured inline limit.
func (c *Config) TieringPolicy() storageio.TieringPolicy {
	policy := storageio.DefaultTieringPolicy()
	policy.InlineLimit = c.InlineLimit
	return policy
}

// BuildService creates a Service instance from the configuration. Extra
// options, such as a logger, are applied after the configured ones.
func (c *Config) BuildService(ctx context.Context, extra ...storageio.Option) (storageio.Service, error) {
	backend, err := c.BuildBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend: %w", err)
	}

	store, err := c.buildBlobStore(c.BlobStore)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.BlobStore.Name, err)
	}

	gen, err := buildKeyGenerator(c.ObjectKeyGenerator)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	options := []storageio.Option{
		storageio.WithBackend(backend),
		storageio.WithBlobStore(store),
		storageio.WithTieringPolicy(c.TieringPolicy()),
		storageio.WithMaxRetries(c.MaxRetries),
		storageio.WithKeyGenerator(gen),
	}
	options = append(options, extra...)

	svc, err := storageio.New(options...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return svc, nil
}

// BuildBackend creates the record backend named by BackendType
func (c *Config) BuildBackend(ctx context.Context) (storageio.Backend, error) {
	switch c.BackendType {
	case BackendMemory:
		return memory.New(), nil
	case BackendRedis:
		return redisbackend.NewFromURL(ctx, c.RedisURL, redisbackend.WithPrefix(c.RedisPrefix))
	case BackendPostgres:
		pool, err := c.NewPool(ctx)
		if err != nil {
			return nil, err
		}
		if c.RunMigrations {
			if err := pgbackend.MigratePool(ctx, pool, c.DBSchema); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return pgbackend.New(pool), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", c.BackendType)
	}
}

// NewPool opens a pgx pool for DatabaseURL whose sessions use DBSchema.
func (c *Config) NewPool(ctx context.Context) (*pgxpool.Pool, error) {
	if c.DatabaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	schema := c.DBSchema
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if schema == "" {
			return nil
		}
		_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// buildBlobStore creates a BlobStore based on the backend configuration
func (c *Config) buildBlobStore(config StorageBackendConfig) (storageio.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: getString(config.Config, "base_dir", "./data/storage"),
		})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PartSize:               int64(getInt(config.Config, "part_size", 0)),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func buildKeyGenerator(name string) (objectkey.Generator, error) {
	switch name {
	case "", "default", "git-like":
		return objectkey.NewGitLikeGenerator(), nil
	case "flat":
		return objectkey.NewFlatGenerator(), nil
	case "owner-scoped":
		return objectkey.NewOwnerScopedGenerator(), nil
	default:
		return nil, fmt.Errorf("invalid object key generator: %s (valid: git-like, flat, owner-scoped)", name)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		switch v := value.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return defaultValue
}
