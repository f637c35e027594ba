package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
//	ENVIRONMENT   - Runtime environment (default: "development")
//	DATABASE_URL  - Record backend connection string:
//	                "memory" or empty for the in-memory backend,
//	                "postgres://..." / "postgresql://..." for PostgreSQL,
//	                "redis://..." / "rediss://..." for Redis
//	REDIS_URL     - Redis connection string; selects the Redis backend
//	REDIS_PREFIX  - Key prefix for the Redis backend
//	DB_SCHEMA     - Postgres schema (default: "storageio")
//	RUN_MIGRATIONS - Apply migrations when connecting to Postgres
//	STORAGE_URL   - Blob store connection string:
//	                "memory://", "file:///path/to/data",
//	                "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
//	INLINE_LIMIT  - Largest content in bytes stored inline
//	MAX_RETRIES   - Conflict retries after the first attempt
//	KEY_GENERATOR - Blob key layout: git-like, flat, owner-scoped
func WithEnv(prefix string) Option {
	return func(c *Config) error {
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applyStorageEnv(prefix, c); err != nil {
			return err
		}

		if v, ok := lookupEnv(prefix, "DB_SCHEMA"); ok {
			c.DBSchema = v
		}
		if v, ok := lookupEnv(prefix, "REDIS_PREFIX"); ok && v != "" {
			c.RedisPrefix = v
		}
		if v, ok := lookupEnv(prefix, "KEY_GENERATOR"); ok && v != "" {
			c.ObjectKeyGenerator = v
		}

		if v, ok, err := parseBoolEnv(prefix, "RUN_MIGRATIONS"); err != nil {
			return err
		} else if ok {
			c.RunMigrations = v
		}
		if v, ok, err := parseIntEnv(prefix, "INLINE_LIMIT"); err != nil {
			return err
		} else if ok {
			c.InlineLimit = int64(v)
		}
		if v, ok, err := parseIntEnv(prefix, "MAX_RETRIES"); err != nil {
			return err
		} else if ok {
			c.MaxRetries = v
		}
		return nil
	}
}

// applyDatabaseEnv applies record backend configuration from environment
func applyDatabaseEnv(prefix string, c *Config) error {
	if redisURL, ok := lookupEnv(prefix, "REDIS_URL"); ok && redisURL != "" {
		c.BackendType = BackendRedis
		c.RedisURL = redisURL
	}

	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")
	if !hasURL || dbURL == "" || dbURL == "memory" {
		if c.BackendType != BackendRedis {
			c.BackendType = BackendMemory
			c.DatabaseURL = ""
		}
		return nil
	}

	switch {
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.BackendType = BackendPostgres
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "redis://"), strings.HasPrefix(dbURL, "rediss://"):
		c.BackendType = BackendRedis
		c.RedisURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'redis://...')", dbURL)
	}
	return nil
}

// applyStorageEnv applies blob store configuration from environment
func applyStorageEnv(prefix string, c *Config) error {
	storageURL, hasURL := lookupEnv(prefix, "STORAGE_URL")
	if !hasURL || storageURL == "" || storageURL == "memory" || storageURL == "memory://" {
		c.BlobStore = StorageBackendConfig{Name: "memory", Type: "memory", Config: map[string]interface{}{}}
		return nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		path := u.Path
		if u.Host != "" {
			path = u.Host + path
		}
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.BlobStore = StorageBackendConfig{
			Name:   "fs",
			Type:   "fs",
			Config: map[string]interface{}{"base_dir": path},
		}
		return nil

	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		backend := StorageBackendConfig{
			Name: "s3",
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": u.Host,
				"region": "us-east-1",
			},
		}
		q := u.Query()
		if v := q.Get("region"); v != "" {
			backend.Config["region"] = v
		}
		if v := q.Get("endpoint"); v != "" {
			backend.Config["endpoint"] = v
		}
		if v := q.Get("path_style"); v != "" {
			backend.Config["use_path_style"] = v
		}

		if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
			backend.Config["access_key_id"] = accessKey
		}
		if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
			backend.Config["secret_access_key"] = secretKey
		}
		if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" && q.Get("region") == "" {
			backend.Config["region"] = region
		}
		c.BlobStore = backend
		return nil
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
