package config

import (
	"fmt"
)

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithBackend selects the record backend. url is the database URL for
// postgres and the server URL for redis.
func WithBackend(backendType, url string) Option {
	return func(c *Config) error {
		switch backendType {
		case BackendMemory:
		case BackendPostgres:
			if url == "" {
				return fmt.Errorf("database URL is required for postgres")
			}
			c.DatabaseURL = url
		case BackendRedis:
			if url == "" {
				return fmt.Errorf("redis URL is required for redis")
			}
			c.RedisURL = url
		default:
			return fmt.Errorf("backend type must be 'memory', 'redis' or 'postgres', got: %s", backendType)
		}
		c.BackendType = backendType
		return nil
	}
}

// WithRedis selects the Redis backend with a key prefix
func WithRedis(url, prefix string) Option {
	return func(c *Config) error {
		if err := WithBackend(BackendRedis, url)(c); err != nil {
			return err
		}
		if prefix != "" {
			c.RedisPrefix = prefix
		}
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *Config) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMigrations enables applying migrations on connect (for Postgres)
func WithMigrations(enabled bool) Option {
	return func(c *Config) error {
		c.RunMigrations = enabled
		return nil
	}
}

// WithMemoryStorage uses the in-memory blob store (for testing)
func WithMemoryStorage() Option {
	return func(c *Config) error {
		c.BlobStore = StorageBackendConfig{Name: "memory", Type: "memory", Config: map[string]interface{}{}}
		return nil
	}
}

// WithFilesystemStorage stores blobs under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *Config) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.BlobStore = StorageBackendConfig{
			Name:   "fs",
			Type:   "fs",
			Config: map[string]interface{}{"base_dir": baseDir},
		}
		return nil
	}
}

// WithS3Storage stores blobs in an S3 bucket
func WithS3Storage(bucket, region string) Option {
	return func(c *Config) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.BlobStore = StorageBackendConfig{
			Name: "s3",
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": region,
			},
		}
		return nil
	}
}

// WithS3Credentials sets AWS credentials for S3 storage
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *Config) error {
		if c.BlobStore.Type != "s3" {
			return fmt.Errorf("S3 credentials require S3 storage, have %q", c.BlobStore.Type)
		}
		c.BlobStore.Config["access_key_id"] = accessKeyID
		c.BlobStore.Config["secret_access_key"] = secretAccessKey
		return nil
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *Config) error {
		if c.BlobStore.Type != "s3" {
			return fmt.Errorf("S3 endpoint requires S3 storage, have %q", c.BlobStore.Type)
		}
		c.BlobStore.Config["endpoint"] = endpoint
		c.BlobStore.Config["use_path_style"] = usePathStyle
		return nil
	}
}

// WithInlineLimit sets the largest content stored inline
func WithInlineLimit(limit int64) Option {
	return func(c *Config) error {
		if limit < 0 {
			return fmt.Errorf("inline limit must not be negative, got: %d", limit)
		}
		c.InlineLimit = limit
		return nil
	}
}

// WithMaxRetries sets the number of conflict retries after the first attempt
func WithMaxRetries(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("max retries must not be negative, got: %d", n)
		}
		c.MaxRetries = n
		return nil
	}
}

// WithObjectKeyGenerator sets the blob key layout
// Valid values: "git-like", "flat", "owner-scoped"
func WithObjectKeyGenerator(generator string) Option {
	return func(c *Config) error {
		if _, err := buildKeyGenerator(generator); err != nil {
			return err
		}
		c.ObjectKeyGenerator = generator
		return nil
	}
}
