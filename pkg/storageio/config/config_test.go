package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/storageio/pkg/storageio"
	"github.com/tendant/storageio/pkg/storageio/objectkey"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.BackendType)
	assert.Equal(t, "memory", cfg.BlobStore.Type)
	assert.Equal(t, storageio.DefaultInlineLimit, cfg.InlineLimit)
	assert.Equal(t, storageio.DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, "git-like", cfg.ObjectKeyGenerator)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.BackendType = "mysql" }},
		{"postgres without url", func(c *Config) { c.BackendType = BackendPostgres }},
		{"redis without url", func(c *Config) { c.BackendType = BackendRedis }},
		{"unknown blob store", func(c *Config) { c.BlobStore.Type = "ftp" }},
		{"negative inline limit", func(c *Config) { c.InlineLimit = -1 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"unknown key generator", func(c *Config) { c.ObjectKeyGenerator = "random" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOptions(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(
		WithEnvironment("testing"),
		WithFilesystemStorage(dir),
		WithInlineLimit(10),
		WithMaxRetries(1),
		WithObjectKeyGenerator("owner-scoped"),
		WithDatabaseSchema("content"),
	)
	require.NoError(t, err)

	assert.Equal(t, "testing", cfg.Environment)
	assert.Equal(t, "fs", cfg.BlobStore.Type)
	assert.Equal(t, dir, cfg.BlobStore.Config["base_dir"])
	assert.Equal(t, int64(10), cfg.InlineLimit)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, "owner-scoped", cfg.ObjectKeyGenerator)
	assert.Equal(t, "content", cfg.DBSchema)
}

func TestOptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"empty environment", WithEnvironment("")},
		{"unknown backend", WithBackend("mysql", "mysql://x")},
		{"postgres without url", WithBackend(BackendPostgres, "")},
		{"redis without url", WithRedis("", "p")},
		{"empty fs dir", WithFilesystemStorage("")},
		{"empty bucket", WithS3Storage("", "us-east-1")},
		{"credentials without s3", WithS3Credentials("a", "b")},
		{"endpoint without s3", WithS3Endpoint("http://localhost:9000", true)},
		{"negative inline limit", WithInlineLimit(-1)},
		{"negative retries", WithMaxRetries(-2)},
		{"unknown key generator", WithObjectKeyGenerator("random")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestS3Options(t *testing.T) {
	cfg, err := Load(
		WithS3Storage("bucket", ""),
		WithS3Credentials("key", "secret"),
		WithS3Endpoint("http://localhost:9000", true),
	)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.BlobStore.Type)
	assert.Equal(t, "us-east-1", cfg.BlobStore.Config["region"])
	assert.Equal(t, "key", cfg.BlobStore.Config["access_key_id"])
	assert.Equal(t, true, cfg.BlobStore.Config["use_path_style"])
}

func TestWithRedis(t *testing.T) {
	cfg, err := Load(WithRedis("redis://localhost:6379", "app"))
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.BackendType)
	assert.Equal(t, "app", cfg.RedisPrefix)
}

func TestBuildKeyGenerator(t *testing.T) {
	gen, err := buildKeyGenerator("flat")
	require.NoError(t, err)
	assert.IsType(t, &objectkey.FlatGenerator{}, gen)

	gen, err = buildKeyGenerator("")
	require.NoError(t, err)
	assert.IsType(t, &objectkey.GitLikeGenerator{}, gen)
}

func TestBuildServiceMemory(t *testing.T) {
	cfg, err := Load(WithMemoryStorage(), WithInlineLimit(4))
	require.NoError(t, err)

	svc, err := cfg.BuildService(context.Background())
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	_, err = svc.GetUser(ctx, "u1", "u1@example.com")
	require.NoError(t, err)

	id, err := svc.CreateProject(ctx, "u1", storageio.CreateProjectRequest{Name: "P1", Type: "YoungAndroid"})
	require.NoError(t, err)

	_, err = svc.WriteFileContent(ctx, id, "src/Screen1.scm", []byte("larger than four"))
	require.NoError(t, err)

	data, err := svc.ReadFileContent(ctx, id, "src/Screen1.scm")
	require.NoError(t, err)
	assert.Equal(t, "larger than four", string(data))
}

func TestBuildServiceFilesystem(t *testing.T) {
	cfg, err := Load(WithFilesystemStorage(t.TempDir()))
	require.NoError(t, err)

	svc, err := cfg.BuildService(context.Background())
	require.NoError(t, err)
	assert.NoError(t, svc.Close())
}

func TestGetHelpers(t *testing.T) {
	m := map[string]interface{}{
		"s":  "value",
		"b":  "true",
		"i":  float64(42),
		"is": "7",
	}
	assert.Equal(t, "value", getString(m, "s", ""))
	assert.Equal(t, "def", getString(m, "missing", "def"))
	assert.True(t, getBool(m, "b", false))
	assert.Equal(t, 42, getInt(m, "i", 0))
	assert.Equal(t, 7, getInt(m, "is", 0))
	assert.Equal(t, 3, getInt(m, "missing", 3))
}
