package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.Glob(embedMigrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	data, err := fs.ReadFile(embedMigrations, "migrations/00001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS entity_groups")
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS entities")
}

func TestMigrate_UsesEmbeddedDir(t *testing.T) {
	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, Migrate(context.Background(), nil))
	assert.Equal(t, "migrations", gotDir)
}

func TestMigrate_PropagatesError(t *testing.T) {
	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	boom := errors.New("boom")
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return boom
	}

	err := Migrate(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestEnsureSchema(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		sql    string
	}{
		{name: "plain", schema: "storageio", sql: `CREATE SCHEMA IF NOT EXISTS "storageio"`},
		{name: "quoted", schema: `odd"name`, sql: `CREATE SCHEMA IF NOT EXISTS "odd""name"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPool, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mockPool.Close()

			mockPool.ExpectExec(q(tt.sql)).WillReturnResult(pgxmock.NewResult("CREATE SCHEMA", 0))
			require.NoError(t, EnsureSchema(context.Background(), mockPool, tt.schema))
			assert.NoError(t, mockPool.ExpectationsWereMet())
		})
	}
}

func TestEnsureSchema_Blank(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	require.NoError(t, EnsureSchema(context.Background(), mockPool, ""))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema_PropagatesError(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	denied := errors.New("permission denied")
	mockPool.ExpectExec(q(`CREATE SCHEMA IF NOT EXISTS "storageio"`)).WillReturnError(denied)
	err = EnsureSchema(context.Background(), mockPool, "storageio")
	assert.ErrorIs(t, err, denied)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
