package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/storageio/pkg/storageio"
)

// DBTX is an interface that allows us to use either a pool or a transaction
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Pool is the subset of *pgxpool.Pool the backend uses
type Pool interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

const savepoint = "storageio_job"

const (
	selectVersionSQL = `SELECT version FROM entity_groups WHERE root_path = $1`
	bumpVersionSQL   = `INSERT INTO entity_groups (root_path, version) VALUES ($1, 1)
ON CONFLICT (root_path) DO UPDATE SET version = entity_groups.version + 1
WHERE entity_groups.version = $2`
	selectEntitySQL   = `SELECT data FROM entities WHERE key_path = $1`
	selectChildrenSQL = `SELECT key_path, data FROM entities WHERE parent_path = $1 AND kind = $2 ORDER BY key_path`
	upsertEntitySQL   = `INSERT INTO entities (key_path, root_path, parent_path, kind, data, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (key_path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	deleteEntitySQL = `DELETE FROM entities WHERE key_path = $1`
)

// Backend implements storageio.Backend on PostgreSQL. Every transaction
// runs under a savepoint and commits only if the entity group's version row
// still holds the value read at its start.
type Backend struct {
	pool Pool
}

// New creates a backend on pool. The backend closes the pool in Close.
func New(pool Pool) *Backend {
	return &Backend{pool: pool}
}

// NewWithURL connects a pool to databaseURL.
func NewWithURL(ctx context.Context, databaseURL string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %v", storageio.ErrBackendFatal, err)
	}
	return New(pool), nil
}

// classify maps driver errors onto storageio sentinels.
func classify(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s: %s", storageio.ErrConflict, operation, pgErr.Message)
		case "42P01": // undefined_table
			return fmt.Errorf("%w: %s: table does not exist - database migration required", storageio.ErrBackendFatal, operation)
		default:
			return fmt.Errorf("%w: database error in %s: %s (code: %s)", storageio.ErrBackendFatal, operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("%w: %s: %v", storageio.ErrBackendFatal, operation, err)
}

func (b *Backend) RunInTransaction(ctx context.Context, root storageio.Key, fn func(ctx context.Context, tx storageio.Txn) error) (err error) {
	if !root.IsRoot() || root.Kind == "" {
		return fmt.Errorf("%w: transaction root %s is not a root key", storageio.ErrInvalidKey, root)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return classify("begin", err)
	}
	defer func() {
		if err != nil {
			_, _ = tx.Exec(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+savepoint)
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return classify("savepoint", err)
	}

	rootPath := root.Path()
	var version int64
	if err = tx.QueryRow(ctx, selectVersionSQL, rootPath).Scan(&version); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return classify("read group version", err)
		}
		version = 0
	}

	t := &txn{db: tx, root: root}
	if err = fn(ctx, t); err != nil {
		return err
	}

	if t.dirty {
		tag, execErr := tx.Exec(ctx, bumpVersionSQL, rootPath, version)
		if execErr != nil {
			err = classify("bump group version", execErr)
			return err
		}
		if tag.RowsAffected() == 0 {
			err = fmt.Errorf("%w: entity group %s changed", storageio.ErrConflict, root)
			return err
		}
	}

	if _, err = tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return classify("release savepoint", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

func getEntity(ctx context.Context, db DBTX, key storageio.Key) ([]byte, error) {
	var data []byte
	err := db.QueryRow(ctx, selectEntitySQL, key.Path()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storageio.ErrNotFound, key)
	}
	if err != nil {
		return nil, classify("get entity", err)
	}
	return data, nil
}

func queryChildren(ctx context.Context, db DBTX, parentPath, kind string) ([]storageio.Entity, error) {
	rows, err := db.Query(ctx, selectChildrenSQL, parentPath, kind)
	if err != nil {
		return nil, classify("query entities", err)
	}
	defer rows.Close()

	var out []storageio.Entity
	for rows.Next() {
		var (
			path string
			data []byte
		)
		if err := rows.Scan(&path, &data); err != nil {
			return nil, classify("scan entity", err)
		}
		key, err := storageio.ParseKey(path)
		if err != nil {
			return nil, fmt.Errorf("%w: stored key: %v", storageio.ErrBackendFatal, err)
		}
		out = append(out, storageio.Entity{Key: key, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query entities", err)
	}
	return out, nil
}

func (b *Backend) Get(ctx context.Context, key storageio.Key) ([]byte, error) {
	return getEntity(ctx, b.pool, key)
}

func (b *Backend) Query(ctx context.Context, parent *storageio.Key, kind string) ([]storageio.Entity, error) {
	parentPath := ""
	if parent != nil {
		parentPath = parent.Path()
	}
	return queryChildren(ctx, b.pool, parentPath, kind)
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// txn writes straight into the database transaction, so reads observe
// earlier writes of the same job.
type txn struct {
	db    DBTX
	root  storageio.Key
	dirty bool
}

func (t *txn) Root() storageio.Key {
	return t.root
}

func (t *txn) Get(ctx context.Context, key storageio.Key) ([]byte, error) {
	if err := storageio.CheckGroup(t.root, key); err != nil {
		return nil, err
	}
	return getEntity(ctx, t.db, key)
}

func (t *txn) Put(ctx context.Context, key storageio.Key, data []byte) error {
	if err := storageio.CheckGroup(t.root, key); err != nil {
		return err
	}
	if _, err := t.db.Exec(ctx, upsertEntitySQL, key.Path(), t.root.Path(), key.ParentPath(), key.Kind, data); err != nil {
		return classify("put entity", err)
	}
	t.dirty = true
	return nil
}

func (t *txn) Delete(ctx context.Context, key storageio.Key) error {
	if err := storageio.CheckGroup(t.root, key); err != nil {
		return err
	}
	if _, err := t.db.Exec(ctx, deleteEntitySQL, key.Path()); err != nil {
		return classify("delete entity", err)
	}
	t.dirty = true
	return nil
}

func (t *txn) Query(ctx context.Context, parent storageio.Key, kind string) ([]storageio.Entity, error) {
	if err := storageio.CheckGroup(t.root, parent); err != nil {
		return nil, err
	}
	return queryChildren(ctx, t.db, parent.Path(), kind)
}
