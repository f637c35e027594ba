// Package backendtest holds behaviour tests shared by every storageio.Backend.
package backendtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/storageio/pkg/storageio"
)

// Run exercises the transactional contract against backends built by newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) storageio.Backend) {
	t.Helper()

	project := storageio.RootKey(storageio.KindProject, "p1")
	fileA := storageio.ChildKey(project, storageio.KindFile, "src/a.scm")
	fileB := storageio.ChildKey(project, storageio.KindFile, "src/b.scm")
	other := storageio.RootKey(storageio.KindProject, "p2")

	t.Run("commit makes writes visible", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		err := b.RunInTransaction(ctx, project, func(ctx context.Context, tx storageio.Txn) error {
			require.NoError(t, tx.Put(ctx, project, []byte(`{"id":"p1"}`)))
			return tx.Put(ctx, fileA, []byte(`{"path":"src/a.scm"}`))
		})
		require.NoError(t, err)

		data, err := b.Get(ctx, fileA)
		require.NoError(t, err)
		assert.JSONEq(t, `{"path":"src/a.scm"}`, string(data))
	})

	t.Run("missing record is not found", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Get(context.Background(), fileA)
		assert.ErrorIs(t, err, storageio.ErrNotFound)
	})

	t.Run("reads see own writes", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		err := b.RunInTransaction(ctx, project, func(ctx context.Context, tx storageio.Txn) error {
			if err := tx.Put(ctx, fileA, []byte(`1`)); err != nil {
				return err
			}
			data, err := tx.Get(ctx, fileA)
			require.NoError(t, err)
			assert.Equal(t, `1`, string(data))

			require.NoError(t, tx.Delete(ctx, fileA))
			_, err = tx.Get(ctx, fileA)
			assert.ErrorIs(t, err, storageio.ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("job error rolls back and is returned unchanged", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		boom := errors.New("boom")

		err := b.RunInTransaction(ctx, project, func(ctx context.Context, tx storageio.Txn) error {
			require.NoError(t, tx.Put(ctx, fileA, []byte(`1`)))
			return boom
		})
		assert.Same(t, boom, err)

		_, err = b.Get(ctx, fileA)
		assert.ErrorIs(t, err, storageio.ErrNotFound)
	})

	t.Run("concurrent commit on the same group conflicts", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		err := b.RunInTransaction(ctx, project, func(ctx context.Context, tx storageio.Txn) error {
			if _, err := tx.Get(ctx, fileA); !errors.Is(err, storageio.ErrNotFound) {
				return err
			}
			inner := b.RunInTransaction(ctx, project, func(ctx context.Context, tx storageio.Txn) error {
				return tx.Put(ctx, fileB, []byte(`"winner"`))
			})
			require.NoError(t, inner)
			return tx.Put(ctx, fileA, []byte(`"loser"`))
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, storageio.ErrConflict)
		assert.True(t, storageio.IsRetryable(err))

		_, err = b.Get(ctx, fileA)
		assert.ErrorIs(t, err, storageio.ErrNotFound)
		data, err := b.Get(ctx, fileB)
		require.NoError(t, err)
		assert.Equal(t, `"winner"`, string(data))
	})

	t.Run("commits on other groups do not conflict", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		err := b.RunInTransaction(ctx, project, func(ctx context.Context, tx storageio.Txn) error {
			inner := b.RunInTransaction(ctx, other, func(ctx context.Context, tx storageio.Txn) error {
				return tx.Put(ctx, other, []byte(`{}`))
			})
			require.NoError(t, inner)
			return tx.Put(ctx, project, []byte(`{}`))
		})
		require.NoError(t, err)
	})

	t.Run("keys outside the group are rejected", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		err := b.RunInTransaction(ctx, project, func(ctx context.Context, tx storageio.Txn) error {
			return tx.Put(ctx, storageio.ChildKey(other, storageio.KindFile, "x"), []byte(`1`))
		})
		assert.ErrorIs(t, err, storageio.ErrCrossGroup)
	})

	t.Run("query lists children by kind in key order", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		status := storageio.ChildKey(project, storageio.KindBuildStatus, "u1")

		require.NoError(t, b.RunInTransaction(ctx, project, func(ctx context.Context, tx storageio.Txn) error {
			for _, k := range []storageio.Key{project, fileB, fileA, status} {
				if err := tx.Put(ctx, k, []byte(`{}`)); err != nil {
					return err
				}
			}
			return nil
		}))

		files, err := b.Query(ctx, &project, storageio.KindFile)
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "src/a.scm", files[0].Key.Name)
		assert.Equal(t, "src/b.scm", files[1].Key.Name)
		assert.True(t, files[0].Key.Equal(fileA))

		roots, err := b.Query(ctx, nil, storageio.KindProject)
		require.NoError(t, err)
		require.Len(t, roots, 1)
		assert.Equal(t, "p1", roots[0].Key.Name)

		require.NoError(t, b.RunInTransaction(ctx, project, func(ctx context.Context, tx storageio.Txn) error {
			require.NoError(t, tx.Delete(ctx, fileA))
			c := storageio.ChildKey(project, storageio.KindFile, "src/c.scm")
			require.NoError(t, tx.Put(ctx, c, []byte(`{}`)))

			pending, err := tx.Query(ctx, project, storageio.KindFile)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, "src/b.scm", pending[0].Key.Name)
			assert.Equal(t, "src/c.scm", pending[1].Key.Name)
			return nil
		}))

		files, err = b.Query(ctx, &project, storageio.KindFile)
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("non-root transaction key is rejected", func(t *testing.T) {
		b := newBackend(t)
		err := b.RunInTransaction(context.Background(), fileA, func(ctx context.Context, tx storageio.Txn) error {
			return nil
		})
		assert.ErrorIs(t, err, storageio.ErrInvalidKey)
	})
}
