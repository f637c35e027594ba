package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tendant/storageio/pkg/storageio"
)

// Backend implements storageio.Backend using in-memory storage. Each entity
// group carries a version counter; a transaction with writes commits only if
// the version it started from is still current.
type Backend struct {
	mu       sync.RWMutex
	entities map[string]storageio.Entity // key path -> entity
	children map[string]map[string]struct{} // parent path|kind -> key paths
	versions map[string]uint64             // root path -> version
}

// New creates a new in-memory backend
func New() *Backend {
	return &Backend{
		entities: make(map[string]storageio.Entity),
		children: make(map[string]map[string]struct{}),
		versions: make(map[string]uint64),
	}
}

func childIndex(parentPath, kind string) string {
	return parentPath + "|" + kind
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func (b *Backend) RunInTransaction(ctx context.Context, root storageio.Key, fn func(ctx context.Context, tx storageio.Txn) error) error {
	if !root.IsRoot() || root.Kind == "" {
		return fmt.Errorf("%w: transaction root %s is not a root key", storageio.ErrInvalidKey, root)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rootPath := root.Path()
	b.mu.RLock()
	start := b.versions[rootPath]
	b.mu.RUnlock()

	tx := &txn{backend: b, root: root, writes: make(map[string]*write)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if len(tx.writes) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.versions[rootPath] != start {
		return fmt.Errorf("%w: entity group %s changed", storageio.ErrConflict, root)
	}
	for path, w := range tx.writes {
		idx := childIndex(w.key.ParentPath(), w.key.Kind)
		if w.deleted {
			delete(b.entities, path)
			delete(b.children[idx], path)
			continue
		}
		b.entities[path] = storageio.Entity{Key: w.key, Data: w.data}
		if b.children[idx] == nil {
			b.children[idx] = make(map[string]struct{})
		}
		b.children[idx][path] = struct{}{}
	}
	b.versions[rootPath] = start + 1
	return nil
}

func (b *Backend) Get(ctx context.Context, key storageio.Key) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entities[key.Path()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storageio.ErrNotFound, key)
	}
	return copyBytes(e.Data), nil
}

func (b *Backend) Query(ctx context.Context, parent *storageio.Key, kind string) ([]storageio.Entity, error) {
	parentPath := ""
	if parent != nil {
		parentPath = parent.Path()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queryLocked(parentPath, kind, nil), nil
}

// queryLocked lists committed children overlaid with pending writes.
func (b *Backend) queryLocked(parentPath, kind string, pending map[string]*write) []storageio.Entity {
	found := make(map[string]storageio.Entity)
	for path := range b.children[childIndex(parentPath, kind)] {
		e := b.entities[path]
		found[path] = storageio.Entity{Key: e.Key, Data: copyBytes(e.Data)}
	}
	for path, w := range pending {
		if w.key.Kind != kind || w.key.ParentPath() != parentPath {
			continue
		}
		if w.deleted {
			delete(found, path)
			continue
		}
		found[path] = storageio.Entity{Key: w.key, Data: copyBytes(w.data)}
	}

	out := make([]storageio.Entity, 0, len(found))
	for _, e := range found {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Path() < out[j].Key.Path()
	})
	return out
}

// Close is a no-op
func (b *Backend) Close() error {
	return nil
}

type write struct {
	key     storageio.Key
	data    []byte
	deleted bool
}

type txn struct {
	backend *Backend
	root    storageio.Key
	writes  map[string]*write
}

func (t *txn) Root() storageio.Key {
	return t.root
}

func (t *txn) Get(ctx context.Context, key storageio.Key) ([]byte, error) {
	if err := storageio.CheckGroup(t.root, key); err != nil {
		return nil, err
	}
	if w, ok := t.writes[key.Path()]; ok {
		if w.deleted {
			return nil, fmt.Errorf("%w: %s", storageio.ErrNotFound, key)
		}
		return copyBytes(w.data), nil
	}
	return t.backend.Get(ctx, key)
}

func (t *txn) Put(ctx context.Context, key storageio.Key, data []byte) error {
	if err := storageio.CheckGroup(t.root, key); err != nil {
		return err
	}
	t.writes[key.Path()] = &write{key: key, data: copyBytes(data)}
	return nil
}

func (t *txn) Delete(ctx context.Context, key storageio.Key) error {
	if err := storageio.CheckGroup(t.root, key); err != nil {
		return err
	}
	t.writes[key.Path()] = &write{key: key, deleted: true}
	return nil
}

func (t *txn) Query(ctx context.Context, parent storageio.Key, kind string) ([]storageio.Entity, error) {
	if err := storageio.CheckGroup(t.root, parent); err != nil {
		return nil, err
	}
	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()
	return t.backend.queryLocked(parent.Path(), kind, t.writes), nil
}
