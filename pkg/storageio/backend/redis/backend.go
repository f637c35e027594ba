package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/tendant/storageio/pkg/storageio"
)

// DefaultPrefix namespaces every key the backend writes.
const DefaultPrefix = "storageio"

// Backend implements storageio.Backend on Redis. Each entity group has a
// version key that transactions WATCH; writes are queued and applied in one
// MULTI/EXEC together with an INCR of that version key.
//
// Layout:
//
//	<prefix>:e:<key path>          entity data
//	<prefix>:c:<parent path>|<kind> set of child key paths
//	<prefix>:v:<root path>         entity group version
type Backend struct {
	client *redis.Client
	prefix string
}

// Option configures a Backend
type Option func(*Backend)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// New creates a backend on an existing client. The backend owns the client
// and closes it in Close.
func New(client *redis.Client, opts ...Option) *Backend {
	b := &Backend{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewFromURL connects using a redis:// URL.
func NewFromURL(ctx context.Context, url string, opts ...Option) (*Backend, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping redis: %v", storageio.ErrBackendFatal, err)
	}
	return New(client, opts...), nil
}

func (b *Backend) entityKey(path string) string {
	return b.prefix + ":e:" + path
}

func (b *Backend) childrenKey(parentPath, kind string) string {
	return b.prefix + ":c:" + parentPath + "|" + kind
}

func (b *Backend) versionKey(rootPath string) string {
	return b.prefix + ":v:" + rootPath
}

func fatal(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", storageio.ErrBackendFatal, op, err)
}

func (b *Backend) RunInTransaction(ctx context.Context, root storageio.Key, fn func(ctx context.Context, tx storageio.Txn) error) error {
	if !root.IsRoot() || root.Kind == "" {
		return fmt.Errorf("%w: transaction root %s is not a root key", storageio.ErrInvalidKey, root)
	}

	var fnErr error
	err := b.client.Watch(ctx, func(rtx *redis.Tx) error {
		t := &txn{backend: b, rtx: rtx, root: root, writes: make(map[string]*write)}
		if fnErr = fn(ctx, t); fnErr != nil {
			return fnErr
		}
		if len(t.writes) == 0 {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for path, w := range t.writes {
				children := b.childrenKey(w.key.ParentPath(), w.key.Kind)
				if w.deleted {
					pipe.Del(ctx, b.entityKey(path))
					pipe.SRem(ctx, children, path)
					continue
				}
				pipe.Set(ctx, b.entityKey(path), w.data, 0)
				pipe.SAdd(ctx, children, path)
			}
			pipe.Incr(ctx, b.versionKey(root.Path()))
			return nil
		})
		return err
	}, b.versionKey(root.Path()))

	switch {
	case err == nil:
		return nil
	case fnErr != nil:
		return fnErr
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: entity group %s changed", storageio.ErrConflict, root)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fatal("transaction", err)
	}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (b *Backend) get(ctx context.Context, c getter, key storageio.Key) ([]byte, error) {
	data, err := c.Get(ctx, b.entityKey(key.Path())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", storageio.ErrNotFound, key)
	}
	if err != nil {
		return nil, fatal("get", err)
	}
	return data, nil
}

func (b *Backend) Get(ctx context.Context, key storageio.Key) ([]byte, error) {
	return b.get(ctx, b.client, key)
}

type querier interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// query loads committed children of parentPath overlaid with pending writes.
func (b *Backend) query(ctx context.Context, c querier, parentPath, kind string, pending map[string]*write) ([]storageio.Entity, error) {
	paths, err := c.SMembers(ctx, b.childrenKey(parentPath, kind)).Result()
	if err != nil {
		return nil, fatal("smembers", err)
	}

	found := make(map[string][]byte, len(paths))
	if len(paths) > 0 {
		keys := make([]string, len(paths))
		for i, p := range paths {
			keys[i] = b.entityKey(p)
		}
		values, err := c.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fatal("mget", err)
		}
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			found[paths[i]] = []byte(s)
		}
	}
	for path, w := range pending {
		if w.key.Kind != kind || w.key.ParentPath() != parentPath {
			continue
		}
		if w.deleted {
			delete(found, path)
			continue
		}
		found[path] = w.data
	}

	sorted := make([]string, 0, len(found))
	for p := range found {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	out := make([]storageio.Entity, 0, len(sorted))
	for _, p := range sorted {
		key, err := storageio.ParseKey(p)
		if err != nil {
			return nil, fatal("parse key", err)
		}
		out = append(out, storageio.Entity{Key: key, Data: found[p]})
	}
	return out, nil
}

func (b *Backend) Query(ctx context.Context, parent *storageio.Key, kind string) ([]storageio.Entity, error) {
	parentPath := ""
	if parent != nil {
		parentPath = parent.Path()
	}
	return b.query(ctx, b.client, parentPath, kind, nil)
}

func (b *Backend) Close() error {
	return b.client.Close()
}

type write struct {
	key     storageio.Key
	data    []byte
	deleted bool
}

type txn struct {
	backend *Backend
	rtx     *redis.Tx
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
		return append([]byte{}, w.data...), nil
	}
	return t.backend.get(ctx, t.rtx, key)
}

func (t *txn) Put(ctx context.Context, key storageio.Key, data []byte) error {
	if err := storageio.CheckGroup(t.root, key); err != nil {
		return err
	}
	t.writes[key.Path()] = &write{key: key, data: append([]byte{}, data...)}
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
	return t.backend.query(ctx, t.rtx, parent.Path(), kind, t.writes)
}
