package storageio_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tendant/storageio/pkg/storageio"
	"github.com/tendant/storageio/pkg/storageio/backend/memory"
	memorystorage "github.com/tendant/storageio/pkg/storageio/storage/memory"
)

var errAbort = errors.New("abort attempt")

// flakyBackend makes the next failures transactions lose a conflict after
// their body ran, discarding the body's writes.
type flakyBackend struct {
	storageio.Backend
	mu       sync.Mutex
	failures int
	calls    int
}

func (b *flakyBackend) failNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = n
}

func (b *flakyBackend) RunInTransaction(ctx context.Context, root storageio.Key, fn func(ctx context.Context, tx storageio.Txn) error) error {
	b.mu.Lock()
	b.calls++
	fail := b.failures > 0
	if fail {
		b.failures--
	}
	b.mu.Unlock()

	if !fail {
		return b.Backend.RunInTransaction(ctx, root, fn)
	}
	err := b.Backend.RunInTransaction(ctx, root, func(ctx context.Context, tx storageio.Txn) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errAbort
	})
	if errors.Is(err, errAbort) {
		return fmt.Errorf("%w: injected", storageio.ErrConflict)
	}
	return err
}

// eventLog records backend commits and blob deletions in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.events...)
}

type recordingBackend struct {
	storageio.Backend
	log *eventLog
}

func (b *recordingBackend) RunInTransaction(ctx context.Context, root storageio.Key, fn func(ctx context.Context, tx storageio.Txn) error) error {
	err := b.Backend.RunInTransaction(ctx, root, fn)
	if err == nil {
		b.log.add("commit:" + root.String())
	}
	return err
}

type recordingBlobStore struct {
	*memorystorage.Backend
	log *eventLog
}

func (s *recordingBlobStore) Upload(ctx context.Context, key string, r io.Reader) error {
	s.log.add("upload:" + key)
	return s.Backend.Upload(ctx, key, r)
}

func (s *recordingBlobStore) Delete(ctx context.Context, key string) error {
	s.log.add("delete:" + key)
	return s.Backend.Delete(ctx, key)
}

var errDeleteDenied = errors.New("delete denied")

// stuckBlobStore refuses every delete.
type stuckBlobStore struct {
	*memorystorage.Backend
	mu      sync.Mutex
	deletes int
}

func (s *stuckBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	return errDeleteDenied
}

// countingBackend counts every call that reaches storage.
type countingBackend struct {
	storageio.Backend
	mu    sync.Mutex
	calls int
}

func (b *countingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *countingBackend) inc() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
}

func (b *countingBackend) RunInTransaction(ctx context.Context, root storageio.Key, fn func(ctx context.Context, tx storageio.Txn) error) error {
	b.inc()
	return b.Backend.RunInTransaction(ctx, root, fn)
}

func (b *countingBackend) Get(ctx context.Context, key storageio.Key) ([]byte, error) {
	b.inc()
	return b.Backend.Get(ctx, key)
}

func (b *countingBackend) Query(ctx context.Context, parent *storageio.Key, kind string) ([]storageio.Entity, error) {
	b.inc()
	return b.Backend.Query(ctx, parent, kind)
}

// fixedClock returns the same instant on every call unless advanced.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc     storageio.Service
	backend storageio.Backend
	blobs   *memorystorage.Backend
	clock   *fixedClock
}

func newFixture(t *testing.T, opts ...storageio.Option) *fixture {
	t.Helper()
	f := &fixture{
		backend: memory.New(),
		blobs:   memorystorage.New(),
		clock:   newFixedClock(),
	}
	return f.build(t, opts...)
}

func (f *fixture) build(t *testing.T, opts ...storageio.Option) *fixture {
	t.Helper()
	base := []storageio.Option{
		storageio.WithBackend(f.backend),
		storageio.WithBlobStore(f.blobs),
		storageio.WithClock(f.clock.Now),
	}
	svc, err := storageio.New(append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	t.Cleanup(func() { _ = svc.Close() })
	return f
}

func (f *fixture) createProject(t *testing.T, userID string, files ...storageio.InitialFile) string {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.GetUser(ctx, userID, userID+"@example.com")
	require.NoError(t, err)
	id, err := f.svc.CreateProject(ctx, userID, storageio.CreateProjectRequest{
		Name:  "P1",
		Type:  "YoungAndroid",
		Files: files,
	})
	require.NoError(t, err)
	return id
}

func fileRecord(t *testing.T, b storageio.Backend, projectID, path string) *storageio.File {
	t.Helper()
	key := storageio.ChildKey(storageio.RootKey(storageio.KindProject, projectID), storageio.KindFile, path)
	data, err := b.Get(context.Background(), key)
	require.NoError(t, err)
	var f storageio.File
	require.NoError(t, json.Unmarshal(data, &f))
	return &f
}
