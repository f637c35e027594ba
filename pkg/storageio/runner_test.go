package storageio

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend answers RunInTransaction from a queue of results. fn runs
// before each scripted result is returned.
type scriptedBackend struct {
	results []error
	calls   int
}

func (b *scriptedBackend) RunInTransaction(ctx context.Context, root Key, fn func(ctx context.Context, tx Txn) error) error {
	b.calls++
	if err := fn(ctx, nil); err != nil {
		return err
	}
	if len(b.results) == 0 {
		return nil
	}
	err := b.results[0]
	b.results = b.results[1:]
	return err
}

func (b *scriptedBackend) Get(context.Context, Key) ([]byte, error) { return nil, ErrNotFound }

func (b *scriptedBackend) Query(context.Context, *Key, string) ([]Entity, error) { return nil, nil }

func (b *scriptedBackend) Close() error { return nil }

type countingJob struct {
	runs     int
	prepares int
	undone   int
	runErr   error
}

func (j *countingJob) Prepare(context.Context) error {
	j.prepares++
	return nil
}

func (j *countingJob) Run(context.Context, Txn) error {
	j.runs++
	return j.runErr
}

func (j *countingJob) OnNonFatalError(context.Context) {
	j.undone++
}

func conflict() error {
	return fmt.Errorf("%w: version moved", ErrConflict)
}

func TestRunnerRetriesConflicts(t *testing.T) {
	backend := &scriptedBackend{results: []error{conflict(), conflict()}}
	job := &countingJob{}

	err := NewRunner(backend).Run(context.Background(), projectKey("p1"), job)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, 3, job.prepares)
	assert.Equal(t, 2, job.undone)
}

func TestRunnerExhaustsRetries(t *testing.T) {
	backend := &scriptedBackend{results: []error{conflict(), conflict(), conflict(), conflict()}}
	job := &countingJob{}

	err := NewRunner(backend, WithRunnerMaxRetries(2)).Run(context.Background(), projectKey("p1"), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, KindRetriesExhausted, KindOf(err))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, 3, job.undone)
}

func TestRunnerZeroRetries(t *testing.T) {
	backend := &scriptedBackend{results: []error{conflict()}}
	err := NewRunner(backend, WithRunnerMaxRetries(0)).Run(context.Background(), projectKey("p1"), &countingJob{})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, backend.calls)
}

func TestRunnerStopsOnFatalError(t *testing.T) {
	boom := errors.New("boom")
	backend := &scriptedBackend{}
	job := &countingJob{runErr: boom}

	err := NewRunner(backend).Run(context.Background(), projectKey("p1"), job)
	assert.Same(t, boom, err)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, 0, job.undone)
}

func TestRunnerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &scriptedBackend{results: []error{conflict()}}
	err := NewRunner(backend).Run(ctx, projectKey("p1"), JobFunc(func(context.Context, Txn) error { return nil }))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTempKey(t *testing.T) {
	key, err := tempKey(TempFilePrefix + "123")
	require.NoError(t, err)
	assert.Equal(t, RootKey(KindTempFile, "123"), key)

	for _, name := range []string{"", "123", "foo/1", TempFilePrefix, TempFilePrefix + "0", TempFilePrefix + "-4", TempFilePrefix + "007", TempFilePrefix + "abc", TempFilePrefix + "99999999999999999999"} {
		_, err := tempKey(name)
		assert.ErrorIs(t, err, ErrInvalidArgument, name)
	}
}
