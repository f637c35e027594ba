package storageio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultMaxRetries is the number of retries after the first attempt.
const DefaultMaxRetries = 10

// Job is a unit of work executed in a single entity-group transaction.
type Job interface {
	// Run performs the job's reads and writes. It may be invoked more than
	// once and must only change state through tx.
	Run(ctx context.Context, tx Txn) error

	// OnNonFatalError undoes side effects made outside the transaction by
	// the attempt that just lost a conflict.
	OnNonFatalError(ctx context.Context)
}

// Preparer is implemented by jobs that need work done before each attempt's
// transaction opens, such as uploading blob content.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// JobFunc adapts a function to a Job with no side effects to undo.
type JobFunc func(ctx context.Context, tx Txn) error

func (f JobFunc) Run(ctx context.Context, tx Txn) error {
	return f(ctx, tx)
}

func (f JobFunc) OnNonFatalError(context.Context) {}

// Runner executes jobs with bounded retry on optimistic-concurrency conflicts.
type Runner struct {
	backend    Backend
	logger     *slog.Logger
	maxRetries uint64
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithRunnerLogger sets the runner's logger
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunnerMaxRetries sets the retry ceiling
func WithRunnerMaxRetries(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRetries = uint64(n)
		}
	}
}

// NewRunner creates a runner over backend.
func NewRunner(backend Backend, opts ...RunnerOption) *Runner {
	r := &Runner{
		backend:    backend,
		logger:     slog.Default(),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes job in a transaction on root. Conflicts are retried without
// delay up to the ceiling, after which an error wrapping ErrRetriesExhausted
// is returned. Any other failure is returned as soon as it happens. attrs
// are added to the log records about the job.
func (r *Runner) Run(ctx context.Context, root Key, job Job, attrs ...any) error {
	attempts := 0
	backoff := retry.WithMaxRetries(r.maxRetries, retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	}))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := r.attempt(ctx, root, job)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		job.OnNonFatalError(ctx)
		r.logger.DebugContext(ctx, "transaction conflict, retrying",
			append([]any{"root", root.String(), "attempt", attempts}, attrs...)...)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) {
		r.logger.ErrorContext(ctx, "transaction retries exhausted",
			append([]any{"root", root.String(), "attempts", attempts}, attrs...)...)
		return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
	}
	return err
}

func (r *Runner) attempt(ctx context.Context, root Key, job Job) error {
	if p, ok := job.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return err
		}
	}
	return r.backend.RunInTransaction(ctx, root, job.Run)
}
