package storageio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/storageio/pkg/storageio/objectkey"
)

// service implements the Service interface
type service struct {
	backend    Backend
	blobStore  BlobStore
	policy     TieringPolicy
	keyGen     objectkey.Generator
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
	runner     *Runner
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBackend sets the record backend for the service
func WithBackend(backend Backend) Option {
	return func(s *service) {
		s.backend = backend
	}
}

// WithBlobStore sets the blob store used for externalized content
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithTieringPolicy sets the policy deciding inline or blob placement
func WithTieringPolicy(policy TieringPolicy) Option {
	return func(s *service) {
		s.policy = policy
	}
}

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithKeyGenerator sets the blob key generator
func WithKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		if gen != nil {
			s.keyGen = gen
		}
	}
}

// WithMaxRetries sets the number of conflict retries after the first attempt
func WithMaxRetries(n int) Option {
	return func(s *service) {
		s.maxRetries = n
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		policy:     DefaultTieringPolicy(),
		keyGen:     objectkey.NewRecommendedGenerator(),
		logger:     slog.Default(),
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.maxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", s.maxRetries)
	}

	s.runner = NewRunner(s.backend, WithRunnerLogger(s.logger), WithRunnerMaxRetries(s.maxRetries))
	return s, nil
}

func (s *service) Close() error {
	return s.backend.Close()
}

func (s *service) nowUTC() time.Time {
	return s.now().UTC()
}

// authorize fails closed: a missing ownership record is reported as
// ErrUnauthorized, never ErrNotFound.
func (s *service) authorize(ctx context.Context, userID, projectID string) error {
	if userID == "" || projectID == "" {
		return ErrUnauthorized
	}
	_, err := s.backend.Get(ctx, userProjectKey(userID, projectID))
	if errors.Is(err, ErrNotFound) {
		return ErrUnauthorized
	}
	return err
}

// touchProject bumps the project's modification date inside tx and returns it.
func (s *service) touchProject(ctx context.Context, tx Txn, projectID string) (*Project, error) {
	project, err := getRecord[Project](ctx, tx, projectKey(projectID))
	if err != nil {
		return nil, err
	}
	modified := s.nowUTC().UnixMilli()
	if modified <= project.DateModified {
		modified = project.DateModified + 1
	}
	project.DateModified = modified
	if err := putRecord(ctx, tx, projectKey(projectID), project); err != nil {
		return nil, err
	}
	return project, nil
}

func opError(op, userID, projectID, path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, UserID: userID, ProjectID: projectID, Path: path, Err: err}
}

func logAttrs(userID, projectID, path string) []any {
	var attrs []any
	if userID != "" {
		attrs = append(attrs, "user_id", userID)
	}
	if projectID != "" {
		attrs = append(attrs, "project_id", projectID)
	}
	if path != "" {
		attrs = append(attrs, "path", path)
	}
	return attrs
}
