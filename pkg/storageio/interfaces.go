package storageio

import (
	"context"
	"io"
	"time"
)

// Entity is a raw record as stored by a Backend.
type Entity struct {
	Key  Key
	Data []byte
}

// Txn is a transaction handle scoped to one entity group. Every key passed to
// it must share the transaction's root; implementations reject other keys
// with an error wrapping ErrCrossGroup.
type Txn interface {
	// Root returns the entity-group root the transaction was opened on
	Root() Key

	// Get returns the record stored under key, or ErrNotFound. Writes made
	// earlier in the same transaction are visible.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Put creates or replaces the record under key
	Put(ctx context.Context, key Key, data []byte) error

	// Delete removes the record under key. Deleting a missing record is not an error.
	Delete(ctx context.Context, key Key) error

	// Query returns the children of parent with the given kind, ordered by key path
	Query(ctx context.Context, parent Key, kind string) ([]Entity, error)
}

// Backend defines the interface for record persistence
type Backend interface {
	// RunInTransaction runs fn in a transaction on the entity group of root.
	// When fn returns nil the transaction commits and its writes become
	// visible to every later read. When fn returns an error the transaction
	// rolls back and that error is returned unchanged. A lost
	// optimistic-concurrency race returns an error wrapping ErrConflict;
	// other backend failures wrap ErrBackendFatal.
	RunInTransaction(ctx context.Context, root Key, fn func(ctx context.Context, tx Txn) error) error

	// Get reads a committed record outside any transaction
	Get(ctx context.Context, key Key) ([]byte, error)

	// Query lists committed children of parent with the given kind. A nil
	// parent lists root records of that kind.
	Query(ctx context.Context, parent *Key, kind string) ([]Entity, error)

	// Close releases the backend's connections
	Close() error
}

// BlobStore defines the interface for blob storage backends
type BlobStore interface {
	// Upload stores the content of reader under objectKey, replacing any existing object
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// Download returns the object content. Missing objects yield ErrBlobNotFound.
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes the object. Missing objects yield ErrBlobNotFound.
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}
