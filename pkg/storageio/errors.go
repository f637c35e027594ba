package storageio

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrConflict indicates the entity group changed under a transaction.
	// The runner retries jobs that fail with it.
	ErrConflict = errors.New("concurrent modification")

	// ErrRetriesExhausted indicates a job kept conflicting until the retry
	// ceiling was reached
	ErrRetriesExhausted = errors.New("storage unavailable: retries exhausted")

	// ErrNotFound indicates a record was not found
	ErrNotFound = errors.New("not found")

	// ErrRoleConflict indicates an attempt to change the role of an existing file
	ErrRoleConflict = errors.New("file role conflict")

	// ErrUnauthorized indicates the caller does not own the project
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBackendFatal indicates a non-retryable failure of the record backend
	ErrBackendFatal = errors.New("backend failure")

	// ErrBlobStoreFatal indicates a non-retryable failure of the blob store
	ErrBlobStoreFatal = errors.New("blob store failure")

	// ErrBlobNotFound is returned by blob stores for missing objects
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidArgument indicates a malformed request
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidKey indicates a malformed or misplaced key
	ErrInvalidKey = errors.New("invalid key")

	// ErrCrossGroup indicates a transaction touched a key outside its entity group
	ErrCrossGroup = errors.New("key outside transaction entity group")

	// ErrFailedPrecondition indicates the operation is not allowed in the current state
	ErrFailedPrecondition = errors.New("failed precondition")
)

// Kind classifies errors returned by this package.
type Kind int

const (
	KindUnknown Kind = iota
	KindConflict
	KindRetriesExhausted
	KindNotFound
	KindRoleConflict
	KindUnauthorized
	KindBackendFatal
	KindBlobStoreFatal
	KindInvalidArgument
	KindFailedPrecondition
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindConflict:           "conflict",
	KindRetriesExhausted:   "retries_exhausted",
	KindNotFound:           "not_found",
	KindRoleConflict:       "role_conflict",
	KindUnauthorized:       "unauthorized",
	KindBackendFatal:       "backend_fatal",
	KindBlobStoreFatal:     "blob_store_fatal",
	KindInvalidArgument:    "invalid_argument",
	KindFailedPrecondition: "failed_precondition",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindOf classifies err. Exhaustion is checked before conflict because an
// exhausted job also wraps its last conflict.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrRetriesExhausted):
		return KindRetriesExhausted
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrRoleConflict):
		return KindRoleConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidKey), errors.Is(err, ErrCrossGroup):
		return KindInvalidArgument
	case errors.Is(err, ErrFailedPrecondition):
		return KindFailedPrecondition
	case errors.Is(err, ErrBlobStoreFatal), errors.Is(err, ErrBlobNotFound):
		return KindBlobStoreFatal
	case errors.Is(err, ErrBackendFatal):
		return KindBackendFatal
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether err is an optimistic-concurrency conflict.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConflict
}

// OpError represents a failed storage operation together with the entities it
// was acting on
type OpError struct {
	Op        string
	UserID    string
	ProjectID string
	Path      string
	Err       error
}

func (e *OpError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "storage operation %s failed", e.Op)
	if e.UserID != "" {
		fmt.Fprintf(&b, " user=%s", e.UserID)
	}
	if e.ProjectID != "" {
		fmt.Fprintf(&b, " project=%s", e.ProjectID)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// BlobError represents an error related to blob store operations
type BlobError struct {
	Key string
	Op  string
	Err error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("blob operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap exposes both the blob store sentinel and the underlying cause.
func (e *BlobError) Unwrap() []error {
	return []error{ErrBlobStoreFatal, e.Err}
}
