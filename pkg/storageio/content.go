package storageio

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/tendant/storageio/pkg/storageio/objectkey"
)

// blobStage holds content headed for one record and, when the tiering policy
// externalizes it, the blob uploaded for the current attempt.
type blobStage struct {
	content  []byte
	external bool
	meta     objectkey.KeyMetadata
	key      string
}

func (s *service) newStage(name string, content []byte, meta objectkey.KeyMetadata) *blobStage {
	return &blobStage{
		content:  content,
		external: s.policy.ShouldExternalize(name, int64(len(content))),
		meta:     meta,
	}
}

func (b *blobStage) locator() ContentLocator {
	if b.external {
		return ContentLocator{BlobKey: b.key, External: true}
	}
	return ContentLocator{Inline: append([]byte{}, b.content...)}
}

func (b *blobStage) size() int64 {
	return int64(len(b.content))
}

// contentJob runs a transactional body around blob side effects. Staged
// content is uploaded under a fresh key before every attempt; blob keys
// released by the body are deleted only once the transaction commits.
type contentJob struct {
	s        *service
	stages   []*blobStage
	body     func(ctx context.Context, tx Txn, j *contentJob) error
	released []string
}

func (s *service) newContentJob(body func(ctx context.Context, tx Txn, j *contentJob) error, stages ...*blobStage) *contentJob {
	return &contentJob{s: s, stages: stages, body: body}
}

func (j *contentJob) Prepare(ctx context.Context) error {
	j.released = nil
	for _, st := range j.stages {
		if !st.external {
			continue
		}
		key := objectkey.Next(j.s.keyGen, &st.meta)
		if err := j.s.blobStore.Upload(ctx, key, bytes.NewReader(st.content)); err != nil {
			return &BlobError{Key: key, Op: "upload", Err: err}
		}
		st.key = key
	}
	return nil
}

func (j *contentJob) Run(ctx context.Context, tx Txn) error {
	return j.body(ctx, tx, j)
}

func (j *contentJob) OnNonFatalError(ctx context.Context) {
	j.discard(ctx)
}

// release schedules the blob behind loc for deletion after commit.
func (j *contentJob) release(loc ContentLocator) {
	if loc.IsExternal() {
		j.released = append(j.released, loc.BlobKey)
	}
}

func (j *contentJob) discard(ctx context.Context) {
	for _, st := range j.stages {
		if st.key != "" {
			j.s.deleteBlob(ctx, st.key)
			st.key = ""
		}
	}
}

// runContent runs job on root. Blobs of a failed job are removed; blobs the
// committed job released are removed after the commit.
func (s *service) runContent(ctx context.Context, root Key, job *contentJob, attrs ...any) error {
	if err := s.runner.Run(ctx, root, job, attrs...); err != nil {
		job.discard(ctx)
		return err
	}
	for _, key := range job.released {
		s.deleteBlob(ctx, key)
	}
	return nil
}

// deleteBlob removes an object. Failures are logged and never returned.
func (s *service) deleteBlob(ctx context.Context, key string) {
	err := s.blobStore.Delete(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrBlobNotFound):
		s.logger.DebugContext(ctx, "blob already gone", "blob_key", key)
	default:
		s.logger.WarnContext(ctx, "failed to delete blob", "blob_key", key, "err", err)
	}
}

// readContent resolves a locator to the stored bytes.
func (s *service) readContent(ctx context.Context, loc ContentLocator) ([]byte, error) {
	if !loc.IsExternal() {
		return append([]byte{}, loc.Inline...), nil
	}
	rc, err := s.blobStore.Download(ctx, loc.BlobKey)
	if err != nil {
		return nil, &BlobError{Key: loc.BlobKey, Op: "download", Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &BlobError{Key: loc.BlobKey, Op: "read", Err: err}
	}
	return data, nil
}
