package storageio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/tendant/storageio/pkg/storageio/objectkey"
)

// tempKey validates a temporary file name and returns its root key. It does
// no I/O so malformed names fail before storage is touched.
func tempKey(tempName string) (Key, error) {
	id, ok := strings.CutPrefix(tempName, TempFilePrefix)
	if !ok {
		return Key{}, fmt.Errorf("%w: temp file name %q lacks prefix %q", ErrInvalidArgument, tempName, TempFilePrefix)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 || strconv.FormatInt(n, 10) != id {
		return Key{}, fmt.Errorf("%w: malformed temp file name %q", ErrInvalidArgument, tempName)
	}
	return RootKey(KindTempFile, id), nil
}

// CreateTempFile stores content in the temporary pool and returns its name.
func (s *service) CreateTempFile(ctx context.Context, content []byte) (string, error) {
	id := strconv.FormatInt(rand.Int64N(math.MaxInt64)+1, 10)
	name := TempFilePrefix + id
	key := RootKey(KindTempFile, id)

	stage := s.newStage(name, content, objectkey.KeyMetadata{Temp: true})
	job := s.newContentJob(func(ctx context.Context, tx Txn, j *contentJob) error {
		if _, err := tx.Get(ctx, key); err == nil {
			return fmt.Errorf("%w: temp file %s already exists", ErrFailedPrecondition, name)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return putRecord(ctx, tx, key, &TempFile{
			Name:      name,
			Content:   stage.locator(),
			Size:      stage.size(),
			CreatedAt: s.nowUTC(),
		})
	}, stage)
	if err := s.runContent(ctx, key, job, logAttrs("", "", name)...); err != nil {
		return "", opError("create_temp_file", "", "", name, err)
	}
	return name, nil
}

func (s *service) OpenTempFile(ctx context.Context, tempName string) ([]byte, error) {
	key, err := tempKey(tempName)
	if err != nil {
		return nil, opError("open_temp_file", "", "", tempName, err)
	}
	file, err := getRecord[TempFile](ctx, s.backend, key)
	if err != nil {
		return nil, opError("open_temp_file", "", "", tempName, err)
	}
	data, err := s.readContent(ctx, file.Content)
	if err != nil {
		return nil, opError("open_temp_file", "", "", tempName, err)
	}
	return data, nil
}

func (s *service) DeleteTempFile(ctx context.Context, tempName string) error {
	key, err := tempKey(tempName)
	if err != nil {
		return opError("delete_temp_file", "", "", tempName, err)
	}

	job := s.newContentJob(func(ctx context.Context, tx Txn, j *contentJob) error {
		file, err := getRecord[TempFile](ctx, tx, key)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, key); err != nil {
			return err
		}
		j.release(file.Content)
		return nil
	})
	return opError("delete_temp_file", "", "", tempName, s.runContent(ctx, key, job, logAttrs("", "", tempName)...))
}
