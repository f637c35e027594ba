package storageio

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/storageio/pkg/storageio/objectkey"
)

// AddUserFiles creates empty user files for names not yet present.
func (s *service) AddUserFiles(ctx context.Context, userID string, names ...string) error {
	for _, n := range names {
		if n == "" {
			return opError("add_user_files", userID, "", "", fmt.Errorf("%w: empty file name", ErrInvalidArgument))
		}
	}

	job := JobFunc(func(ctx context.Context, tx Txn) error {
		for _, n := range names {
			_, err := tx.Get(ctx, userFileKey(userID, n))
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if err := putRecord(ctx, tx, userFileKey(userID, n), &UserFile{Name: n, UpdatedAt: s.nowUTC()}); err != nil {
				return err
			}
		}
		return nil
	})
	return opError("add_user_files", userID, "", "", s.runner.Run(ctx, userKey(userID), job, logAttrs(userID, "", "")...))
}

func (s *service) WriteUserFile(ctx context.Context, userID, name string, content []byte) error {
	if userID == "" || name == "" {
		return opError("write_user_file", userID, "", name, fmt.Errorf("%w: user id and file name are required", ErrInvalidArgument))
	}

	stage := s.newStage(name, content, objectkey.KeyMetadata{UserID: userID, FileName: name})
	job := s.newContentJob(func(ctx context.Context, tx Txn, j *contentJob) error {
		file, err := getRecord[UserFile](ctx, tx, userFileKey(userID, name))
		switch {
		case err == nil:
			j.release(file.Content)
		case errors.Is(err, ErrNotFound):
			file = &UserFile{Name: name}
		default:
			return err
		}
		file.Content = stage.locator()
		file.Size = stage.size()
		file.UpdatedAt = s.nowUTC()
		return putRecord(ctx, tx, userFileKey(userID, name), file)
	}, stage)
	return opError("write_user_file", userID, "", name, s.runContent(ctx, userKey(userID), job, logAttrs(userID, "", name)...))
}

func (s *service) ReadUserFile(ctx context.Context, userID, name string) ([]byte, error) {
	file, err := getRecord[UserFile](ctx, s.backend, userFileKey(userID, name))
	if err != nil {
		return nil, opError("read_user_file", userID, "", name, err)
	}
	data, err := s.readContent(ctx, file.Content)
	if err != nil {
		return nil, opError("read_user_file", userID, "", name, err)
	}
	return data, nil
}

// DeleteUserFile removes the file; deleting a missing file is not an error.
func (s *service) DeleteUserFile(ctx context.Context, userID, name string) error {
	job := s.newContentJob(func(ctx context.Context, tx Txn, j *contentJob) error {
		file, err := getRecord[UserFile](ctx, tx, userFileKey(userID, name))
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, userFileKey(userID, name)); err != nil {
			return err
		}
		j.release(file.Content)
		return nil
	})
	return opError("delete_user_file", userID, "", name, s.runContent(ctx, userKey(userID), job, logAttrs(userID, "", name)...))
}

func (s *service) ListUserFiles(ctx context.Context, userID string) ([]string, error) {
	parent := userKey(userID)
	entities, err := s.backend.Query(ctx, &parent, KindUserFile)
	if err != nil {
		return nil, opError("list_user_files", userID, "", "", err)
	}
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Key.Name)
	}
	return names, nil
}
