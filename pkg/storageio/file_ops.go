package storageio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tendant/storageio/pkg/storageio/objectkey"
)

const buildOutputDir = "build/"

func validatePaths(role Role, paths []string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}
	for _, p := range paths {
		if p == "" {
			return fmt.Errorf("%w: empty file path", ErrInvalidArgument)
		}
	}
	return nil
}

// AddFiles registers empty files under role. Paths that already exist with
// the same role are left alone; a path that exists with another role fails
// the whole call with ErrRoleConflict.
func (s *service) AddFiles(ctx context.Context, userID, projectID string, role Role, paths ...string) (int64, error) {
	if err := validatePaths(role, paths); err != nil {
		return 0, opError("add_files", userID, projectID, "", err)
	}
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return 0, opError("add_files", userID, projectID, "", err)
	}

	var modified int64
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		project, err := s.touchProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		for _, p := range paths {
			existing, err := getRecord[File](ctx, tx, fileKey(projectID, p))
			switch {
			case err == nil:
				if existing.Role != role {
					return fmt.Errorf("%w: %s has role %s", ErrRoleConflict, p, existing.Role)
				}
				continue
			case !errors.Is(err, ErrNotFound):
				return err
			}
			file := &File{Path: p, Role: role, UpdatedAt: s.nowUTC()}
			if err := putRecord(ctx, tx, fileKey(projectID, p), file); err != nil {
				return err
			}
		}
		modified = project.DateModified
		return nil
	})
	if err := s.runner.Run(ctx, projectKey(projectID), job, logAttrs(userID, projectID, "")...); err != nil {
		return 0, opError("add_files", userID, projectID, "", err)
	}
	return modified, nil
}

// RemoveFiles deletes files of the given role. Missing paths are skipped; a
// path stored under another role fails with ErrRoleConflict.
func (s *service) RemoveFiles(ctx context.Context, userID, projectID string, role Role, paths ...string) (int64, error) {
	if err := validatePaths(role, paths); err != nil {
		return 0, opError("remove_files", userID, projectID, "", err)
	}
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return 0, opError("remove_files", userID, projectID, "", err)
	}

	var modified int64
	job := s.newContentJob(func(ctx context.Context, tx Txn, j *contentJob) error {
		project, err := s.touchProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		for _, p := range paths {
			existing, err := getRecord[File](ctx, tx, fileKey(projectID, p))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if existing.Role != role {
				return fmt.Errorf("%w: %s has role %s", ErrRoleConflict, p, existing.Role)
			}
			if err := tx.Delete(ctx, fileKey(projectID, p)); err != nil {
				return err
			}
			j.release(existing.Content)
		}
		modified = project.DateModified
		return nil
	})
	if err := s.runContent(ctx, projectKey(projectID), job, logAttrs(userID, projectID, "")...); err != nil {
		return 0, opError("remove_files", userID, projectID, "", err)
	}
	return modified, nil
}

// ListProjectFiles lists the project's files, all of them when role is empty.
func (s *service) ListProjectFiles(ctx context.Context, userID, projectID string, role Role) ([]FileInfo, error) {
	if role != "" && !role.Valid() {
		return nil, opError("list_project_files", userID, projectID, "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role))
	}
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, opError("list_project_files", userID, projectID, "", err)
	}

	parent := projectKey(projectID)
	entities, err := s.backend.Query(ctx, &parent, KindFile)
	if err != nil {
		return nil, opError("list_project_files", userID, projectID, "", err)
	}
	files, err := decodeEntities[File](entities)
	if err != nil {
		return nil, opError("list_project_files", userID, projectID, "", err)
	}

	infos := make([]FileInfo, 0, len(files))
	for _, f := range files {
		if role != "" && f.Role != role {
			continue
		}
		infos = append(infos, FileInfo{
			Path:      f.Path,
			Role:      f.Role,
			Size:      f.Size,
			External:  f.Content.IsExternal(),
			UpdatedAt: f.UpdatedAt,
		})
	}
	return infos, nil
}

// WriteFileContent stores content at path, creating the file when needed, and
// returns the project's new modification date. New files under build/ are
// targets, all others sources.
func (s *service) WriteFileContent(ctx context.Context, projectID, path string, content []byte) (int64, error) {
	if projectID == "" || path == "" {
		return 0, opError("write_file_content", "", projectID, path, fmt.Errorf("%w: project id and path are required", ErrInvalidArgument))
	}

	stage := s.newStage(path, content, objectkey.KeyMetadata{ProjectID: projectID, FileName: path})
	var modified int64
	job := s.newContentJob(func(ctx context.Context, tx Txn, j *contentJob) error {
		project, err := s.touchProject(ctx, tx, projectID)
		if err != nil {
			return err
		}

		file, err := getRecord[File](ctx, tx, fileKey(projectID, path))
		switch {
		case err == nil:
			j.release(file.Content)
		case errors.Is(err, ErrNotFound):
			file = &File{Path: path, Role: RoleSource}
			if strings.HasPrefix(path, buildOutputDir) {
				file.Role = RoleTarget
			}
		default:
			return err
		}

		file.Content = stage.locator()
		file.Size = stage.size()
		file.UpdatedAt = s.nowUTC()
		if err := putRecord(ctx, tx, fileKey(projectID, path), file); err != nil {
			return err
		}
		modified = project.DateModified
		return nil
	}, stage)
	if err := s.runContent(ctx, projectKey(projectID), job, logAttrs("", projectID, path)...); err != nil {
		return 0, opError("write_file_content", "", projectID, path, err)
	}
	return modified, nil
}

// ReadFileContent returns the bytes stored at path.
func (s *service) ReadFileContent(ctx context.Context, projectID, path string) ([]byte, error) {
	file, err := getRecord[File](ctx, s.backend, fileKey(projectID, path))
	if err != nil {
		return nil, opError("read_file_content", "", projectID, path, err)
	}
	data, err := s.readContent(ctx, file.Content)
	if err != nil {
		return nil, opError("read_file_content", "", projectID, path, err)
	}
	return data, nil
}
