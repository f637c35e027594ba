package storageio

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tendant/storageio/pkg/storageio/objectkey"
)

// CreateProject creates the project with its initial files and then records
// ownership in the account. The two steps touch different entity groups; if
// the second one fails the project is purged again.
func (s *service) CreateProject(ctx context.Context, userID string, req CreateProjectRequest) (string, error) {
	if userID == "" || req.Name == "" {
		return "", opError("create_project", userID, "", "", fmt.Errorf("%w: user id and project name are required", ErrInvalidArgument))
	}
	seen := make(map[string]bool, len(req.Files))
	for _, f := range req.Files {
		if f.Path == "" || !f.Role.Valid() {
			return "", opError("create_project", userID, "", f.Path, fmt.Errorf("%w: file needs a path and a valid role", ErrInvalidArgument))
		}
		if seen[f.Path] {
			return "", opError("create_project", userID, "", f.Path, fmt.Errorf("%w: duplicate file path", ErrInvalidArgument))
		}
		seen[f.Path] = true
	}

	projectID := uuid.NewString()
	stages := make([]*blobStage, len(req.Files))
	for i, f := range req.Files {
		stages[i] = s.newStage(f.Path, f.Content, objectkey.KeyMetadata{ProjectID: projectID, FileName: f.Path})
	}

	create := s.newContentJob(func(ctx context.Context, tx Txn, j *contentJob) error {
		if _, err := tx.Get(ctx, projectKey(projectID)); err == nil {
			return fmt.Errorf("%w: project %s already exists", ErrFailedPrecondition, projectID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		now := s.nowUTC()
		project := &Project{
			ID:           projectID,
			OwnerID:      userID,
			Name:         req.Name,
			Type:         req.Type,
			Settings:     req.Settings,
			DateCreated:  now.UnixMilli(),
			DateModified: now.UnixMilli(),
		}
		if err := putRecord(ctx, tx, projectKey(projectID), project); err != nil {
			return err
		}
		for i, f := range req.Files {
			file := &File{
				Path:      f.Path,
				Role:      f.Role,
				Content:   stages[i].locator(),
				Size:      stages[i].size(),
				UpdatedAt: now,
			}
			if err := putRecord(ctx, tx, fileKey(projectID, f.Path), file); err != nil {
				return err
			}
		}
		return nil
	}, stages...)
	if err := s.runContent(ctx, projectKey(projectID), create, logAttrs(userID, projectID, "")...); err != nil {
		return "", opError("create_project", userID, projectID, "", err)
	}

	own := JobFunc(func(ctx context.Context, tx Txn) error {
		return putRecord(ctx, tx, userProjectKey(userID, projectID), &UserProject{
			ProjectID: projectID,
			Name:      req.Name,
			Type:      req.Type,
		})
	})
	if err := s.runner.Run(ctx, userKey(userID), own, logAttrs(userID, projectID, "")...); err != nil {
		if perr := s.purgeProject(ctx, projectID); perr != nil {
			s.logger.ErrorContext(ctx, "failed to purge unowned project", "user_id", userID, "project_id", projectID, "err", perr)
		}
		return "", opError("create_project", userID, projectID, "", err)
	}
	return projectID, nil
}

// DeleteProject drops the ownership record first so the project becomes
// unreachable, then removes the project group and its blobs.
func (s *service) DeleteProject(ctx context.Context, userID, projectID string) error {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return opError("delete_project", userID, projectID, "", err)
	}

	unown := JobFunc(func(ctx context.Context, tx Txn) error {
		return tx.Delete(ctx, userProjectKey(userID, projectID))
	})
	if err := s.runner.Run(ctx, userKey(userID), unown, logAttrs(userID, projectID, "")...); err != nil {
		return opError("delete_project", userID, projectID, "", err)
	}
	return opError("delete_project", userID, projectID, "", s.purgeProject(ctx, projectID))
}

// purgeProject deletes the project record together with its files and build
// statuses.
func (s *service) purgeProject(ctx context.Context, projectID string) error {
	job := s.newContentJob(func(ctx context.Context, tx Txn, j *contentJob) error {
		entities, err := tx.Query(ctx, projectKey(projectID), KindFile)
		if err != nil {
			return err
		}
		files, err := decodeEntities[File](entities)
		if err != nil {
			return err
		}
		for i, f := range files {
			if err := tx.Delete(ctx, entities[i].Key); err != nil {
				return err
			}
			j.release(f.Content)
		}

		statuses, err := tx.Query(ctx, projectKey(projectID), KindBuildStatus)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			if err := tx.Delete(ctx, st.Key); err != nil {
				return err
			}
		}
		return tx.Delete(ctx, projectKey(projectID))
	})
	return s.runContent(ctx, projectKey(projectID), job, logAttrs("", projectID, "")...)
}

// ListProjects returns the ids of the projects the account owns.
func (s *service) ListProjects(ctx context.Context, userID string) ([]string, error) {
	parent := userKey(userID)
	entities, err := s.backend.Query(ctx, &parent, KindUserProject)
	if err != nil {
		return nil, opError("list_projects", userID, "", "", err)
	}
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.Key.Name)
	}
	return ids, nil
}

func (s *service) GetProject(ctx context.Context, userID, projectID string) (*Project, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return nil, opError("get_project", userID, projectID, "", err)
	}
	project, err := getRecord[Project](ctx, s.backend, projectKey(projectID))
	if err != nil {
		return nil, opError("get_project", userID, projectID, "", err)
	}
	return project, nil
}

func (s *service) LoadProjectSettings(ctx context.Context, userID, projectID string) (string, error) {
	project, err := s.GetProject(ctx, userID, projectID)
	if err != nil {
		return "", err
	}
	return project.Settings, nil
}

// StoreProjectSettings replaces the settings and returns the new modification date.
func (s *service) StoreProjectSettings(ctx context.Context, userID, projectID, settings string) (int64, error) {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return 0, opError("store_project_settings", userID, projectID, "", err)
	}

	var modified int64
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		project, err := s.touchProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		project.Settings = settings
		modified = project.DateModified
		return putRecord(ctx, tx, projectKey(projectID), project)
	})
	if err := s.runner.Run(ctx, projectKey(projectID), job, logAttrs(userID, projectID, "")...); err != nil {
		return 0, opError("store_project_settings", userID, projectID, "", err)
	}
	return modified, nil
}

func (s *service) GetProjectHistory(ctx context.Context, userID, projectID string) (string, error) {
	project, err := s.GetProject(ctx, userID, projectID)
	if err != nil {
		return "", err
	}
	return project.History, nil
}

func (s *service) StoreProjectHistory(ctx context.Context, userID, projectID, history string) error {
	if err := s.authorize(ctx, userID, projectID); err != nil {
		return opError("store_project_history", userID, projectID, "", err)
	}

	job := JobFunc(func(ctx context.Context, tx Txn) error {
		project, err := getRecord[Project](ctx, tx, projectKey(projectID))
		if err != nil {
			return err
		}
		project.History = history
		return putRecord(ctx, tx, projectKey(projectID), project)
	})
	return opError("store_project_history", userID, projectID, "",
		s.runner.Run(ctx, projectKey(projectID), job, logAttrs(userID, projectID, "")...))
}
