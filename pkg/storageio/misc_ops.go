package storageio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const singletonName = "1"

// Splash screen dimensions used until one is stored.
const (
	DefaultSplashWidth  = 350
	DefaultSplashHeight = 100
)

// StoreBuildStatus records progress for a project that still exists.
func (s *service) StoreBuildStatus(ctx context.Context, userID, projectID string, progress int) error {
	if progress < 0 || progress > 100 {
		return opError("store_build_status", userID, projectID, "", fmt.Errorf("%w: progress %d out of range", ErrInvalidArgument, progress))
	}
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		if _, err := getRecord[Project](ctx, tx, projectKey(projectID)); err != nil {
			return err
		}
		return putRecord(ctx, tx, buildStatusKey(userID, projectID), &BuildStatus{Progress: progress})
	})
	return opError("store_build_status", userID, projectID, "",
		s.runner.Run(ctx, projectKey(projectID), job, logAttrs(userID, projectID, "")...))
}

// GetBuildStatus returns the stored progress, or 0 when none was stored.
func (s *service) GetBuildStatus(ctx context.Context, userID, projectID string) (int, error) {
	status, err := getRecord[BuildStatus](ctx, s.backend, buildStatusKey(userID, projectID))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, opError("get_build_status", userID, projectID, "", err)
	}
	return status.Progress, nil
}

func (s *service) StoreNonce(ctx context.Context, nonce, userID, projectID string) error {
	if nonce == "" {
		return opError("store_nonce", userID, projectID, "", fmt.Errorf("%w: empty nonce", ErrInvalidArgument))
	}
	key := RootKey(KindNonce, nonce)
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		return putRecord(ctx, tx, key, &Nonce{
			Value:     nonce,
			UserID:    userID,
			ProjectID: projectID,
			CreatedAt: s.nowUTC(),
		})
	})
	return opError("store_nonce", userID, projectID, "", s.runner.Run(ctx, key, job, logAttrs(userID, projectID, "")...))
}

func (s *service) GetNonce(ctx context.Context, nonce string) (*Nonce, error) {
	n, err := getRecord[Nonce](ctx, s.backend, RootKey(KindNonce, nonce))
	if err != nil {
		return nil, opError("get_nonce", "", "", "", err)
	}
	return n, nil
}

// CleanupNonces deletes nonces older than ttl and returns how many went.
func (s *service) CleanupNonces(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := cleanupExpired(ctx, s, KindNonce, ttl, func(n *Nonce) time.Time { return n.CreatedAt })
	return n, opError("cleanup_nonces", "", "", "", err)
}

func (s *service) CreatePasswordReset(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", opError("create_password_reset", "", "", "", fmt.Errorf("%w: empty email", ErrInvalidArgument))
	}
	id := uuid.NewString()
	key := RootKey(KindPasswordReset, id)
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		return putRecord(ctx, tx, key, &PasswordReset{ID: id, Email: email, CreatedAt: s.nowUTC()})
	})
	if err := s.runner.Run(ctx, key, job); err != nil {
		return "", opError("create_password_reset", "", "", "", err)
	}
	return id, nil
}

func (s *service) FindPasswordReset(ctx context.Context, id string) (*PasswordReset, error) {
	pr, err := getRecord[PasswordReset](ctx, s.backend, RootKey(KindPasswordReset, id))
	if err != nil {
		return nil, opError("find_password_reset", "", "", "", err)
	}
	return pr, nil
}

func (s *service) CleanupPasswordResets(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := cleanupExpired(ctx, s, KindPasswordReset, ttl, func(pr *PasswordReset) time.Time { return pr.CreatedAt })
	return n, opError("cleanup_password_resets", "", "", "", err)
}

// cleanupExpired deletes root records of kind created before now-ttl. Each
// record is deleted in its own job and its age is checked again inside it.
func cleanupExpired[T any](ctx context.Context, s *service, kind string, ttl time.Duration, created func(*T) time.Time) (int, error) {
	entities, err := s.backend.Query(ctx, nil, kind)
	if err != nil {
		return 0, err
	}
	records, err := decodeEntities[T](entities)
	if err != nil {
		return 0, err
	}

	cutoff := s.nowUTC().Add(-ttl)
	removed := 0
	for i, rec := range records {
		if !created(rec).Before(cutoff) {
			continue
		}
		key := entities[i].Key
		deleted := false
		job := JobFunc(func(ctx context.Context, tx Txn) error {
			deleted = false
			cur, err := getRecord[T](ctx, tx, key)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !created(cur).Before(cutoff) {
				return nil
			}
			deleted = true
			return tx.Delete(ctx, key)
		})
		if err := s.runner.Run(ctx, key, job, "kind", kind); err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "removed expired records", "kind", kind, "count", removed)
	}
	return removed, nil
}

func (s *service) StoreBackpack(ctx context.Context, backpackID, content string) error {
	if backpackID == "" {
		return opError("store_backpack", "", "", "", fmt.Errorf("%w: empty backpack id", ErrInvalidArgument))
	}
	key := RootKey(KindBackpack, backpackID)
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		return putRecord(ctx, tx, key, &Backpack{ID: backpackID, Content: content})
	})
	return opError("store_backpack", "", "", "", s.runner.Run(ctx, key, job))
}

// LoadBackpack returns the backpack content, empty when none was stored.
func (s *service) LoadBackpack(ctx context.Context, backpackID string) (string, error) {
	bp, err := getRecord[Backpack](ctx, s.backend, RootKey(KindBackpack, backpackID))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", opError("load_backpack", "", "", "", err)
	}
	return bp.Content, nil
}

func (s *service) GetMotd(ctx context.Context) (*Motd, error) {
	motd, err := getRecord[Motd](ctx, s.backend, RootKey(KindMotd, singletonName))
	if errors.Is(err, ErrNotFound) {
		return &Motd{ID: 1}, nil
	}
	if err != nil {
		return nil, opError("get_motd", "", "", "", err)
	}
	return motd, nil
}

func (s *service) StoreMotd(ctx context.Context, content string) error {
	key := RootKey(KindMotd, singletonName)
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		return putRecord(ctx, tx, key, &Motd{ID: 1, Content: content})
	})
	return opError("store_motd", "", "", "", s.runner.Run(ctx, key, job))
}

func (s *service) GetSplashConfig(ctx context.Context) (*SplashConfig, error) {
	cfg, err := getRecord[SplashConfig](ctx, s.backend, RootKey(KindSplashConfig, singletonName))
	if errors.Is(err, ErrNotFound) {
		return &SplashConfig{Width: DefaultSplashWidth, Height: DefaultSplashHeight}, nil
	}
	if err != nil {
		return nil, opError("get_splash_config", "", "", "", err)
	}
	return cfg, nil
}

// StoreSplashConfig replaces the splash screen and bumps its version so
// clients show it again.
func (s *service) StoreSplashConfig(ctx context.Context, req StoreSplashConfigRequest) error {
	if req.Width <= 0 || req.Height <= 0 {
		return opError("store_splash_config", "", "", "", fmt.Errorf("%w: splash dimensions must be positive", ErrInvalidArgument))
	}
	key := RootKey(KindSplashConfig, singletonName)
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		version := 0
		prev, err := getRecord[SplashConfig](ctx, tx, key)
		switch {
		case err == nil:
			version = prev.Version
		case !errors.Is(err, ErrNotFound):
			return err
		}
		return putRecord(ctx, tx, key, &SplashConfig{
			Version: version + 1,
			Width:   req.Width,
			Height:  req.Height,
			Content: req.Content,
		})
	})
	return opError("store_splash_config", "", "", "", s.runner.Run(ctx, key, job))
}
