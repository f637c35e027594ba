package storageio

import (
	"context"
	"errors"
	"fmt"
)

// GetUser returns the account, creating it with emailHint on first use.
func (s *service) GetUser(ctx context.Context, userID, emailHint string) (*User, error) {
	if userID == "" {
		return nil, opError("get_user", userID, "", "", fmt.Errorf("%w: empty user id", ErrInvalidArgument))
	}

	var user *User
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		existing, err := getRecord[User](ctx, tx, userKey(userID))
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		now := s.nowUTC()
		user = &User{
			ID:        userID,
			Email:     emailHint,
			CreatedAt: now,
			VisitedAt: now,
		}
		return putRecord(ctx, tx, userKey(userID), user)
	})
	if err := s.runner.Run(ctx, userKey(userID), job, logAttrs(userID, "", "")...); err != nil {
		return nil, opError("get_user", userID, "", "", err)
	}
	return user, nil
}

func (s *service) updateUser(ctx context.Context, op, userID string, mutate func(*User)) error {
	job := JobFunc(func(ctx context.Context, tx Txn) error {
		user, err := getRecord[User](ctx, tx, userKey(userID))
		if err != nil {
			return err
		}
		mutate(user)
		return putRecord(ctx, tx, userKey(userID), user)
	})
	return opError(op, userID, "", "", s.runner.Run(ctx, userKey(userID), job, logAttrs(userID, "", "")...))
}

func (s *service) SetUserEmail(ctx context.Context, userID, email string) error {
	return s.updateUser(ctx, "set_user_email", userID, func(u *User) {
		u.Email = email
	})
}

func (s *service) SetUserName(ctx context.Context, userID, name string) error {
	return s.updateUser(ctx, "set_user_name", userID, func(u *User) {
		u.Name = name
	})
}

func (s *service) SetTosAccepted(ctx context.Context, userID string) error {
	return s.updateUser(ctx, "set_tos_accepted", userID, func(u *User) {
		u.TosAccepted = true
	})
}

func (s *service) SetUserSessionID(ctx context.Context, userID, sessionID string) error {
	now := s.nowUTC()
	return s.updateUser(ctx, "set_user_session_id", userID, func(u *User) {
		u.SessionID = sessionID
		u.VisitedAt = now
	})
}

func (s *service) LoadUserSettings(ctx context.Context, userID string) (string, error) {
	user, err := getRecord[User](ctx, s.backend, userKey(userID))
	if err != nil {
		return "", opError("load_user_settings", userID, "", "", err)
	}
	return user.Settings, nil
}

func (s *service) StoreUserSettings(ctx context.Context, userID, settings string) error {
	return s.updateUser(ctx, "store_user_settings", userID, func(u *User) {
		u.Settings = settings
	})
}

// DeleteAccount removes the account and its user files. It refuses while the
// account still owns projects.
func (s *service) DeleteAccount(ctx context.Context, userID string) error {
	job := s.newContentJob(func(ctx context.Context, tx Txn, j *contentJob) error {
		owned, err := tx.Query(ctx, userKey(userID), KindUserProject)
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			return fmt.Errorf("%w: account owns %d projects", ErrFailedPrecondition, len(owned))
		}

		entities, err := tx.Query(ctx, userKey(userID), KindUserFile)
		if err != nil {
			return err
		}
		files, err := decodeEntities[UserFile](entities)
		if err != nil {
			return err
		}
		for i, f := range files {
			if err := tx.Delete(ctx, entities[i].Key); err != nil {
				return err
			}
			j.release(f.Content)
		}
		return tx.Delete(ctx, userKey(userID))
	})
	return opError("delete_account", userID, "", "", s.runContent(ctx, userKey(userID), job, logAttrs(userID, "", "")...))
}
