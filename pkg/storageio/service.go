package storageio

import (
	"context"
	"time"
)

// Service defines the persistence surface for accounts, projects and files
type Service interface {
	// Account operations
	GetUser(ctx context.Context, userID, emailHint string) (*User, error)
	SetUserEmail(ctx context.Context, userID, email string) error
	SetUserName(ctx context.Context, userID, name string) error
	SetTosAccepted(ctx context.Context, userID string) error
	SetUserSessionID(ctx context.Context, userID, sessionID string) error
	LoadUserSettings(ctx context.Context, userID string) (string, error)
	StoreUserSettings(ctx context.Context, userID, settings string) error
	DeleteAccount(ctx context.Context, userID string) error

	// Project operations
	CreateProject(ctx context.Context, userID string, req CreateProjectRequest) (string, error)
	DeleteProject(ctx context.Context, userID, projectID string) error
	ListProjects(ctx context.Context, userID string) ([]string, error)
	GetProject(ctx context.Context, userID, projectID string) (*Project, error)
	LoadProjectSettings(ctx context.Context, userID, projectID string) (string, error)
	StoreProjectSettings(ctx context.Context, userID, projectID, settings string) (int64, error)
	GetProjectHistory(ctx context.Context, userID, projectID string) (string, error)
	StoreProjectHistory(ctx context.Context, userID, projectID, history string) error

	// Project file operations
	AddFiles(ctx context.Context, userID, projectID string, role Role, paths ...string) (int64, error)
	RemoveFiles(ctx context.Context, userID, projectID string, role Role, paths ...string) (int64, error)
	ListProjectFiles(ctx context.Context, userID, projectID string, role Role) ([]FileInfo, error)
	WriteFileContent(ctx context.Context, projectID, path string, content []byte) (int64, error)
	ReadFileContent(ctx context.Context, projectID, path string) ([]byte, error)

	// User file operations
	AddUserFiles(ctx context.Context, userID string, names ...string) error
	WriteUserFile(ctx context.Context, userID, name string, content []byte) error
	ReadUserFile(ctx context.Context, userID, name string) ([]byte, error)
	DeleteUserFile(ctx context.Context, userID, name string) error
	ListUserFiles(ctx context.Context, userID string) ([]string, error)

	// Temporary file operations
	CreateTempFile(ctx context.Context, content []byte) (string, error)
	OpenTempFile(ctx context.Context, tempName string) ([]byte, error)
	DeleteTempFile(ctx context.Context, tempName string) error

	// Build status operations
	StoreBuildStatus(ctx context.Context, userID, projectID string, progress int) error
	GetBuildStatus(ctx context.Context, userID, projectID string) (int, error)

	// Nonce and password reset operations
	StoreNonce(ctx context.Context, nonce, userID, projectID string) error
	GetNonce(ctx context.Context, nonce string) (*Nonce, error)
	CleanupNonces(ctx context.Context, ttl time.Duration) (int, error)
	CreatePasswordReset(ctx context.Context, email string) (string, error)
	FindPasswordReset(ctx context.Context, id string) (*PasswordReset, error)
	CleanupPasswordResets(ctx context.Context, ttl time.Duration) (int, error)

	// Site content operations
	StoreBackpack(ctx context.Context, backpackID, content string) error
	LoadBackpack(ctx context.Context, backpackID string) (string, error)
	GetMotd(ctx context.Context) (*Motd, error)
	StoreMotd(ctx context.Context, content string) error
	GetSplashConfig(ctx context.Context) (*SplashConfig, error)
	StoreSplashConfig(ctx context.Context, req StoreSplashConfigRequest) error

	// Close releases the record backend
	Close() error
}
