package storageio

import (
	"time"
)

// Role is the immutable role of a project file.
type Role string

// Role constants (typed).
const (
	RoleSource    Role = "source"
	RoleTarget    Role = "target"
	RoleTemporary Role = "temporary"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSource, RoleTarget, RoleTemporary:
		return true
	}
	return false
}

// TempFilePrefix starts every temporary file name.
const TempFilePrefix = "__TEMP__/"

// ContentLocator says where a file's bytes live. Exactly one of Inline and
// BlobKey is meaningful: External marks the blob form.
type ContentLocator struct {
	Inline   []byte `json:"inline,omitempty"`
	BlobKey  string `json:"blob_key,omitempty"`
	External bool   `json:"external,omitempty"`
}

// IsExternal reports whether the content is held in the blob store.
func (l ContentLocator) IsExternal() bool {
	return l.External && l.BlobKey != ""
}

// User represents an account.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	Settings    string    `json:"settings,omitempty"`
	TosAccepted bool      `json:"tos_accepted"`
	SessionID   string    `json:"session_id,omitempty"`
	IsAdmin     bool      `json:"is_admin"`
	Type        int       `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	VisitedAt   time.Time `json:"visited_at"`
}

// UserProject is the account-side index record of an owned project. Its
// presence is what grants the account access to the project.
type UserProject struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

// Project represents a project root. Dates are unix milliseconds.
type Project struct {
	ID            string  `json:"id"`
	OwnerID       string  `json:"owner_id"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Settings      string  `json:"settings,omitempty"`
	History       string  `json:"history,omitempty"`
	DateCreated   int64   `json:"date_created"`
	DateModified  int64   `json:"date_modified"`
	GalleryID     *string `json:"gallery_id,omitempty"`
	AttributionID *string `json:"attribution_id,omitempty"`
}

// File represents a file that belongs to a project.
type File struct {
	Path      string         `json:"path"`
	Role      Role           `json:"role"`
	Content   ContentLocator `json:"content"`
	Size      int64          `json:"size"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FileInfo describes a stored file without its content.
type FileInfo struct {
	Path      string    `json:"path"`
	Role      Role      `json:"role,omitempty"`
	Size      int64     `json:"size"`
	External  bool      `json:"external"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserFile is a non-project file owned by an account, such as a signing keystore.
type UserFile struct {
	Name      string         `json:"name"`
	Content   ContentLocator `json:"content"`
	Size      int64          `json:"size"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TempFile is an unowned file in the temporary pool.
type TempFile struct {
	Name      string         `json:"name"`
	Content   ContentLocator `json:"content"`
	Size      int64          `json:"size"`
	CreatedAt time.Time      `json:"created_at"`
}

// BuildStatus records build progress of a project for one user.
type BuildStatus struct {
	Progress int `json:"progress"`
}

// Nonce maps a one-time value to a project download.
type Nonce struct {
	Value     string    `json:"value"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PasswordReset is a pending password reset request.
type PasswordReset struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Backpack holds shared block snippets.
type Backpack struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Motd is the message of the day.
type Motd struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// SplashConfig describes the splash screen shown at login.
type SplashConfig struct {
	Version int    `json:"version"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Content string `json:"content"`
}
