package storageio

import (
	"fmt"
	"net/url"
	"strings"
)

// Record kinds.
const (
	KindUser          = "User"
	KindUserProject   = "UserProject"
	KindUserFile      = "UserFile"
	KindProject       = "Project"
	KindFile          = "File"
	KindBuildStatus   = "BuildStatus"
	KindTempFile      = "TempFile"
	KindNonce         = "Nonce"
	KindPasswordReset = "PasswordReset"
	KindBackpack      = "Backpack"
	KindMotd          = "Motd"
	KindSplashConfig  = "SplashConfig"
)

const pathSeparator = "/"

// Key identifies a record. A key without a parent is a root key; all keys that
// share a root belong to the same entity group.
type Key struct {
	Kind   string
	Name   string
	Parent *Key
}

// RootKey returns a key with no parent.
func RootKey(kind, name string) Key {
	return Key{Kind: kind, Name: name}
}

// ChildKey returns a key parented by parent.
func ChildKey(parent Key, kind, name string) Key {
	p := parent
	return Key{Kind: kind, Name: name, Parent: &p}
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k.Kind == "" && k.Name == "" && k.Parent == nil
}

// IsRoot reports whether k has no parent.
func (k Key) IsRoot() bool {
	return k.Parent == nil
}

// Root returns the entity-group root of k.
func (k Key) Root() Key {
	for k.Parent != nil {
		k = *k.Parent
	}
	return k
}

// Equal reports whether k and o name the same record.
func (k Key) Equal(o Key) bool {
	return k.Path() == o.Path()
}

// SameGroup reports whether k and o share a root key.
func (k Key) SameGroup(o Key) bool {
	return k.Root().Equal(o.Root())
}

// Path renders the key as Kind/Name pairs from the root down. Names are
// path-escaped so the rendering is reversible with ParseKey.
func (k Key) Path() string {
	var parts []string
	for cur := &k; cur != nil; cur = cur.Parent {
		parts = append(parts, url.PathEscape(cur.Name), url.PathEscape(cur.Kind))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, pathSeparator)
}

// ParentPath returns the path of the parent key, or "" for a root key.
func (k Key) ParentPath() string {
	if k.Parent == nil {
		return ""
	}
	return k.Parent.Path()
}

func (k Key) String() string {
	return k.Path()
}

// ParseKey reverses Key.Path.
func ParseKey(path string) (Key, error) {
	parts := strings.Split(path, pathSeparator)
	if path == "" || len(parts)%2 != 0 {
		return Key{}, fmt.Errorf("%w: malformed key path %q", ErrInvalidKey, path)
	}

	var key *Key
	for i := 0; i < len(parts); i += 2 {
		kind, err := url.PathUnescape(parts[i])
		if err != nil {
			return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		name, err := url.PathUnescape(parts[i+1])
		if err != nil {
			return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if kind == "" {
			return Key{}, fmt.Errorf("%w: empty kind in %q", ErrInvalidKey, path)
		}
		next := Key{Kind: kind, Name: name, Parent: key}
		key = &next
	}
	return *key, nil
}

// CheckGroup returns an error wrapping ErrCrossGroup when key does not belong
// to the entity group rooted at root.
func CheckGroup(root, key Key) error {
	if !key.Root().Equal(root) {
		return fmt.Errorf("%w: %s is outside entity group %s", ErrCrossGroup, key, root)
	}
	return nil
}

func userKey(userID string) Key {
	return RootKey(KindUser, userID)
}

func userProjectKey(userID, projectID string) Key {
	return ChildKey(userKey(userID), KindUserProject, projectID)
}

func userFileKey(userID, name string) Key {
	return ChildKey(userKey(userID), KindUserFile, name)
}

func projectKey(projectID string) Key {
	return RootKey(KindProject, projectID)
}

func fileKey(projectID, path string) Key {
	return ChildKey(projectKey(projectID), KindFile, path)
}

func buildStatusKey(userID, projectID string) Key {
	return ChildKey(projectKey(projectID), KindBuildStatus, userID)
}
