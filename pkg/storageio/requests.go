package storageio

// InitialFile is a file created together with its project
type InitialFile struct {
	Path    string
	Role    Role
	Content []byte
}

// CreateProjectRequest contains parameters for creating a project
type CreateProjectRequest struct {
	Name     string
	Type     string
	Settings string
	Files    []InitialFile
}

// StoreSplashConfigRequest contains parameters for replacing the splash screen
type StoreSplashConfigRequest struct {
	Width   int
	Height  int
	Content string
}
