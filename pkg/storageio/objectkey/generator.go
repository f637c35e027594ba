package objectkey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for blob key generation strategies.
// Every call must return a key no earlier call returned, so that each upload
// attempt owns its own object.
type Generator interface {
	// GenerateKey creates a blob key for objectID
	GenerateKey(objectID uuid.UUID, metadata *KeyMetadata) string
}

// KeyMetadata describes the record a blob belongs to
type KeyMetadata struct {
	UserID    string
	ProjectID string
	FileName  string

	// Temp marks content of the temporary file pool
	Temp bool
}

// Next generates a key with a fresh random object id.
func Next(g Generator, metadata *KeyMetadata) string {
	return g.GenerateKey(uuid.New(), metadata)
}

// FlatGenerator lays keys out by owner without sharding
// Project file: P/{project}/{object}/{base name}
// User file:    U/{user}/{object}/{base name}
// Temp file:    T/{object}
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(objectID uuid.UUID, metadata *KeyMetadata) string {
	switch {
	case metadata == nil || metadata.Temp:
		return fmt.Sprintf("T/%s", objectID)
	case metadata.ProjectID != "":
		return withFileName(fmt.Sprintf("P/%s/%s", sanitizePathComponent(metadata.ProjectID), objectID), metadata)
	case metadata.UserID != "":
		return withFileName(fmt.Sprintf("U/%s/%s", sanitizePathComponent(metadata.UserID), objectID), metadata)
	default:
		return fmt.Sprintf("T/%s", objectID)
	}
}

func withFileName(prefix string, metadata *KeyMetadata) string {
	if metadata.FileName == "" {
		return prefix
	}
	return prefix + "/" + sanitizeFilename(path.Base(metadata.FileName))
}

// GitLikeGenerator provides Git-style sharded storage
// Project file: projects/objects/ab/cd1234ef5678_name
// User file:    users/objects/ab/cd1234ef5678_name
// Temp file:    temp/objects/ab/cd1234ef5678
type GitLikeGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewGitLikeGenerator() *GitLikeGenerator {
	return &GitLikeGenerator{
		ShardLength: 2,
	}
}

func (g *GitLikeGenerator) GenerateKey(objectID uuid.UUID, metadata *KeyMetadata) string {
	id := strings.ReplaceAll(objectID.String(), "-", "")

	shard := g.ShardLength
	if shard <= 0 {
		shard = 2
	}
	if shard > len(id)-1 {
		shard = len(id) - 1
	}
	shardDir, remaining := id[:shard], id[shard:]

	prefix := "temp"
	if metadata != nil && !metadata.Temp {
		switch {
		case metadata.ProjectID != "":
			prefix = "projects"
		case metadata.UserID != "":
			prefix = "users"
		}
	}

	filename := remaining
	if metadata != nil && !metadata.Temp && metadata.FileName != "" {
		filename = fmt.Sprintf("%s_%s", remaining, sanitizeFilename(path.Base(metadata.FileName)))
	}
	return fmt.Sprintf("%s/objects/%s/%s", prefix, shardDir, filename)
}

// OwnerScopedGenerator prefixes the base generator's key with the owning
// project or user so a whole owner can be listed or purged by prefix.
// Structure: owners/{project|user}/{base key}
type OwnerScopedGenerator struct {
	BaseGenerator Generator
}

func NewOwnerScopedGenerator() *OwnerScopedGenerator {
	return &OwnerScopedGenerator{BaseGenerator: NewGitLikeGenerator()}
}

func (g *OwnerScopedGenerator) GenerateKey(objectID uuid.UUID, metadata *KeyMetadata) string {
	base := g.BaseGenerator.GenerateKey(objectID, metadata)
	if metadata == nil || metadata.Temp {
		return base
	}
	switch {
	case metadata.ProjectID != "":
		return fmt.Sprintf("owners/project-%s/%s", sanitizePathComponent(metadata.ProjectID), base)
	case metadata.UserID != "":
		return fmt.Sprintf("owners/user-%s/%s", sanitizePathComponent(metadata.UserID), base)
	}
	return base
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(objectID uuid.UUID, metadata *KeyMetadata) string
}

func NewCustomFuncGenerator(fn func(objectID uuid.UUID, metadata *KeyMetadata) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(objectID uuid.UUID, metadata *KeyMetadata) string {
	return g.GenerateFunc(objectID, metadata)
}

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
)

// sanitizeFilename makes filename safe as a single key segment. Dot
// segments would be collapsed by path cleaning, so they become "_".
func sanitizeFilename(filename string) string {
	switch s := unsafeChars.Replace(filename); s {
	case "", ".", "..":
		return "_"
	default:
		return s
	}
}

func sanitizePathComponent(component string) string {
	return strings.ToLower(unsafeChars.Replace(component))
}

// NewRecommendedGenerator returns the recommended generator for new installations
func NewRecommendedGenerator() Generator {
	return NewGitLikeGenerator()
}
