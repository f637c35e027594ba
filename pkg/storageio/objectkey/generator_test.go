package objectkey

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var objectID = uuid.MustParse("987fcdeb-51a2-43d1-9f12-345678901234")

func TestFlatGenerator(t *testing.T) {
	gen := NewFlatGenerator()

	tests := []struct {
		name     string
		metadata *KeyMetadata
		expected string
	}{
		{
			name:     "nil metadata goes to temp",
			metadata: nil,
			expected: "T/987fcdeb-51a2-43d1-9f12-345678901234",
		},
		{
			name:     "project file keeps base name",
			metadata: &KeyMetadata{ProjectID: "p1", FileName: "assets/kitty.png"},
			expected: "P/p1/987fcdeb-51a2-43d1-9f12-345678901234/kitty.png",
		},
		{
			name:     "user file",
			metadata: &KeyMetadata{UserID: "u1", FileName: "android.keystore"},
			expected: "U/u1/987fcdeb-51a2-43d1-9f12-345678901234/android.keystore",
		},
		{
			name:     "dot-dot base name stays a segment",
			metadata: &KeyMetadata{ProjectID: "p1", FileName: "assets/x/.."},
			expected: "P/p1/987fcdeb-51a2-43d1-9f12-345678901234/_",
		},
		{
			name:     "dot base name stays a segment",
			metadata: &KeyMetadata{UserID: "u1", FileName: "."},
			expected: "U/u1/987fcdeb-51a2-43d1-9f12-345678901234/_",
		},
		{
			name:     "temp wins over owner",
			metadata: &KeyMetadata{ProjectID: "p1", Temp: true},
			expected: "T/987fcdeb-51a2-43d1-9f12-345678901234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, gen.GenerateKey(objectID, tt.metadata))
		})
	}
}

func TestGitLikeGenerator(t *testing.T) {
	gen := NewGitLikeGenerator()

	tests := []struct {
		name     string
		metadata *KeyMetadata
		contains []string
	}{
		{
			name:     "project file",
			metadata: &KeyMetadata{ProjectID: "p1", FileName: "assets/my kitty.png"},
			contains: []string{"projects/objects/98/", "_my_kitty.png"},
		},
		{
			name:     "user file",
			metadata: &KeyMetadata{UserID: "u1", FileName: "android.keystore"},
			contains: []string{"users/objects/98/", "_android.keystore"},
		},
		{
			name:     "temp file has no name",
			metadata: &KeyMetadata{Temp: true, FileName: "ignored"},
			contains: []string{"temp/objects/98/7fcdeb51a243d19f12345678901234"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := gen.GenerateKey(objectID, tt.metadata)
			for _, part := range tt.contains {
				assert.Contains(t, key, part)
			}
			assert.NotContains(t, key, "ignored")
		})
	}
}

func TestGitLikeGenerator_ShardLength(t *testing.T) {
	gen := &GitLikeGenerator{ShardLength: 3}
	key := gen.GenerateKey(objectID, &KeyMetadata{ProjectID: "p1"})
	assert.True(t, strings.HasPrefix(key, "projects/objects/987/"), key)
}

func TestOwnerScopedGenerator(t *testing.T) {
	gen := NewOwnerScopedGenerator()

	key := gen.GenerateKey(objectID, &KeyMetadata{ProjectID: "ABC", FileName: "a.bin"})
	assert.True(t, strings.HasPrefix(key, "owners/project-abc/projects/objects/98/"), key)

	key = gen.GenerateKey(objectID, &KeyMetadata{UserID: "U1"})
	assert.True(t, strings.HasPrefix(key, "owners/user-u1/users/objects/98/"), key)

	key = gen.GenerateKey(objectID, &KeyMetadata{Temp: true})
	assert.True(t, strings.HasPrefix(key, "temp/objects/"), key)
}

func TestNext_UniquePerCall(t *testing.T) {
	gen := NewRecommendedGenerator()
	meta := &KeyMetadata{ProjectID: "p1", FileName: "assets/big.bin"}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := Next(gen, meta)
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestCustomFuncGenerator(t *testing.T) {
	gen := NewCustomFuncGenerator(func(id uuid.UUID, metadata *KeyMetadata) string {
		return "custom/" + metadata.ProjectID + "/" + id.String()
	})
	assert.Equal(t, "custom/p9/"+objectID.String(), gen.GenerateKey(objectID, &KeyMetadata{ProjectID: "p9"}))
}
