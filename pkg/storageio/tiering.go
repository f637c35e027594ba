package storageio

import (
	"strings"
)

// DefaultInlineLimit is the largest content, in bytes, kept inline by default.
const DefaultInlineLimit int64 = 50000

// TieringPolicy decides whether file content is stored inline in its record
// or externally in the blob store. It looks at nothing but the path and the
// content length, so it can be evaluated before any transaction opens.
type TieringPolicy struct {
	// InlineLimit is the largest content kept inline. Zero or negative
	// disables the size rule.
	InlineLimit int64

	// AssetDirs are path fragments marking asset directories
	AssetDirs []string

	// BinaryExtensions are suffixes of packaged build outputs
	BinaryExtensions []string
}

// DefaultTieringPolicy returns the policy used when none is configured.
func DefaultTieringPolicy() TieringPolicy {
	return TieringPolicy{
		InlineLimit:      DefaultInlineLimit,
		AssetDirs:        []string{"assets/"},
		BinaryExtensions: []string{".apk", ".aab", ".aia"},
	}
}

// ShouldExternalize reports whether content of the given size written at path
// belongs in the blob store.
func (p TieringPolicy) ShouldExternalize(path string, size int64) bool {
	for _, dir := range p.AssetDirs {
		if dir != "" && strings.Contains(path, dir) {
			return true
		}
	}
	for _, ext := range p.BinaryExtensions {
		if ext != "" && strings.HasSuffix(path, ext) {
			return true
		}
	}
	return p.InlineLimit > 0 && size > p.InlineLimit
}
