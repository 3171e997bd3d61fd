// Package pathutil normalizes and validates filesystem paths used across the
// indexer, chunker, and MCP tool surface, and derives the stable chunk IDs
// the storage layer keys on.
package pathutil

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a candidate path escapes the project root.
var ErrOutsideRoot = errors.New("path escapes project root")

// utf8BOM is the byte sequence some editors prepend to UTF-8 files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Normalize resolves path relative to root, rejects traversal outside root,
// and returns a root-relative path using forward slashes regardless of OS.
func Normalize(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	absPath := path
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(absRoot, path)
	}
	absPath, err = filepath.Abs(absPath)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if !IsWithinRoot(absRoot, absPath) {
		return "", ErrOutsideRoot
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("compute relative path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// IsWithinRoot reports whether path is root itself or a descendant of it.
// Both arguments must already be absolute and cleaned (see Normalize).
func IsWithinRoot(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if root == path {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, root+sep)
}

// idSeparatorReplacer rewrites path separators and dots to underscores, the
// transform chunk ids and filter predicates both apply so that a chunk id
// derived from a path never contains a character SQLite or a LIKE pattern
// would treat specially.
var idSeparatorReplacer = strings.NewReplacer("/", "_", "\\", "_", ".", "_")

// SanitizeForID applies the same separator/dot-to-underscore transform used
// to derive chunk ids, so callers deriving a LIKE prefix/suffix from a raw
// path or pattern produce ids in the same alphabet ChunkID does.
func SanitizeForID(s string) string {
	return idSeparatorReplacer.Replace(s)
}

// ChunkID derives the deterministic id for a chunk: relPath with every path
// separator and dot replaced by an underscore, followed by "_L{startLine}",
// with a "_p{part}" suffix when a single AST node was split into multiple
// chunks (part is 1-based; 0 means "not split"). The same relPath produces
// the same id regardless of platform, since relPath is already forward-slash
// normalized by Normalize before reaching here.
func ChunkID(relPath string, startLine, part int) string {
	base := SanitizeForID(relPath)
	if part <= 0 {
		return fmt.Sprintf("%s_L%d", base, startLine)
	}
	return fmt.Sprintf("%s_L%d_p%d", base, startLine, part)
}

// StripBOM removes a leading UTF-8 byte-order mark, if present.
func StripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, utf8BOM)
}
