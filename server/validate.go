package server

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	errInvalidLimit = errors.New("limit must be a positive integer")
	errEmptyPath    = errors.New("path is required")
	errRelativePath = errors.New("path must be absolute")
	errTraversal    = errors.New("invalid path: potential path traversal")
)

// validateQueryPath accepts only absolute paths without parent segments and
// returns them cleaned, the form the history is stored under.
func validateQueryPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return "", errTraversal
	}

	for _, segment := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return "", errTraversal
		}
	}

	if !filepath.IsAbs(path) {
		return "", errRelativePath
	}
	return filepath.Clean(path), nil
}
