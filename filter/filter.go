// Package filter decides which paths are left out of monitoring.
package filter

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

var ErrInvalidPattern = errors.New("invalid exclude pattern")

// Excludes matches paths against glob patterns. A pattern matches when it
// matches the full path, the basename, or any trailing run of components.
type Excludes struct {
	globs []glob.Glob
}

func Compile(patterns []string) (*Excludes, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(filepath.ToSlash(pattern), '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		globs = append(globs, g)
	}
	return &Excludes{globs: globs}, nil
}

// Match reports whether path is excluded. A nil Excludes matches nothing.
func (e *Excludes) Match(path string) bool {
	if e == nil || len(e.globs) == 0 {
		return false
	}

	slashed := filepath.ToSlash(path)
	parts := strings.Split(strings.Trim(slashed, "/"), "/")
	for _, g := range e.globs {
		if g.Match(slashed) {
			return true
		}
		for i := range parts {
			if g.Match(strings.Join(parts[i:], "/")) {
				return true
			}
		}
	}
	return false
}
