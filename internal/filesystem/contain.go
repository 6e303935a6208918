package filesystem

import (
	"os"
	"path/filepath"
	"strings"
)

// WithinRoot reports whether path resolves to a location inside root once
// symlinks are evaluated. path does not need to exist: the deepest existing
// ancestor is resolved and the remainder re-joined, so a not-yet-created
// move target can still be checked. A false result means the path escapes
// root (or root itself is unresolvable) and must be rejected.
func WithinRoot(root, path string) bool {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	realPath, err := resolveExisting(path)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolveExisting evaluates symlinks for the deepest existing prefix of
// path and appends the non-existing remainder unchanged.
func resolveExisting(path string) (string, error) {
	path = filepath.Clean(path)
	var tail []string
	for {
		if _, err := os.Lstat(path); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		tail = append([]string{filepath.Base(path)}, tail...)
		path = parent
	}

	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{real}, tail...)...), nil
}
