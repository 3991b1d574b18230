package pathutil

import (
	"path/filepath"
	"strings"
)

// Resolve returns p as an absolute, cleaned path relative to cwd.
func Resolve(cwd, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(cwd, p))
}

// ReadablePath renders p for display: relative to cwd when inside it,
// the directory name when it is cwd itself, absolute otherwise.
// Separators are always forward slashes.
func ReadablePath(cwd, p string) string {
	abs := Resolve(cwd, p)
	root := filepath.Clean(cwd)
	if abs == root {
		return filepath.ToSlash(filepath.Base(abs))
	}
	if within(root, abs) {
		rel, err := filepath.Rel(root, abs)
		if err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(abs)
}

// InWorkspace reports whether p resolves inside one of the workspace roots.
// The first root is used to resolve relative paths.
func InWorkspace(p string, roots ...string) bool {
	if len(roots) == 0 {
		return false
	}
	abs := Resolve(roots[0], p)
	for _, root := range roots {
		if root == "" {
			continue
		}
		if within(filepath.Clean(root), abs) {
			return true
		}
	}
	return false
}

func within(root, abs string) bool {
	if abs == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(abs, prefix)
}
