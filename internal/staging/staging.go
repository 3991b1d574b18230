// Package staging holds a proposed file modification in memory until it is
// approved, then writes it to disk.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrNotEditing is returned when no file is open.
	ErrNotEditing = errors.New("no file is being edited")
	// ErrAlreadyEditing is returned when Open is called twice.
	ErrAlreadyEditing = errors.New("a file is already being edited")
)

// View stages one file at a time.
type View struct {
	mu       sync.Mutex
	path     string
	exists   bool
	original string
	content  string
	final    bool
}

// New returns an idle view.
func New() *View {
	return &View{}
}

// Open starts editing absPath and reports whether it already exists.
func (v *View) Open(absPath string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.path != "" {
		return false, fmt.Errorf("open %s: %w", absPath, ErrAlreadyEditing)
	}
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		v.exists = true
		v.original = string(data)
	case errors.Is(err, fs.ErrNotExist):
		v.exists = false
		v.original = ""
	default:
		return false, fmt.Errorf("open %s: %w", absPath, err)
	}
	v.path = absPath
	v.content = v.original
	v.final = false
	return v.exists, nil
}

// Update replaces the staged content.
func (v *View) Update(content string, final bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.path == "" {
		return ErrNotEditing
	}
	v.content = content
	v.final = final
	return nil
}

// Save writes the staged content atomically and closes the view.
func (v *View) Save() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.path == "" {
		return ErrNotEditing
	}
	if err := writeAtomic(v.path, []byte(v.content)); err != nil {
		return err
	}
	v.resetLocked()
	return nil
}

// Revert discards the staged content. Disk is never touched before Save.
func (v *View) Revert() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resetLocked()
	return nil
}

// IsEditing reports whether a file is open.
func (v *View) IsEditing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.path != ""
}

// Path returns the absolute path of the open file, empty when idle.
func (v *View) Path() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.path
}

// Original returns the content of the file when it was opened.
func (v *View) Original() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.original
}

// Staged returns the staged content.
func (v *View) Staged() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.content
}

func (v *View) resetLocked() {
	v.path, v.original, v.content = "", "", ""
	v.exists, v.final = false, false
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
