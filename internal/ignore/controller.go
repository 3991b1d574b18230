package ignore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/codex-k8s/toolflow/internal/pathutil"
)

// FileName is the ignore file looked up in the workspace root.
const FileName = ".agentignore"

// Controller decides whether the agent may touch a path, using gitignore
// syntax from FileName in the workspace root.
type Controller struct {
	cwd    string
	logger *slog.Logger

	mu      sync.RWMutex
	matcher *gitignore.GitIgnore
	content string
}

// New creates a controller for cwd. Call Load to read the ignore file.
func New(cwd string, logger *slog.Logger) *Controller {
	return &Controller{cwd: filepath.Clean(cwd), logger: logger}
}

// Load (re)reads the ignore file. A missing file allows everything.
func (c *Controller) Load() error {
	data, err := os.ReadFile(filepath.Join(c.cwd, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.set("", nil)
			return nil
		}
		return fmt.Errorf("read %s: %w", FileName, err)
	}
	c.SetRules(string(data))
	return nil
}

// SetRules replaces the active rules with content in gitignore syntax.
func (c *Controller) SetRules(content string) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader([]byte(content)))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	// the ignore file itself is always protected
	lines = append(lines, FileName)
	c.set(content, gitignore.CompileIgnoreLines(lines...))
}

// Content returns the raw rules currently in effect.
func (c *Controller) Content() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.content
}

// ValidateAccess reports whether p may be read or written.
// Paths outside the workspace are not governed by the ignore file.
func (c *Controller) ValidateAccess(p string) bool {
	c.mu.RLock()
	matcher := c.matcher
	c.mu.RUnlock()
	if matcher == nil {
		return true
	}
	abs := pathutil.Resolve(c.cwd, p)
	if !pathutil.InWorkspace(abs, c.cwd) {
		return true
	}
	rel, err := filepath.Rel(c.cwd, abs)
	if err != nil {
		return true
	}
	return !matcher.MatchesPath(filepath.ToSlash(rel))
}

// FilterPaths returns the subset of paths that may be accessed.
func (c *Controller) FilterPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if c.ValidateAccess(p) {
			out = append(out, p)
		}
	}
	return out
}

// Watch reloads the rules whenever the ignore file changes, until ctx is done.
func (c *Controller) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(c.cwd); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", c.cwd, err)
	}
	go c.run(ctx, watcher)
	return nil
}

func (c *Controller) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	target := filepath.Join(c.cwd, FileName)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := c.Load(); err != nil && c.logger != nil {
				c.logger.Warn("reload ignore rules failed", "error", err)
				continue
			}
			if c.logger != nil {
				c.logger.Info("ignore rules reloaded", "file", target)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if c.logger != nil {
				c.logger.Warn("ignore watcher error", "error", err)
			}
		}
	}
}

func (c *Controller) set(content string, matcher *gitignore.GitIgnore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = content
	c.matcher = matcher
}
