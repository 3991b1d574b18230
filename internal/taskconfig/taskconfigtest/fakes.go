package taskconfigtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/codex-k8s/toolflow/internal/taskconfig"
)

// Model is a fixed model identifier.
type Model string

// ModelID implements taskconfig.ModelInfo.
func (m Model) ModelID() string { return string(m) }

// McpCall is one recorded hub call.
type McpCall struct {
	Server string
	Tool   string
	URI    string
	Args   map[string]any
}

// Hub records MCP calls and answers with Result.
type Hub struct {
	mu     sync.Mutex
	Result string
	Err    error
	calls  []McpCall
}

func (h *Hub) CallTool(_ context.Context, server, tool string, args map[string]any) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, McpCall{Server: server, Tool: tool, Args: args})
	return h.Result, h.Err
}

func (h *Hub) ReadResource(_ context.Context, server, uri string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, McpCall{Server: server, URI: uri})
	return h.Result, h.Err
}

func (h *Hub) ServerNames() []string { return []string{"docs"} }

// Calls returns the recorded calls.
func (h *Hub) Calls() []McpCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]McpCall(nil), h.calls...)
}

// Browser records actions.
type Browser struct {
	mu      sync.Mutex
	actions []string
	Err     error
}

func (b *Browser) do(action string) (taskconfig.BrowserState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions = append(b.actions, action)
	return taskconfig.BrowserState{URL: "https://example.test", Title: "Example"}, b.Err
}

func (b *Browser) Launch(_ context.Context, url string) (taskconfig.BrowserState, error) {
	return b.do("launch " + url)
}

func (b *Browser) Click(_ context.Context, coordinate string) (taskconfig.BrowserState, error) {
	return b.do("click " + coordinate)
}

func (b *Browser) Type(_ context.Context, text string) (taskconfig.BrowserState, error) {
	return b.do("type " + text)
}

func (b *Browser) Scroll(_ context.Context, down bool) (taskconfig.BrowserState, error) {
	if down {
		return b.do("scroll_down")
	}
	return b.do("scroll_up")
}

func (b *Browser) Close(context.Context) error {
	_, err := b.do("close")
	return err
}

// Actions returns the recorded actions.
func (b *Browser) Actions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.actions...)
}

// Fetcher returns Content for every URL.
type Fetcher struct {
	Content string
}

func (f *Fetcher) Fetch(context.Context, string) (string, error) {
	return f.Content, nil
}

// Diff stages content in memory and writes it on Save.
type Diff struct {
	// RevertErr is returned by Revert after the edit is dropped.
	RevertErr error

	mu      sync.Mutex
	path    string
	content string
	saved   []string
	reverts int
}

func (d *Diff) Open(absPath string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.path != "" {
		return false, errors.New("diff view already open")
	}
	d.path = absPath
	_, err := os.Stat(absPath)
	return err == nil, nil
}

func (d *Diff) Update(content string, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.path == "" {
		return errors.New("diff view not open")
	}
	d.content = content
	return nil
}

func (d *Diff) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.path == "" {
		return errors.New("diff view not open")
	}
	if err := os.WriteFile(d.path, []byte(d.content), 0o644); err != nil {
		return fmt.Errorf("save %s: %w", d.path, err)
	}
	d.saved = append(d.saved, d.path)
	d.path, d.content = "", ""
	return nil
}

func (d *Diff) Revert() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.path, d.content = "", ""
	d.reverts++
	return d.RevertErr
}

func (d *Diff) IsEditing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path != ""
}

func (d *Diff) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Saved returns the paths written so far.
func (d *Diff) Saved() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.saved...)
}

// Reverts returns the number of reverted edits.
func (d *Diff) Reverts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reverts
}

// Tracker counts reads and edits.
type Tracker struct {
	mu    sync.Mutex
	reads []string
	edits []string
}

func (t *Tracker) TrackRead(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads = append(t.reads, path)
}

func (t *Tracker) TrackEdit(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.edits = append(t.edits, path)
}

func (t *Tracker) EditCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.edits)
}

// Reads returns the tracked reads.
func (t *Tracker) Reads() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.reads...)
}

// ContextManager remembers file contents.
type ContextManager struct {
	mu   sync.Mutex
	seen map[string]string
}

func (c *ContextManager) RecordFileRead(path, content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.seen[path]
	c.seen[path] = content
	return ok && prev == content
}

// Cache is a plain map.
type Cache struct {
	mu   sync.Mutex
	data map[string]string
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}
