package taskconfig

import (
	"context"

	"github.com/codex-k8s/toolflow/internal/autoapprove"
	"github.com/codex-k8s/toolflow/internal/instruction"
)

// ModelInfo exposes the model serving the task.
type ModelInfo interface {
	// ModelID returns the model identifier used for telemetry.
	ModelID() string
}

// McpHub calls tools and reads resources on connected MCP servers.
type McpHub interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error)
	ReadResource(ctx context.Context, server, uri string) (string, error)
	ServerNames() []string
}

// BrowserState describes the page after a browser action.
type BrowserState struct {
	URL        string
	Title      string
	Screenshot []byte
}

// BrowserSession drives a single browser page.
type BrowserSession interface {
	Launch(ctx context.Context, url string) (BrowserState, error)
	Click(ctx context.Context, coordinate string) (BrowserState, error)
	Type(ctx context.Context, text string) (BrowserState, error)
	Scroll(ctx context.Context, down bool) (BrowserState, error)
	Close(ctx context.Context) error
}

// URLContentFetcher returns the readable text of a web page.
type URLContentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// DiffViewProvider stages a file modification until it is approved.
type DiffViewProvider interface {
	// Open starts editing absPath and reports whether the file exists.
	Open(absPath string) (bool, error)
	// Update replaces the staged content. final marks the last update.
	Update(content string, final bool) error
	// Save writes the staged content to disk.
	Save() error
	// Revert discards the staged content.
	Revert() error
	// IsEditing reports whether a file is open.
	IsEditing() bool
	// Path returns the absolute path of the open file, empty when idle.
	Path() string
}

// FileContextTracker records files the task read or modified.
type FileContextTracker interface {
	TrackRead(path string)
	TrackEdit(path string)
	EditCount() int
}

// IgnoreController decides which paths may be accessed.
type IgnoreController interface {
	ValidateAccess(path string) bool
}

// ContextManager keeps track of content already placed in the model context.
type ContextManager interface {
	// RecordFileRead stores content for path and reports whether the same
	// content was already recorded.
	RecordFileRead(path, content string) bool
}

// CacheService is the task-scoped key/value cache.
type CacheService interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Services bundles the externally owned collaborators of a task.
type Services struct {
	McpHub             McpHub
	BrowserSession     BrowserSession
	URLContentFetcher  URLContentFetcher
	DiffViewProvider   DiffViewProvider
	FileContextTracker FileContextTracker
	IgnoreController   IgnoreController
	ContextManager     ContextManager
	CacheService       CacheService
}

// AutoApprover answers auto-approval policy questions.
type AutoApprover interface {
	ShouldAutoApproveTool(name instruction.ToolName) autoapprove.Decision
	ShouldAutoApproveToolWithPath(ctx context.Context, name instruction.ToolName, path string) (bool, error)
}

// BrowserSettings configures the browser session.
type BrowserSettings struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	RemoteURL      string
}

// FocusChainSettings configures task progress tracking.
type FocusChainSettings struct {
	Enabled     bool
	RemindEvery int
}
