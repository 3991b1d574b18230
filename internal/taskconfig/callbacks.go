package taskconfig

import (
	"context"

	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/instruction"
)

// HistoryItem summarises a task for the task history.
type HistoryItem struct {
	ID      string
	TS      int64
	Task    string
	Mode    Mode
	Aborted bool
}

// Callbacks are the functions the surrounding task runtime provides.
type Callbacks struct {
	Say func(ctx context.Context, kind conversation.SayKind, text string, images, files []string, partial bool) (int64, error)
	Ask func(ctx context.Context, kind conversation.AskKind, text string, partial bool) (conversation.AskResult, error)

	SaveCheckpoint                           func(ctx context.Context, isCompletion bool, completionTS int64) error
	SayAndCreateMissingParamError            func(ctx context.Context, tool instruction.ToolName, param instruction.ParamName, relPath string) (string, error)
	RemoveLastPartialMessageIfExistsWithType func(ctx context.Context, typ conversation.MessageType, kind string) error
	// ExecuteCommandTool runs a shell command and reports whether the user
	// rejected it along with the result text.
	ExecuteCommandTool                     func(ctx context.Context, command string) (bool, string, error)
	DoesLatestTaskCompletionHaveNewChanges func(ctx context.Context) (bool, error)
	UpdateFocusListFromToolResponse        func(ctx context.Context, taskProgress string) error
	ShouldAutoApproveToolWithPath          func(ctx context.Context, tool instruction.ToolName, path string) (bool, error)

	PostState         func(ctx context.Context) error
	ReinitTaskFromID  func(ctx context.Context, taskID string) error
	CancelTask        func(ctx context.Context) error
	UpdateTaskHistory func(ctx context.Context, item HistoryItem) ([]HistoryItem, error)
}
