// Package taskconfigtest builds valid task configs backed by in-memory fakes.
package taskconfigtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/codex-k8s/toolflow/internal/autoapprove"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/ignore"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/taskstate"
)

// AskCall is one recorded final ask.
type AskCall struct {
	Kind conversation.AskKind
	Text string
}

// Env is a task config together with the fakes behind it.
type Env struct {
	Config *taskconfig.Config

	Log     *conversation.Log
	State   *taskstate.State
	Ignore  *ignore.Controller
	Hub     *Hub
	Browser *Browser
	Fetcher *Fetcher
	Diff    *Diff
	Tracker *Tracker
	Context *ContextManager
	Cache   *Cache

	mu       sync.Mutex
	answer   conversation.AskResult
	askErr   error
	asks     []AskCall
	commands []string
	calls    []string
}

// New builds a valid config rooted at a temporary directory. Auto-approval
// is disabled and every ask is answered with a denial unless configured
// otherwise. mutate runs before validation.
func New(t testing.TB, mutate ...func(*taskconfig.Config)) *Env {
	t.Helper()
	cwd := t.TempDir()
	e := &Env{
		Log:     conversation.NewLog(),
		State:   taskstate.New(),
		Ignore:  ignore.New(cwd, nil),
		Hub:     &Hub{},
		Browser: &Browser{},
		Fetcher: &Fetcher{},
		Diff:    &Diff{},
		Tracker: &Tracker{},
		Context: &ContextManager{seen: map[string]string{}},
		Cache:   &Cache{data: map[string]string{}},
		answer:  conversation.AskResult{Response: conversation.ResponseNo},
	}
	settings := &autoapprove.Settings{}
	approver, err := autoapprove.New(*settings, []string{cwd}, autoapprove.WithAccessValidator(e.Ignore))
	if err != nil {
		t.Fatalf("auto approver: %v", err)
	}
	cfg := taskconfig.Config{
		TaskID:       "task-1",
		RunID:        "run-1",
		Cwd:          cwd,
		Mode:         taskconfig.ModeAct,
		TaskState:    e.State,
		MessageState: e.Log,
		API:          Model("test-model"),
		Services: &taskconfig.Services{
			McpHub:             e.Hub,
			BrowserSession:     e.Browser,
			URLContentFetcher:  e.Fetcher,
			DiffViewProvider:   e.Diff,
			FileContextTracker: e.Tracker,
			IgnoreController:   e.Ignore,
			ContextManager:     e.Context,
			CacheService:       e.Cache,
		},
		AutoApprovalSettings: settings,
		AutoApprover:         approver,
		BrowserSettings:      &taskconfig.BrowserSettings{Headless: true, ViewportWidth: 900, ViewportHeight: 600},
		FocusChainSettings:   &taskconfig.FocusChainSettings{},
	}
	cfg.Callbacks = e.callbacks(&cfg)
	for _, m := range mutate {
		m(&cfg)
	}
	built, err := taskconfig.New(cfg)
	if err != nil {
		t.Fatalf("task config: %v", err)
	}
	e.Config = built
	return e
}

// AutoApprove replaces the auto-approval policy.
func (e *Env) AutoApprove(t testing.TB, settings autoapprove.Settings) {
	t.Helper()
	approver, err := autoapprove.New(settings, e.Config.Roots(), autoapprove.WithAccessValidator(e.Ignore), autoapprove.WithMode(string(e.Config.Mode)))
	if err != nil {
		t.Fatalf("auto approver: %v", err)
	}
	next := *e.Config
	next.AutoApprovalSettings = &settings
	next.AutoApprover = approver
	e.Config = taskconfig.MustNew(next)
}

// AnswerWith sets the result of every subsequent final ask.
func (e *Env) AnswerWith(result conversation.AskResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answer = result
	e.askErr = err
}

// Approve answers every subsequent final ask affirmatively.
func (e *Env) Approve() {
	e.AnswerWith(conversation.AskResult{Response: conversation.ResponseYes}, nil)
}

// Asks returns the recorded final asks.
func (e *Env) Asks() []AskCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]AskCall(nil), e.asks...)
}

// Commands returns the commands passed to ExecuteCommandTool.
func (e *Env) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

// Calls returns the names of invoked callbacks in order.
func (e *Env) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Says returns the final and partial say messages of kind.
func (e *Env) Says(kind conversation.SayKind) []conversation.Message {
	var out []conversation.Message
	for _, m := range e.Log.Messages() {
		if m.Type == conversation.TypeSay && m.Say == kind {
			out = append(out, m)
		}
	}
	return out
}

// WriteFile creates a file under the workspace.
func (e *Env) WriteFile(t testing.TB, rel, content string) string {
	t.Helper()
	abs := filepath.Join(e.Config.Cwd, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}

func (e *Env) record(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, name)
}

func (e *Env) callbacks(cfg *taskconfig.Config) *taskconfig.Callbacks {
	return &taskconfig.Callbacks{
		Say: func(ctx context.Context, kind conversation.SayKind, text string, images, files []string, partial bool) (int64, error) {
			e.record("say")
			return e.Log.Say(ctx, kind, text, images, files, partial)
		},
		Ask: func(ctx context.Context, kind conversation.AskKind, text string, partial bool) (conversation.AskResult, error) {
			e.record("ask")
			if partial {
				return e.Log.Ask(ctx, kind, text, true)
			}
			e.mu.Lock()
			defer e.mu.Unlock()
			e.asks = append(e.asks, AskCall{Kind: kind, Text: text})
			return e.answer, e.askErr
		},
		SaveCheckpoint: func(context.Context, bool, int64) error {
			e.record("saveCheckpoint")
			return nil
		},
		SayAndCreateMissingParamError: func(ctx context.Context, tool instruction.ToolName, param instruction.ParamName, _ string) (string, error) {
			e.record("sayAndCreateMissingParamError")
			e.State.RecordMistake()
			text := fmt.Sprintf("missing value for required parameter '%s' of %s", param, tool)
			if _, err := e.Log.Say(ctx, conversation.SayError, text, nil, nil, false); err != nil {
				return "", err
			}
			return text, nil
		},
		RemoveLastPartialMessageIfExistsWithType: func(_ context.Context, typ conversation.MessageType, kind string) error {
			e.record("removeLastPartialMessageIfExistsWithType")
			e.Log.RemoveLastPartialMessageIfExists(typ, kind)
			return nil
		},
		ExecuteCommandTool: func(_ context.Context, command string) (bool, string, error) {
			e.record("executeCommandTool")
			e.mu.Lock()
			defer e.mu.Unlock()
			e.commands = append(e.commands, command)
			return false, "ran " + command, nil
		},
		DoesLatestTaskCompletionHaveNewChanges: func(context.Context) (bool, error) {
			e.record("doesLatestTaskCompletionHaveNewChanges")
			return false, nil
		},
		UpdateFocusListFromToolResponse: func(context.Context, string) error {
			e.record("updateFocusListFromToolResponse")
			return nil
		},
		ShouldAutoApproveToolWithPath: func(ctx context.Context, tool instruction.ToolName, path string) (bool, error) {
			e.record("shouldAutoApproveToolWithPath")
			return e.Config.AutoApprover.ShouldAutoApproveToolWithPath(ctx, tool, path)
		},
		PostState: func(context.Context) error {
			e.record("postState")
			return nil
		},
		ReinitTaskFromID: func(context.Context, string) error {
			e.record("reinitTaskFromId")
			return nil
		},
		CancelTask: func(context.Context) error {
			e.record("cancelTask")
			e.State.Abort()
			e.Log.Close()
			return nil
		},
		UpdateTaskHistory: func(_ context.Context, item taskconfig.HistoryItem) ([]taskconfig.HistoryItem, error) {
			e.record("updateTaskHistory")
			return []taskconfig.HistoryItem{item}, nil
		},
	}
}
