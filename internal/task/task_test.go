package task

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/toolflow/internal/audit"
	"github.com/codex-k8s/toolflow/internal/autoapprove"
	"github.com/codex-k8s/toolflow/internal/cache"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/filecontext"
	"github.com/codex-k8s/toolflow/internal/ignore"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/runtime/approver"
	"github.com/codex-k8s/toolflow/internal/runtime/executor"
	"github.com/codex-k8s/toolflow/internal/staging"
	"github.com/codex-k8s/toolflow/internal/stream"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/taskconfig/taskconfigtest"
	"github.com/codex-k8s/toolflow/internal/templates"
)

type harness struct {
	task    *Task
	cwd     string
	tracker *filecontext.Tracker

	mu      sync.Mutex
	results []protocol.ToolResultEvent
}

func (h *harness) Results() []protocol.ToolResultEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.ToolResultEvent(nil), h.results...)
}

func (h *harness) last(t *testing.T) protocol.ToolResultEvent {
	t.Helper()
	results := h.Results()
	require.NotEmpty(t, results)
	return results[len(results)-1]
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.cwd, rel), []byte(content), 0o644))
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	cwd := t.TempDir()
	bundle, err := templates.Load("en")
	require.NoError(t, err)

	h := &harness{cwd: cwd, tracker: filecontext.NewTracker()}
	opts := Options{
		TaskID:    "task-1",
		ModelID:   "test-model",
		Cwd:       cwd,
		Mode:      taskconfig.ModeAct,
		AgentName: "Agent",
		AutoApproval: autoapprove.Settings{
			Enabled: true,
			Actions: autoapprove.Actions{ReadFiles: true, ExecuteSafeCommands: true},
		},
		Services: &taskconfig.Services{
			McpHub:             &taskconfigtest.Hub{},
			BrowserSession:     &taskconfigtest.Browser{},
			URLContentFetcher:  &taskconfigtest.Fetcher{},
			DiffViewProvider:   staging.New(),
			FileContextTracker: h.tracker,
			IgnoreController:   ignore.New(cwd, nil),
			ContextManager:     filecontext.NewContextManager(time.Hour, 100),
			CacheService:       cache.New[string](time.Hour, 100),
		},
		Executor: executor.Shell{Dir: cwd, Timeout: 10 * time.Second},
		Renderer: bundle,
		OnResult: func(ev protocol.ToolResultEvent) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.results = append(h.results, ev)
		},
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.task, err = New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.task.Close(context.Background()) })
	return h
}

func final(name instruction.ToolName, pairs ...string) instruction.Instruction {
	return instruction.Instruction{Name: name, Params: instruction.NewParams(pairs...)}
}

// answer resolves the next pending ask with response.
func answer(t *testing.T, tk *Task, response conversation.Response) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if pending := tk.Log().Pending(); len(pending) > 0 {
				tk.Log().Answer(pending[0].TS, conversation.AskResult{Response: response})
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Errorf("no ask became pending")
	}()
	return done
}

type denyAll struct{ calls int }

func (d *denyAll) Name() string { return "deny-all" }

func (d *denyAll) Approve(context.Context, approver.Request) (approver.Decision, error) {
	d.calls++
	return approver.Decision{Allowed: false, Reason: "no"}, nil
}

func TestAutoApprovedReadProducesResult(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "hello")

	require.NoError(t, h.task.Dispatch(context.Background(), stream.Emission{Index: 0, Instruction: final(instruction.ReadFile, "path", "a.txt")}))

	res := h.last(t)
	assert.Equal(t, protocol.EventToolResult, res.Event)
	assert.Equal(t, "read_file", res.Tool)
	assert.Equal(t, "hello", res.Text)
	assert.False(t, res.IsError)
	assert.Empty(t, h.task.Log().Pending())
}

type slowTelemetry struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *slowTelemetry) Record(_ context.Context, event audit.Event) {
	time.Sleep(200 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *slowTelemetry) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

func TestCloseWaitsForTelemetry(t *testing.T) {
	rec := &slowTelemetry{}
	h := newHarness(t, func(o *Options) { o.Telemetry = rec })
	h.write(t, "a.txt", "a")
	h.write(t, "b.txt", "b")
	ctx := context.Background()

	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 0, Instruction: final(instruction.ReadFile, "path", "a.txt")}))
	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 1, Instruction: final(instruction.ReadFile, "path", "b.txt")}))
	require.NoError(t, h.task.Close(ctx))

	events := rec.Events()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, audit.TypeToolUsage, ev.Type)
		assert.Equal(t, "read_file", ev.Tool)
	}
}

func TestNewResponseRevertsStaging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	partial := final(instruction.WriteToFile, "path", "a.txt", "content", "draft")
	partial.Partial = true

	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 0, Instruction: partial}))
	require.True(t, h.task.Config().Services.DiffViewProvider.IsEditing())

	h.task.NewResponse()
	assert.False(t, h.task.Config().Services.DiffViewProvider.IsEditing())
	assert.NoFileExists(t, filepath.Join(h.cwd, "a.txt"))
}

func TestApproverDenialFallsBackToUser(t *testing.T) {
	deny := &denyAll{}
	h := newHarness(t, func(o *Options) { o.Approvers = approver.Chain{Approvers: []approver.Approver{deny}} })
	h.write(t, "a.txt", "hello")

	done := answer(t, h.task, conversation.ResponseYes)
	require.NoError(t, h.task.Dispatch(context.Background(), stream.Emission{Index: 0, Instruction: final(instruction.ReadFile, "path", "a.txt")}))
	<-done

	assert.Equal(t, 1, deny.calls)
	assert.Equal(t, "hello", h.last(t).Text)
}

func TestPartialPreviewSkipsApprovers(t *testing.T) {
	deny := &denyAll{}
	h := newHarness(t, func(o *Options) { o.Approvers = deny })
	in := final(instruction.ReadFile, "path", "a.txt")
	in.Partial = true

	require.NoError(t, h.task.Dispatch(context.Background(), stream.Emission{Index: 0, Instruction: in}))
	assert.Zero(t, deny.calls)
}

func TestMaxRequestsBudget(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AutoApproval.MaxRequests = 1 })
	h.write(t, "a.txt", "a")
	h.write(t, "b.txt", "b")
	ctx := context.Background()

	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 0, Instruction: final(instruction.ReadFile, "path", "a.txt")}))
	assert.Equal(t, "a", h.last(t).Text)

	done := answer(t, h.task, conversation.ResponseNo)
	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 1, Instruction: final(instruction.ReadFile, "path", "b.txt")}))
	<-done
	assert.Equal(t, "The user denied this operation.", h.last(t).Text)
	assert.True(t, h.task.Config().TaskState.DidRejectTool())
}

func TestExecuteCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 0, Instruction: final(instruction.ExecuteCommand, "command", "echo hi", "requires_approval", "false")}))
	assert.Equal(t, "Command executed.\nOutput:\nhi", h.last(t).Text)

	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 1, Instruction: final(instruction.ExecuteCommand, "command", "exit 4", "requires_approval", "false")}))
	assert.Equal(t, "Command failed with exit code 4.\nOutput:\n", h.last(t).Text)

	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 2, Instruction: final(instruction.ExecuteCommand, "command", "true", "requires_approval", "false")}))
	assert.Equal(t, "Command executed with no output.", h.last(t).Text)

	var outputs []string
	for _, msg := range h.task.Log().Messages() {
		if msg.Say == conversation.SayCommandOutput {
			outputs = append(outputs, msg.Text)
		}
	}
	assert.Equal(t, []string{"hi"}, outputs)
}

func TestMissingParamCountsMistakes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < DefaultMistakeLimit; i++ {
		require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: i, Instruction: final(instruction.ReadFile)}))
	}

	assert.Equal(t, "Missing value for required parameter 'path'. Please retry with a complete response.", h.last(t).Text)
	assert.Equal(t, DefaultMistakeLimit, h.task.Config().TaskState.ConsecutiveMistakes())

	var limitSaid bool
	for _, msg := range h.task.Log().Messages() {
		if msg.Say == conversation.SayError && strings.Contains(msg.Text, "consecutive mistakes") {
			limitSaid = true
		}
	}
	assert.True(t, limitSaid)
}

func TestUnknownToolBecomesErrorResult(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.task.Dispatch(context.Background(), stream.Emission{Index: 0, Instruction: final("frobnicate")}))

	res := h.last(t)
	assert.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(res.Text, "Error executing frobnicate:"), res.Text)
}

func TestFocusListFromTaskProgress(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.FocusChain.Enabled = true })
	h.write(t, "a.txt", "a")

	in := final(instruction.ReadFile, "path", "a.txt", "task_progress", "- [x] read a\n- [ ] edit b")
	require.NoError(t, h.task.Dispatch(context.Background(), stream.Emission{Index: 0, Instruction: in}))
	assert.Equal(t, "- [x] read a\n- [ ] edit b", h.task.FocusList())
}

func TestFocusListDisabled(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.task.Config().Callbacks.UpdateFocusListFromToolResponse(context.Background(), "- [ ] x"))
	assert.Empty(t, h.task.FocusList())
}

func TestCompletionChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cb := h.task.Config().Callbacks

	changed, err := cb.DoesLatestTaskCompletionHaveNewChanges(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	h.tracker.TrackEdit(filepath.Join(h.cwd, "a.go"))
	changed, err = cb.DoesLatestTaskCompletionHaveNewChanges(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	require.NoError(t, cb.SaveCheckpoint(ctx, true, 42))
	changed, err = cb.DoesLatestTaskCompletionHaveNewChanges(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	h.tracker.TrackEdit(filepath.Join(h.cwd, "b.go"))
	changed, err = cb.DoesLatestTaskCompletionHaveNewChanges(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestCancelResolvesPendingAsk(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AutoApproval = autoapprove.Settings{} })
	h.write(t, "a.txt", "a")

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.task.Dispatch(context.Background(), stream.Emission{Index: 0, Instruction: final(instruction.ReadFile, "path", "a.txt")})
	}()
	require.Eventually(t, func() bool { return len(h.task.Log().Pending()) == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.task.Config().Callbacks.CancelTask(context.Background()))
	require.NoError(t, <-errCh)
	assert.True(t, h.last(t).IsError)
	assert.True(t, h.task.State().Aborted)

	err := h.task.Dispatch(context.Background(), stream.Emission{Index: 1, Instruction: final(instruction.ReadFile, "path", "a.txt")})
	require.ErrorIs(t, err, stream.ErrAborted)
}

func TestSwitchModeAndButtons(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, protocol.ButtonState{SendingDisabled: true}, h.task.Buttons())
	require.NoError(t, h.task.SwitchMode(ctx, taskconfig.ModePlan))
	assert.Equal(t, taskconfig.ModePlan, h.task.Config().Mode)
	assert.Equal(t, protocol.ButtonState{}, h.task.Buttons())

	last, ok := h.task.Log().Last()
	require.True(t, ok)
	assert.Equal(t, "Switched to plan mode.", last.Text)

	// no-op when already in mode
	require.NoError(t, h.task.SwitchMode(ctx, taskconfig.ModePlan))
	assert.Len(t, h.task.Log().Messages(), 1)
}

func TestHistoryAndReinit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cb := h.task.Config().Callbacks

	items, err := cb.UpdateTaskHistory(ctx, taskconfig.HistoryItem{ID: "task-1", Task: "first"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	items, err = cb.UpdateTaskHistory(ctx, taskconfig.HistoryItem{ID: "task-1", Task: "renamed"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "renamed", items[0].Task)

	_, err = h.task.Config().Callbacks.Say(ctx, conversation.SayText, "hi", nil, nil, false)
	require.NoError(t, err)
	require.NoError(t, cb.ReinitTaskFromID(ctx, "task-2"))
	assert.Equal(t, "task-2", h.task.Config().TaskID)
	assert.Empty(t, h.task.Log().Messages())
	require.Error(t, cb.ReinitTaskFromID(ctx, " "))
}

func TestCompletionStartsNewTask(t *testing.T) {
	var states []protocol.StateResponse
	h := newHarness(t, func(o *Options) {
		o.OnState = func(s protocol.StateResponse) { states = append(states, s) }
	})
	h.write(t, "a.txt", "a")
	ctx := context.Background()

	done := answer(t, h.task, conversation.ResponseYes)
	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 0, Instruction: final(instruction.AttemptCompletion, "result", "Done.")}))
	<-done

	assert.Equal(t, "The user started a new task.", h.last(t).Text)
	require.Len(t, states, 1)
	assert.Equal(t, "task-1", states[0].TaskID)
	assert.NotEqual(t, "task-1", h.task.Config().TaskID)

	// the new task starts its stream from index 0
	require.NoError(t, h.task.Dispatch(ctx, stream.Emission{Index: 0, Instruction: final(instruction.ReadFile, "path", "a.txt")}))
	assert.Equal(t, "a", h.last(t).Text)
}

func TestPostState(t *testing.T) {
	var got protocol.StateResponse
	h := newHarness(t, func(o *Options) { o.OnState = func(s protocol.StateResponse) { got = s } })
	require.NoError(t, h.task.Config().Callbacks.PostState(context.Background()))
	assert.Equal(t, "task-1", got.TaskID)
	assert.Equal(t, "act", got.Mode)
}

func TestModeHandler(t *testing.T) {
	h := newHarness(t)
	handler := &ModeHandler{Task: h.task}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mode", strings.NewReader(`{"mode":"build"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mode", strings.NewReader(`{"mode":"PLAN"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"plan"`)

	rec = httptest.NewRecorder()
	(&StateHandler{Task: h.task}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"task_id":"task-1"`)
}
