// Package task is the runtime around the coordinator: it owns the task
// state and the conversation log, builds the task config and implements
// every callback handlers rely on.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codex-k8s/toolflow/internal/audit"
	"github.com/codex-k8s/toolflow/internal/autoapprove"
	"github.com/codex-k8s/toolflow/internal/buttonstate"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/coordinator"
	"github.com/codex-k8s/toolflow/internal/handlers"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/runtime/approver"
	"github.com/codex-k8s/toolflow/internal/runtime/executor"
	"github.com/codex-k8s/toolflow/internal/stream"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/taskstate"
	"github.com/codex-k8s/toolflow/internal/templates"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

// DefaultMistakeLimit is the number of consecutive mistakes reported to the user.
const DefaultMistakeLimit = 3

// Options configure a Task.
type Options struct {
	// TaskID identifies the task. Empty generates one.
	TaskID string
	// ModelID is reported to telemetry.
	ModelID string
	// Cwd is the workspace root.
	Cwd string
	// Mode is the initial mode.
	Mode taskconfig.Mode
	// StrictPlanMode blocks modifications in plan mode.
	StrictPlanMode bool
	// AgentName is used in user-facing text.
	AgentName string
	// AutoApproval is the auto-approval policy.
	AutoApproval autoapprove.Settings
	// Browser configures the browser session.
	Browser taskconfig.BrowserSettings
	// FocusChain configures progress tracking.
	FocusChain taskconfig.FocusChainSettings
	// Services are the external collaborators.
	Services *taskconfig.Services
	// Approvers are consulted after the policy allows a final instruction.
	Approvers approver.Approver
	// Executor runs execute_command.
	Executor executor.Shell
	// Renderer localizes texts. Nil uses English fallbacks.
	Renderer templates.Renderer
	// Telemetry receives tool usage and approval events.
	Telemetry audit.Logger
	// Notifier shows approval notifications.
	Notifier uihelpers.Notifier
	// Buttons keeps button snapshots across mode switches.
	Buttons *buttonstate.Store
	// Observers receive every change of the conversation log.
	Observers []conversation.Observer
	// OnResult receives the result of every executed instruction.
	OnResult func(protocol.ToolResultEvent)
	// OnState receives the state when PostState is called.
	OnState func(protocol.StateResponse)
	// MistakeLimit defaults to DefaultMistakeLimit.
	MistakeLimit int
	// Logger receives runtime logs.
	Logger *slog.Logger
}

// Task runs the instructions of one task.
type Task struct {
	opts       Options
	state      *taskstate.State
	log        *conversation.Log
	coord      *coordinator.Coordinator
	dispatcher *stream.Dispatcher
	policy     *autoapprove.AutoApprove
	deps       handlers.Deps
	now        func() time.Time

	mu        sync.Mutex
	taskID    string
	cfg       *taskconfig.Config
	ui        *uihelpers.Helpers
	current   instruction.Instruction
	autoCount int
	history   []taskconfig.HistoryItem
	// resetPending defers a dispatcher reset requested while an
	// instruction was executing.
	resetPending bool
}

type modelInfo string

func (m modelInfo) ModelID() string { return string(m) }

// New assembles a task. Services must be complete.
func New(opts Options) (*Task, error) {
	if opts.Services == nil {
		return nil, errors.New("task services are nil")
	}
	if opts.TaskID == "" {
		opts.TaskID = uuid.NewString()
	}
	if opts.Mode == "" {
		opts.Mode = taskconfig.ModeAct
	}
	if opts.MistakeLimit <= 0 {
		opts.MistakeLimit = DefaultMistakeLimit
	}
	if opts.Telemetry == nil {
		opts.Telemetry = audit.Nop{}
	}
	if opts.Buttons == nil {
		opts.Buttons = buttonstate.NewStore()
	}

	policy, err := autoapprove.New(opts.AutoApproval, []string{opts.Cwd},
		autoapprove.WithAccessValidator(opts.Services.IgnoreController),
		autoapprove.WithMode(string(opts.Mode)),
	)
	if err != nil {
		return nil, fmt.Errorf("build auto-approval policy: %w", err)
	}

	t := &Task{
		opts:   opts,
		state:  taskstate.New(),
		log:    conversation.NewLog(opts.Observers...),
		policy: policy,
		taskID: opts.TaskID,
		now:    time.Now,
		deps: handlers.Deps{
			Renderer:  opts.Renderer,
			Telemetry: opts.Telemetry,
			Notifier:  opts.Notifier,
			Logger:    opts.Logger,
			Facades:   handlers.NewFacades(),
		},
	}
	t.coord = coordinator.New(handlers.All(t.deps)...)
	t.coord.Freeze()

	if err := t.rebuild(opts.Mode); err != nil {
		return nil, err
	}
	t.dispatcher = stream.New(t.coord, t.env, t.onResult, opts.Logger)
	return t, nil
}

// rebuild replaces the config for mode. Callers must not hold t.mu.
func (t *Task) rebuild(mode taskconfig.Mode) error {
	t.mu.Lock()
	taskID := t.taskID
	t.mu.Unlock()

	cfg, err := taskconfig.New(taskconfig.Config{
		TaskID:                taskID,
		RunID:                 uuid.NewString(),
		Cwd:                   t.opts.Cwd,
		Mode:                  mode,
		StrictPlanModeEnabled: t.opts.StrictPlanMode,
		AgentName:             t.opts.AgentName,
		TaskState:             t.state,
		MessageState:          t.log,
		API:                   modelInfo(t.opts.ModelID),
		Services:              t.opts.Services,
		AutoApprovalSettings:  &t.opts.AutoApproval,
		AutoApprover:          t.policy.ForMode(string(mode)),
		BrowserSettings:       &t.opts.Browser,
		FocusChainSettings:    &t.opts.FocusChain,
		Callbacks:             t.callbacks(),
	})
	if err != nil {
		return fmt.Errorf("build task config: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
	t.ui = t.deps.Helpers(cfg)
	return nil
}

func (t *Task) env() (*taskconfig.Config, *uihelpers.Helpers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg, t.ui
}

// Config returns the config in effect.
func (t *Task) Config() *taskconfig.Config {
	cfg, _ := t.env()
	return cfg
}

// Log returns the conversation log.
func (t *Task) Log() *conversation.Log {
	return t.log
}

// TaskID returns the current task id.
func (t *Task) TaskID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.taskID
}

// Dispatch handles one emission of the response stream.
func (t *Task) Dispatch(ctx context.Context, em stream.Emission) error {
	t.mu.Lock()
	t.current = em.Instruction
	reset := t.resetPending
	t.resetPending = false
	t.mu.Unlock()
	if reset {
		t.dispatcher.Reset()
	}
	return t.dispatcher.Dispatch(ctx, em)
}

// step dispatches em and swallows lifecycle violations, which only skip
// the emission. Only an aborted task stops the stream.
func (t *Task) step(ctx context.Context, em stream.Emission) error {
	err := t.Dispatch(ctx, em)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stream.ErrAborted):
		return err
	}
	if t.opts.Logger != nil {
		t.opts.Logger.Warn("emission skipped", "index", em.Index, "tool", em.Instruction.Name, "error", err)
	}
	return nil
}

// NewResponse prepares for the instructions of the next model response.
func (t *Task) NewResponse() {
	t.dispatcher.Reset()
	t.state.SetDidRejectTool(false)
}

func (t *Task) onResult(ctx context.Context, em stream.Emission, res coordinator.Result, err error) {
	in := em.Instruction
	event := protocol.ToolResultEvent{
		Event:  protocol.EventToolResult,
		Index:  em.Index,
		Tool:   string(in.Name),
		Text:   res.Text,
		Images: res.Images,
	}
	if err != nil {
		event.IsError = true
		event.Text = t.text("tool.error", map[string]any{"Tool": in.Name, "Error": err.Error()},
			fmt.Sprintf("Error executing %s: %v", in.Name, err))
		t.opts.Telemetry.Record(ctx, audit.Event{
			Type:   audit.TypeExecution,
			Tool:   string(in.Name),
			TaskID: t.TaskID(),
			Reason: err.Error(),
		})
	}
	if progress := in.Value(instruction.ParamTaskProgress); progress != "" {
		cfg := t.Config()
		if ferr := cfg.Callbacks.UpdateFocusListFromToolResponse(ctx, progress); ferr != nil && t.opts.Logger != nil {
			t.opts.Logger.Warn("update focus list failed", "task_id", cfg.TaskID, "error", ferr)
		}
	}
	if t.opts.OnResult != nil {
		t.opts.OnResult(event)
	}
}

// SwitchMode moves the task to mode. The buttons shown for the current ask
// survive the switch.
func (t *Task) SwitchMode(ctx context.Context, mode taskconfig.Mode) error {
	cfg := t.Config()
	if mode == cfg.Mode {
		return nil
	}
	current := t.Buttons()
	if buttonstate.ShouldPersist(current) {
		t.opts.Buttons.Save(cfg.TaskID, buttonstate.Capture(t.lastMessageTS(), cfg.Mode, current, t.now()))
	}
	if err := t.rebuild(mode); err != nil {
		return err
	}
	text := t.text("mode.switched", map[string]any{"Mode": mode}, fmt.Sprintf("Switched to %s mode.", mode))
	if _, err := t.log.Say(ctx, conversation.SayInfo, text, nil, nil, false); err != nil {
		return err
	}
	return nil
}

// Buttons returns the approval buttons for the outstanding ask.
func (t *Task) Buttons() protocol.ButtonState {
	cfg := t.Config()
	var kind conversation.AskKind
	if pending := t.log.Pending(); len(pending) > 0 {
		kind = pending[len(pending)-1].Ask
	}
	fallback := buttonstate.ConfigFor(kind, cfg.Mode)
	return buttonstate.Restore(t.opts.Buttons.Load(cfg.TaskID), t.lastMessageTS(), cfg.Mode, fallback, t.now())
}

// State returns the externally visible task state.
func (t *Task) State() protocol.StateResponse {
	cfg := t.Config()
	pending := t.log.Pending()
	asks := make([]protocol.MessageEvent, 0, len(pending))
	for _, msg := range pending {
		asks = append(asks, conversation.ToEvent(conversation.Event{Action: protocol.ActionAdd, Message: msg}))
	}
	return protocol.StateResponse{
		TaskID:      cfg.TaskID,
		Mode:        string(cfg.Mode),
		Aborted:     cfg.TaskState.Aborted(),
		Buttons:     t.Buttons(),
		PendingAsks: asks,
	}
}

// FocusList returns the last task progress reported by the model.
func (t *Task) FocusList() string {
	v, _ := t.opts.Services.CacheService.Get(focusKey(t.TaskID()))
	return v
}

// History returns the task history.
func (t *Task) History() []taskconfig.HistoryItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]taskconfig.HistoryItem(nil), t.history...)
}

// Close cancels the task and waits for the telemetry and notifications
// started by any instruction.
func (t *Task) Close(ctx context.Context) error {
	err := t.Config().Callbacks.CancelTask(ctx)
	t.deps.Facades.Wait()
	return err
}

func (t *Task) lastMessageTS() int64 {
	if msg, ok := t.log.Last(); ok {
		return msg.TS
	}
	return 0
}

func (t *Task) text(key string, data map[string]any, fallback string) string {
	return templates.Text(t.opts.Renderer, key, data, fallback)
}

func focusKey(taskID string) string {
	return "focus:" + taskID
}
