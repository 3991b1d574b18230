// Package uihelpers narrows a task config to the operations handlers need
// to talk to the user and consult the approval policy.
package uihelpers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codex-k8s/toolflow/internal/audit"
	"github.com/codex-k8s/toolflow/internal/autoapprove"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
)

// Notifier shows a best-effort notification to the user.
type Notifier interface {
	Notify(ctx context.Context, subtitle, message string) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) error { return nil }

// Option configures Helpers.
type Option func(*Helpers)

// WithTelemetry sets the usage event sink.
func WithTelemetry(t audit.Logger) Option {
	return func(h *Helpers) {
		if t != nil {
			h.telemetry = t
		}
	}
}

// WithNotifier sets the notifier.
func WithNotifier(n Notifier) Option {
	return func(h *Helpers) {
		if n != nil {
			h.notifier = n
		}
	}
}

// WithLogger sets the logger used for side channel failures.
func WithLogger(l *slog.Logger) Option {
	return func(h *Helpers) {
		h.logger = l
	}
}

// Helpers is the UI and approval surface handed to handlers.
type Helpers struct {
	cfg       *taskconfig.Config
	telemetry audit.Logger
	notifier  Notifier
	logger    *slog.Logger

	wg sync.WaitGroup
}

// New wraps cfg. Telemetry and notifications default to no-ops.
func New(cfg *taskconfig.Config, opts ...Option) *Helpers {
	h := &Helpers{cfg: cfg, telemetry: audit.Nop{}, notifier: nopNotifier{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Say presents informational text. A partial say updates the previous
// partial message of the same kind.
func (h *Helpers) Say(ctx context.Context, kind conversation.SayKind, text string, images, files []string, partial bool) (int64, error) {
	return h.cfg.Callbacks.Say(ctx, kind, text, images, files, partial)
}

// Ask presents a question and waits for the answer unless partial.
func (h *Helpers) Ask(ctx context.Context, kind conversation.AskKind, text string, partial bool) (conversation.AskResult, error) {
	return h.cfg.Callbacks.Ask(ctx, kind, text, partial)
}

// RemoveClosingTag strips a dangling closing tag fragment from a streamed value.
func (h *Helpers) RemoveClosingTag(in instruction.Instruction, param instruction.ParamName, text string) string {
	return instruction.RemoveClosingTag(in, param, text)
}

// ShouldAutoApproveTool reports the policy decision for a tool ignoring paths.
func (h *Helpers) ShouldAutoApproveTool(name instruction.ToolName) autoapprove.Decision {
	return h.cfg.AutoApprover.ShouldAutoApproveTool(name)
}

// ShouldAutoApproveToolWithPath reports whether the tool may touch path
// without asking.
func (h *Helpers) ShouldAutoApproveToolWithPath(ctx context.Context, name instruction.ToolName, path string) (bool, error) {
	return h.cfg.Callbacks.ShouldAutoApproveToolWithPath(ctx, name, path)
}

// AskApproval asks a final question and reports whether the user clicked yes.
// A torn down channel yields false and the error.
func (h *Helpers) AskApproval(ctx context.Context, kind conversation.AskKind, message string) (bool, error) {
	result, err := h.Ask(ctx, kind, message, false)
	if err != nil {
		return false, err
	}
	return result.Response == conversation.ResponseYes, nil
}

// CaptureTelemetry records tool usage in the background. It never fails.
func (h *Helpers) CaptureTelemetry(ctx context.Context, name instruction.ToolName, autoApproved, approved bool) {
	event := audit.Event{
		Type:          audit.TypeToolUsage,
		Tool:          string(name),
		TaskID:        h.cfg.TaskID,
		ModelID:       h.cfg.API.ModelID(),
		CorrelationID: h.cfg.RunID,
		AutoApproved:  autoApproved,
		Approved:      approved,
	}
	h.background(ctx, "telemetry", func(ctx context.Context) error {
		h.telemetry.Record(ctx, event)
		return nil
	})
}

// ShowNotificationIfEnabled notifies the user in the background when
// notifications are enabled. It never fails.
func (h *Helpers) ShowNotificationIfEnabled(ctx context.Context, message string) {
	if !h.cfg.AutoApprovalSettings.EnableNotifications {
		return
	}
	h.background(ctx, "notification", func(ctx context.Context) error {
		return h.notifier.Notify(ctx, "Approval Required", message)
	})
}

// Config returns the full task config.
func (h *Helpers) Config() *taskconfig.Config {
	return h.cfg
}

// Wait blocks until background telemetry and notifications finish.
func (h *Helpers) Wait() {
	h.wg.Wait()
}

func (h *Helpers) background(ctx context.Context, what string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				h.warn(what, fmt.Errorf("panic: %v", r))
			}
		}()
		if err := fn(ctx); err != nil {
			h.warn(what, err)
		}
	}()
}

func (h *Helpers) warn(what string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.Warn(what+" failed", "task_id", h.cfg.TaskID, "error", err)
}
