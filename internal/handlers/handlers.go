// Package handlers implements the tools the coordinator dispatches to.
// Every handler obtains approval through uihelpers before touching the
// workspace, the browser or an MCP server.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codex-k8s/toolflow/internal/audit"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/coordinator"
	"github.com/codex-k8s/toolflow/internal/ignore"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/pathutil"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/templates"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

// Deps are the collaborators shared by all handlers.
type Deps struct {
	// Renderer localizes result texts. Nil uses English fallbacks.
	Renderer templates.Renderer
	// Telemetry receives tool usage events.
	Telemetry audit.Logger
	// Notifier shows approval notifications.
	Notifier uihelpers.Notifier
	// Logger receives side channel failures.
	Logger *slog.Logger
	// Facades shares one Helpers per config. Nil builds a fresh one per call.
	Facades *Facades
}

// All returns every handler.
func All(d Deps) []coordinator.Handler {
	return []coordinator.Handler{
		&ListFiles{deps: d},
		&ReadFile{deps: d},
		&WriteToFile{deps: d},
		&ReplaceInFile{deps: d},
		&ExecuteCommand{deps: d},
		&UseMcpTool{deps: d},
		&AccessMcpResource{deps: d},
		&BrowserAction{deps: d},
		&WebFetch{deps: d},
		&AskFollowupQuestion{deps: d},
		&AttemptCompletion{deps: d},
	}
}

// Helpers wraps cfg with the shared side channels.
func (d Deps) Helpers(cfg *taskconfig.Config) *uihelpers.Helpers {
	build := func() *uihelpers.Helpers {
		return uihelpers.New(cfg,
			uihelpers.WithTelemetry(d.Telemetry),
			uihelpers.WithNotifier(d.Notifier),
			uihelpers.WithLogger(d.Logger),
		)
	}
	if d.Facades == nil {
		return build()
	}
	return d.Facades.get(cfg, build)
}

// Facades keeps the Helpers built for each config so their background
// side channels can be awaited together.
type Facades struct {
	mu    sync.Mutex
	byCfg map[*taskconfig.Config]*uihelpers.Helpers
	order []*uihelpers.Helpers
}

// NewFacades returns an empty set.
func NewFacades() *Facades {
	return &Facades{byCfg: make(map[*taskconfig.Config]*uihelpers.Helpers)}
}

func (f *Facades) get(cfg *taskconfig.Config, build func() *uihelpers.Helpers) *uihelpers.Helpers {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.byCfg[cfg]; ok {
		return h
	}
	h := build()
	f.byCfg[cfg] = h
	f.order = append(f.order, h)
	return h
}

// Wait blocks until every telemetry and notification call started through
// any of the facades has finished.
func (f *Facades) Wait() {
	f.mu.Lock()
	all := append([]*uihelpers.Helpers(nil), f.order...)
	f.mu.Unlock()
	for _, h := range all {
		h.Wait()
	}
}

// settle joins a cleanup failure to err. Without err the failure is only
// logged and the outcome already reported to the model stands.
func (d Deps) settle(cfg *taskconfig.Config, what string, err, cleanupErr error) error {
	if cleanupErr == nil {
		return err
	}
	if err != nil {
		return errors.Join(err, cleanupErr)
	}
	if d.Logger != nil {
		d.Logger.Warn(what+" failed", "task_id", cfg.TaskID, "error", cleanupErr)
	}
	return nil
}

func (d Deps) text(key string, data map[string]any, fallback string) string {
	return templates.Text(d.Renderer, key, data, fallback)
}

// errMissingParam stops a handler after the missing parameter was reported.
var errMissingParam = errors.New("missing required parameter")

// required returns the value of param or reports it as missing.
func (d Deps) required(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction, param instruction.ParamName, res *coordinator.Result) (string, error) {
	v := in.Value(param)
	if v != "" {
		return v, nil
	}
	text, err := cfg.Callbacks.SayAndCreateMissingParamError(ctx, in.Name, param, in.Value(instruction.ParamPath))
	if err != nil {
		return "", err
	}
	res.Text = text
	return "", errMissingParam
}

// params checks required params in order. ok is false when one was missing
// and res already carries the model-facing text.
func (d Deps) params(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction, names ...instruction.ParamName) (map[instruction.ParamName]string, coordinator.Result, bool, error) {
	var res coordinator.Result
	out := make(map[instruction.ParamName]string, len(names))
	for _, name := range names {
		v, err := d.required(ctx, cfg, in, name, &res)
		if errors.Is(err, errMissingParam) {
			return nil, res, false, nil
		}
		if err != nil {
			return nil, res, false, err
		}
		out[name] = v
	}
	cfg.TaskState.ResetMistakes()
	return out, res, true, nil
}

// blocked reports why in may not touch relPath, if at all.
func (d Deps) blocked(ctx context.Context, ui *uihelpers.Helpers, in instruction.Instruction, relPath string) (string, bool, error) {
	cfg := ui.Config()
	if relPath != "" && !cfg.Services.IgnoreController.ValidateAccess(relPath) {
		text := d.text("tool.ignored", map[string]any{"Path": relPath, "File": ignore.FileName},
			fmt.Sprintf("Access to %s is blocked by the %s file settings.", relPath, ignore.FileName))
		if _, err := ui.Say(ctx, conversation.SayError, text, nil, nil, false); err != nil {
			return "", false, err
		}
		return text, true, nil
	}
	if cfg.PlanModeLocked() && modifies(in.Name) {
		text := d.text("tool.plan_mode", map[string]any{"Tool": in.Name},
			fmt.Sprintf("%s is not available in plan mode.", in.Name))
		return text, true, nil
	}
	return "", false, nil
}

func modifies(name instruction.ToolName) bool {
	switch name {
	case instruction.WriteToFile, instruction.ReplaceInFile, instruction.ExecuteCommand, instruction.NewRule:
		return true
	}
	return false
}

// approval describes one approval round.
type approval struct {
	in      instruction.Instruction
	ask     conversation.AskKind
	say     conversation.SayKind
	message string
	// path is handed to the path-aware policy; empty means outside the workspace.
	path   string
	notify string
}

// approve shows the request and reports whether the tool may proceed.
// An auto-approved request is announced with a say, otherwise the user is
// asked. A denial marks the tool as rejected for the turn.
func (d Deps) approve(ctx context.Context, ui *uihelpers.Helpers, a approval) (bool, error) {
	cfg := ui.Config()
	auto, err := ui.ShouldAutoApproveToolWithPath(ctx, a.in.Name, a.path)
	if err != nil {
		return false, err
	}
	if auto {
		if err := cfg.Callbacks.RemoveLastPartialMessageIfExistsWithType(ctx, conversation.TypeAsk, string(a.ask)); err != nil {
			return false, err
		}
		if _, err := ui.Say(ctx, a.say, a.message, nil, nil, false); err != nil {
			return false, err
		}
		ui.CaptureTelemetry(ctx, a.in.Name, true, true)
		return true, nil
	}

	if a.notify != "" {
		ui.ShowNotificationIfEnabled(ctx, a.notify)
	}
	if err := cfg.Callbacks.RemoveLastPartialMessageIfExistsWithType(ctx, conversation.TypeSay, string(a.say)); err != nil {
		return false, err
	}
	approved, err := ui.AskApproval(ctx, a.ask, a.message)
	if err != nil {
		cfg.TaskState.SetDidRejectTool(true)
		return false, err
	}
	ui.CaptureTelemetry(ctx, a.in.Name, false, approved)
	if !approved {
		cfg.TaskState.SetDidRejectTool(true)
	}
	return approved, nil
}

// previewAuto reports whether a preview should be shown as auto-approved.
// It mirrors the path-aware policy without consulting external approvers.
func previewAuto(ui *uihelpers.Helpers, name instruction.ToolName, path string) bool {
	decision := ui.ShouldAutoApproveTool(name)
	if path != "" && !pathutil.InWorkspace(path, ui.Config().Roots()...) {
		return decision.Local && decision.External
	}
	return decision.Local
}

// preview refreshes the streaming message of a partial instruction: a say
// when the tool would be auto-approved, a partial ask otherwise.
func preview(ctx context.Context, ui *uihelpers.Helpers, auto bool, ask conversation.AskKind, say conversation.SayKind, message string) error {
	cfg := ui.Config()
	if auto {
		if err := cfg.Callbacks.RemoveLastPartialMessageIfExistsWithType(ctx, conversation.TypeAsk, string(ask)); err != nil {
			return err
		}
		_, err := ui.Say(ctx, say, message, nil, nil, true)
		return err
	}
	if err := cfg.Callbacks.RemoveLastPartialMessageIfExistsWithType(ctx, conversation.TypeSay, string(say)); err != nil {
		return err
	}
	_, err := ui.Ask(ctx, ask, message, true)
	return err
}

func (d Deps) denied() coordinator.Result {
	return coordinator.Result{Text: d.text("tool.denied", nil, "The user denied this operation.")}
}
