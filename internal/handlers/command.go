package handlers

import (
	"context"

	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/coordinator"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/toolmessage"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

// ExecuteCommand runs a shell command in the working directory.
type ExecuteCommand struct {
	deps Deps
}

func (h *ExecuteCommand) Name() instruction.ToolName { return instruction.ExecuteCommand }

func (h *ExecuteCommand) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	command := ui.RemoveClosingTag(in, instruction.ParamCommand, in.Value(instruction.ParamCommand))
	if command == "" {
		return nil
	}
	decision := ui.ShouldAutoApproveTool(in.Name)
	auto := decision.Local
	if in.Value(instruction.ParamRequiresApproval) == "true" {
		auto = decision.Local && decision.External
	}
	return preview(ctx, ui, auto, conversation.AskCommand, conversation.SayCommand, command)
}

func (h *ExecuteCommand) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamCommand)
	if !ok {
		return res, err
	}
	command := params[instruction.ParamCommand]
	ui := h.deps.Helpers(cfg)
	if text, blocked, err := h.deps.blocked(ctx, ui, in, ""); blocked || err != nil {
		return coordinator.Result{Text: text}, err
	}

	// commands the model marks as risky need the "all commands" permission
	path := cfg.Cwd
	if in.Value(instruction.ParamRequiresApproval) == "true" {
		path = ""
	}
	approved, err := h.deps.approve(ctx, ui, approval{
		in:      in,
		ask:     conversation.AskCommand,
		say:     conversation.SayCommand,
		message: command,
		path:    path,
		notify:  toolmessage.NotificationMessage(cfg.AgentName, cfg.Cwd, in, "", false),
	})
	if err != nil || !approved {
		return h.deps.denied(), err
	}

	rejected, output, err := cfg.Callbacks.ExecuteCommandTool(ctx, command)
	if err != nil {
		return coordinator.Result{}, err
	}
	if rejected {
		cfg.TaskState.SetDidRejectTool(true)
	}
	return coordinator.Result{Text: output}, nil
}
