package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/coordinator"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/toolmessage"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

func mcpPreview(ctx context.Context, ui *uihelpers.Helpers, in instruction.Instruction) error {
	props := toolmessage.McpToolProps(in)
	if props.ServerName == "" {
		return nil
	}
	return preview(ctx, ui, previewAuto(ui, in.Name, ""), conversation.AskUseMcpServer, conversation.SayUseMcpServer, toolmessage.JSON(props))
}

// UseMcpTool calls a tool of a connected MCP server.
type UseMcpTool struct {
	deps Deps
}

func (h *UseMcpTool) Name() instruction.ToolName { return instruction.UseMcpTool }

func (h *UseMcpTool) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	return mcpPreview(ctx, ui, in)
}

func (h *UseMcpTool) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamServerName, instruction.ParamToolName)
	if !ok {
		return res, err
	}
	ui := h.deps.Helpers(cfg)

	var args map[string]any
	if raw := strings.TrimSpace(in.Value(instruction.ParamArguments)); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			cfg.TaskState.RecordMistake()
			text := h.deps.text("tool.invalid_param", map[string]any{"Tool": in.Name, "Param": instruction.ParamArguments, "Error": err},
				fmt.Sprintf("Invalid value for parameter '%s' of %s: %v", instruction.ParamArguments, in.Name, err))
			if _, err := ui.Say(ctx, conversation.SayError, text, nil, nil, false); err != nil {
				return coordinator.Result{}, err
			}
			return coordinator.Result{Text: text}, nil
		}
	}

	server, tool := params[instruction.ParamServerName], params[instruction.ParamToolName]
	return h.deps.callMcp(ctx, ui, in, func(ctx context.Context) (string, error) {
		return cfg.Services.McpHub.CallTool(ctx, server, tool, args)
	})
}

// AccessMcpResource reads a resource of a connected MCP server.
type AccessMcpResource struct {
	deps Deps
}

func (h *AccessMcpResource) Name() instruction.ToolName { return instruction.AccessMcpResource }

func (h *AccessMcpResource) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	return mcpPreview(ctx, ui, in)
}

func (h *AccessMcpResource) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamServerName, instruction.ParamURI)
	if !ok {
		return res, err
	}
	server, uri := params[instruction.ParamServerName], params[instruction.ParamURI]
	return h.deps.callMcp(ctx, h.deps.Helpers(cfg), in, func(ctx context.Context) (string, error) {
		return cfg.Services.McpHub.ReadResource(ctx, server, uri)
	})
}

func (d Deps) callMcp(ctx context.Context, ui *uihelpers.Helpers, in instruction.Instruction, call func(context.Context) (string, error)) (coordinator.Result, error) {
	cfg := ui.Config()
	approved, err := d.approve(ctx, ui, approval{
		in:      in,
		ask:     conversation.AskUseMcpServer,
		say:     conversation.SayUseMcpServer,
		message: toolmessage.JSON(toolmessage.McpToolProps(in)),
		notify:  toolmessage.NotificationMessage(cfg.AgentName, cfg.Cwd, in, "", false),
	})
	if err != nil || !approved {
		return d.denied(), err
	}

	if _, err := ui.Say(ctx, conversation.SayMcpServerRequest, "", nil, nil, false); err != nil {
		return coordinator.Result{}, err
	}
	out, err := call(ctx)
	if err != nil {
		return coordinator.Result{}, err
	}
	if strings.TrimSpace(out) == "" {
		out = d.text("mcp.empty", nil, "(No response)")
	}
	if _, err := ui.Say(ctx, conversation.SayMcpServerResponse, out, nil, nil, false); err != nil {
		return coordinator.Result{}, err
	}
	return coordinator.Result{Text: out}, nil
}
