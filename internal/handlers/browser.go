package handlers

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/coordinator"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/toolmessage"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

// Browser actions.
const (
	ActionLaunch     = "launch"
	ActionClick      = "click"
	ActionType       = "type"
	ActionScrollDown = "scroll_down"
	ActionScrollUp   = "scroll_up"
	ActionClose      = "close"
)

// BrowserAction drives the browser session. Only launch needs approval;
// later actions operate on the page the user agreed to open.
type BrowserAction struct {
	deps Deps
}

func (h *BrowserAction) Name() instruction.ToolName { return instruction.BrowserAction }

func (h *BrowserAction) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	props := toolmessage.BrowserActionProps(in)
	switch props.Action {
	case "":
		return nil
	case ActionLaunch:
		if props.URL == "" {
			return nil
		}
		return preview(ctx, ui, previewAuto(ui, in.Name, ""), conversation.AskBrowserActionLaunch, conversation.SayBrowserActionLaunch, props.URL)
	}
	_, err := ui.Say(ctx, conversation.SayBrowserAction, toolmessage.JSON(props), nil, nil, true)
	return err
}

func (h *BrowserAction) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamAction)
	if !ok {
		return res, err
	}
	action := params[instruction.ParamAction]
	ui := h.deps.Helpers(cfg)
	session := cfg.Services.BrowserSession

	var need instruction.ParamName
	switch action {
	case ActionLaunch:
		need = instruction.ParamURL
	case ActionClick:
		need = instruction.ParamCoordinate
	case ActionType:
		need = instruction.ParamText
	case ActionScrollDown, ActionScrollUp, ActionClose:
	default:
		cfg.TaskState.RecordMistake()
		return coordinator.Result{}, fmt.Errorf("unknown browser action %q", action)
	}
	arg := ""
	if need != "" {
		more, res, ok, err := h.deps.params(ctx, cfg, in, need)
		if !ok {
			return res, h.deps.settle(cfg, "close browser", err, session.Close(ctx))
		}
		arg = more[need]
	}

	var state taskconfig.BrowserState
	switch action {
	case ActionLaunch:
		approved, err := h.deps.approve(ctx, ui, approval{
			in:      in,
			ask:     conversation.AskBrowserActionLaunch,
			say:     conversation.SayBrowserActionLaunch,
			message: arg,
			notify:  toolmessage.NotificationMessage(cfg.AgentName, cfg.Cwd, in, "", false),
		})
		if err != nil || !approved {
			return h.deps.denied(), err
		}
		state, err = session.Launch(ctx, arg)
		if err != nil {
			return coordinator.Result{}, h.deps.settle(cfg, "close browser", err, session.Close(ctx))
		}
	case ActionClose:
		if err := session.Close(ctx); err != nil {
			return coordinator.Result{}, err
		}
		return coordinator.Result{Text: h.deps.text("browser.closed", nil, "The browser has been closed.")}, nil
	default:
		if _, err := ui.Say(ctx, conversation.SayBrowserAction, toolmessage.JSON(toolmessage.BrowserActionProps(in)), nil, nil, false); err != nil {
			return coordinator.Result{}, err
		}
		switch action {
		case ActionClick:
			state, err = session.Click(ctx, arg)
		case ActionType:
			state, err = session.Type(ctx, arg)
		default:
			state, err = session.Scroll(ctx, action == ActionScrollDown)
		}
		if err != nil {
			return coordinator.Result{}, h.deps.settle(cfg, "close browser", err, session.Close(ctx))
		}
	}

	var images []string
	if len(state.Screenshot) > 0 {
		images = append(images, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(state.Screenshot))
	}
	summary := toolmessage.JSON(map[string]string{"url": state.URL, "title": state.Title})
	if _, err := ui.Say(ctx, conversation.SayBrowserActionResult, summary, images, nil, false); err != nil {
		return coordinator.Result{}, err
	}
	text := h.deps.text("browser.result", map[string]any{"URL": state.URL, "Title": state.Title},
		fmt.Sprintf("The browser action has been executed. Current page: %s (%s)", state.Title, state.URL))
	return coordinator.Result{Text: text, Images: images}, nil
}

// WebFetch returns the visible text of a web page.
type WebFetch struct {
	deps Deps
}

func (h *WebFetch) Name() instruction.ToolName { return instruction.WebFetch }

func (h *WebFetch) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	props := toolmessage.WebFetchProps(in)
	if props.Path == "" {
		return nil
	}
	return preview(ctx, ui, previewAuto(ui, in.Name, ""), conversation.AskTool, conversation.SayTool, toolmessage.JSON(props))
}

func (h *WebFetch) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamURL)
	if !ok {
		return res, err
	}
	ui := h.deps.Helpers(cfg)
	approved, err := h.deps.approve(ctx, ui, approval{
		in:      in,
		ask:     conversation.AskTool,
		say:     conversation.SayTool,
		message: toolmessage.JSON(toolmessage.WebFetchProps(in)),
		notify:  toolmessage.NotificationMessage(cfg.AgentName, cfg.Cwd, in, "", false),
	})
	if err != nil || !approved {
		return h.deps.denied(), err
	}
	content, err := cfg.Services.URLContentFetcher.Fetch(ctx, params[instruction.ParamURL])
	if err != nil {
		return coordinator.Result{}, err
	}
	return coordinator.Result{Text: content}, nil
}
