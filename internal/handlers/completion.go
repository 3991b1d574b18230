package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/coordinator"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/toolmessage"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

// completionAsk is the payload of the completion ask.
type completionAsk struct {
	HasChanges bool `json:"hasChanges"`
}

// AttemptCompletion presents the final result of a task and lets the user
// accept it, give feedback or start a new task.
type AttemptCompletion struct {
	deps Deps
}

func (h *AttemptCompletion) Name() instruction.ToolName { return instruction.AttemptCompletion }

func (h *AttemptCompletion) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	result := ui.RemoveClosingTag(in, instruction.ParamResult, in.Value(instruction.ParamResult))
	if result == "" {
		return nil
	}
	_, err := ui.Say(ctx, conversation.SayCompletionResult, result, nil, nil, true)
	return err
}

// Execute checkpoints the result, records it in the history and waits for
// the user's reaction. Feedback goes back to the model.
func (h *AttemptCompletion) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamResult)
	if !ok {
		return res, err
	}
	result := params[instruction.ParamResult]
	ui := h.deps.Helpers(cfg)
	cb := cfg.Callbacks

	changed, err := cb.DoesLatestTaskCompletionHaveNewChanges(ctx)
	if err != nil {
		return coordinator.Result{}, fmt.Errorf("check completion changes: %w", err)
	}
	ts, err := ui.Say(ctx, conversation.SayCompletionResult, result, nil, nil, false)
	if err != nil {
		return coordinator.Result{}, err
	}
	if err := cb.SaveCheckpoint(ctx, true, ts); err != nil {
		return coordinator.Result{}, fmt.Errorf("save completion checkpoint: %w", err)
	}
	if _, err := cb.UpdateTaskHistory(ctx, taskconfig.HistoryItem{ID: cfg.TaskID, TS: ts, Task: result, Mode: cfg.Mode}); err != nil {
		return coordinator.Result{}, fmt.Errorf("update task history: %w", err)
	}
	if err := cb.PostState(ctx); err != nil {
		return coordinator.Result{}, fmt.Errorf("post state: %w", err)
	}

	answer, err := ui.Ask(ctx, conversation.AskCompletionResult, toolmessage.JSON(completionAsk{HasChanges: changed}), false)
	if err != nil {
		return coordinator.Result{}, err
	}
	switch answer.Response {
	case conversation.ResponseYes:
		if err := cb.ReinitTaskFromID(ctx, uuid.NewString()); err != nil {
			return coordinator.Result{}, fmt.Errorf("start new task: %w", err)
		}
		return coordinator.Result{Text: h.deps.text("completion.new_task", nil, "The user started a new task.")}, nil
	case conversation.ResponseMessage:
		if _, err := ui.Say(ctx, conversation.SayText, answer.Text, answer.Images, answer.Files, false); err != nil {
			return coordinator.Result{}, err
		}
		text := h.deps.text("completion.feedback", map[string]any{"Feedback": answer.Text},
			fmt.Sprintf("The user has provided feedback on the results.\n<feedback>\n%s\n</feedback>", answer.Text))
		return coordinator.Result{Text: text, Images: answer.Images}, nil
	}
	return coordinator.Result{Text: h.deps.text("completion.accepted", nil, "The user accepted the result.")}, nil
}

// AskFollowupQuestion asks the user a question and returns the answer.
type AskFollowupQuestion struct {
	deps Deps
}

func (h *AskFollowupQuestion) Name() instruction.ToolName { return instruction.AskFollowupQuestion }

func (h *AskFollowupQuestion) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	question := ui.RemoveClosingTag(in, instruction.ParamQuestion, in.Value(instruction.ParamQuestion))
	if question == "" {
		return nil
	}
	_, err := ui.Ask(ctx, conversation.AskFollowup, question, true)
	return err
}

func (h *AskFollowupQuestion) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamQuestion)
	if !ok {
		return res, err
	}
	answer, err := h.deps.Helpers(cfg).Ask(ctx, conversation.AskFollowup, params[instruction.ParamQuestion], false)
	if err != nil {
		return coordinator.Result{}, err
	}
	text := h.deps.text("followup.answer", map[string]any{"Answer": answer.Text},
		fmt.Sprintf("<answer>\n%s\n</answer>", answer.Text))
	return coordinator.Result{Text: text, Images: answer.Images}, nil
}
