package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/codex-k8s/toolflow/internal/audit"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/runtime/approver"
	"github.com/codex-k8s/toolflow/internal/runtime/executor"
	"github.com/codex-k8s/toolflow/internal/stream"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/taskstate"
)

func (t *Task) callbacks() *taskconfig.Callbacks {
	return &taskconfig.Callbacks{
		Say:                                      t.log.Say,
		Ask:                                      t.log.Ask,
		SaveCheckpoint:                           t.saveCheckpoint,
		SayAndCreateMissingParamError:            t.sayAndCreateMissingParamError,
		RemoveLastPartialMessageIfExistsWithType: t.removeLastPartial,
		ExecuteCommandTool:                       t.executeCommand,
		DoesLatestTaskCompletionHaveNewChanges:   t.completionHasNewChanges,
		UpdateFocusListFromToolResponse:          t.updateFocusList,
		ShouldAutoApproveToolWithPath:            t.shouldAutoApprove,
		PostState:                                t.postState,
		ReinitTaskFromID:                         t.reinit,
		CancelTask:                               t.cancel,
		UpdateTaskHistory:                        t.updateHistory,
	}
}

func (t *Task) saveCheckpoint(ctx context.Context, isCompletion bool, completionTS int64) error {
	ts := completionTS
	if ts == 0 {
		ts = t.lastMessageTS()
	}
	t.state.AddCheckpoint(taskstate.Checkpoint{
		MessageTS:  ts,
		Completion: isCompletion,
		Edits:      t.opts.Services.FileContextTracker.EditCount(),
	})
	if isCompletion {
		return nil
	}
	_, err := t.log.Say(ctx, conversation.SayCheckpointCreated, t.text("checkpoint.created", nil, "Checkpoint saved."), nil, nil, false)
	return err
}

func (t *Task) sayAndCreateMissingParamError(ctx context.Context, tool instruction.ToolName, param instruction.ParamName, relPath string) (string, error) {
	count := t.state.RecordMistake()
	cfg := t.Config()
	say := t.text("tool.missing_param_say",
		map[string]any{"Agent": cfg.AgentName, "Tool": tool, "Path": relPath, "Param": param},
		fmt.Sprintf("%s tried to use %s without value for required parameter '%s'. Retrying...", cfg.AgentName, tool, param))
	if _, err := t.log.Say(ctx, conversation.SayError, say, nil, nil, false); err != nil {
		return "", err
	}
	if count >= t.opts.MistakeLimit {
		limit := t.text("tool.mistake_limit", map[string]any{"Agent": cfg.AgentName, "Count": count},
			fmt.Sprintf("%s made %d consecutive mistakes.", cfg.AgentName, count))
		if _, err := t.log.Say(ctx, conversation.SayError, limit, nil, nil, false); err != nil {
			return "", err
		}
	}
	return t.text("tool.missing_param", map[string]any{"Param": param},
		fmt.Sprintf("Missing value for required parameter '%s'. Please retry with a complete response.", param)), nil
}

func (t *Task) removeLastPartial(_ context.Context, typ conversation.MessageType, kind string) error {
	t.log.RemoveLastPartialMessageIfExists(typ, kind)
	return nil
}

// executeCommand never reports a rejection: output is returned as is and
// the user answers through the regular ask flow.
func (t *Task) executeCommand(ctx context.Context, command string) (bool, string, error) {
	res, err := t.opts.Executor.Execute(ctx, executor.Request{Command: command, TaskID: t.TaskID()})
	if err != nil {
		return false, "", fmt.Errorf("execute command: %w", err)
	}
	output := strings.TrimSpace(res.Output)
	if output != "" {
		if _, err := t.log.Say(ctx, conversation.SayCommandOutput, output, nil, nil, false); err != nil {
			return false, "", err
		}
	}

	switch {
	case res.TimedOut:
		return false, t.text("command.timed_out", map[string]any{"Timeout": t.opts.Executor.Timeout, "Output": output},
			fmt.Sprintf("Command timed out after %s.\nOutput:\n%s", t.opts.Executor.Timeout, output)), nil
	case res.ExitCode != 0:
		return false, t.text("command.failed", map[string]any{"Code": res.ExitCode, "Output": output},
			fmt.Sprintf("Command failed with exit code %d.\nOutput:\n%s", res.ExitCode, output)), nil
	case output == "":
		return false, t.text("command.no_output", nil, "Command executed with no output."), nil
	}
	return false, t.text("command.output", map[string]any{"Output": output}, "Command executed.\nOutput:\n"+output), nil
}

func (t *Task) completionHasNewChanges(context.Context) (bool, error) {
	edits := t.opts.Services.FileContextTracker.EditCount()
	last, ok := t.state.LastCompletion()
	if !ok {
		return edits > 0, nil
	}
	return edits > last.Edits, nil
}

func (t *Task) updateFocusList(_ context.Context, progress string) error {
	if !t.opts.FocusChain.Enabled {
		return nil
	}
	progress = strings.TrimSpace(progress)
	if progress == "" {
		return nil
	}
	t.opts.Services.CacheService.Set(focusKey(t.TaskID()), progress)
	return nil
}

// shouldAutoApprove evaluates the policy and, for final instructions, the
// approver chain and the request budget. A chain denial or failure leaves
// the decision to the user.
func (t *Task) shouldAutoApprove(ctx context.Context, tool instruction.ToolName, path string) (bool, error) {
	cfg := t.Config()
	ok, err := t.policy.ForMode(string(cfg.Mode)).ShouldAutoApproveToolWithPath(ctx, tool, path)
	if err != nil || !ok {
		return false, err
	}
	if t.opts.AutoApproval.Yolo {
		return true, nil
	}

	t.mu.Lock()
	current := t.current
	exhausted := t.opts.AutoApproval.MaxRequests > 0 && t.autoCount >= t.opts.AutoApproval.MaxRequests
	t.mu.Unlock()
	if exhausted {
		return false, nil
	}
	if current.Partial || current.Name != tool {
		return true, nil
	}

	if t.opts.Approvers != nil {
		correlationID := uuid.NewString()
		decision, err := t.opts.Approvers.Approve(ctx, approver.Request{
			ToolName:      string(tool),
			Path:          path,
			Params:        current.Params.Map(),
			TaskID:        cfg.TaskID,
			CorrelationID: correlationID,
		})
		event := audit.Event{
			Type:          audit.TypeApproval,
			Tool:          string(tool),
			TaskID:        cfg.TaskID,
			ModelID:       cfg.API.ModelID(),
			CorrelationID: correlationID,
			AutoApproved:  decision.Allowed && err == nil,
			Approved:      decision.Allowed && err == nil,
			Decision:      decision.Source,
			Reason:        decision.Reason,
		}
		t.opts.Telemetry.Record(ctx, event)
		if err != nil {
			if t.opts.Logger != nil {
				t.opts.Logger.Warn("approver failed", "task_id", cfg.TaskID, "tool", tool, "error", err)
			}
			return false, nil
		}
		if !decision.Allowed {
			return false, nil
		}
	}

	t.mu.Lock()
	t.autoCount++
	t.mu.Unlock()
	return true, nil
}

func (t *Task) postState(context.Context) error {
	if t.opts.OnState != nil {
		t.opts.OnState(t.State())
	}
	return nil
}

// reinit starts over under taskID with an empty conversation.
func (t *Task) reinit(_ context.Context, taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("reinit task: empty task id")
	}
	if t.state.Aborted() {
		return fmt.Errorf("reinit task %s: %w", taskID, stream.ErrAborted)
	}
	cfg := t.Config()
	t.mu.Lock()
	t.taskID = taskID
	t.autoCount = 0
	t.current = instruction.Instruction{}
	// reinit may run inside an executing instruction, so the dispatcher is
	// reset before the next emission
	t.resetPending = true
	t.mu.Unlock()

	t.state.Reset()
	t.log.Reopen()
	return t.rebuild(cfg.Mode)
}

func (t *Task) cancel(context.Context) error {
	t.state.Abort()
	t.log.Close()
	return nil
}

func (t *Task) updateHistory(_ context.Context, item taskconfig.HistoryItem) ([]taskconfig.HistoryItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.history {
		if t.history[i].ID == item.ID {
			t.history[i] = item
			return append([]taskconfig.HistoryItem(nil), t.history...), nil
		}
	}
	t.history = append(t.history, item)
	return append([]taskconfig.HistoryItem(nil), t.history...), nil
}
