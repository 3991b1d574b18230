package handlers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/coordinator"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/pathutil"
	"github.com/codex-k8s/toolflow/internal/staging"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/toolmessage"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

// WriteToFile creates or overwrites a file.
type WriteToFile struct {
	deps Deps
}

func (h *WriteToFile) Name() instruction.ToolName { return instruction.WriteToFile }

// HandlePartialBlock streams the new content into the staging view. Nothing
// is written until Execute is approved.
func (h *WriteToFile) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	cfg := ui.Config()
	rel := ui.RemoveClosingTag(in, instruction.ParamPath, in.Value(instruction.ParamPath))
	if rel == "" {
		return nil
	}
	abs := pathutil.Resolve(cfg.Cwd, rel)
	var exists bool
	// the path is complete once content starts streaming
	if raw, ok := in.Param(instruction.ParamContent); ok {
		var err error
		if exists, err = h.deps.stage(cfg, abs); err != nil {
			return err
		}
		content := stripFences(ui.RemoveClosingTag(in, instruction.ParamContent, raw))
		if err := cfg.Services.DiffViewProvider.Update(content, false); err != nil {
			return err
		}
	} else {
		_, err := os.Stat(abs)
		exists = err == nil
	}
	props := toolmessage.WriteToolProps(in, cfg.Cwd, exists)
	return preview(ctx, ui, previewAuto(ui, in.Name, props.Path), conversation.AskTool, conversation.SayTool, toolmessage.JSON(props))
}

func (h *WriteToFile) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamPath, instruction.ParamContent)
	if !ok {
		return res, h.deps.settle(cfg, "revert staged file", err, cfg.Services.DiffViewProvider.Revert())
	}
	return commitWrite(ctx, h.deps, cfg, in, params[instruction.ParamPath], func(string) (string, error) {
		return stripFences(params[instruction.ParamContent]), nil
	})
}

// ReplaceInFile applies SEARCH/REPLACE blocks to an existing file.
type ReplaceInFile struct {
	deps Deps
}

func (h *ReplaceInFile) Name() instruction.ToolName { return instruction.ReplaceInFile }

func (h *ReplaceInFile) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	cfg := ui.Config()
	rel := ui.RemoveClosingTag(in, instruction.ParamPath, in.Value(instruction.ParamPath))
	if rel == "" {
		return nil
	}
	_, err := os.Stat(pathutil.Resolve(cfg.Cwd, rel))
	props := toolmessage.WriteToolProps(in, cfg.Cwd, err == nil)
	return preview(ctx, ui, previewAuto(ui, in.Name, props.Path), conversation.AskTool, conversation.SayTool, toolmessage.JSON(props))
}

func (h *ReplaceInFile) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamPath, instruction.ParamDiff)
	if !ok {
		return res, err
	}
	return commitWrite(ctx, h.deps, cfg, in, params[instruction.ParamPath], func(original string) (string, error) {
		updated, err := staging.ApplyDiff(original, params[instruction.ParamDiff])
		if err != nil {
			cfg.TaskState.RecordMistake()
			return "", err
		}
		return updated, nil
	})
}

// commitWrite stages the content produced by build, asks for approval and
// saves or reverts the staging view.
func commitWrite(ctx context.Context, d Deps, cfg *taskconfig.Config, in instruction.Instruction, rel string, build func(original string) (string, error)) (coordinator.Result, error) {
	ui := d.Helpers(cfg)
	diff := cfg.Services.DiffViewProvider
	if text, blocked, err := d.blocked(ctx, ui, in, rel); blocked || err != nil {
		return coordinator.Result{Text: text}, d.settle(cfg, "revert staged file", err, diff.Revert())
	}
	fail := func(err error) (coordinator.Result, error) {
		return coordinator.Result{}, d.settle(cfg, "revert staged file", err, diff.Revert())
	}

	abs := pathutil.Resolve(cfg.Cwd, rel)
	exists, err := d.stage(cfg, abs)
	if err != nil {
		return fail(err)
	}
	original := ""
	if exists {
		data, err := os.ReadFile(abs)
		if err != nil {
			return fail(fmt.Errorf("read %s: %w", rel, err))
		}
		original = string(data)
	} else if in.Name == instruction.ReplaceInFile {
		return fail(fmt.Errorf("replace in %s: %w", rel, os.ErrNotExist))
	}
	content, err := build(original)
	if err != nil {
		return fail(fmt.Errorf("%s %s: %w", in.Name, rel, err))
	}
	if err := diff.Update(content, true); err != nil {
		return fail(err)
	}

	props := toolmessage.WriteToolProps(in, cfg.Cwd, exists)
	approved, err := d.approve(ctx, ui, approval{
		in:      in,
		ask:     conversation.AskTool,
		say:     conversation.SayTool,
		message: toolmessage.JSON(props),
		path:    abs,
		notify:  toolmessage.NotificationMessage(cfg.AgentName, cfg.Cwd, in, rel, exists),
	})
	if err != nil || !approved {
		return d.denied(), d.settle(cfg, "revert staged file", err, diff.Revert())
	}
	if err := diff.Save(); err != nil {
		return coordinator.Result{}, err
	}
	cfg.Services.FileContextTracker.TrackEdit(abs)
	cfg.TaskState.SetDidEditFile(true)

	readable := pathutil.ReadablePath(cfg.Cwd, abs)
	return coordinator.Result{Text: d.text("write.saved", map[string]any{"Path": readable},
		fmt.Sprintf("The content was successfully saved to %s.", readable))}, nil
}

// stage opens abs in the staging view. A view still open on another file,
// left behind by an abandoned partial write, is reverted first.
func (d Deps) stage(cfg *taskconfig.Config, abs string) (bool, error) {
	diff := cfg.Services.DiffViewProvider
	switch open := diff.Path(); open {
	case abs:
		_, err := os.Stat(abs)
		return err == nil, nil
	case "":
	default:
		if d.Logger != nil {
			d.Logger.Debug("discarding stale staged file", "task_id", cfg.TaskID, "path", open)
		}
		if err := diff.Revert(); err != nil {
			return false, fmt.Errorf("revert staged %s: %w", open, err)
		}
	}
	return diff.Open(abs)
}

// stripFences drops a markdown code fence wrapped around the content.
func stripFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[i+1:]
	} else {
		return ""
	}
	trimmed := strings.TrimRight(content, "\n")
	if strings.HasSuffix(trimmed, "```") {
		content = strings.TrimSuffix(trimmed, "```")
	}
	return content
}
