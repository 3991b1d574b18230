package handlers

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/coordinator"
	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/pathutil"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
	"github.com/codex-k8s/toolflow/internal/toolmessage"
	"github.com/codex-k8s/toolflow/internal/uihelpers"
)

// ListFilesLimit caps the number of listed entries.
const ListFilesLimit = 200

var skippedDirs = map[string]bool{".git": true, "node_modules": true, "vendor": true, "__pycache__": true}

// ListFiles lists a directory, optionally recursively.
type ListFiles struct {
	deps Deps
}

func (h *ListFiles) Name() instruction.ToolName { return instruction.ListFiles }

func (h *ListFiles) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	cfg := ui.Config()
	props := toolmessage.FileToolProps(in, cfg.Cwd, "")
	return preview(ctx, ui, previewAuto(ui, in.Name, props.Path), conversation.AskTool, conversation.SayTool, toolmessage.JSON(props))
}

func (h *ListFiles) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamPath)
	if !ok {
		return res, err
	}
	rel := params[instruction.ParamPath]
	ui := h.deps.Helpers(cfg)
	if text, blocked, err := h.deps.blocked(ctx, ui, in, rel); blocked || err != nil {
		return coordinator.Result{Text: text}, err
	}

	abs := pathutil.Resolve(cfg.Cwd, rel)
	entries, truncated, err := listDir(abs, in.Value(instruction.ParamRecursive) == "true", cfg.Services.IgnoreController)
	if err != nil {
		return coordinator.Result{}, err
	}
	listing := h.format(entries, truncated)

	props := toolmessage.FileToolProps(in, cfg.Cwd, listing)
	approved, err := h.deps.approve(ctx, ui, approval{
		in:      in,
		ask:     conversation.AskTool,
		say:     conversation.SayTool,
		message: toolmessage.JSON(props),
		path:    abs,
		notify:  toolmessage.NotificationMessage(cfg.AgentName, cfg.Cwd, in, rel, false),
	})
	if err != nil || !approved {
		return h.deps.denied(), err
	}
	return coordinator.Result{Text: listing}, nil
}

func (h *ListFiles) format(entries []string, truncated bool) string {
	if len(entries) == 0 {
		return h.deps.text("list.empty", nil, "No files found.")
	}
	out := strings.Join(entries, "\n")
	if truncated {
		out += "\n\n" + h.deps.text("list.truncated", map[string]any{"Limit": ListFilesLimit},
			fmt.Sprintf("File list truncated at %d entries.", ListFilesLimit))
	}
	return out
}

// listDir returns entries of dir relative to it, directories with a
// trailing slash, skipping ignored paths.
func listDir(dir string, recursive bool, access taskconfig.IgnoreController) ([]string, bool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, false, fmt.Errorf("list %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, false, fmt.Errorf("list %s: not a directory", dir)
	}

	var entries []string
	truncated := false
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if !access.ValidateAccess(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if len(entries) >= ListFilesLimit {
			truncated = true
			return filepath.SkipAll
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			entries = append(entries, rel+"/")
			if !recursive || skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(entries)
	return entries, truncated, nil
}

// ReadFile returns the content of a file.
type ReadFile struct {
	deps Deps
}

func (h *ReadFile) Name() instruction.ToolName { return instruction.ReadFile }

func (h *ReadFile) HandlePartialBlock(ctx context.Context, in instruction.Instruction, ui *uihelpers.Helpers) error {
	cfg := ui.Config()
	props := toolmessage.FileToolProps(in, cfg.Cwd, "")
	return preview(ctx, ui, previewAuto(ui, in.Name, props.Path), conversation.AskTool, conversation.SayTool, toolmessage.JSON(props))
}

func (h *ReadFile) Execute(ctx context.Context, cfg *taskconfig.Config, in instruction.Instruction) (coordinator.Result, error) {
	params, res, ok, err := h.deps.params(ctx, cfg, in, instruction.ParamPath)
	if !ok {
		return res, err
	}
	rel := params[instruction.ParamPath]
	ui := h.deps.Helpers(cfg)
	if text, blocked, err := h.deps.blocked(ctx, ui, in, rel); blocked || err != nil {
		return coordinator.Result{Text: text}, err
	}

	abs := pathutil.Resolve(cfg.Cwd, rel)
	props := toolmessage.FileToolProps(in, cfg.Cwd, "")
	approved, err := h.deps.approve(ctx, ui, approval{
		in:      in,
		ask:     conversation.AskTool,
		say:     conversation.SayTool,
		message: toolmessage.JSON(props),
		path:    abs,
		notify:  toolmessage.NotificationMessage(cfg.AgentName, cfg.Cwd, in, rel, false),
	})
	if err != nil || !approved {
		return h.deps.denied(), err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return coordinator.Result{}, fmt.Errorf("read %s: %w", rel, err)
	}
	cfg.Services.FileContextTracker.TrackRead(abs)
	if cfg.Services.ContextManager.RecordFileRead(abs, string(data)) {
		readable := pathutil.ReadablePath(cfg.Cwd, abs)
		return coordinator.Result{Text: h.deps.text("read.unchanged", map[string]any{"Path": readable},
			fmt.Sprintf("The content of %s has not changed since it was last read.", readable))}, nil
	}
	return coordinator.Result{Text: string(data)}, nil
}
