package startup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codex-k8s/toolflow/internal/dsl"
	"github.com/codex-k8s/toolflow/internal/executil"
	"github.com/codex-k8s/toolflow/internal/timeutil"
)

// Run executes configured startup hooks sequentially in dir.
// Hook arguments may reference {{ .TaskID }}.
func Run(ctx context.Context, hooks []dsl.HookConfig, dir, taskID string, logger *slog.Logger) error {
	for idx, hook := range hooks {
		if strings.TrimSpace(hook.Command) == "" {
			continue
		}
		if err := runHook(ctx, idx, hook, dir, taskID, logger); err != nil {
			return err
		}
	}
	return nil
}

func runHook(ctx context.Context, idx int, hook dsl.HookConfig, dir, taskID string, logger *slog.Logger) error {
	hookCtx := ctx
	if strings.TrimSpace(hook.Timeout) != "" {
		timeout, err := timeutil.Parse(hook.Timeout)
		if err != nil || timeout == 0 {
			return fmt.Errorf("startup hook %d: invalid timeout %q", idx, hook.Timeout)
		}
		var cancel context.CancelFunc
		hookCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if logger != nil {
		logger.Info("running startup hook", "index", idx, "command", hook.Command)
	}

	cmd := executil.Command{Command: hook.Command, Args: hook.Args, Env: hook.Env, Dir: dir}
	output, _, err := executil.RunCommand(hookCtx, cmd, executil.TemplateData{TaskID: taskID})
	output = strings.TrimSpace(output)
	if err != nil {
		if logger != nil && output != "" {
			logger.Error("startup hook failed", "index", idx, "output", output)
		}
		return fmt.Errorf("startup hook %d failed: %w", idx, err)
	}
	if logger != nil && output != "" {
		logger.Info("startup hook output", "index", idx, "output", output)
	}
	return nil
}
