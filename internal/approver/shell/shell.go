// Package shell implements an approver backed by a local command.
package shell

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/codex-k8s/toolflow/internal/executil"
	"github.com/codex-k8s/toolflow/internal/runtime/approver"
)

// Approver runs a command per request; exit code 0 or one of AllowExitCodes
// approves, any other exit code denies. The last output line is the reason.
type Approver struct {
	// Label is a human-friendly name.
	Label string
	// Command is the shell command to execute.
	Command string
	// Args are optional command arguments.
	Args []string
	// Env adds environment variables for the command.
	Env map[string]string
	// Dir is the working directory, usually the task workspace.
	Dir string
	// AllowExitCodes declares additional success exit codes.
	AllowExitCodes []int
}

// Name returns approver name for audit and logging.
func (a Approver) Name() string {
	if a.Label != "" {
		return a.Label
	}
	return "shell"
}

// Approve executes the command. A command that cannot run at all is an
// error rather than a denial.
func (a Approver) Approve(ctx context.Context, req approver.Request) (approver.Decision, error) {
	output, exitCode, err := executil.RunCommand(ctx, executil.Command{
		Command: a.Command,
		Args:    a.Args,
		Env:     a.Env,
		Dir:     a.Dir,
	}, executil.TemplateData{
		Params:        req.Params,
		Path:          req.Path,
		ToolName:      req.ToolName,
		TaskID:        req.TaskID,
		CorrelationID: req.CorrelationID,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return approver.Decision{Source: a.Name(), Reason: "approval canceled"}, ctxErr
	}
	if err != nil && exitCode < 0 {
		return approver.Decision{Source: a.Name(), Reason: "command failed to run"}, fmt.Errorf("shell approver %s: %w", a.Name(), err)
	}

	allowed := exitCode == 0 || slices.Contains(a.AllowExitCodes, exitCode)
	reason := lastLine(output)
	if reason == "" {
		reason = "denied"
		if allowed {
			reason = "approved"
		}
	}
	return approver.Decision{Allowed: allowed, Reason: reason, Source: a.Name()}, nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
