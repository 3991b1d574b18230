// Package executor runs shell commands requested by the model.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codex-k8s/toolflow/internal/executil"
)

// Defaults for Shell.
const (
	DefaultTimeout   = 10 * time.Minute
	DefaultMaxOutput = 30000
)

// Request contains command execution inputs.
type Request struct {
	// Command is a bash script.
	Command string
	// TaskID identifies the task, for logging.
	TaskID string
}

// Result is the outcome of a finished command.
type Result struct {
	// Output is the combined stdout and stderr, possibly truncated.
	Output string
	// ExitCode is -1 when the process did not start or was killed.
	ExitCode int
	// TimedOut reports that Timeout elapsed.
	TimedOut bool
}

// Shell runs commands with bash in Dir.
type Shell struct {
	// Dir is the working directory.
	Dir string
	// Timeout bounds a single command.
	Timeout time.Duration
	// MaxOutput caps the returned output in runes; the tail is kept.
	MaxOutput int
}

// Execute runs req.Command. A non-zero exit is reported in Result, not as
// an error; errors mean the command could not be run at all.
func (s Shell) Execute(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Command) == "" {
		return Result{ExitCode: -1}, errors.New("command is empty")
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, code, err := executil.RunShell(runCtx, s.Dir, req.Command)
	res := Result{Output: truncate(strings.TrimRight(output, "\n"), s.maxOutput()), ExitCode: code}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, fmt.Errorf("run command: %w", err)
	}
	return res, nil
}

func (s Shell) maxOutput() int {
	if s.MaxOutput <= 0 {
		return DefaultMaxOutput
	}
	return s.MaxOutput
}

func truncate(s string, max int) string {
	n := utf8.RuneCountInString(s)
	if n <= max {
		return s
	}
	runes := []rune(s)
	return fmt.Sprintf("... (%d chars omitted)\n", n-max) + string(runes[n-max:])
}
