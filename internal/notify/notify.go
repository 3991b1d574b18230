// Package notify shows desktop notifications by running a configured command.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codex-k8s/toolflow/internal/executil"
)

// DefaultTimeout bounds a single notification command.
const DefaultTimeout = 10 * time.Second

// Shell runs a command for every notification. The command is rendered with
// executil templates where .Message is the body and {{ param "subtitle" }}
// the subtitle.
type Shell struct {
	command executil.Command
	title   string
	timeout time.Duration
}

// NewShell creates a notifier. An empty command disables notifications.
func NewShell(command executil.Command, title string, timeout time.Duration) *Shell {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Shell{command: command, title: title, timeout: timeout}
}

// Notify runs the notification command.
func (s *Shell) Notify(ctx context.Context, subtitle, message string) error {
	if strings.TrimSpace(s.command.Command) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data := executil.TemplateData{
		Message: message,
		Params: map[string]string{
			"title":    s.title,
			"subtitle": subtitle,
		},
	}
	output, code, err := executil.RunCommand(ctx, s.command, data)
	if err != nil {
		return fmt.Errorf("notify (exit %d): %w: %s", code, err, strings.TrimSpace(output))
	}
	return nil
}
