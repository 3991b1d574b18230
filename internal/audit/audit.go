package audit

import (
	"context"
	"log/slog"
)

// Event types.
const (
	TypeToolUsage = "tool_usage"
	TypeApproval  = "approval"
	TypeExecution = "execution"
)

// Event represents an audit entry for tool usage, approvals and execution.
type Event struct {
	// Type describes the event kind.
	Type string
	// Tool is the tool name.
	Tool string
	// TaskID identifies the task.
	TaskID string
	// ModelID identifies the model that requested the tool.
	ModelID string
	// CorrelationID links related events.
	CorrelationID string
	// AutoApproved reports that no user interaction was needed.
	AutoApproved bool
	// Approved is the final approval outcome.
	Approved bool
	// Decision is the approval decision source or outcome.
	Decision string
	// Reason provides additional context.
	Reason string
}

// Logger records audit events.
type Logger interface {
	// Record stores an audit event.
	Record(ctx context.Context, event Event)
}

// StdLogger writes audit events to slog.
type StdLogger struct {
	logger *slog.Logger
}

// New returns a StdLogger.
func New(logger *slog.Logger) *StdLogger {
	return &StdLogger{logger: logger}
}

// Record logs an audit event.
func (l *StdLogger) Record(ctx context.Context, event Event) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.InfoContext(ctx, "audit",
		"type", event.Type,
		"tool", event.Tool,
		"task_id", event.TaskID,
		"model_id", event.ModelID,
		"correlation_id", event.CorrelationID,
		"auto_approved", event.AutoApproved,
		"approved", event.Approved,
		"decision", event.Decision,
		"reason", event.Reason,
	)
}

// Nop discards events.
type Nop struct{}

// Record implements Logger.
func (Nop) Record(context.Context, Event) {}
