package protocol

import (
	"time"

	"github.com/codex-k8s/toolflow/internal/instruction"
)

// Ask responses accepted from the user.
const (
	ResponseYes     = "yesButtonClicked"
	ResponseNo      = "noButtonClicked"
	ResponseMessage = "messageResponse"
)

// Message event actions.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionRemove = "remove"
)

// Output event kinds.
const (
	EventMessage    = "message"
	EventToolResult = "tool_result"
	EventState      = "state"
)

// InstructionEvent is one line read from the instruction stream.
type InstructionEvent struct {
	// Index is the position of the instruction in the response stream.
	Index int `json:"index"`
	// Instruction is the observed tool use.
	instruction.Instruction
}

// MessageEvent is written for every change of the conversation log.
type MessageEvent struct {
	// Event is always EventMessage.
	Event string `json:"event"`
	// Action is add, update or remove.
	Action string `json:"action"`
	// TS identifies the message.
	TS int64 `json:"ts"`
	// Type is ask or say.
	Type string `json:"type"`
	// Kind is the ask or say kind.
	Kind string `json:"kind"`
	// Text is the message body.
	Text string `json:"text,omitempty"`
	// Images are attached images.
	Images []string `json:"images,omitempty"`
	// Files are attached files.
	Files []string `json:"files,omitempty"`
	// Partial marks messages still being streamed.
	Partial bool `json:"partial,omitempty"`
}

// ToolResultEvent is written once per executed instruction.
type ToolResultEvent struct {
	// Event is always EventToolResult.
	Event string `json:"event"`
	// Index is the position of the instruction in the response stream.
	Index int `json:"index"`
	// Tool is the tool name.
	Tool string `json:"tool"`
	// Text is the model-facing result.
	Text string `json:"text"`
	// Images are image attachments.
	Images []string `json:"images,omitempty"`
	// IsError marks results produced from a failure.
	IsError bool `json:"is_error,omitempty"`
}

// AskAnswer is the webhook payload that resolves a pending ask.
type AskAnswer struct {
	// TS identifies the ask message.
	TS int64 `json:"ts"`
	// Response is one of the Response* constants.
	Response string `json:"response"`
	// Text is optional user feedback.
	Text string `json:"text,omitempty"`
	// Images are optional attachments.
	Images []string `json:"images,omitempty"`
	// Files are optional attachments.
	Files []string `json:"files,omitempty"`
}

// ModeRequest switches the task between plan and act mode.
type ModeRequest struct {
	// Mode is plan or act.
	Mode string `json:"mode"`
}

// ButtonState describes the approval affordance shown to the user.
type ButtonState struct {
	// PrimaryText is the label of the affirmative button.
	PrimaryText string `json:"primary_text,omitempty"`
	// SecondaryText is the label of the negative button.
	SecondaryText string `json:"secondary_text,omitempty"`
	// EnableButtons reports whether buttons are clickable.
	EnableButtons bool `json:"enable_buttons"`
	// SendingDisabled blocks free-text input.
	SendingDisabled bool `json:"sending_disabled"`
}

// StateResponse is returned by the state endpoint.
type StateResponse struct {
	// TaskID identifies the task.
	TaskID string `json:"task_id"`
	// Mode is the active mode.
	Mode string `json:"mode"`
	// Aborted reports task cancellation.
	Aborted bool `json:"aborted"`
	// Buttons is the current approval affordance.
	Buttons ButtonState `json:"buttons"`
	// PendingAsks lists unanswered asks.
	PendingAsks []MessageEvent `json:"pending_asks"`
}

// StateEvent is the state written to the output stream when a task posts it.
type StateEvent struct {
	Event string `json:"event"`
	StateResponse
}

// Approval decisions of external approvers.
const (
	DecisionApprove = "approve"
	DecisionDeny    = "deny"
	DecisionError   = "error"
	DecisionPending = "pending"
)

// ApproverRequest is the payload sent to HTTP approvers.
type ApproverRequest struct {
	// CorrelationID links the request with an async decision.
	CorrelationID string `json:"correlation_id"`
	// TaskID identifies the task.
	TaskID string `json:"task_id,omitempty"`
	// Tool is the tool name.
	Tool string `json:"tool"`
	// Path is the path the tool touches, if any.
	Path string `json:"path,omitempty"`
	// Params are redacted instruction parameters.
	Params map[string]string `json:"params"`
	// CallbackURL receives the decision when the approver answers pending.
	CallbackURL string `json:"callback_url,omitempty"`
}

// ApproverResponse is the JSON response expected from HTTP approvers.
type ApproverResponse struct {
	// Decision is approve, deny, error or pending.
	Decision string `json:"decision"`
	// Reason provides additional context.
	Reason string `json:"reason,omitempty"`
}

// PendingApproval describes an approval waiting for an async approver.
type PendingApproval struct {
	// CorrelationID identifies the approval in webhook callbacks.
	CorrelationID string `json:"correlation_id"`
	// Source is the approver that answered pending.
	Source string `json:"source"`
	// Tool is the tool awaiting approval.
	Tool string `json:"tool"`
	// Path is the path the tool touches, if any.
	Path string `json:"path,omitempty"`
	// TaskID identifies the task.
	TaskID string `json:"task_id,omitempty"`
	// Since is when the approval became pending.
	Since time.Time `json:"since"`
}

// ApproverDecision is the webhook payload of an async approver.
type ApproverDecision struct {
	// CorrelationID identifies the pending approval.
	CorrelationID string `json:"correlation_id"`
	// Decision is approve, deny or error.
	Decision string `json:"decision"`
	// Reason provides additional context.
	Reason string `json:"reason,omitempty"`
}
