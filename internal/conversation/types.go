package conversation

import "errors"

// MessageType distinguishes questions from informational messages.
type MessageType string

// Message types.
const (
	TypeAsk MessageType = "ask"
	TypeSay MessageType = "say"
)

// AskKind classifies a question presented to the user.
type AskKind string

// Ask kinds.
const (
	AskFollowup            AskKind = "followup"
	AskCommand             AskKind = "command"
	AskCommandOutput       AskKind = "command_output"
	AskCompletionResult    AskKind = "completion_result"
	AskTool                AskKind = "tool"
	AskAPIRequestFailed    AskKind = "api_req_failed"
	AskResumeTask          AskKind = "resume_task"
	AskMistakeLimitReached AskKind = "mistake_limit_reached"
	AskBrowserActionLaunch AskKind = "browser_action_launch"
	AskUseMcpServer        AskKind = "use_mcp_server"
)

// SayKind classifies an informational message.
type SayKind string

// Say kinds.
const (
	SayText                SayKind = "text"
	SayError               SayKind = "error"
	SayTool                SayKind = "tool"
	SayCommand             SayKind = "command"
	SayCommandOutput       SayKind = "command_output"
	SayCompletionResult    SayKind = "completion_result"
	SayBrowserAction       SayKind = "browser_action"
	SayBrowserActionLaunch SayKind = "browser_action_launch"
	SayBrowserActionResult SayKind = "browser_action_result"
	SayUseMcpServer        SayKind = "use_mcp_server"
	SayMcpServerRequest    SayKind = "mcp_server_request_started"
	SayMcpServerResponse   SayKind = "mcp_server_response"
	SayCheckpointCreated   SayKind = "checkpoint_created"
	SayInfo                SayKind = "info"
)

// Response is the token the user answers an ask with.
type Response string

// Ask responses.
const (
	ResponseYes     Response = "yesButtonClicked"
	ResponseNo      Response = "noButtonClicked"
	ResponseMessage Response = "messageResponse"
)

// Valid reports whether r is a known response token.
func (r Response) Valid() bool {
	switch r {
	case ResponseYes, ResponseNo, ResponseMessage:
		return true
	}
	return false
}

// AskResult is the user's answer to an ask.
type AskResult struct {
	Response Response
	Text     string
	Images   []string
	Files    []string
}

// Message is one entry of the conversation log.
type Message struct {
	TS      int64
	Type    MessageType
	Ask     AskKind
	Say     SayKind
	Text    string
	Images  []string
	Files   []string
	Partial bool
}

// Kind returns the ask or say kind as a string.
func (m Message) Kind() string {
	if m.Type == TypeAsk {
		return string(m.Ask)
	}
	return string(m.Say)
}

// ErrChannelClosed is returned when the conversation was torn down while
// a message was being presented or an answer was awaited.
var ErrChannelClosed = errors.New("conversation channel closed")
