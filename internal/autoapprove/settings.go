package autoapprove

import "github.com/codex-k8s/toolflow/internal/constants"

// Effect is the outcome of a matching rule.
type Effect string

// Rule effects.
const (
	EffectAllow Effect = constants.EffectAllow
	EffectDeny  Effect = constants.EffectDeny
)

// Actions toggles auto-approval per category of capability.
type Actions struct {
	// ReadFiles auto-approves reads inside the workspace.
	ReadFiles bool
	// ReadFilesExternally extends ReadFiles to paths outside the workspace.
	ReadFilesExternally bool
	// EditFiles auto-approves writes inside the workspace.
	EditFiles bool
	// EditFilesExternally extends EditFiles to paths outside the workspace.
	EditFilesExternally bool
	// ExecuteSafeCommands auto-approves commands the model marked as safe.
	ExecuteSafeCommands bool
	// ExecuteAllCommands auto-approves every command.
	ExecuteAllCommands bool
	// UseBrowser auto-approves browser actions.
	UseBrowser bool
	// UseMcp auto-approves MCP tools and resources.
	UseMcp bool
}

// Rule is a CEL expression evaluated against tool, path, in_workspace and mode.
type Rule struct {
	// Name identifies the rule in logs.
	Name string
	// Expr must evaluate to a bool.
	Expr string
	// Effect applies when Expr is true.
	Effect Effect
}

// Settings is the auto-approval policy of a task.
type Settings struct {
	// Enabled turns auto-approval on.
	Enabled bool
	// Yolo approves everything that is not ignored.
	Yolo bool
	// EnableNotifications shows a notification when approval is required.
	EnableNotifications bool
	// MaxRequests caps the number of auto-approved requests per task (0 means unlimited).
	MaxRequests int
	// Actions toggles categories.
	Actions Actions
	// Rules are evaluated in order before Actions; the first match wins.
	Rules []Rule
}
