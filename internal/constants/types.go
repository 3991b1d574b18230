package constants

// Modes.
const (
	ModePlan = "plan"
	ModeAct  = "act"
)

// Approver type aliases.
const (
	ApproverHTTP   = "http"
	ApproverShell  = "shell"
	ApproverLimits = "limits"
)

// Auto-approval rule effects.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// Defaults.
const (
	DefaultAgentName = "Agent"
	DefaultListen    = "127.0.0.1:8787"
)

// HTTP routes of the control server.
const (
	PathHealthz   = "/healthz"
	PathReadyz    = "/readyz"
	PathAsks      = "/asks"
	PathApprovals = "/approvals"
	PathState     = "/state"
	PathMode      = "/mode"
)
