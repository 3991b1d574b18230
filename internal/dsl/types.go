package dsl

// Config is the top-level policy file.
type Config struct {
	// Agent describes the agent and its default mode.
	Agent AgentConfig `yaml:"agent"`
	// HTTP configures the control server.
	HTTP HTTPConfig `yaml:"http"`
	// AutoApproval is the auto-approval policy.
	AutoApproval AutoApprovalConfig `yaml:"auto_approval"`
	// Approvers are consulted after the policy allows a tool.
	Approvers []ApproverConfig `yaml:"approvers"`
	// ApprovalWebhookURL is the callback URL sent to async approvers.
	ApprovalWebhookURL string `yaml:"approval_webhook_url"`
	// McpServers lists MCP servers to connect.
	McpServers []McpServerConfig `yaml:"mcp_servers"`
	// Browser configures the browser session.
	Browser BrowserConfig `yaml:"browser"`
	// Notifications configures desktop notifications.
	Notifications NotificationConfig `yaml:"notifications"`
	// FocusChain configures task progress tracking.
	FocusChain FocusChainConfig `yaml:"focus_chain"`
	// Commands configures execute_command.
	Commands CommandConfig `yaml:"commands"`
	// FileContext configures the read deduplication cache.
	FileContext FileContextConfig `yaml:"file_context"`
	// StartupHooks run once before the first instruction.
	StartupHooks []HookConfig `yaml:"startup_hooks"`
}

// AgentConfig describes the agent.
type AgentConfig struct {
	// Name is used in notifications and messages.
	Name string `yaml:"name"`
	// Mode is the initial mode (plan or act).
	Mode string `yaml:"mode"`
	// StrictPlanMode blocks modifications in plan mode.
	StrictPlanMode bool `yaml:"strict_plan_mode"`
	// Lang overrides the message language.
	Lang string `yaml:"lang"`
}

// HTTPConfig configures the control server.
type HTTPConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// ReadTimeout limits request read time.
	ReadTimeout string `yaml:"read_timeout"`
	// WriteTimeout limits response write time.
	WriteTimeout string `yaml:"write_timeout"`
	// IdleTimeout controls idle connections.
	IdleTimeout string `yaml:"idle_timeout"`
}

// AutoApprovalConfig is the auto-approval policy.
type AutoApprovalConfig struct {
	// Enabled turns auto-approval on.
	Enabled bool `yaml:"enabled"`
	// Yolo approves everything that is not ignored.
	Yolo bool `yaml:"yolo"`
	// EnableNotifications notifies when approval is required.
	EnableNotifications bool `yaml:"enable_notifications"`
	// MaxRequests caps auto-approved requests per task.
	MaxRequests int `yaml:"max_requests"`
	// Actions toggles categories.
	Actions ActionsConfig `yaml:"actions"`
	// Rules are CEL rules evaluated before Actions.
	Rules []RuleConfig `yaml:"rules"`
}

// ActionsConfig toggles auto-approval per category.
type ActionsConfig struct {
	ReadFiles           bool `yaml:"read_files"`
	ReadFilesExternally bool `yaml:"read_files_externally"`
	EditFiles           bool `yaml:"edit_files"`
	EditFilesExternally bool `yaml:"edit_files_externally"`
	ExecuteSafeCommands bool `yaml:"execute_safe_commands"`
	ExecuteAllCommands  bool `yaml:"execute_all_commands"`
	UseBrowser          bool `yaml:"use_browser"`
	UseMcp              bool `yaml:"use_mcp"`
}

// RuleConfig is one CEL rule.
type RuleConfig struct {
	// Name identifies the rule.
	Name string `yaml:"name"`
	// Expr is a bool CEL expression over tool, path, in_workspace and mode.
	Expr string `yaml:"expr"`
	// Effect is allow or deny.
	Effect string `yaml:"effect"`
}

// ApproverConfig defines a single approver configuration.
type ApproverConfig struct {
	// Type selects approver implementation.
	Type string `yaml:"type"`
	// Name is a human-friendly approver name.
	Name string `yaml:"name"`
	// Tools restricts the approver to these tools; empty means all.
	Tools []string `yaml:"tools"`
	// Timeout limits approver execution time.
	Timeout string `yaml:"timeout"`
	// URL defines HTTP approver endpoint.
	URL string `yaml:"url"`
	// Method overrides HTTP method.
	Method string `yaml:"method"`
	// Headers adds HTTP headers.
	Headers map[string]string `yaml:"headers"`
	// Async enables webhook-based approvals.
	Async bool `yaml:"async"`
	// WebhookURL overrides ApprovalWebhookURL.
	WebhookURL string `yaml:"webhook_url"`
	// Command is a shell approver command.
	Command string `yaml:"command"`
	// Args are shell approver arguments.
	Args []string `yaml:"args"`
	// Env adds environment variables for the approver.
	Env map[string]string `yaml:"env"`
	// MaxTotal limits total tool calls.
	MaxTotal int `yaml:"max_total"`
	// RatePerMinute limits requests per minute.
	RatePerMinute int `yaml:"rate_per_minute"`
	// FieldPolicies validates instruction parameters.
	FieldPolicies map[string]FieldPolicy `yaml:"fields"`
	// AllowExitCodes defines allowed shell exit codes.
	AllowExitCodes []int `yaml:"allow_exit_codes"`
}

// FieldPolicy defines validation rules for instruction parameters.
type FieldPolicy struct {
	// Regex validates string value format.
	Regex string `yaml:"regex"`
	// Min sets numeric minimum.
	Min *float64 `yaml:"min"`
	// Max sets numeric maximum.
	Max *float64 `yaml:"max"`
	// MinLength sets string minimum length.
	MinLength *int `yaml:"min_length"`
	// MaxLength sets string maximum length.
	MaxLength *int `yaml:"max_length"`
}

// McpServerConfig describes one MCP server. Exactly one of Command and URL
// must be set.
type McpServerConfig struct {
	Name     string            `yaml:"name"`
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args"`
	Env      map[string]string `yaml:"env"`
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  string            `yaml:"timeout"`
	Disabled bool              `yaml:"disabled"`
}

// BrowserConfig configures the browser session.
type BrowserConfig struct {
	// Headless defaults to true.
	Headless *bool `yaml:"headless"`
	// ViewportWidth defaults to 900.
	ViewportWidth int `yaml:"viewport_width"`
	// ViewportHeight defaults to 600.
	ViewportHeight int `yaml:"viewport_height"`
	// RemoteURL attaches to a running browser instead of launching one.
	RemoteURL string `yaml:"remote_url"`
}

// NotificationConfig configures the notification command.
type NotificationConfig struct {
	// Command renders with .Message and param "title"/"subtitle".
	Command string `yaml:"command"`
	// Args are command arguments.
	Args []string `yaml:"args"`
	// Env adds environment variables.
	Env map[string]string `yaml:"env"`
	// Title is passed as the "title" param.
	Title string `yaml:"title"`
	// Timeout bounds a notification.
	Timeout string `yaml:"timeout"`
}

// FocusChainConfig configures task progress tracking.
type FocusChainConfig struct {
	Enabled     bool `yaml:"enabled"`
	RemindEvery int  `yaml:"remind_every"`
}

// CommandConfig configures execute_command.
type CommandConfig struct {
	// Timeout bounds a single command.
	Timeout string `yaml:"timeout"`
	// MaxOutput caps the output returned to the model, in characters.
	MaxOutput int `yaml:"max_output"`
}

// FileContextConfig configures the read deduplication cache.
type FileContextConfig struct {
	TTL        string `yaml:"ttl"`
	MaxEntries int    `yaml:"max_entries"`
}

// HookConfig defines a startup hook command.
type HookConfig struct {
	// Command is the startup command to run.
	Command string `yaml:"command"`
	// Args are optional arguments.
	Args []string `yaml:"args"`
	// Env adds environment variables for the hook.
	Env map[string]string `yaml:"env"`
	// Timeout controls hook execution duration.
	Timeout string `yaml:"timeout"`
}
