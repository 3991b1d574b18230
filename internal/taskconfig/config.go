package taskconfig

import (
	"github.com/codex-k8s/toolflow/internal/autoapprove"
	"github.com/codex-k8s/toolflow/internal/constants"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/taskstate"
)

// Mode is the active interaction mode.
type Mode string

// Modes.
const (
	ModePlan Mode = constants.ModePlan
	ModeAct  Mode = constants.ModeAct
)

// DefaultAgentName is used in user-facing text when none is configured.
const DefaultAgentName = constants.DefaultAgentName

// Config is the execution environment handed to every handler. It is
// immutable once built by New; state handles and services are referenced,
// not owned. Handlers must not retain it beyond a call.
type Config struct {
	// TaskID identifies the task.
	TaskID string
	// RunID identifies this run of the task.
	RunID string
	// Cwd is the workspace root.
	Cwd string
	// Mode is plan or act.
	Mode Mode
	// StrictPlanModeEnabled blocks modifications while in plan mode.
	StrictPlanModeEnabled bool
	// AgentName is used in notification and error text.
	AgentName string
	// WorkspaceRoots lists additional workspace folders.
	WorkspaceRoots []string

	// TaskState is the mutable task-level state.
	TaskState *taskstate.State
	// MessageState is the conversation log.
	MessageState *conversation.Log

	// API describes the model client.
	API ModelInfo
	// Services are the external collaborators.
	Services *Services

	// AutoApprovalSettings is the auto-approval policy.
	AutoApprovalSettings *autoapprove.Settings
	// AutoApprover evaluates AutoApprovalSettings.
	AutoApprover AutoApprover
	// BrowserSettings configures the browser.
	BrowserSettings *BrowserSettings
	// FocusChainSettings configures progress tracking.
	FocusChainSettings *FocusChainSettings

	// Callbacks are provided by the task runtime.
	Callbacks *Callbacks
}

// New validates cfg and returns an immutable copy.
func New(cfg Config) (*Config, error) {
	if cfg.AgentName == "" {
		cfg.AgentName = DefaultAgentName
	}
	cfg.WorkspaceRoots = append([]string(nil), cfg.WorkspaceRoots...)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustNew is New for wiring code where an invalid config is a programming error.
func MustNew(cfg Config) *Config {
	out, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return out
}

// WithMode returns a validated copy running in mode.
func (c *Config) WithMode(mode Mode) (*Config, error) {
	next := *c
	next.Mode = mode
	return New(next)
}

// Roots returns the workspace roots, Cwd first.
func (c *Config) Roots() []string {
	roots := make([]string, 0, len(c.WorkspaceRoots)+1)
	roots = append(roots, c.Cwd)
	roots = append(roots, c.WorkspaceRoots...)
	return roots
}

// PlanModeLocked reports whether modifications are blocked.
func (c *Config) PlanModeLocked() bool {
	return c.Mode == ModePlan && c.StrictPlanModeEnabled
}
