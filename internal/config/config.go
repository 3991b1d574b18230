package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores environment-driven settings for the agent runtime.
type Config struct {
	// PolicyPath is the path to the YAML policy file. Empty uses the embedded default.
	PolicyPath string `env:"TOOLFLOW_POLICY"`
	// LogLevel sets the logger level.
	LogLevel string `env:"TOOLFLOW_LOG_LEVEL" envDefault:"info"`
	// Lang selects message language for templates.
	Lang string `env:"TOOLFLOW_LANG" envDefault:"en"`
	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"TOOLFLOW_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// Workspace is the working directory of the task.
	Workspace string `env:"TOOLFLOW_WORKSPACE" envDefault:"."`
	// Mode overrides the policy agent mode when set.
	Mode string `env:"TOOLFLOW_MODE"`
	// StrictPlanMode blocks file modifications in plan mode.
	StrictPlanMode bool `env:"TOOLFLOW_STRICT_PLAN_MODE" envDefault:"false"`
	// Listen overrides the control server address when set.
	Listen string `env:"TOOLFLOW_LISTEN"`
	// ModelID is reported to telemetry.
	ModelID string `env:"TOOLFLOW_MODEL_ID"`
	// TaskID identifies the task. Empty generates one.
	TaskID string `env:"TOOLFLOW_TASK_ID"`
	// AgentName overrides the policy agent name when set.
	AgentName string `env:"TOOLFLOW_AGENT_NAME"`
}

// Load parses environment variables into Config.
func Load() (Config, error) {
	return env.ParseAs[Config]()
}
