package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/toolflow/configs"
	"github.com/codex-k8s/toolflow/internal/render"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	raw, err := configs.Load("")
	require.NoError(t, err)
	rendered, err := render.RenderBytes(configs.DefaultName, raw, render.Vars{Workspace: t.TempDir()})
	require.NoError(t, err)

	cfg, err := Load(rendered)
	require.NoError(t, err)
	assert.Equal(t, "act", cfg.Agent.Mode)
	assert.True(t, cfg.AutoApproval.Enabled)
	assert.True(t, cfg.AutoApproval.Actions.ReadFiles)
	require.Len(t, cfg.AutoApproval.Rules, 1)
	assert.Equal(t, "deny", cfg.AutoApproval.Rules[0].Effect)
	require.Len(t, cfg.Approvers, 1)
	assert.Equal(t, "limits", cfg.Approvers[0].Type)
	require.NotNil(t, cfg.Browser.Headless)
	assert.True(t, *cfg.Browser.Headless)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "Agent", cfg.Agent.Name)
	assert.Equal(t, "act", cfg.Agent.Mode)
	assert.Equal(t, "127.0.0.1:8787", cfg.HTTP.Listen)
	assert.Equal(t, 900, cfg.Browser.ViewportWidth)
	assert.Equal(t, 600, cfg.Browser.ViewportHeight)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load([]byte("agent:\n  nmae: x\n"))
	require.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad mode", "agent: {mode: build}", "agent.mode"},
		{"bad effect", "auto_approval: {rules: [{expr: 'true', effect: maybe}]}", "effect must be allow or deny"},
		{"empty expr", "auto_approval: {rules: [{effect: allow}]}", "expr is required"},
		{"bad duration", "commands: {timeout: soon}", "commands.timeout is invalid"},
		{"duplicate server", "mcp_servers: [{name: a, command: x}, {name: a, command: y}]", "duplicate mcp server name: a"},
		{"server without transport", "mcp_servers: [{name: a}]", "exactly one of command and url"},
		{"server with both", "mcp_servers: [{name: a, command: x, url: 'http://h/mcp'}]", "exactly one of command and url"},
		{"relative url", "mcp_servers: [{name: a, url: '/mcp'}]", "url is invalid"},
		{"unknown approver", "approvers: [{type: magic}]", "not supported"},
		{"missing approver type", "approvers: [{name: x}]", "type is required"},
		{"http without url", "approvers: [{type: http}]", "url is required"},
		{"async without webhook", "approvers: [{type: http, url: 'http://a/x', async: true}]", "requires approval_webhook_url"},
		{"bad webhook", "approval_webhook_url: 'http://a'", "must include a path"},
		{"shell without command", "approvers: [{type: shell}]", "command is required"},
		{"negative limits", "approvers: [{type: limits, max_total: -1}]", "limits must be >= 0"},
		{"negative max requests", "auto_approval: {max_requests: -1}", "max_requests"},
		{"hook without command", "startup_hooks: [{timeout: 1s}]", "command is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalize(t *testing.T) {
	cfg, err := Load([]byte("agent: {mode: ' PLAN '}\napprovers: [{type: LIMITS}]\nauto_approval: {rules: [{expr: 'true', effect: Allow}]}"))
	require.NoError(t, err)
	assert.Equal(t, "plan", cfg.Agent.Mode)
	assert.Equal(t, "limits", cfg.Approvers[0].Type)
	assert.Equal(t, "allow", cfg.AutoApproval.Rules[0].Effect)
}
