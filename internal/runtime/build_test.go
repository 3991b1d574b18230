package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/toolflow/internal/autoapprove"
	"github.com/codex-k8s/toolflow/internal/dsl"
	"github.com/codex-k8s/toolflow/internal/runtime/approver"
	"github.com/codex-k8s/toolflow/internal/runtime/executor"
)

func TestApproversEmpty(t *testing.T) {
	chain, err := Approvers(&dsl.Config{}, "", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, chain.Len())
}

func TestApproversScopesAndLimits(t *testing.T) {
	cfg := &dsl.Config{Approvers: []dsl.ApproverConfig{
		{Type: "limits", Name: "cmd", Tools: []string{"execute_command"}, MaxTotal: 1},
		{Type: "shell", Name: "deny-writes", Tools: []string{"write_to_file"}, Command: "exit 1"},
	}}
	chain, err := Approvers(cfg, t.TempDir(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, chain.Len())

	ctx := context.Background()
	d, err := chain.Approve(ctx, approver.Request{ToolName: "execute_command"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = chain.Approve(ctx, approver.Request{ToolName: "execute_command"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "cmd", d.Source)

	d, err = chain.Approve(ctx, approver.Request{ToolName: "read_file"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = chain.Approve(ctx, approver.Request{ToolName: "write_to_file"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "deny-writes", d.Source)
}

func TestApproversWrapsTimeout(t *testing.T) {
	chain, err := Approvers(&dsl.Config{Approvers: []dsl.ApproverConfig{
		{Type: "shell", Command: "sleep 5", Timeout: "20ms"},
	}}, "", nil, nil)
	require.NoError(t, err)
	_, ok := chain.Approvers[0].(approver.Timeout)
	assert.True(t, ok)

	d, err := chain.Approve(context.Background(), approver.Request{ToolName: "read_file"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestApproversRejectsBadInput(t *testing.T) {
	_, err := Approvers(&dsl.Config{Approvers: []dsl.ApproverConfig{{Type: "magic"}}}, "", nil, nil)
	require.Error(t, err)

	_, err = Approvers(&dsl.Config{Approvers: []dsl.ApproverConfig{
		{Type: "limits", FieldPolicies: map[string]dsl.FieldPolicy{"command": {Regex: "("}}},
	}}, "", nil, nil)
	require.Error(t, err)
}

func TestAutoApproval(t *testing.T) {
	got := AutoApproval(dsl.AutoApprovalConfig{
		Enabled:     true,
		MaxRequests: 5,
		Actions:     dsl.ActionsConfig{ReadFiles: true, UseMcp: true},
		Rules:       []dsl.RuleConfig{{Name: "r", Expr: "true", Effect: "deny"}},
	})
	assert.Equal(t, autoapprove.Settings{
		Enabled:     true,
		MaxRequests: 5,
		Actions:     autoapprove.Actions{ReadFiles: true, UseMcp: true},
		Rules:       []autoapprove.Rule{{Name: "r", Expr: "true", Effect: autoapprove.EffectDeny}},
	}, got)
}

func TestConversions(t *testing.T) {
	headless := false
	b := Browser(dsl.BrowserConfig{Headless: &headless, ViewportWidth: 800, ViewportHeight: 500})
	assert.False(t, b.Headless)
	assert.Equal(t, 800, b.ViewportWidth)
	assert.True(t, Browser(dsl.BrowserConfig{}).Headless)

	servers := McpServers([]dsl.McpServerConfig{{Name: "docs", URL: "http://h/mcp", Timeout: "5s"}, {Name: "fs", Command: "fs-mcp"}})
	require.Len(t, servers, 2)
	assert.Equal(t, 5*time.Second, servers[0].Timeout)
	assert.Equal(t, time.Minute, servers[1].Timeout)

	ex := Executor(dsl.CommandConfig{Timeout: "2s", MaxOutput: 10}, "/ws")
	assert.Equal(t, executor.Shell{Dir: "/ws", Timeout: 2 * time.Second, MaxOutput: 10}, ex)
	assert.Equal(t, executor.DefaultTimeout, Executor(dsl.CommandConfig{}, "/ws").Timeout)

	assert.Equal(t, time.Hour, FileContextTTL(dsl.FileContextConfig{}))
	assert.True(t, FocusChain(dsl.FocusChainConfig{Enabled: true}).Enabled)
}
