package limits

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/toolflow/internal/runtime/approver"
	"github.com/codex-k8s/toolflow/internal/templates"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestMaxTotalPerTool(t *testing.T) {
	store, err := NewApprover(Policy{MaxTotal: 2}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := store.Approve(ctx, approver.Request{ToolName: "write_to_file"})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := store.Approve(ctx, approver.Request{ToolName: "write_to_file"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Maximum number of calls exceeded", d.Reason)

	d, err = store.Approve(ctx, approver.Request{ToolName: "read_file"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimit(t *testing.T) {
	store, err := NewApprover(Policy{Name: "burst", RatePerMinute: 1}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	d, _ := store.Approve(ctx, approver.Request{ToolName: "execute_command"})
	assert.True(t, d.Allowed)
	d, _ = store.Approve(ctx, approver.Request{ToolName: "execute_command"})
	assert.False(t, d.Allowed)
	assert.Equal(t, "burst", d.Source)
}

func TestFieldPolicies(t *testing.T) {
	bundle, err := templates.Load("en")
	require.NoError(t, err)
	store, err := NewApprover(Policy{
		Tools: []string{"execute_command", "browser_action"},
		FieldPolicies: map[string]FieldPolicy{
			"command":    {Regex: `^(go|make) `, MaxLength: intPtr(40)},
			"coordinate": {Min: floatPtr(0), Max: floatPtr(100)},
		},
	}, bundle)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name   string
		tool   string
		params map[string]string
		allow  bool
	}{
		{"allowed command", "execute_command", map[string]string{"command": "go test ./..."}, true},
		{"regex mismatch", "execute_command", map[string]string{"command": "rm -rf /"}, false},
		{"too long", "execute_command", map[string]string{"command": "go " + strings.Repeat("x", 50)}, false},
		{"number in range", "browser_action", map[string]string{"coordinate": "50"}, true},
		{"number above max", "browser_action", map[string]string{"coordinate": "500"}, false},
		{"not a number", "browser_action", map[string]string{"coordinate": "1,2"}, false},
		{"tool not limited", "read_file", map[string]string{"command": "rm -rf /"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := store.Approve(ctx, approver.Request{ToolName: tt.tool, Params: tt.params})
			require.NoError(t, err)
			assert.Equal(t, tt.allow, d.Allowed, d.Reason)
		})
	}
}

func TestInvalidRegex(t *testing.T) {
	_, err := NewApprover(Policy{FieldPolicies: map[string]FieldPolicy{"path": {Regex: "("}}}, nil)
	require.Error(t, err)
}
