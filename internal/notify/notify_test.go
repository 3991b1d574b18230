package notify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/toolflow/internal/executil"
)

func TestShellNotify(t *testing.T) {
	out := filepath.Join(t.TempDir(), "note")
	n := NewShell(executil.Command{
		Command: `printf '%s|%s|%s' "$T" "$S" "$M" > ` + out,
		Env: map[string]string{
			"T": `{{ param "title" }}`,
			"S": `{{ param "subtitle" }}`,
			"M": "{{ .Message }}",
		},
	}, "toolflow", 0)

	require.NoError(t, n.Notify(context.Background(), "Approval Required", "Agent wants to edit a.go"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "toolflow|Approval Required|Agent wants to edit a.go", string(data))
}

func TestShellNotifyFailure(t *testing.T) {
	n := NewShell(executil.Command{Command: "echo boom; exit 3"}, "", 0)
	err := n.Notify(context.Background(), "s", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestShellNotifyDisabled(t *testing.T) {
	require.NoError(t, NewShell(executil.Command{}, "", 0).Notify(context.Background(), "s", "m"))
}
