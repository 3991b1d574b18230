package startup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/toolflow/internal/dsl"
)

func TestRunExecutesHooksInOrder(t *testing.T) {
	dir := t.TempDir()
	hooks := []dsl.HookConfig{
		{Command: "sh", Args: []string{"-c", "echo first > hooks.txt"}},
		{Command: " "},
		{Command: "sh", Args: []string{"-c", "echo {{ .TaskID }} >> hooks.txt"}, Timeout: "5s"},
	}

	require.NoError(t, Run(context.Background(), hooks, dir, "task-7", nil))

	data, err := os.ReadFile(filepath.Join(dir, "hooks.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first\ntask-7\n", string(data))
}

func TestRunStopsOnFailure(t *testing.T) {
	dir := t.TempDir()
	hooks := []dsl.HookConfig{
		{Command: "sh", Args: []string{"-c", "exit 3"}},
		{Command: "sh", Args: []string{"-c", "touch second"}},
	}

	err := Run(context.Background(), hooks, dir, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup hook 0 failed")
	assert.NoFileExists(t, filepath.Join(dir, "second"))
}

func TestRunRejectsBadTimeout(t *testing.T) {
	err := Run(context.Background(), []dsl.HookConfig{{Command: "true", Timeout: "later"}}, t.TempDir(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout")
}
