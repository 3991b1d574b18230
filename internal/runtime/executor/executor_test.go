package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellExecute(t *testing.T) {
	dir := t.TempDir()
	s := Shell{Dir: dir}

	res, err := s.Execute(context.Background(), Request{Command: "pwd; echo err >&2"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, dir)
	assert.Contains(t, res.Output, "err")

	res, err = s.Execute(context.Background(), Request{Command: "echo nope; exit 4"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.ExitCode)
	assert.Equal(t, "nope", res.Output)

	_, err = s.Execute(context.Background(), Request{Command: "  "})
	require.Error(t, err)
}

func TestShellTimeout(t *testing.T) {
	res, err := Shell{Timeout: 50 * time.Millisecond}.Execute(context.Background(), Request{Command: "sleep 5"})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
}

func TestTruncateKeepsTail(t *testing.T) {
	res, err := Shell{MaxOutput: 3}.Execute(context.Background(), Request{Command: "printf abcdef"})
	require.NoError(t, err)
	assert.Equal(t, "... (3 chars omitted)\ndef", res.Output)
}
