package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdLoggerWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Record(context.Background(), Event{
		Type:         TypeToolUsage,
		Tool:         "read_file",
		TaskID:       "task-1",
		ModelID:      "model",
		AutoApproved: true,
		Approved:     true,
	})

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "audit", got["msg"])
	assert.Equal(t, "read_file", got["tool"])
	assert.Equal(t, true, got["auto_approved"])
	assert.Equal(t, "task-1", got["task_id"])
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *StdLogger
	l.Record(context.Background(), Event{})
	New(nil).Record(context.Background(), Event{})
	Nop{}.Record(context.Background(), Event{})
}
