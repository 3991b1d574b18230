package buttonstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
)

func TestRestore(t *testing.T) {
	now := time.Unix(1000, 0)
	saved := protocol.ButtonState{PrimaryText: "Resume Task", EnableButtons: true, SendingDisabled: true}
	fallback := protocol.ButtonState{PrimaryText: "Approve", SecondaryText: "Reject", EnableButtons: true}
	snap := Capture(42, taskconfig.ModePlan, saved, now)

	tests := []struct {
		name     string
		snapshot *Snapshot
		ts       int64
		mode     taskconfig.Mode
		at       time.Time
		want     protocol.ButtonState
	}{
		{name: "no snapshot", ts: 42, mode: taskconfig.ModeAct, at: now, want: fallback},
		{name: "expired", snapshot: &snap, ts: 42, mode: taskconfig.ModeAct, at: now.Add(MaxAge + time.Second), want: fallback},
		{name: "same mode", snapshot: &snap, ts: 42, mode: taskconfig.ModePlan, at: now, want: fallback},
		{name: "other message", snapshot: &snap, ts: 43, mode: taskconfig.ModeAct, at: now, want: fallback},
		{
			name: "same message", snapshot: &snap, ts: 42, mode: taskconfig.ModeAct, at: now.Add(time.Minute),
			want: protocol.ButtonState{PrimaryText: "Resume Task", EnableButtons: true, SendingDisabled: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Restore(tt.snapshot, tt.ts, tt.mode, fallback, tt.at))
		})
	}
}

func TestCaptureWithoutMessage(t *testing.T) {
	snap := Capture(0, taskconfig.ModeAct, protocol.ButtonState{}, time.Now())
	assert.Empty(t, snap.MessageID)
	got := Restore(&snap, 0, taskconfig.ModePlan, protocol.ButtonState{PrimaryText: "x"}, time.Now())
	assert.Equal(t, "x", got.PrimaryText)
}

func TestShouldPersist(t *testing.T) {
	assert.True(t, ShouldPersist(protocol.ButtonState{PrimaryText: "Start New Task"}))
	assert.True(t, ShouldPersist(protocol.ButtonState{PrimaryText: "Proceed Anyways"}))
	assert.True(t, ShouldPersist(ConfigFor(conversation.AskAPIRequestFailed, taskconfig.ModeAct)))
	assert.False(t, ShouldPersist(protocol.ButtonState{PrimaryText: "Approve"}))
	assert.False(t, ShouldPersist(protocol.ButtonState{}))
}

func TestConfigFor(t *testing.T) {
	assert.Equal(t, "Run Command", ConfigFor(conversation.AskCommand, taskconfig.ModeAct).PrimaryText)
	assert.Equal(t, "Reject", ConfigFor(conversation.AskTool, taskconfig.ModePlan).SecondaryText)
	assert.True(t, ConfigFor("", taskconfig.ModeAct).SendingDisabled)
	assert.False(t, ConfigFor("", taskconfig.ModePlan).SendingDisabled)
	assert.False(t, ConfigFor(conversation.AskFollowup, taskconfig.ModeAct).EnableButtons)
}

func TestStore(t *testing.T) {
	s := NewStore()
	require.Nil(t, s.Load("t1"))
	s.Save("t1", Capture(1, taskconfig.ModeAct, protocol.ButtonState{PrimaryText: "Retry"}, time.Now()))
	got := s.Load("t1")
	require.NotNil(t, got)
	assert.Equal(t, "Retry", got.Config.PrimaryText)
	assert.Nil(t, s.Load("t2"))
}
