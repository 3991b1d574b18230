// Package buttonstate keeps the approval buttons stable across plan/act
// mode switches.
package buttonstate

import (
	"strconv"
	"strings"
	"time"

	"github.com/codex-k8s/toolflow/internal/cache"
	"github.com/codex-k8s/toolflow/internal/conversation"
	"github.com/codex-k8s/toolflow/internal/protocol"
	"github.com/codex-k8s/toolflow/internal/taskconfig"
)

// MaxAge is how long a snapshot may be restored.
const MaxAge = 5 * time.Minute

var persistableTexts = []string{"Start New Task", "Resume Task", "Retry", "Continue", "Proceed"}

// Snapshot is the button state captured before a mode switch.
type Snapshot struct {
	Config    protocol.ButtonState
	Timestamp time.Time
	// MessageID is empty when no message was shown.
	MessageID string
	FromMode  taskconfig.Mode
}

// Capture snapshots cfg for the message with timestamp messageTS.
func Capture(messageTS int64, mode taskconfig.Mode, cfg protocol.ButtonState, now time.Time) Snapshot {
	s := Snapshot{Config: cfg, Timestamp: now, FromMode: mode}
	if messageTS != 0 {
		s.MessageID = strconv.FormatInt(messageTS, 10)
	}
	return s
}

// Restore returns the button state to show for the current message and mode.
func Restore(snapshot *Snapshot, messageTS int64, mode taskconfig.Mode, fallback protocol.ButtonState, now time.Time) protocol.ButtonState {
	if snapshot == nil || now.Sub(snapshot.Timestamp) > MaxAge {
		return fallback
	}
	if snapshot.FromMode == mode {
		return fallback
	}
	if snapshot.MessageID != "" && messageTS != 0 && snapshot.MessageID == strconv.FormatInt(messageTS, 10) {
		restored := snapshot.Config
		restored.SendingDisabled = fallback.SendingDisabled
		return restored
	}
	return fallback
}

// ShouldPersist reports whether cfg represents a state worth carrying across
// a mode switch.
func ShouldPersist(cfg protocol.ButtonState) bool {
	if cfg.PrimaryText == "" {
		return false
	}
	for _, text := range persistableTexts {
		if strings.Contains(cfg.PrimaryText, text) {
			return true
		}
	}
	return false
}

// ConfigFor returns the buttons shown for an outstanding ask. An empty kind
// means no ask is pending.
func ConfigFor(kind conversation.AskKind, mode taskconfig.Mode) protocol.ButtonState {
	switch kind {
	case conversation.AskTool, conversation.AskBrowserActionLaunch, conversation.AskUseMcpServer:
		return buttons("Approve", "Reject")
	case conversation.AskCommand:
		return buttons("Run Command", "Reject")
	case conversation.AskCommandOutput:
		return protocol.ButtonState{PrimaryText: "Proceed While Running", EnableButtons: true}
	case conversation.AskCompletionResult:
		return protocol.ButtonState{PrimaryText: "Start New Task", EnableButtons: true}
	case conversation.AskAPIRequestFailed:
		return buttons("Retry", "Start New Task")
	case conversation.AskResumeTask:
		return protocol.ButtonState{PrimaryText: "Resume Task", EnableButtons: true}
	case conversation.AskMistakeLimitReached:
		return buttons("Proceed Anyways", "Start New Task")
	case conversation.AskFollowup:
		return protocol.ButtonState{}
	}
	// nothing pending: plan mode keeps input open for discussion
	return protocol.ButtonState{SendingDisabled: mode == taskconfig.ModeAct}
}

func buttons(primary, secondary string) protocol.ButtonState {
	return protocol.ButtonState{PrimaryText: primary, SecondaryText: secondary, EnableButtons: true}
}

// Store keeps the latest snapshot per task.
type Store struct {
	cache *cache.Cache[Snapshot]
}

// NewStore creates a store whose entries expire after MaxAge.
func NewStore() *Store {
	return &Store{cache: cache.New[Snapshot](MaxAge, 128)}
}

// Save stores s for taskID.
func (s *Store) Save(taskID string, snapshot Snapshot) {
	s.cache.Set(taskID, snapshot)
}

// Load returns the snapshot for taskID, if any.
func (s *Store) Load(taskID string) *Snapshot {
	snapshot, ok := s.cache.Get(taskID)
	if !ok {
		return nil
	}
	return &snapshot
}
