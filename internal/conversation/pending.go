package conversation

import (
	"errors"
	"sync"

	"github.com/codex-k8s/toolflow/internal/maputil"
)

type pendingAsk struct {
	ch      chan AskResult
	message Message
}

// PendingStore keeps asks awaiting a user answer.
type PendingStore struct {
	mu      sync.Mutex
	pending map[int64]*pendingAsk
}

// NewPendingStore creates an empty store.
func NewPendingStore() *PendingStore {
	return &PendingStore{pending: make(map[int64]*pendingAsk)}
}

// Register allocates a slot for the ask identified by msg.TS.
func (s *PendingStore) Register(msg Message) (<-chan AskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[msg.TS]; exists {
		return nil, errAlreadyPending
	}
	ch := make(chan AskResult, 1)
	s.pending[msg.TS] = &pendingAsk{ch: ch, message: msg}
	return ch, nil
}

// Resolve delivers an answer for ts.
func (s *PendingStore) Resolve(ts int64, result AskResult) bool {
	entry, ok := maputil.Pop(&s.mu, s.pending, ts)
	if !ok {
		return false
	}
	select {
	case entry.ch <- result:
	default:
	}
	close(entry.ch)
	return true
}

// Cancel removes a pending ask without an answer.
func (s *PendingStore) Cancel(ts int64) {
	entry, ok := maputil.Pop(&s.mu, s.pending, ts)
	if ok {
		close(entry.ch)
	}
}

// CancelAll closes every pending ask.
func (s *PendingStore) CancelAll() int {
	entries := maputil.Drain(&s.mu, s.pending)
	for _, entry := range entries {
		close(entry.ch)
	}
	return len(entries)
}

// List returns pending ask messages ordered by timestamp.
func (s *PendingStore) List() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.pending))
	for _, ts := range maputil.SortedKeys(s.pending) {
		out = append(out, s.pending[ts].message)
	}
	return out
}

var errAlreadyPending = errors.New("ask already pending")
