package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codex-k8s/toolflow/internal/protocol"
)

// Event describes a change of the log.
type Event struct {
	// Action is add, update or remove.
	Action  string
	Message Message
}

// Observer receives log changes. Observers run under the log lock and must
// not call back into the log.
type Observer func(Event)

// Log is the message-state handle of a task: the ordered conversation shown
// to the user, with partial messages updated in place.
type Log struct {
	mu        sync.Mutex
	messages  []Message
	observers []Observer
	pending   *PendingStore
	closed    bool
	lastTS    int64
	now       func() time.Time
}

// NewLog creates an empty log.
func NewLog(observers ...Observer) *Log {
	return &Log{
		observers: observers,
		pending:   NewPendingStore(),
		now:       time.Now,
	}
}

// Observe registers an additional observer.
func (l *Log) Observe(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Say presents informational text. While partial is true the last partial
// message of the same kind is updated instead of creating a new one.
func (l *Log) Say(_ context.Context, kind SayKind, text string, images, files []string, partial bool) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrChannelClosed
	}
	msg := Message{Type: TypeSay, Say: kind, Text: text, Images: images, Files: files, Partial: partial}
	return l.upsertLocked(msg), nil
}

// Ask presents a question. A partial ask only updates the preview and
// returns immediately with an empty result. A final ask blocks until it is
// answered, ctx is done or the log is closed.
func (l *Log) Ask(ctx context.Context, kind AskKind, text string, partial bool) (AskResult, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return AskResult{}, ErrChannelClosed
	}
	msg := Message{Type: TypeAsk, Ask: kind, Text: text, Partial: partial}
	msg.TS = l.upsertLocked(msg)
	if partial {
		l.mu.Unlock()
		return AskResult{}, nil
	}
	ch, err := l.pending.Register(msg)
	l.mu.Unlock()
	if err != nil {
		return AskResult{}, err
	}

	select {
	case result, ok := <-ch:
		if !ok {
			return AskResult{}, ErrChannelClosed
		}
		return result, nil
	case <-ctx.Done():
		l.pending.Cancel(msg.TS)
		return AskResult{}, fmt.Errorf("%w: %w", ErrChannelClosed, ctx.Err())
	}
}

// Answer resolves the pending ask identified by ts.
func (l *Log) Answer(ts int64, result AskResult) bool {
	return l.pending.Resolve(ts, result)
}

// Pending returns unanswered asks.
func (l *Log) Pending() []Message {
	return l.pending.List()
}

// RemoveLastPartialMessageIfExists drops the last message when it is a
// partial message of the given type and kind.
func (l *Log) RemoveLastPartialMessageIfExists(typ MessageType, kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messages) == 0 {
		return
	}
	last := l.messages[len(l.messages)-1]
	if !last.Partial || last.Type != typ || last.Kind() != kind {
		return
	}
	l.messages = l.messages[:len(l.messages)-1]
	l.notifyLocked(Event{Action: protocol.ActionRemove, Message: last})
}

// Close tears the channel down. Pending asks resolve with ErrChannelClosed.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.pending.CancelAll()
}

// Closed reports whether Close was called.
func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Reopen clears the closed flag and the history.
func (l *Log) Reopen() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = false
	l.messages = nil
}

// Messages returns a copy of the log.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Last returns the most recent message.
func (l *Log) Last() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

func (l *Log) upsertLocked(msg Message) int64 {
	if n := len(l.messages); n > 0 {
		last := &l.messages[n-1]
		if last.Partial && last.Type == msg.Type && last.Kind() == msg.Kind() {
			msg.TS = last.TS
			*last = msg
			l.notifyLocked(Event{Action: protocol.ActionUpdate, Message: msg})
			return msg.TS
		}
	}
	msg.TS = l.nextTSLocked()
	l.messages = append(l.messages, msg)
	l.notifyLocked(Event{Action: protocol.ActionAdd, Message: msg})
	return msg.TS
}

func (l *Log) nextTSLocked() int64 {
	ts := l.now().UnixMilli()
	if ts <= l.lastTS {
		ts = l.lastTS + 1
	}
	l.lastTS = ts
	return ts
}

func (l *Log) notifyLocked(ev Event) {
	for _, o := range l.observers {
		o(ev)
	}
}
