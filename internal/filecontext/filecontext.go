// Package filecontext tracks which files a task has read or modified and
// which file contents were already placed in the model context.
package filecontext

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/codex-k8s/toolflow/internal/cache"
)

// Edit records one file modification.
type Edit struct {
	Path string
	At   time.Time
}

// Tracker records file reads and edits of a task.
type Tracker struct {
	mu    sync.Mutex
	now   func() time.Time
	reads map[string]time.Time
	edits []Edit
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now, reads: make(map[string]time.Time)}
}

// TrackRead records that path was read.
func (t *Tracker) TrackRead(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads[path] = t.now()
}

// TrackEdit records that path was modified.
func (t *Tracker) TrackEdit(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.edits = append(t.edits, Edit{Path: path, At: t.now()})
}

// EditCount returns the number of edits recorded so far.
func (t *Tracker) EditCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.edits)
}

// Edits returns the edits in order.
func (t *Tracker) Edits() []Edit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Edit(nil), t.edits...)
}

// ReadFiles returns the paths read so far, sorted.
func (t *Tracker) ReadFiles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.reads))
	for p := range t.reads {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ContextManager remembers a digest of every file content sent to the model.
type ContextManager struct {
	seen *cache.Cache[string]
}

// NewContextManager keeps digests for ttl, at most maxEntries of them.
func NewContextManager(ttl time.Duration, maxEntries int) *ContextManager {
	return &ContextManager{seen: cache.New[string](ttl, maxEntries)}
}

// RecordFileRead stores the digest of content and reports whether the same
// content was recorded for path before.
func (m *ContextManager) RecordFileRead(path, content string) bool {
	sum := sha256.Sum256([]byte(content))
	digest := hex.EncodeToString(sum[:])
	prev, ok := m.seen.Get(path)
	m.seen.Set(path, digest)
	return ok && prev == digest
}

// Forget drops what is known about path, e.g. after it was edited.
func (m *ContextManager) Forget(path string) {
	m.seen.Delete(path)
}
