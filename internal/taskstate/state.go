package taskstate

import "sync"

// State is the mutable task-level state shared by every handler of a task.
type State struct {
	mu sync.Mutex

	aborted                  bool
	consecutiveMistakes      int
	didRejectTool            bool
	didEditFile              bool
	checkpoints              []Checkpoint
	lastCompletionCheckpoint int
}

// Checkpoint marks a point in the conversation where workspace state was saved.
type Checkpoint struct {
	// MessageTS is the timestamp of the message the checkpoint belongs to.
	MessageTS int64
	// Completion marks checkpoints taken for a completion attempt.
	Completion bool
	// Edits is the number of file edits recorded when the checkpoint was taken.
	Edits int
}

// New returns an empty state.
func New() *State {
	return &State{lastCompletionCheckpoint: -1}
}

// Abort marks the task as cancelled.
func (s *State) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
}

// Aborted reports whether the task was cancelled.
func (s *State) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// RecordMistake increments the consecutive mistake counter and returns the new value.
func (s *State) RecordMistake() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveMistakes++
	return s.consecutiveMistakes
}

// ResetMistakes clears the consecutive mistake counter.
func (s *State) ResetMistakes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveMistakes = 0
}

// ConsecutiveMistakes returns the current mistake count.
func (s *State) ConsecutiveMistakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveMistakes
}

// SetDidRejectTool records that the user denied a tool.
func (s *State) SetDidRejectTool(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.didRejectTool = v
}

// DidRejectTool reports whether the user denied a tool in the current turn.
func (s *State) DidRejectTool() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.didRejectTool
}

// SetDidEditFile records a workspace modification.
func (s *State) SetDidEditFile(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.didEditFile = v
}

// DidEditFile reports whether a file was modified.
func (s *State) DidEditFile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.didEditFile
}

// AddCheckpoint appends a checkpoint.
func (s *State) AddCheckpoint(cp Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp.Completion {
		s.lastCompletionCheckpoint = len(s.checkpoints)
	}
	s.checkpoints = append(s.checkpoints, cp)
}

// LastCompletion returns the most recent completion checkpoint.
func (s *State) LastCompletion() (Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCompletionCheckpoint < 0 {
		return Checkpoint{}, false
	}
	return s.checkpoints[s.lastCompletionCheckpoint], true
}

// Checkpoints returns a copy of all checkpoints.
func (s *State) Checkpoints() []Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Checkpoint, len(s.checkpoints))
	copy(out, s.checkpoints)
	return out
}

// Reset clears everything except the abort flag.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveMistakes = 0
	s.didRejectTool = false
	s.didEditFile = false
	s.checkpoints = nil
	s.lastCompletionCheckpoint = -1
}
