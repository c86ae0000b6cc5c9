package testutil

import "sync"

// Sequence is a resettable monotonic counter for deterministic IDs and
// revisions in tests.
//
// The first call to Next returns 1. Safe for concurrent use.
type Sequence struct {
	mu  sync.Mutex
	seq int64
}

// NewSequence returns a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments and returns the sequence.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Current returns the last value handed out.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset rewinds the sequence so the next call to Next returns 1.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}
