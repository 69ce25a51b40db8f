package testutil

import (
	"sync"
	"time"
)

// Sequence is a deterministic default-value source for tests.
//
// Thread-safety: All methods are safe for concurrent use.
type Sequence struct {
	mu  sync.Mutex
	seq int64
}

// NewSequence creates a sequence starting at 0. The first Next returns 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments and returns the sequence number.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Current returns the sequence number without incrementing.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset restarts the sequence at 0.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}

// Int is a field default returning Next.
func (s *Sequence) Int() any { return s.Next() }

// Time is a field default returning Epoch plus Next seconds, so every
// call yields a distinct, reproducible timestamp.
func (s *Sequence) Time() any {
	return Epoch.Add(time.Duration(s.Next()) * time.Second)
}

// Epoch is the base of Sequence.Time.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
