package testutil

import (
	"context"
	"sync"

	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
)

// InMemoryCounterStore implements serialcode.CounterRepository with a mutex
// guarded map
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[serialcode.SequenceKey]int
	failWith error
}

func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		counters: make(map[serialcode.SequenceKey]int),
	}
}

func (s *InMemoryCounterStore) IssueNext(_ context.Context, key serialcode.SequenceKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return 0, s.failWith
	}
	s.counters[key]++
	return s.counters[key], nil
}

func (s *InMemoryCounterStore) PeekNext(_ context.Context, key serialcode.SequenceKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return 0, s.failWith
	}
	return s.counters[key] + 1, nil
}

// LastIssued returns the current counter value for key
func (s *InMemoryCounterStore) LastIssued(key serialcode.SequenceKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}

// Seed sets the counter for key, e.g. to start close to exhaustion
func (s *InMemoryCounterStore) Seed(key serialcode.SequenceKey, lastIssued int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = lastIssued
}

// FailWith makes every call return err until cleared with nil
func (s *InMemoryCounterStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *InMemoryCounterStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[serialcode.SequenceKey]int)
	s.failWith = nil
}
