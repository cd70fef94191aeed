package store

import (
	"maps"
	"slices"
	"sync"

	"github.com/rodrigocitadin/tpc-audit/internal/message"
)

// Shared owns the in-memory index of an operation log. The log holds the
// write side of its lock while appending; any number of collaborators can
// hold the same *Shared and take locked views concurrently.
type Shared struct {
	mu      sync.RWMutex
	entries map[uint32]message.Message
}

func newShared(entries map[uint32]message.Message) *Shared {
	if entries == nil {
		entries = make(map[uint32]message.Message)
	}
	return &Shared{entries: entries}
}

func (s *Shared) Get(id uint32) (message.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.entries[id]
	return m, ok
}

func (s *Shared) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// View runs fn with the read lock held. fn must not keep or modify entries.
func (s *Shared) View(fn func(entries map[uint32]message.Message)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.entries)
}

// Snapshot returns a copy of the whole index.
func (s *Shared) Snapshot() map[uint32]message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.entries)
}

// Select copies the entries whose kind is one of kinds, keyed as in the log.
func (s *Shared) Select(kinds ...message.Kind) map[uint32]message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	selected := make(map[uint32]message.Message)
	for id, m := range s.entries {
		if slices.Contains(kinds, m.Kind) {
			selected[id] = m
		}
	}
	return selected
}

func (s *Shared) CountByKind() map[message.Kind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[message.Kind]int)
	for _, m := range s.entries {
		counts[m.Kind]++
	}
	return counts
}

// Keys returns the log keys in ascending order.
func (s *Shared) Keys() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.entries))
}
