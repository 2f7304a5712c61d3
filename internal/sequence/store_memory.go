package sequence

import (
	"context"
	"sync"
)

// MemoryStore keeps counters in process. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	taken    map[string]struct{}
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64), taken: make(map[string]struct{})}
}

// Increment bumps the (kind, day) counter.
func (s *MemoryStore) Increment(_ context.Context, kind Kind, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(kind) + "|" + day
	s.counters[key]++
	return s.counters[key], nil
}

// Exists reports whether code was marked as used.
func (s *MemoryStore) Exists(_ context.Context, _ Kind, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.taken[code]
	return ok, nil
}

// MarkUsed records code as taken, as a document insert would.
func (s *MemoryStore) MarkUsed(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken[code] = struct{}{}
}

// Snapshot returns a copy of the counters for rollback by transactional fakes.
func (s *MemoryStore) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

// Restore replaces the counters with a snapshot.
func (s *MemoryStore) Restore(snapshot map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]int64, len(snapshot))
	for k, v := range snapshot {
		s.counters[k] = v
	}
}
