package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps fixed-window counters in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]entry
}

type entry struct {
	count   int64
	resetAt time.Time
}

// NewMemoryStore builds a store. now defaults to the UTC wall clock.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:   now,
		items: make(map[string]entry),
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup(now)
	curr, ok := s.items[key]
	if !ok || !now.Before(curr.resetAt) {
		curr = entry{resetAt: now.Add(window)}
	}
	curr.count++
	s.items[key] = curr
	return curr.count, curr.resetAt, nil
}

// Len returns the number of live windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) cleanup(now time.Time) {
	for k, v := range s.items {
		if !now.Before(v.resetAt) {
			delete(s.items, k)
		}
	}
}
