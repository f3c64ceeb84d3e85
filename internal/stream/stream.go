// Package stream fans access decisions out to live subscribers.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"retailgate.org/internal/audit"
)

const bufferSize = 16

type subscriber struct {
	ch       chan audit.Record
	branchID string
}

// Stream delivers every published record to all matching subscribers. Slow
// subscribers miss records instead of blocking publishers.
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Uint64
}

// New returns an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber. A non-empty branchID limits delivery to
// records about that branch. The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, branchID string) <-chan audit.Record {
	ch := make(chan audit.Record, bufferSize)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, branchID: branchID}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish hands rec to every matching subscriber without blocking.
func (s *Stream) Publish(rec audit.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.branchID != "" && sub.branchID != rec.BranchID && !targets(rec, sub.branchID) {
			continue
		}
		select {
		case sub.ch <- rec:
		default:
			s.dropped.Add(1)
		}
	}
}

// Write makes the stream usable as an audit sink.
func (s *Stream) Write(_ context.Context, rec audit.Record) error {
	s.Publish(rec)
	return nil
}

// Subscribers returns the number of live subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber lagged.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

func targets(rec audit.Record, branchID string) bool {
	v, ok := rec.Metadata["target_branch_id"].(string)
	return ok && v == branchID
}
