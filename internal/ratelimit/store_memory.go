package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	count       int
	windowStart time.Time
}

// MemorySourceStore is the in-memory SourceStore. The window resets rather
// than rolls: once its age exceeds the window the count starts over.
type MemorySourceStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

type MemorySourceStoreOption func(*MemorySourceStore)

// WithSourceClock overrides wall-clock reads, for tests.
func WithSourceClock(now func() time.Time) MemorySourceStoreOption {
	return func(s *MemorySourceStore) {
		s.now = now
	}
}

func NewMemorySourceStore(opts ...MemorySourceStoreOption) *MemorySourceStore {
	s := &MemorySourceStore{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemorySourceStore) Incr(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.Sub(e.windowStart) > window {
		e = &windowEntry{windowStart: now}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Len reports the number of tracked sources, for the stats endpoint.
func (s *MemorySourceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
