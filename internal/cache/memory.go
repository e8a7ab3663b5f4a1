package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory SharedStore for tests and single-instance
// deployments. It keeps the same atomicity contract as the Redis store:
// AcquireInFlight is set-if-absent under one lock.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	inflight map[string]time.Time // marker -> hard expiry
	now      func() time.Time
}

type memoryEntry struct {
	entry        Entry
	expiresAt    time.Time
	lastAccessed time.Time
}

var _ SharedStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory SharedStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*memoryEntry),
		inflight: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	now := s.now().UTC()
	if now.After(me.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	me.lastAccessed = now
	e := me.entry
	e.LastAccessed = now
	e.AccessCount++
	return &e, nil
}

func (s *MemoryStore) Set(_ context.Context, entry *Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.entries[entry.Key] = &memoryEntry{
		entry:        *entry,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) AcquireInFlight(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.inflight[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.inflight[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) ReleaseInFlight(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
	return nil
}

func (s *MemoryStore) InFlight(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.inflight[key]
	if !ok {
		return false, nil
	}
	if s.now().After(expiry) {
		delete(s.inflight, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) SweepStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for key, me := range s.entries {
		if me.lastAccessed.Before(cutoff) {
			delete(s.entries, key)
			reaped++
		}
	}
	return reaped, nil
}
