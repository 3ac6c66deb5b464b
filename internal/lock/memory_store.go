package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	holder    string
	token     uint64
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-node runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	fence   uint64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) TryAcquire(_ context.Context, key, holder string, ttl time.Duration) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return 0, false, nil
	}

	s.fence++
	s.entries[key] = memoryEntry{holder: holder, token: s.fence, expiresAt: now.Add(ttl)}
	return s.fence, true, nil
}

func (s *MemoryStore) Current(_ context.Context, key string) (string, uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return "", 0, false, nil
	}
	return e.holder, e.token, true, nil
}

func (s *MemoryStore) Release(_ context.Context, key, holder string, token uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.holder != holder || e.token != token {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}
