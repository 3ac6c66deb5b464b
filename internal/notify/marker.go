package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker remembers that a notification went out, so independent scheduler
// ticks do not nag the same user twice.
type Marker interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// RedisMarker keys survive process restarts, matching the scheduler's
// at-least-once tick model.
type RedisMarker struct {
	Client *redis.Client
}

func NewRedisMarker(client *redis.Client) *RedisMarker {
	return &RedisMarker{Client: client}
}

func (m *RedisMarker) Seen(ctx context.Context, key string) (bool, error) {
	n, err := m.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("marker seen: %w", err)
	}
	return n > 0, nil
}

func (m *RedisMarker) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := m.Client.Set(ctx, key, "true", ttl).Err(); err != nil {
		return fmt.Errorf("marker mark: %w", err)
	}
	return nil
}

// MemoryMarker is for tests and single-node runs.
type MemoryMarker struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{keys: make(map[string]time.Time)}
}

func (m *MemoryMarker) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.keys[key]
	return ok && time.Now().Before(exp), nil
}

func (m *MemoryMarker) Mark(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = time.Now().Add(ttl)
	return nil
}
