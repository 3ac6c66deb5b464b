package lock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const fenceSeqKey = "peergate:lock:seq"

// releaseScript deletes the lock key only while the stored holder:token
// value matches, so a holder whose TTL lapsed cannot release someone else's
// lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore backs the lock manager with Redis SET NX PX semantics. The
// fencing token comes from a shared INCR counter and is stored inside the
// lock value, so Current can hand it back for comparison.
type RedisStore struct {
	Client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func lockValue(holder string, token uint64) string {
	return fmt.Sprintf("%s:%d", holder, token)
}

func parseLockValue(value string) (holder string, token uint64, ok bool) {
	idx := strings.LastIndex(value, ":")
	if idx < 0 {
		return "", 0, false
	}
	token, err := strconv.ParseUint(value[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return value[:idx], token, true
}

func (s *RedisStore) TryAcquire(ctx context.Context, key, holder string, ttl time.Duration) (uint64, bool, error) {
	seq, err := s.Client.Incr(ctx, fenceSeqKey).Result()
	if err != nil {
		return 0, false, fmt.Errorf("lock fence token: %w", err)
	}
	token := uint64(seq)

	ok, err := s.Client.SetNX(ctx, key, lockValue(holder, token), ttl).Result()
	if err != nil {
		return 0, false, fmt.Errorf("lock acquire: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	return token, true, nil
}

func (s *RedisStore) Current(ctx context.Context, key string) (string, uint64, bool, error) {
	value, err := s.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("lock current: %w", err)
	}
	holder, token, ok := parseLockValue(value)
	if !ok {
		return "", 0, false, fmt.Errorf("lock current: malformed value %q", value)
	}
	return holder, token, true, nil
}

func (s *RedisStore) Release(ctx context.Context, key, holder string, token uint64) (bool, error) {
	res, err := releaseScript.Run(ctx, s.Client, []string{key}, lockValue(holder, token)).Int()
	if err != nil {
		return false, fmt.Errorf("lock release: %w", err)
	}
	return res == 1, nil
}
