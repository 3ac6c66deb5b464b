package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Second, zerolog.Nop())
	ctx := context.Background()

	l, err := m.Acquire(ctx, "user:1", 100*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, m.Validate(ctx, l))

	// Second acquirer times out while the lock is held.
	_, err = m.Acquire(ctx, "user:1", 60*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	m.Release(ctx, l)

	// After release the key is free again.
	l2, err := m.Acquire(ctx, "user:1", 100*time.Millisecond)
	require.NoError(t, err)
	assert.Greater(t, l2.Token, l.Token)
}

func TestLocksAreIndependentPerKey(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Second, zerolog.Nop())
	ctx := context.Background()

	l1, err := m.Acquire(ctx, "user:1", 50*time.Millisecond)
	require.NoError(t, err)
	defer m.Release(ctx, l1)

	l2, err := m.Acquire(ctx, "user:2", 50*time.Millisecond)
	require.NoError(t, err)
	m.Release(ctx, l2)
}

func TestValidateDetectsExpiredLock(t *testing.T) {
	store := NewMemoryStore()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	m := NewManager(store, time.Second, zerolog.Nop())
	ctx := context.Background()

	l, err := m.Acquire(ctx, "user:1", 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, m.Validate(ctx, l))

	// TTL lapses and another holder takes over.
	current = current.Add(2 * time.Second)
	stolen, err := m.Acquire(ctx, "user:1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Greater(t, stolen.Token, l.Token)

	assert.ErrorIs(t, m.Validate(ctx, l), ErrLost)
	require.NoError(t, m.Validate(ctx, stolen))
}

func TestReleaseIgnoresForeignHolder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	token, ok, err := store.TryAcquire(ctx, "user:1", "holder-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := store.Release(ctx, "user:1", "holder-b", token)
	require.NoError(t, err)
	assert.False(t, released)

	released, err = store.Release(ctx, "user:1", "holder-a", token+1)
	require.NoError(t, err)
	assert.False(t, released, "release with a stale token must not drop the lock")

	holder, current, held, err := store.Current(ctx, "user:1")
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, "holder-a", holder)
	assert.Equal(t, token, current)
}

func TestValidateComparesFencingToken(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, time.Second, zerolog.Nop())
	ctx := context.Background()

	l, err := m.Acquire(ctx, "user:1", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, m.Validate(ctx, l))

	// Same holder string, older token: a claim from a previous acquisition
	// must read as lost.
	stale := &Lock{Key: l.Key, Holder: l.Holder, Token: l.Token - 1}
	assert.ErrorIs(t, m.Validate(ctx, stale), ErrLost)
}

func TestAcquireIsMutuallyExclusive(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Second, zerolog.Nop())
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := m.Acquire(ctx, "user:1", 2*time.Second)
			if err != nil {
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			m.Release(ctx, l)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "two holders overlapped inside the critical section")
}
