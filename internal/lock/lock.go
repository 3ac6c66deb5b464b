// Package lock provides per-user mutual exclusion across request handlers
// and the expiry scheduler, backed by a shared expiring store. Locks carry a
// fencing token; holders must re-validate before committing so a lapsed TTL
// can never turn into an unlocked write.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrTimeout = errors.New("lock acquisition timed out")
	ErrLost    = errors.New("lock no longer held")
)

// Lock is a live claim on a resource key. It is a coordination artifact, not
// durable state; it dies with its TTL.
type Lock struct {
	Key    string
	Holder string
	Token  uint64
}

type Manager struct {
	store Store
	ttl   time.Duration
	retry time.Duration
	log   zerolog.Logger
}

// NewManager builds a lock manager. ttl must exceed the worst-case gateway
// call latency including retries.
func NewManager(store Store, ttl time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		ttl:   ttl,
		retry: 50 * time.Millisecond,
		log:   log.With().Str("component", "lock").Logger(),
	}
}

// Acquire blocks until the key is taken, wait elapses, or ctx is done.
func (m *Manager) Acquire(ctx context.Context, key string, wait time.Duration) (*Lock, error) {
	holder := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		token, ok, err := m.store.TryAcquire(ctx, key, holder, m.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{Key: key, Holder: holder, Token: token}, nil
		}

		if time.Now().Add(m.retry).After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock acquire: %w", ctx.Err())
		case <-time.After(m.retry):
		}
	}
}

// Validate fails with ErrLost unless l still carries the current fencing
// token. Callers run this immediately before every local commit.
func (m *Manager) Validate(ctx context.Context, l *Lock) error {
	holder, token, held, err := m.store.Current(ctx, l.Key)
	if err != nil {
		return err
	}
	if !held || holder != l.Holder || token != l.Token {
		m.log.Warn().Str("key", l.Key).Uint64("token", l.Token).Uint64("current_token", token).
			Msg("lock lost before commit")
		return ErrLost
	}
	return nil
}

// Release drops the lock. Releasing an already-expired lock is a no-op.
func (m *Manager) Release(ctx context.Context, l *Lock) {
	ok, err := m.store.Release(ctx, l.Key, l.Holder, l.Token)
	if err != nil {
		m.log.Error().Err(err).Str("key", l.Key).Msg("lock release failed, TTL will reclaim it")
		return
	}
	if !ok {
		m.log.Debug().Str("key", l.Key).Msg("lock already expired on release")
	}
}
