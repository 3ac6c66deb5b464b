package lock

import (
	"context"
	"time"
)

// Store is the shared lock backend. Implementations must provide atomic
// set-if-absent-with-TTL acquisition and compare-and-delete release, and a
// monotonically increasing fencing token per successful acquisition.
type Store interface {
	// TryAcquire attempts to take the key for holder. Returns the fencing
	// token and true on success, false when the key is held by someone else.
	TryAcquire(ctx context.Context, key, holder string, ttl time.Duration) (uint64, bool, error)

	// Current returns the holder and fencing token of the live claim on key,
	// held=false when the key is unheld or its TTL lapsed.
	Current(ctx context.Context, key string) (holder string, token uint64, held bool, err error)

	// Release deletes the key only if holder still owns it under the same
	// fencing token.
	Release(ctx context.Context, key, holder string, token uint64) (bool, error)
}
