package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peergate/internal/gateway"
	"peergate/internal/lock"
	"peergate/internal/models"
	"peergate/internal/repo"
)

func newReconcilerFixture(t *testing.T) (*Reconciler, *repo.MemoryPeers, *fakeRemote) {
	t.Helper()
	peers := repo.NewMemoryPeers()
	remote := newFakeRemote()
	locks := lock.NewManager(lock.NewMemoryStore(), 5*time.Second, zerolog.Nop())
	r := NewReconciler(locks, peers, remote, time.Minute, zerolog.Nop())
	return r, peers, remote
}

func TestReconcileConverges(t *testing.T) {
	r, peers, remote := newReconcilerFixture(t)
	ctx := context.Background()

	// Matching pair: stays untouched.
	remote.peers["remote-ok"] = gateway.PeerHandle{RemoteID: "remote-ok", UserID: 1}
	require.NoError(t, peers.Save(ctx, &models.PeerRecord{
		PeerID: "peer-ok", UserID: 1, RemoteID: "remote-ok", State: models.PeerActive,
	}))

	// Orphan: remote peer with no local record.
	remote.peers["remote-orphan"] = gateway.PeerHandle{RemoteID: "remote-orphan", UserID: 1}

	// Stale: local active record the remote side no longer has.
	require.NoError(t, peers.Save(ctx, &models.PeerRecord{
		PeerID: "peer-stale", UserID: 1, RemoteID: "remote-gone", State: models.PeerActive,
	}))

	require.NoError(t, r.ReconcileUser(ctx, 1))

	// One pass leaves local and remote peer sets equal.
	assert.Equal(t, 1, remote.count())
	active, err := peers.Active(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "remote-ok", active[0].RemoteID)

	stale, err := peers.Get(ctx, "peer-stale")
	require.NoError(t, err)
	assert.Equal(t, models.PeerRevoked, stale.State)
}

func TestReconcileNoDriftTakesNoLock(t *testing.T) {
	r, peers, remote := newReconcilerFixture(t)
	ctx := context.Background()

	remote.peers["remote-ok"] = gateway.PeerHandle{RemoteID: "remote-ok", UserID: 1}
	require.NoError(t, peers.Save(ctx, &models.PeerRecord{
		PeerID: "peer-ok", UserID: 1, RemoteID: "remote-ok", State: models.PeerActive,
	}))

	// Holding the user's lock elsewhere must not block a clean reconcile.
	l, err := r.locks.Acquire(ctx, lockKey(1), 100*time.Millisecond)
	require.NoError(t, err)
	defer r.locks.Release(ctx, l)

	require.NoError(t, r.ReconcileUser(ctx, 1))
}

func TestSweepVisitsUsersWithPeers(t *testing.T) {
	r, peers, remote := newReconcilerFixture(t)
	ctx := context.Background()

	require.NoError(t, peers.Save(ctx, &models.PeerRecord{
		PeerID: "peer-1", UserID: 1, RemoteID: "remote-gone-1", State: models.PeerActive,
	}))
	require.NoError(t, peers.Save(ctx, &models.PeerRecord{
		PeerID: "peer-2", UserID: 2, RemoteID: "remote-gone-2", State: models.PeerActive,
	}))
	_ = remote

	require.NoError(t, r.Sweep(ctx))

	for _, id := range []string{"peer-1", "peer-2"} {
		rec, err := peers.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.PeerRevoked, rec.State)
	}
}
