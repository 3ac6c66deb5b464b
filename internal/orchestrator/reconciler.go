package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"peergate/internal/lock"
	"peergate/internal/models"
	"peergate/internal/repo"
)

// Reconciler repairs drift between local peer records and the remote peer
// set. Detection runs lock-free on possibly stale reads; fix-ups re-check
// everything under the user's lock.
type Reconciler struct {
	locks    *lock.Manager
	peers    repo.Peers
	remote   Provisioner
	lockWait time.Duration
	interval time.Duration
	log      zerolog.Logger
}

func NewReconciler(locks *lock.Manager, peers repo.Peers, remote Provisioner, interval time.Duration, log zerolog.Logger) *Reconciler {
	if interval == 0 {
		interval = 15 * time.Minute
	}
	return &Reconciler{
		locks:    locks,
		peers:    peers,
		remote:   remote,
		lockWait: 5 * time.Second,
		interval: interval,
		log:      log.With().Str("component", "reconciler").Logger(),
	}
}

// Run sweeps on a fixed interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("reconciler started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Error().Err(err).Msg("reconciliation sweep failed")
			}
		}
	}
}

// Sweep reconciles every user that owns at least one non-revoked record.
func (r *Reconciler) Sweep(ctx context.Context) error {
	ids, err := r.peers.UserIDsWithPeers(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	for _, userID := range ids {
		if err := r.ReconcileUser(ctx, userID); err != nil {
			r.log.Warn().Err(err).Uint("user_id", userID).Msg("user reconciliation failed")
		}
	}
	return nil
}

// ReconcileUser converges one user: remote peers without a local active
// record are removed remotely, local active records missing remotely are
// marked revoked.
func (r *Reconciler) ReconcileUser(ctx context.Context, userID uint) error {
	orphans, stale, err := r.diff(ctx, userID)
	if err != nil {
		return err
	}
	if len(orphans) == 0 && len(stale) == 0 {
		return nil
	}

	l, err := r.locks.Acquire(ctx, lockKey(userID), r.lockWait)
	if err != nil {
		return fmt.Errorf("reconcile user %d: %w", userID, err)
	}
	defer r.locks.Release(context.WithoutCancel(ctx), l)

	// The lock-free read may have raced an orchestration call; diff again
	// now that the user is quiesced.
	orphans, stale, err = r.diff(ctx, userID)
	if err != nil {
		return err
	}

	for _, remoteID := range orphans {
		if err := r.remote.RemovePeer(ctx, remoteID); err != nil {
			r.log.Warn().Err(err).Uint("user_id", userID).Str("remote_id", remoteID).
				Msg("orphan removal failed, next sweep retries")
			continue
		}
		r.log.Info().Uint("user_id", userID).Str("remote_id", remoteID).Msg("orphan remote peer removed")
	}

	for i := range stale {
		rec := &stale[i]
		if err := r.locks.Validate(ctx, l); err != nil {
			return fmt.Errorf("reconcile user %d: %w", userID, err)
		}
		rec.State = models.PeerRevoked
		if err := r.peers.Save(ctx, rec); err != nil {
			return fmt.Errorf("reconcile user %d: %w", userID, err)
		}
		r.log.Info().Uint("user_id", userID).Str("peer_id", rec.PeerID).Msg("stale local record marked revoked")
	}
	return nil
}

// diff returns remote identifiers with no local active record (orphans) and
// local active records absent remotely (stale).
func (r *Reconciler) diff(ctx context.Context, userID uint) (orphans []string, stale []models.PeerRecord, err error) {
	remote, err := r.remote.ListPeers(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile user %d: %w", userID, err)
	}
	local, err := r.peers.Active(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile user %d: %w", userID, err)
	}

	localByRemote := make(map[string]bool, len(local))
	for _, rec := range local {
		localByRemote[rec.RemoteID] = true
	}
	remoteSet := make(map[string]bool, len(remote))
	for _, h := range remote {
		remoteSet[h.RemoteID] = true
		if !localByRemote[h.RemoteID] {
			orphans = append(orphans, h.RemoteID)
		}
	}
	for _, rec := range local {
		if !remoteSet[rec.RemoteID] {
			stale = append(stale, rec)
		}
	}
	return orphans, stale, nil
}
