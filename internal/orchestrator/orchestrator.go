// Package orchestrator is the single mutation path for provisioning state.
// Every intent, whether user-triggered or scheduler-triggered, runs the same
// state machine: per-user lock, policy and ledger checks, remote call, local
// commit behind a fencing-token re-check.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"peergate/internal/gateway"
	"peergate/internal/ledger"
	"peergate/internal/lock"
	"peergate/internal/models"
	"peergate/internal/notify"
	"peergate/internal/quota"
	"peergate/internal/repo"
)

// Provisioner is the remote VPN control plane as the orchestrator sees it.
type Provisioner interface {
	AddPeer(ctx context.Context, userID uint, idempotencyKey string) (*gateway.PeerHandle, error)
	RemovePeer(ctx context.Context, remoteID string) error
	ListPeers(ctx context.Context, userID uint) ([]gateway.PeerHandle, error)
}

type Config struct {
	Locks    *lock.Manager
	Ledger   *ledger.Ledger
	Peers    repo.Peers
	Remote   Provisioner
	Limits   quota.Limits
	Sink     notify.Sink
	LockWait time.Duration
	Logger   zerolog.Logger
}

type Orchestrator struct {
	locks    *lock.Manager
	ledger   *ledger.Ledger
	peers    repo.Peers
	remote   Provisioner
	limits   quota.Limits
	sink     notify.Sink
	lockWait time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func New(cfg Config) *Orchestrator {
	if cfg.Sink == nil {
		cfg.Sink = notify.Nop{}
	}
	if cfg.LockWait == 0 {
		cfg.LockWait = 5 * time.Second
	}
	return &Orchestrator{
		locks:    cfg.Locks,
		ledger:   cfg.Ledger,
		peers:    cfg.Peers,
		remote:   cfg.Remote,
		limits:   cfg.Limits,
		sink:     cfg.Sink,
		lockWait: cfg.LockWait,
		log:      cfg.Logger.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
	}
}

func lockKey(userID uint) string {
	return fmt.Sprintf("peergate:lock:user:%d", userID)
}

// Submit runs one intent to a terminal outcome. It is the sole entry point;
// lower-layer error shapes never leak past it.
func (o *Orchestrator) Submit(ctx context.Context, in Intent) Outcome {
	l, err := o.locks.Acquire(ctx, lockKey(in.UserID), o.lockWait)
	if err != nil {
		o.log.Debug().Err(err).Uint("user_id", in.UserID).Str("kind", string(in.Kind)).Msg("lock not acquired")
		return Rejected(ReasonLockTimeout)
	}
	// Release must run even when the caller's context is already cancelled.
	defer o.locks.Release(context.WithoutCancel(ctx), l)

	sub, err := o.ledger.Get(ctx, in.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		return Rejected(ReasonNoSubscription)
	}
	if err != nil {
		o.log.Error().Err(err).Uint("user_id", in.UserID).Msg("subscription load failed")
		return Failed(ReasonProvisioningUnavailable)
	}

	var out Outcome
	switch in.Kind {
	case IntentIssue:
		out = o.issue(ctx, l, in, sub)
	case IntentRenew:
		out = o.renew(ctx, l, in)
	case IntentRevoke:
		out = o.revoke(ctx, l, in)
	case IntentExpire:
		out = o.expire(ctx, l, sub)
	default:
		out = Rejected(ReasonNone)
	}

	o.log.Info().
		Uint("user_id", in.UserID).
		Str("kind", string(in.Kind)).
		Str("status", string(out.Status)).
		Str("reason", string(out.Reason)).
		Msg("intent processed")
	return out
}

func (o *Orchestrator) issue(ctx context.Context, l *lock.Lock, in Intent, sub *models.Subscription) Outcome {
	if !sub.Provisionable(o.now()) {
		return Rejected(ReasonSubscriptionInactive)
	}

	active, err := o.peers.Active(ctx, in.UserID)
	if err != nil {
		o.log.Error().Err(err).Uint("user_id", in.UserID).Msg("active peer count failed")
		return Failed(ReasonProvisioningUnavailable)
	}
	if !quota.MayIssue(len(active), o.limits.For(sub.PlanTier)) {
		return Rejected(ReasonQuotaExceeded)
	}

	handle, err := o.remote.AddPeer(ctx, in.UserID, in.IdempotencyKey)
	if err != nil {
		o.log.Warn().Err(err).Uint("user_id", in.UserID).Msg("remote add failed, nothing committed")
		return Failed(ReasonProvisioningUnavailable)
	}

	// The remote peer exists now. Commit only while still the lock holder;
	// otherwise leave the remote peer for reconciliation to clean up.
	if err := o.locks.Validate(ctx, l); err != nil {
		o.log.Warn().Uint("user_id", in.UserID).Str("remote_id", handle.RemoteID).
			Msg("lock lost after remote add, peer left for reconciliation")
		return Failed(ReasonLockLost)
	}

	rec := &models.PeerRecord{
		PeerID:   uuid.NewString(),
		UserID:   in.UserID,
		RemoteID: handle.RemoteID,
		State:    models.PeerActive,
	}
	if err := o.peers.Save(ctx, rec); err != nil {
		o.log.Error().Err(err).Uint("user_id", in.UserID).Str("remote_id", handle.RemoteID).
			Msg("local commit failed after remote add, reconciliation will remove the orphan")
		return Failed(ReasonProvisioningUnavailable)
	}

	o.sink.PeerIssued(ctx, sub.User.TelegramID, rec.PeerID)
	return Committed(rec)
}

func (o *Orchestrator) renew(ctx context.Context, l *lock.Lock, in Intent) Outcome {
	if err := o.locks.Validate(ctx, l); err != nil {
		return Failed(ReasonLockLost)
	}

	_, err := o.ledger.Renew(ctx, in.UserID, in.Extension)
	switch {
	case errors.Is(err, ledger.ErrInvalidExtension):
		return Rejected(ReasonInvalidExtension)
	case errors.Is(err, ledger.ErrNotFound):
		return Rejected(ReasonNoSubscription)
	case err != nil:
		o.log.Error().Err(err).Uint("user_id", in.UserID).Msg("renew failed")
		return Failed(ReasonProvisioningUnavailable)
	}
	return Committed(nil)
}

func (o *Orchestrator) revoke(ctx context.Context, l *lock.Lock, in Intent) Outcome {
	if in.PeerID == "" {
		return Rejected(ReasonNoActivePeer)
	}

	rec, err := o.peers.Get(ctx, in.PeerID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && rec.UserID != in.UserID) {
		return Rejected(ReasonNoActivePeer)
	}
	if err != nil {
		o.log.Error().Err(err).Str("peer_id", in.PeerID).Msg("peer record load failed")
		return Failed(ReasonProvisioningUnavailable)
	}
	if rec.State == models.PeerRevoked {
		// Repeat of an already-applied revoke.
		return Committed(rec)
	}

	if err := o.remote.RemovePeer(ctx, rec.RemoteID); err != nil {
		// Never mark revoked without confirmed remote removal.
		o.log.Warn().Err(err).Str("peer_id", in.PeerID).Msg("remote remove failed, record stays active")
		return Failed(ReasonProvisioningUnavailable)
	}

	if err := o.locks.Validate(ctx, l); err != nil {
		return Failed(ReasonLockLost)
	}

	rec.State = models.PeerRevoked
	if err := o.peers.Save(ctx, rec); err != nil {
		o.log.Error().Err(err).Str("peer_id", in.PeerID).
			Msg("local revoke commit failed, reconciliation will converge the record")
		return Failed(ReasonProvisioningUnavailable)
	}
	return Committed(rec)
}

func (o *Orchestrator) expire(ctx context.Context, l *lock.Lock, sub *models.Subscription) Outcome {
	if sub.Status == models.StatusExpired {
		// Repeated expire intents are expected from the scheduler.
		return Committed(nil)
	}
	if !sub.Due(o.now()) {
		return Rejected(ReasonNotYetExpired)
	}

	active, err := o.peers.Active(ctx, sub.UserID)
	if err != nil {
		o.log.Error().Err(err).Uint("user_id", sub.UserID).Msg("active peer list failed")
		return Failed(ReasonProvisioningUnavailable)
	}

	unresolved := 0
	for i := range active {
		rec := &active[i]
		if err := o.remote.RemovePeer(ctx, rec.RemoteID); err != nil {
			o.log.Warn().Err(err).Str("peer_id", rec.PeerID).Msg("remote remove failed during expiry")
			unresolved++
			continue
		}
		if err := o.locks.Validate(ctx, l); err != nil {
			return Failed(ReasonLockLost)
		}
		rec.State = models.PeerRevoked
		if err := o.peers.Save(ctx, rec); err != nil {
			o.log.Error().Err(err).Str("peer_id", rec.PeerID).Msg("revoke commit failed during expiry")
			unresolved++
		}
	}

	if unresolved > 0 {
		// Expired but not fully reconciled; the next sweep retries only the
		// peers still marked active. The grace write is a commit like any
		// other: a holder that outlived its TTL must not clobber whatever
		// the new holder decided.
		if err := o.locks.Validate(ctx, l); err != nil {
			return Failed(ReasonLockLost)
		}
		if err := o.ledger.MarkGrace(ctx, sub.UserID); err != nil {
			o.log.Error().Err(err).Uint("user_id", sub.UserID).Msg("grace mark failed")
		}
		return Failed(ReasonProvisioningUnavailable)
	}

	if err := o.locks.Validate(ctx, l); err != nil {
		return Failed(ReasonLockLost)
	}
	if err := o.ledger.Expire(ctx, sub.UserID); err != nil {
		if errors.Is(err, ledger.ErrNotYetExpired) {
			return Rejected(ReasonNotYetExpired)
		}
		o.log.Error().Err(err).Uint("user_id", sub.UserID).Msg("expire commit failed")
		return Failed(ReasonProvisioningUnavailable)
	}

	o.sink.SubscriptionExpired(ctx, sub.User.TelegramID)
	return Committed(nil)
}
