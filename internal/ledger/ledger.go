// Package ledger is the sole writer of subscription state. Request handlers
// and the scheduler never mutate subscriptions directly; they go through
// renew/credit/expire operations here, holding the per-user lock.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"peergate/internal/models"
	"peergate/internal/repo"
)

type Ledger struct {
	subs repo.Subscriptions
	log  zerolog.Logger
	now  func() time.Time
}

func New(subs repo.Subscriptions, log zerolog.Logger) *Ledger {
	return &Ledger{
		subs: subs,
		log:  log.With().Str("component", "ledger").Logger(),
		now:  time.Now,
	}
}

func (l *Ledger) Get(ctx context.Context, userID uint) (*models.Subscription, error) {
	sub, err := l.subs.Get(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return sub, err
}

// Renew extends the subscription window by extension, counted from the
// current expiry or from now, whichever is later. ActiveUntil never moves
// backwards here.
func (l *Ledger) Renew(ctx context.Context, userID uint, extension time.Duration) (*models.Subscription, error) {
	if extension <= 0 {
		return nil, ErrInvalidExtension
	}

	sub, err := l.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	base := sub.ActiveUntil
	if base.Before(now) {
		base = now
	}
	sub.ActiveUntil = base.Add(extension)
	sub.Status = models.StatusActive

	if err := l.subs.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("renew: %w", err)
	}

	l.log.Info().Uint("user_id", userID).Time("active_until", sub.ActiveUntil).Msg("subscription renewed")
	return sub, nil
}

// ApplyReferralCredit extends ActiveUntil by the credited seconds. The
// credit event id is recorded first, so replays of the same event fail with
// ErrDuplicateCredit instead of granting the bonus twice.
func (l *Ledger) ApplyReferralCredit(ctx context.Context, userID uint, seconds int64, eventID string) (*models.Subscription, error) {
	if seconds <= 0 {
		return nil, ErrInvalidExtension
	}

	sub, err := l.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = l.subs.RecordCredit(ctx, &models.ReferralCredit{
		EventID:   eventID,
		UserID:    userID,
		Seconds:   seconds,
		GrantedAt: l.now(),
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrDuplicateCredit
	}
	if err != nil {
		return nil, fmt.Errorf("apply referral credit: %w", err)
	}

	credit := time.Duration(seconds) * time.Second
	sub.ActiveUntil = sub.ActiveUntil.Add(credit)
	sub.ReferralCreditSeconds += seconds
	if sub.Status == models.StatusExpired && l.now().Before(sub.ActiveUntil) {
		sub.Status = models.StatusActive
	}

	if err := l.subs.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("apply referral credit: %w", err)
	}

	l.log.Info().Uint("user_id", userID).Int64("seconds", seconds).Str("event_id", eventID).Msg("referral credit applied")
	return sub, nil
}

// Expire marks the subscription expired. Callers must only invoke this after
// the boundary has actually passed; early calls fail with ErrNotYetExpired.
func (l *Ledger) Expire(ctx context.Context, userID uint) error {
	sub, err := l.Get(ctx, userID)
	if err != nil {
		return err
	}
	if l.now().Before(sub.ActiveUntil) {
		return ErrNotYetExpired
	}

	sub.Status = models.StatusExpired
	if err := l.subs.Save(ctx, sub); err != nil {
		return fmt.Errorf("expire: %w", err)
	}

	l.log.Info().Uint("user_id", userID).Msg("subscription expired")
	return nil
}

// MarkGrace flags a subscription as expired-but-unreconciled: some of its
// peers still await confirmed remote revocation.
func (l *Ledger) MarkGrace(ctx context.Context, userID uint) error {
	sub, err := l.Get(ctx, userID)
	if err != nil {
		return err
	}

	sub.Status = models.StatusGrace
	if err := l.subs.Save(ctx, sub); err != nil {
		return fmt.Errorf("mark grace: %w", err)
	}

	l.log.Warn().Uint("user_id", userID).Msg("subscription entered grace status")
	return nil
}
