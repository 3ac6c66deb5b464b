package repo

import (
	"context"
	"errors"
	"time"

	"peergate/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Subscriptions is the persistence contract for subscription rows. All
// writes are single-row; callers serialize concurrent writers per user
// through the lock manager, not here.
type Subscriptions interface {
	Get(ctx context.Context, userID uint) (*models.Subscription, error)
	Save(ctx context.Context, sub *models.Subscription) error

	// DueForExpiry returns subscriptions that crossed their expiry boundary
	// and are not fully reconciled yet (trial, active or grace status).
	DueForExpiry(ctx context.Context, now time.Time) ([]models.Subscription, error)

	// ExpiringBetween returns still-active subscriptions whose window ends
	// inside [start, end), for pre-expiry notification.
	ExpiringBetween(ctx context.Context, start, end time.Time) ([]models.Subscription, error)

	// RecordCredit inserts a referral credit row, failing with ErrDuplicate
	// when the event id was seen before.
	RecordCredit(ctx context.Context, credit *models.ReferralCredit) error
}

// Peers is the persistence contract for peer records.
type Peers interface {
	Get(ctx context.Context, peerID string) (*models.PeerRecord, error)
	Active(ctx context.Context, userID uint) ([]models.PeerRecord, error)
	Save(ctx context.Context, rec *models.PeerRecord) error

	// UserIDsWithPeers returns ids of users owning at least one non-revoked
	// peer record, for the reconciliation sweep.
	UserIDsWithPeers(ctx context.Context) ([]uint, error)
}
