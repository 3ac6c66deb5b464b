package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"peergate/internal/models"
)

// GormSubscriptions implements Subscriptions on top of PostgreSQL.
type GormSubscriptions struct {
	DB *gorm.DB
}

func NewGormSubscriptions(db *gorm.DB) *GormSubscriptions {
	return &GormSubscriptions{DB: db}
}

func (r *GormSubscriptions) Get(ctx context.Context, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.DB.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (r *GormSubscriptions) Save(ctx context.Context, sub *models.Subscription) error {
	if err := r.DB.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (r *GormSubscriptions) DueForExpiry(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.DB.WithContext(ctx).Preload("User").
		Where("active_until <= ? AND status IN ?", now,
			[]string{models.StatusTrial, models.StatusActive, models.StatusGrace}).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due subscriptions: %w", err)
	}
	return subs, nil
}

func (r *GormSubscriptions) ExpiringBetween(ctx context.Context, start, end time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.DB.WithContext(ctx).Preload("User").
		Where("active_until >= ? AND active_until < ? AND status IN ?", start, end,
			[]string{models.StatusTrial, models.StatusActive}).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring subscriptions: %w", err)
	}
	return subs, nil
}

func (r *GormSubscriptions) RecordCredit(ctx context.Context, credit *models.ReferralCredit) error {
	err := r.DB.WithContext(ctx).Create(credit).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to record referral credit: %w", err)
	}
	return nil
}

// GormPeers implements Peers on top of PostgreSQL.
type GormPeers struct {
	DB *gorm.DB
}

func NewGormPeers(db *gorm.DB) *GormPeers {
	return &GormPeers{DB: db}
}

func (r *GormPeers) Get(ctx context.Context, peerID string) (*models.PeerRecord, error) {
	var rec models.PeerRecord
	err := r.DB.WithContext(ctx).Where("peer_id = ?", peerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load peer record: %w", err)
	}
	return &rec, nil
}

func (r *GormPeers) Active(ctx context.Context, userID uint) ([]models.PeerRecord, error) {
	var recs []models.PeerRecord
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, models.PeerActive).
		Order("created_at").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active peers: %w", err)
	}
	return recs, nil
}

func (r *GormPeers) Save(ctx context.Context, rec *models.PeerRecord) error {
	if err := r.DB.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("failed to save peer record: %w", err)
	}
	return nil
}

func (r *GormPeers) UserIDsWithPeers(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&models.PeerRecord{}).
		Where("state <> ?", models.PeerRevoked).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query users with peers: %w", err)
	}
	return ids, nil
}
