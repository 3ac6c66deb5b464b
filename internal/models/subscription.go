package models

import (
	"time"
)

// Subscription statuses. "grace" means the subscription has crossed its
// expiry boundary but not all of its peers are confirmed revoked yet.
const (
	StatusTrial   = "trial"
	StatusActive  = "active"
	StatusGrace   = "grace"
	StatusExpired = "expired"
)

// Plan tiers. Peer limits per tier come from configuration.
const (
	PlanTrial    = "trial"
	PlanStandard = "standard"
	PlanPremium  = "premium"
)

type Subscription struct {
	ID                    uint   `gorm:"primaryKey"`
	UserID                uint   `gorm:"uniqueIndex;not null"`
	User                  User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	PlanTier              string `gorm:"size:50;default:'trial'"`
	Status                string `gorm:"size:20;default:'trial'"`
	ActiveUntil           time.Time
	ReferralCreditSeconds int64 `gorm:"default:0"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Provisionable reports whether the subscription entitles the user to new
// peers at the given instant. Trial and active subscriptions qualify while
// inside their window; grace and expired never do.
func (s *Subscription) Provisionable(now time.Time) bool {
	if s.Status != StatusTrial && s.Status != StatusActive {
		return false
	}
	return now.Before(s.ActiveUntil)
}

// Due reports whether the subscription has crossed its expiry boundary.
func (s *Subscription) Due(now time.Time) bool {
	return !now.Before(s.ActiveUntil)
}
