package models

import (
	"time"
)

// ReferralCredit records one granted referral bonus. EventID is the caller
// supplied dedup key: applying the same event twice is rejected by the
// unique index rather than silently doubling the credit.
type ReferralCredit struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   string `gorm:"size:64;uniqueIndex;not null"`
	UserID    uint   `gorm:"not null;index"`
	Seconds   int64  `gorm:"not null"`
	GrantedAt time.Time
}
