package models

import (
	"time"
)

// Peer record states. A record stays "pending" only between the remote
// create call and the local commit; steady state is active or revoked.
const (
	PeerPending = "pending"
	PeerActive  = "active"
	PeerRevoked = "revoked"
)

type PeerRecord struct {
	ID        uint   `gorm:"primaryKey"`
	PeerID    string `gorm:"size:36;uniqueIndex;not null"`
	UserID    uint   `gorm:"not null;index"`
	User      User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	RemoteID  string `gorm:"size:255;index"`
	State     string `gorm:"size:20;default:'pending'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
