package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

type IntentKind string

const (
	IntentIssue  IntentKind = "issue"
	IntentRenew  IntentKind = "renew"
	IntentRevoke IntentKind = "revoke"
	IntentExpire IntentKind = "expire"
)

// Intent is an immutable provisioning command. Retries of the same logical
// action reuse the idempotency key in a fresh Intent value.
type Intent struct {
	Kind           IntentKind
	UserID         uint
	PeerID         string        // revoke target
	Extension      time.Duration // renew amount
	IdempotencyKey string
	RequestedAt    time.Time
}

// NewIntent builds an intent with a fresh idempotency key.
func NewIntent(kind IntentKind, userID uint) Intent {
	return Intent{
		Kind:           kind,
		UserID:         userID,
		IdempotencyKey: uuid.NewString(),
		RequestedAt:    time.Now(),
	}
}
