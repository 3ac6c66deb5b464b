package orchestrator

import (
	"peergate/internal/models"
)

type Status string

const (
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// Reason codes are the stable vocabulary surfaced to callers. Rejections are
// user-correctable; failures mean "try again later" and carry no remote
// system detail.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonLockTimeout             Reason = "lock_timeout"
	ReasonLockLost                Reason = "lock_lost"
	ReasonNoSubscription          Reason = "no_subscription"
	ReasonSubscriptionInactive    Reason = "subscription_inactive"
	ReasonQuotaExceeded           Reason = "quota_exceeded"
	ReasonInvalidExtension        Reason = "invalid_extension"
	ReasonNotYetExpired           Reason = "not_yet_expired"
	ReasonNoActivePeer            Reason = "no_active_peer"
	ReasonProvisioningUnavailable Reason = "provisioning_unavailable"
)

type Outcome struct {
	Status Status
	Reason Reason
	Peer   *models.PeerRecord
}

func Committed(peer *models.PeerRecord) Outcome {
	return Outcome{Status: StatusCommitted, Peer: peer}
}

func Rejected(reason Reason) Outcome {
	return Outcome{Status: StatusRejected, Reason: reason}
}

func Failed(reason Reason) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}
