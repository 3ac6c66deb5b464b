package ledger

import "errors"

var (
	ErrNotFound         = errors.New("subscription not found")
	ErrInvalidExtension = errors.New("extension must be positive")
	ErrDuplicateCredit  = errors.New("referral credit already applied")
	ErrNotYetExpired    = errors.New("subscription has not expired yet")
)
