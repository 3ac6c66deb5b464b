package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peergate/internal/models"
	"peergate/internal/repo"
)

func newTestLedger(t *testing.T, now time.Time) (*Ledger, *repo.MemorySubscriptions) {
	t.Helper()
	subs := repo.NewMemorySubscriptions()
	l := New(subs, zerolog.Nop())
	l.now = func() time.Time { return now }
	return l, subs
}

func seedSubscription(t *testing.T, subs *repo.MemorySubscriptions, userID uint, status string, activeUntil time.Time) {
	t.Helper()
	require.NoError(t, subs.Save(context.Background(), &models.Subscription{
		UserID:      userID,
		PlanTier:    models.PlanStandard,
		Status:      status,
		ActiveUntil: activeUntil,
	}))
}

func TestGetNotFound(t *testing.T) {
	l, _ := newTestLedger(t, time.Now())
	_, err := l.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenewExtendsFromCurrentExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(48 * time.Hour)
	l, subs := newTestLedger(t, now)
	seedSubscription(t, subs, 1, models.StatusActive, until)

	sub, err := l.Renew(context.Background(), 1, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, until.Add(30*24*time.Hour), sub.ActiveUntil)
	assert.Equal(t, models.StatusActive, sub.Status)
}

func TestRenewExpiredStartsFromNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, subs := newTestLedger(t, now)
	seedSubscription(t, subs, 1, models.StatusExpired, now.Add(-72*time.Hour))

	sub, err := l.Renew(context.Background(), 1, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), sub.ActiveUntil)
	assert.Equal(t, models.StatusActive, sub.Status)
}

func TestRenewRejectsNonPositiveExtension(t *testing.T) {
	l, subs := newTestLedger(t, time.Now())
	seedSubscription(t, subs, 1, models.StatusActive, time.Now().Add(time.Hour))

	_, err := l.Renew(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidExtension)

	_, err = l.Renew(context.Background(), 1, -time.Hour)
	assert.ErrorIs(t, err, ErrInvalidExtension)
}

func TestApplyReferralCredit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(24 * time.Hour)
	l, subs := newTestLedger(t, now)
	seedSubscription(t, subs, 1, models.StatusActive, until)

	sub, err := l.ApplyReferralCredit(context.Background(), 1, 3600, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, until.Add(time.Hour), sub.ActiveUntil)
	assert.Equal(t, int64(3600), sub.ReferralCreditSeconds)

	// Replaying the same event must not double the credit.
	_, err = l.ApplyReferralCredit(context.Background(), 1, 3600, "evt-1")
	assert.ErrorIs(t, err, ErrDuplicateCredit)

	sub, err = l.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, until.Add(time.Hour), sub.ActiveUntil)
}

func TestApplyReferralCreditRevivesExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, subs := newTestLedger(t, now)
	seedSubscription(t, subs, 1, models.StatusExpired, now.Add(-time.Hour))

	sub, err := l.ApplyReferralCredit(context.Background(), 1, 7200, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.True(t, now.Before(sub.ActiveUntil))
}

func TestExpireRefusesEarlyCall(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, subs := newTestLedger(t, now)
	seedSubscription(t, subs, 1, models.StatusActive, now.Add(time.Minute))

	err := l.Expire(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotYetExpired)
}

func TestExpireAndGrace(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, subs := newTestLedger(t, now)
	seedSubscription(t, subs, 1, models.StatusActive, now.Add(-time.Minute))

	require.NoError(t, l.MarkGrace(context.Background(), 1))
	sub, err := l.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGrace, sub.Status)

	require.NoError(t, l.Expire(context.Background(), 1))
	sub, err = l.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, sub.Status)
}
