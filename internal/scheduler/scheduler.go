// Package scheduler drives time-triggered expiry. It never mutates state
// itself: each tick emits expire intents to the orchestrator, so scheduled
// and user-triggered actions share one state machine. Ticks are independent
// and at-least-once; the orchestrator's idempotent handling makes repeats
// safe.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"peergate/internal/notify"
	"peergate/internal/orchestrator"
	"peergate/internal/repo"
)

// Submitter is the orchestrator entry point the scheduler feeds.
type Submitter interface {
	Submit(ctx context.Context, in orchestrator.Intent) orchestrator.Outcome
}

type Config struct {
	Subs       repo.Subscriptions
	Orch       Submitter
	Sink       notify.Sink
	Marker     notify.Marker
	Interval   time.Duration
	NotifyLead time.Duration
	Logger     zerolog.Logger
}

type Scheduler struct {
	subs       repo.Subscriptions
	orch       Submitter
	sink       notify.Sink
	marker     notify.Marker
	interval   time.Duration
	notifyLead time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func New(cfg Config) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.NotifyLead == 0 {
		cfg.NotifyLead = 24 * time.Hour
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.Nop{}
	}
	if cfg.Marker == nil {
		cfg.Marker = notify.NewMemoryMarker()
	}
	return &Scheduler{
		subs:       cfg.Subs,
		orch:       cfg.Orch,
		sink:       cfg.Sink,
		marker:     cfg.Marker,
		interval:   cfg.Interval,
		notifyLead: cfg.NotifyLead,
		log:        cfg.Logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run ticks once immediately, then on the interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("expiry scheduler started")
	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("expiry scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep: warn soon-to-expire users, then emit expire intents
// for everyone past the boundary. The scans are lock-free and may be stale;
// the orchestrator re-checks under the user's lock.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock()

	s.notifyExpiring(ctx, now)

	due, err := s.subs.DueForExpiry(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("expiry scan failed")
		return
	}

	for _, sub := range due {
		out := s.orch.Submit(ctx, orchestrator.NewIntent(orchestrator.IntentExpire, sub.UserID))
		switch out.Status {
		case orchestrator.StatusCommitted:
			s.log.Info().Uint("user_id", sub.UserID).Msg("subscription expiry completed")
		case orchestrator.StatusRejected:
			s.log.Debug().Uint("user_id", sub.UserID).Str("reason", string(out.Reason)).Msg("expiry intent rejected")
		default:
			// Left for the next tick.
			s.log.Warn().Uint("user_id", sub.UserID).Str("reason", string(out.Reason)).Msg("expiry intent failed, will retry")
		}
	}
}

func (s *Scheduler) notifyExpiring(ctx context.Context, now time.Time) {
	// Window is one interval wide around the lead time, so each subscription
	// is caught by roughly one tick and deduplicated across overlaps.
	start := now.Add(s.notifyLead - s.interval/2)
	end := now.Add(s.notifyLead + s.interval/2)

	expiring, err := s.subs.ExpiringBetween(ctx, start, end)
	if err != nil {
		s.log.Error().Err(err).Msg("pre-expiry scan failed")
		return
	}

	for _, sub := range expiring {
		key := fmt.Sprintf("peergate:notified:expiring:%d", sub.UserID)
		seen, err := s.marker.Seen(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Uint("user_id", sub.UserID).Msg("notification dedup check failed")
			continue
		}
		if seen {
			continue
		}
		s.sink.SubscriptionExpiring(ctx, sub.User.TelegramID, sub.ActiveUntil)
		if err := s.marker.Mark(ctx, key, 2*s.notifyLead); err != nil {
			s.log.Warn().Err(err).Uint("user_id", sub.UserID).Msg("notification mark failed")
		}
	}
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
