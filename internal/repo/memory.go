package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"peergate/internal/models"
)

// MemorySubscriptions is an in-memory Subscriptions implementation used in
// tests and local development.
type MemorySubscriptions struct {
	mu      sync.RWMutex
	subs    map[uint]models.Subscription
	credits map[string]models.ReferralCredit
	nextID  uint
}

func NewMemorySubscriptions() *MemorySubscriptions {
	return &MemorySubscriptions{
		subs:    make(map[uint]models.Subscription),
		credits: make(map[string]models.ReferralCredit),
		nextID:  1,
	}
}

func (m *MemorySubscriptions) Get(_ context.Context, userID uint) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (m *MemorySubscriptions) Save(_ context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == 0 {
		sub.ID = m.nextID
		m.nextID++
	}
	m.subs[sub.UserID] = *sub
	return nil
}

func (m *MemorySubscriptions) DueForExpiry(_ context.Context, now time.Time) ([]models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Subscription
	for _, sub := range m.subs {
		switch sub.Status {
		case models.StatusTrial, models.StatusActive, models.StatusGrace:
			if sub.Due(now) {
				out = append(out, sub)
			}
		}
	}
	return out, nil
}

func (m *MemorySubscriptions) ExpiringBetween(_ context.Context, start, end time.Time) ([]models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Subscription
	for _, sub := range m.subs {
		if sub.Status != models.StatusTrial && sub.Status != models.StatusActive {
			continue
		}
		if !sub.ActiveUntil.Before(start) && sub.ActiveUntil.Before(end) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (m *MemorySubscriptions) RecordCredit(_ context.Context, credit *models.ReferralCredit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credits[credit.EventID]; ok {
		return ErrDuplicate
	}
	m.credits[credit.EventID] = *credit
	return nil
}

// MemoryPeers is an in-memory Peers implementation used in tests and local
// development.
type MemoryPeers struct {
	mu     sync.RWMutex
	peers  map[string]models.PeerRecord
	nextID uint
}

func NewMemoryPeers() *MemoryPeers {
	return &MemoryPeers{
		peers:  make(map[string]models.PeerRecord),
		nextID: 1,
	}
}

func (m *MemoryPeers) Get(_ context.Context, peerID string) (*models.PeerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.peers[peerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryPeers) Active(_ context.Context, userID uint) ([]models.PeerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PeerRecord
	for _, rec := range m.peers {
		if rec.UserID == userID && rec.State == models.PeerActive {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryPeers) Save(_ context.Context, rec *models.PeerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = m.nextID
		m.nextID++
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.peers[rec.PeerID] = *rec
	return nil
}

func (m *MemoryPeers) UserIDsWithPeers(_ context.Context) ([]uint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[uint]bool)
	var out []uint
	for _, rec := range m.peers {
		if rec.State == models.PeerRevoked || seen[rec.UserID] {
			continue
		}
		seen[rec.UserID] = true
		out = append(out, rec.UserID)
	}
	return out, nil
}
