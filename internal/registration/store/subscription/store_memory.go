package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
)

// InMemory mirrors the Postgres store's unique indexes and conditional
// updates under a single mutex.
type InMemory struct {
	mu    sync.RWMutex
	byID  map[id.SubscriptionID]*models.Subscription
	byRef map[string]id.SubscriptionID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:  make(map[id.SubscriptionID]*models.Subscription),
		byRef: make(map[string]id.SubscriptionID),
	}
}

func (s *InMemory) Create(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRef[sub.TxRef]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.byID {
		if existing.DraftID != sub.DraftID {
			continue
		}
		if existing.IsPending() && sub.IsPending() {
			return sentinel.ErrConflict
		}
		if existing.IsActiveUnlinked() && sub.IsActiveUnlinked() {
			return sentinel.ErrConflict
		}
	}
	s.byID[sub.ID] = clone(sub)
	s.byRef[sub.TxRef] = sub.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, subID id.SubscriptionID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.byID[subID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(sub), nil
}

func (s *InMemory) FindByTxRef(_ context.Context, txRef string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subID, ok := s.byRef[txRef]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.byID[subID]), nil
}

// FindForDraft returns the subscription that governs a draft: one with a
// linked account first, then an active one, then the most recent.
func (s *InMemory) FindForDraft(_ context.Context, draftID id.DraftID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*models.Subscription
	for _, sub := range s.byID {
		if sub.DraftID == draftID {
			candidates = append(candidates, sub)
		}
	}
	if len(candidates) == 0 {
		return nil, sentinel.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return draftRank(candidates[i], candidates[j])
	})
	return clone(candidates[0]), nil
}

func draftRank(a, b *models.Subscription) bool {
	if a.HasChild() != b.HasChild() {
		return a.HasChild()
	}
	aActive := a.Status == models.SubscriptionActive
	bActive := b.Status == models.SubscriptionActive
	if aActive != bActive {
		return aActive
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (s *InMemory) TryActivate(_ context.Context, a models.Activation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subID, ok := s.byRef[a.TxRef]
	if !ok {
		return false, nil
	}
	sub := s.byID[subID]
	if sub.Status != models.SubscriptionPending {
		return false, nil
	}
	for _, other := range s.byID {
		if other.ID != sub.ID && other.DraftID == sub.DraftID && other.IsActiveUnlinked() {
			return false, sentinel.ErrConflict
		}
	}
	start, end := a.StartAt, a.EndAt
	sub.Status = models.SubscriptionActive
	sub.PaymentStatus = models.PaymentCompleted
	sub.IsActive = true
	sub.ExternalID = a.ExternalID
	sub.StartAt = &start
	sub.EndAt = &end
	sub.UpdatedAt = a.At
	return true, nil
}

func (s *InMemory) MarkFailed(_ context.Context, txRef string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subID, ok := s.byRef[txRef]
	if !ok {
		return false, nil
	}
	sub := s.byID[subID]
	if sub.Status != models.SubscriptionPending {
		return false, nil
	}
	sub.Status = models.SubscriptionFailed
	sub.PaymentStatus = models.PaymentFailed
	sub.UpdatedAt = now
	return true, nil
}

func (s *InMemory) LinkChild(_ context.Context, subID id.SubscriptionID, accountID id.AccountID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.byID[subID]
	if !ok || sub.HasChild() || sub.Status != models.SubscriptionActive {
		return false, nil
	}
	for _, other := range s.byID {
		if other.ChildID == accountID {
			return false, sentinel.ErrConflict
		}
	}
	sub.ChildID = accountID
	sub.UpdatedAt = now
	return true, nil
}

func (s *InMemory) ListExpired(_ context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Subscription
	for _, sub := range s.byID {
		if sub.Status == models.SubscriptionActive && sub.EndAt != nil && sub.EndAt.Before(now) {
			out = append(out, clone(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndAt.Before(*out[j].EndAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) ExpireBatch(_ context.Context, ids []id.SubscriptionID, now time.Time) ([]id.SubscriptionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]id.SubscriptionID, 0, len(ids))
	for _, subID := range ids {
		sub, ok := s.byID[subID]
		if !ok || sub.Status != models.SubscriptionActive || sub.EndAt == nil || !sub.EndAt.Before(now) {
			continue
		}
		sub.Status = models.SubscriptionExpired
		sub.PaymentStatus = models.PaymentFailed
		sub.IsActive = false
		sub.UpdatedAt = now
		expired = append(expired, subID)
	}
	return expired, nil
}

func clone(sub *models.Subscription) *models.Subscription {
	cp := *sub
	if sub.StartAt != nil {
		t := *sub.StartAt
		cp.StartAt = &t
	}
	if sub.EndAt != nil {
		t := *sub.EndAt
		cp.EndAt = &t
	}
	return &cp
}
