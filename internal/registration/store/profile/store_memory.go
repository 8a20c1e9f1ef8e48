package profile

import (
	"context"
	"sync"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	profiles map[id.AccountID]*models.LearnerProfile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[id.AccountID]*models.LearnerProfile)}
}

// Provision stores p unless the account already has a profile.
func (s *InMemory) Provision(_ context.Context, p *models.LearnerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.AccountID]; ok {
		return nil
	}
	cp := *p
	s.profiles[p.AccountID] = &cp
	return nil
}

func (s *InMemory) FindByAccount(_ context.Context, accountID id.AccountID) (*models.LearnerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
