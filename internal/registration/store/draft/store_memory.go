package draft

import (
	"context"
	"sync"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
)

// InMemory keeps drafts in a map. Used by tests and local development.
type InMemory struct {
	mu     sync.RWMutex
	drafts map[id.DraftID]*models.Draft
}

func NewInMemory() *InMemory {
	return &InMemory{drafts: make(map[id.DraftID]*models.Draft)}
}

func (s *InMemory) Create(_ context.Context, draft *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.drafts[draft.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *draft
	s.drafts[draft.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, draftID id.DraftID) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[draftID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}
