package account

import (
	"context"
	"strings"
	"sync"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
)

type InMemory struct {
	mu             sync.RWMutex
	accounts       map[id.AccountID]*models.Account
	bySubscription map[id.SubscriptionID]id.AccountID
	byUsername     map[string]id.AccountID
}

func NewInMemory() *InMemory {
	return &InMemory{
		accounts:       make(map[id.AccountID]*models.Account),
		bySubscription: make(map[id.SubscriptionID]id.AccountID),
		byUsername:     make(map[string]id.AccountID),
	}
}

// Create rejects a second account for the same subscription with
// ErrConflict and a taken username with ErrAlreadyUsed.
func (s *InMemory) Create(_ context.Context, acct *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySubscription[acct.SubscriptionID]; exists {
		return sentinel.ErrConflict
	}
	username := strings.ToLower(acct.Username)
	if _, exists := s.byUsername[username]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *acct
	s.accounts[acct.ID] = &cp
	s.bySubscription[acct.SubscriptionID] = acct.ID
	s.byUsername[username] = acct.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

// Count returns the number of stored accounts.
func (s *InMemory) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
