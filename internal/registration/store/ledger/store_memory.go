package ledger

import (
	"context"
	"sync"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
)

type ledgerKey struct {
	payer   id.PayerID
	account id.AccountID
}

type InMemory struct {
	mu      sync.RWMutex
	entries map[ledgerKey]*models.LedgerTransaction
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[ledgerKey]*models.LedgerTransaction)}
}

func (s *InMemory) ExistsFor(_ context.Context, payerID id.PayerID, accountID id.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[ledgerKey{payer: payerID, account: accountID}]
	return ok, nil
}

func (s *InMemory) InsertIfAbsent(_ context.Context, entry *models.LedgerTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey{payer: entry.PayerID, account: entry.AccountID}
	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	cp := *entry
	s.entries[key] = &cp
	return true, nil
}

// ListByPayer returns every entry recorded for payerID.
func (s *InMemory) ListByPayer(_ context.Context, payerID id.PayerID) ([]*models.LedgerTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.LedgerTransaction
	for key, entry := range s.entries {
		if key.payer == payerID {
			cp := *entry
			out = append(out, &cp)
		}
	}
	return out, nil
}
