package memory

import (
	"context"
	"sync"

	id "brightpath/pkg/domain"
	audit "brightpath/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.PayerID][]audit.Event
	order  []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.PayerID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.PayerID][]audit.Event)
	s.order = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.PayerID] = append(s.events[event.PayerID], event)
	s.order = append(s.order, event)
	return nil
}

func (s *InMemoryStore) ListByPayer(_ context.Context, payerID id.PayerID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[payerID]...), nil
}

// ListRecent returns up to limit events in append order, newest last.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.order) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.order[start:]...), nil
}

// CountAction returns how many events carry action. Used by workflow tests.
func (s *InMemoryStore) CountAction(action audit.AuditEvent) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.order {
		if e.Action == string(action) {
			n++
		}
	}
	return n
}
