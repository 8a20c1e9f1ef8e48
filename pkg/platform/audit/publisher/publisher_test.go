package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "brightpath/pkg/domain"
	audit "brightpath/pkg/platform/audit"
	"brightpath/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	payerID := id.PayerID(uuid.New())
	event := audit.Event{
		PayerID: payerID,
		Action:  string(audit.EventDraftCreated),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), payerID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventDraftCreated), events[0].Action)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	payerID := id.PayerID(uuid.New())
	err := pub.Emit(context.Background(), audit.Event{
		PayerID: payerID,
		Action:  string(audit.EventOrderInitiated),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, _ := pub.List(context.Background(), payerID)
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	payerID := id.PayerID(uuid.New())
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			PayerID: payerID,
			Action:  string(audit.EventActivationIgnored),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByPayer(context.Background(), payerID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

type failingStore struct{ audit.Store }

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("disk full")
}

func TestPublisher_ComplianceIsFailClosedInAsyncMode(t *testing.T) {
	pub := NewPublisher(failingStore{}, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		PayerID: id.PayerID(uuid.New()),
		Action:  string(audit.EventRegistrationFinalized),
	})
	require.Error(t, err)

	err = pub.Emit(context.Background(), audit.Event{
		PayerID: id.PayerID(uuid.New()),
		Action:  string(audit.EventOrderInitiated),
	})
	require.NoError(t, err, "operations events are queued")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	payerID := id.PayerID(uuid.New())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{
				PayerID: payerID,
				Action:  string(audit.EventOrderInitiated),
			})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	payerID := id.PayerID(uuid.New())

	before := time.Now()
	err := pub.Emit(context.Background(), audit.Event{
		PayerID: payerID,
		Action:  string(audit.EventSubscriptionActivated),
	})
	require.NoError(t, err)
	after := time.Now()

	events, err := pub.List(context.Background(), payerID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	payerID := id.PayerID(uuid.New())
	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), audit.Event{
		PayerID:   payerID,
		Action:    string(audit.EventSubscriptionExpired),
		Timestamp: customTime,
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), payerID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_MultipleEvents(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	payerID := id.PayerID(uuid.New())

	events := []audit.Event{
		{PayerID: payerID, Action: string(audit.EventDraftCreated)},
		{PayerID: payerID, Action: string(audit.EventOrderInitiated)},
		{PayerID: payerID, Action: string(audit.EventSubscriptionActivated)},
	}
	for _, event := range events {
		require.NoError(t, pub.Emit(context.Background(), event))
	}

	result, err := pub.List(context.Background(), payerID)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, string(audit.EventDraftCreated), result[0].Action)
	assert.Equal(t, string(audit.EventOrderInitiated), result[1].Action)
	assert.Equal(t, string(audit.EventSubscriptionActivated), result[2].Action)
}
