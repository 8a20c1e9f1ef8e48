package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"brightpath/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []postgres.OutboxEntry
	published []postgres.OutboxEntry
}

func (f *fakeOutbox) RelayBatch(ctx context.Context, limit int, publish func(context.Context, []postgres.OutboxEntry) error) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := min(limit, len(f.pending))
	batch := f.pending[:n]
	if n == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}
	f.published = append(f.published, batch...)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakeOutbox) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func entry(action string) postgres.OutboxEntry {
	return postgres.OutboxEntry{
		ID:            uuid.New(),
		AggregateType: "payer",
		AggregateID:   uuid.NewString(),
		EventType:     action,
		Payload:       []byte(`{"action":"` + action + `"}`),
		CreatedAt:     time.Now(),
	}
}

func TestRelayOnce(t *testing.T) {
	t.Run("publishes batch and marks rows", func(t *testing.T) {
		outbox := &fakeOutbox{pending: []postgres.OutboxEntry{entry("order_initiated"), entry("subscription_activated")}}
		producer := &fakeProducer{}
		w := NewWorker(outbox, producer, "audit-events", WithBatchSize(10))

		n, err := w.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Len(t, outbox.published, 2)
		require.Len(t, producer.records, 2)
		assert.Equal(t, "audit-events", producer.records[0].Topic)
		assert.Equal(t, []byte(outbox.published[0].AggregateID), producer.records[0].Key)
		assert.Equal(t, "event_type", producer.records[0].Headers[0].Key)
	})

	t.Run("producer failure leaves rows pending", func(t *testing.T) {
		outbox := &fakeOutbox{pending: []postgres.OutboxEntry{entry("order_initiated")}}
		w := NewWorker(outbox, &fakeProducer{err: errors.New("broker down")}, "audit-events")

		_, err := w.RelayOnce(context.Background())
		require.Error(t, err)
		assert.Len(t, outbox.pending, 1)
		assert.Empty(t, outbox.published)
	})

	t.Run("respects batch size", func(t *testing.T) {
		outbox := &fakeOutbox{pending: []postgres.OutboxEntry{entry("a"), entry("b"), entry("c")}}
		w := NewWorker(outbox, &fakeProducer{}, "audit-events", WithBatchSize(2))

		n, err := w.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Len(t, outbox.pending, 1)
	})
}

func TestRun_StopsOnCancel(t *testing.T) {
	outbox := &fakeOutbox{pending: []postgres.OutboxEntry{entry("a")}}
	w := NewWorker(outbox, &fakeProducer{}, "audit-events", WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return outbox.pendingCount() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
