// Package worker relays outbox rows to Kafka.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"brightpath/pkg/platform/audit/store/postgres"
)

// Outbox hands out locked batches of unpublished rows.
type Outbox interface {
	RelayBatch(ctx context.Context, limit int, publish func(context.Context, []postgres.OutboxEntry) error) (int, error)
}

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Worker struct {
	outbox    Outbox
	producer  Producer
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(outbox Outbox, producer Producer, topic string, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		producer:  producer,
		topic:     topic,
		interval:  time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. A full batch is followed immediately by
// another attempt; otherwise the worker waits for the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		n, err := w.RelayOnce(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		if err == nil && n == w.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were published.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	return w.outbox.RelayBatch(ctx, w.batchSize, func(ctx context.Context, entries []postgres.OutboxEntry) error {
		records := make([]*kgo.Record, 0, len(entries))
		for _, e := range entries {
			records = append(records, &kgo.Record{
				Topic: w.topic,
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(e.EventType)},
					{Key: "aggregate_type", Value: []byte(e.AggregateType)},
					{Key: "outbox_id", Value: []byte(e.ID.String())},
				},
				Timestamp: e.CreatedAt,
			})
		}
		if err := w.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			return fmt.Errorf("produce outbox batch: %w", err)
		}
		return nil
	})
}
