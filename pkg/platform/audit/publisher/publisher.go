// Package publisher emits audit events to an audit.Store.
//
// In synchronous mode every Emit blocks on the store. With WithAsyncBuffer,
// operations and security events are queued and written by a background
// goroutine, while compliance events are still written inline so a failed
// write fails the calling operation.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "brightpath/pkg/domain"
	audit "brightpath/pkg/platform/audit"
)

var ErrBufferFull = errors.New("audit buffer full")

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer chan queued
	wg     sync.WaitGroup
	once   sync.Once
}

type queued struct {
	ctx   context.Context
	event audit.Event
}

type Option func(*Publisher)

// WithAsyncBuffer enables background writes with a queue of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan queued, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. Timestamp and Category are filled when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.buffer == nil || event.Category == audit.CategoryCompliance {
		return p.store.Append(ctx, event)
	}

	// Detach from request cancellation; the write happens after the response.
	item := queued{ctx: context.WithoutCancel(ctx), event: event}
	select {
	case p.buffer <- item:
		return nil
	default:
	}
	select {
	case p.buffer <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, dropping event",
				"action", event.Action,
				"subject", event.Subject,
			)
		}
		return ErrBufferFull
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for item := range p.buffer {
		if err := p.store.Append(item.ctx, item.event); err != nil && p.logger != nil {
			p.logger.ErrorContext(item.ctx, "async audit write failed",
				"action", item.event.Action,
				"subject", item.event.Subject,
				"error", err,
			)
		}
	}
}

// List returns the events recorded for a payer.
func (p *Publisher) List(ctx context.Context, payerID id.PayerID) ([]audit.Event, error) {
	return p.store.ListByPayer(ctx, payerID)
}

// Close flushes queued events. Emit must not be called after Close.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
	return nil
}
