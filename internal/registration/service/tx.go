package service

import (
	"context"
	"sync"
	"time"

	dErrors "brightpath/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// inMemoryStoreTx serializes transactional sections with one lock. The
// in-memory stores cannot roll back, so every section re-reads state under
// the lock before writing.
type inMemoryStoreTx struct {
	mu      sync.Mutex
	timeout time.Duration
}

func newInMemoryStoreTx() *inMemoryStoreTx {
	return &inMemoryStoreTx{timeout: defaultTxTimeout}
}

type inTxKey struct{}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	// Nested calls reuse the held lock.
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(context.WithValue(ctx, inTxKey{}, struct{}{}))
}
