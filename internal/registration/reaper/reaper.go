// Package reaper expires elapsed subscriptions on a fixed interval and tells
// payers their access ended.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	regmetrics "brightpath/internal/registration/metrics"
	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/audit"
	"brightpath/pkg/platform/sentinel"
)

const (
	lockKey = "brightpath:reaper:lock"

	// maxBatchesPerTick bounds one pass; the rest waits for the next tick.
	maxBatchesPerTick = 50
)

type SubscriptionStore interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
	ExpireBatch(ctx context.Context, ids []id.SubscriptionID, now time.Time) ([]id.SubscriptionID, error)
}

type AccountReader interface {
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
}

type Notifier interface {
	SendExpiredSubscriptionEmail(ctx context.Context, recipient, name string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Result summarizes one pass.
type Result struct {
	Expired       int
	NotifyFailed  int
	Skipped       bool
	SkippedReason string
}

type Reaper struct {
	subscriptions  SubscriptionStore
	accounts       AccountReader
	notifier       Notifier
	locker         Locker
	auditPublisher AuditPublisher
	metrics        *regmetrics.Metrics
	logger         *slog.Logger
	interval       time.Duration
	batchSize      int
	concurrency    int
	lockTTL        time.Duration
	now            func() time.Time

	running atomic.Bool
}

type Option func(*Reaper)

func WithInterval(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Reaper) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithNotifyConcurrency caps parallel notifications per batch.
func WithNotifyConcurrency(n int) Option {
	return func(r *Reaper) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithLocker(l Locker) Option {
	return func(r *Reaper) {
		r.locker = l
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.lockTTL = d
		}
	}
}

func WithAccounts(a AccountReader) Option {
	return func(r *Reaper) {
		r.accounts = a
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(r *Reaper) {
		r.auditPublisher = p
	}
}

func WithMetrics(m *regmetrics.Metrics) Option {
	return func(r *Reaper) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		r.logger = logger
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		r.now = now
	}
}

func New(subs SubscriptionStore, notifier Notifier, opts ...Option) *Reaper {
	r := &Reaper{
		subscriptions: subs,
		notifier:      notifier,
		logger:        slog.Default(),
		interval:      time.Hour,
		batchSize:     200,
		concurrency:   8,
		lockTTL:       10 * time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.locker == nil {
		r.locker = NewMemoryLock()
	}
	return r
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. Overlapping calls in this process and
// sweeps held by other instances are skipped.
func (r *Reaper) RunOnce(ctx context.Context) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return r.skip(ctx, "in_progress"), nil
	}
	defer r.running.Store(false)

	release, ok, err := r.locker.TryLock(ctx, lockKey, r.lockTTL)
	if err != nil {
		r.skip(ctx, "lock_error")
		return Result{Skipped: true, SkippedReason: "lock_error"}, err
	}
	if !ok {
		return r.skip(ctx, "locked"), nil
	}
	defer func() {
		// Release even when ctx was cancelled mid-sweep.
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.WarnContext(ctx, "failed to release reaper lock", "error", err)
		}
	}()

	var res Result
	for range maxBatchesPerTick {
		expired, notifyFailed, more, err := r.sweepBatch(ctx)
		res.Expired += expired
		res.NotifyFailed += notifyFailed
		if err != nil {
			return res, err
		}
		if !more {
			break
		}
	}
	if res.Expired > 0 {
		r.logger.InfoContext(ctx, "expiry sweep finished",
			"expired", res.Expired,
			"notify_failed", res.NotifyFailed,
		)
	}
	return res, nil
}

func (r *Reaper) sweepBatch(ctx context.Context) (expired, notifyFailed int, more bool, err error) {
	now := r.now()
	candidates, err := r.subscriptions.ListExpired(ctx, now, r.batchSize)
	if err != nil {
		return 0, 0, false, err
	}
	if len(candidates) == 0 {
		return 0, 0, false, nil
	}

	ids := make([]id.SubscriptionID, len(candidates))
	for i, sub := range candidates {
		ids[i] = sub.ID
	}
	transitioned, err := r.subscriptions.ExpireBatch(ctx, ids, now)
	if err != nil {
		return 0, 0, false, err
	}
	if r.metrics != nil {
		r.metrics.AddExpired(len(transitioned))
	}

	done := make(map[id.SubscriptionID]bool, len(transitioned))
	for _, subID := range transitioned {
		done[subID] = true
	}
	var toNotify []*models.Subscription
	for _, sub := range candidates {
		if !done[sub.ID] {
			continue
		}
		r.audit(ctx, sub, now)
		toNotify = append(toNotify, sub)
	}

	notifyFailed = r.notifyAll(ctx, toNotify)
	more = len(candidates) == r.batchSize && len(transitioned) > 0
	return len(transitioned), notifyFailed, more, nil
}

// notifyAll sends expiry notices with bounded concurrency. One failure does
// not stop the others.
func (r *Reaper) notifyAll(ctx context.Context, subs []*models.Subscription) int {
	if r.notifier == nil || len(subs) == 0 {
		return 0
	}
	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			if err := r.notify(ctx, sub); err != nil {
				failed.Add(1)
				if r.metrics != nil {
					r.metrics.IncNotifyFailure()
				}
				r.logger.WarnContext(ctx, "expiry notification failed",
					"tx_ref", sub.TxRef,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}

func (r *Reaper) notify(ctx context.Context, sub *models.Subscription) error {
	if sub.PayerEmail == "" {
		return errors.New("subscription has no payer email")
	}
	return r.notifier.SendExpiredSubscriptionEmail(ctx, sub.PayerEmail, r.learnerName(ctx, sub))
}

func (r *Reaper) learnerName(ctx context.Context, sub *models.Subscription) string {
	if r.accounts == nil || !sub.HasChild() {
		return ""
	}
	acct, err := r.accounts.FindByID(ctx, sub.ChildID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			r.logger.WarnContext(ctx, "failed to load account for notification", "account_id", sub.ChildID.String(), "error", err)
		}
		return ""
	}
	return acct.FirstName
}

func (r *Reaper) audit(ctx context.Context, sub *models.Subscription, now time.Time) {
	ev := audit.Event{
		Action:    string(audit.EventSubscriptionExpired),
		Category:  audit.EventSubscriptionExpired.Category(),
		Timestamp: now,
		PayerID:   sub.PayerID,
		Subject:   sub.TxRef,
		Decision:  "expired",
		Channel:   "reaper",
	}
	r.logger.InfoContext(ctx, ev.Action,
		"log_type", "audit",
		"payer_id", sub.PayerID.String(),
		"subject", sub.TxRef,
	)
	if r.auditPublisher == nil {
		return
	}
	if err := r.auditPublisher.Emit(ctx, ev); err != nil {
		r.logger.ErrorContext(ctx, "failed to emit audit event", "event", ev.Action, "error", err)
	}
}

func (r *Reaper) skip(ctx context.Context, reason string) Result {
	if r.metrics != nil {
		r.metrics.IncSkippedTick(reason)
	}
	r.logger.InfoContext(ctx, "expiry sweep skipped", "reason", reason)
	return Result{Skipped: true, SkippedReason: reason}
}
