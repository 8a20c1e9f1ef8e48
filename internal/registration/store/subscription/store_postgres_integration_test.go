//go:build integration

package subscription_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"brightpath/internal/registration/models"
	"brightpath/internal/registration/store/subscription"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
	"brightpath/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *subscription.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = subscription.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "ledger_transactions", "learner_profiles", "accounts", "subscriptions")
	s.Require().NoError(err)
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) newPending(draftID id.DraftID) *models.Subscription {
	sub, err := models.NewPendingSubscription(
		id.SubscriptionID(uuid.New()),
		id.PayerID(uuid.New()),
		draftID,
		models.NewTxRef(uuid.NewString()),
		models.OrderTerms{
			Amount:        decimal.RequireFromString("20000.00"),
			Currency:      id.CurrencyRWF,
			PaymentMethod: id.PaymentMethodMobileMoney,
			ValidityDays:  30,
		},
		"https://checkout.example/pay", "ord-1", s.now,
	)
	s.Require().NoError(err)
	sub.PayerEmail = "parent@example.com"
	return sub
}

func (s *PostgresStoreSuite) activate(sub *models.Subscription, externalID string) (bool, error) {
	start, end := sub.ValidityWindow(s.now)
	return s.store.TryActivate(context.Background(), models.Activation{
		TxRef: sub.TxRef, ExternalID: externalID, StartAt: start, EndAt: end, At: s.now,
	})
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	sub := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(ctx, sub))

	got, err := s.store.FindByTxRef(ctx, sub.TxRef)
	s.Require().NoError(err)
	s.Equal(sub.ID, got.ID)
	s.Equal(sub.DraftID, got.DraftID)
	s.Equal("parent@example.com", got.PayerEmail)
	s.True(sub.Amount.Equal(got.Amount))
	s.Equal(models.SubscriptionPending, got.Status)
	s.True(got.ChildID.IsNil())
	s.Nil(got.EndAt)

	_, err = s.store.FindByTxRef(ctx, "sub-unknown")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentPendingOrders verifies the partial unique index admits one
// PENDING subscription per draft.
func (s *PostgresStoreSuite) TestConcurrentPendingOrders() {
	ctx := context.Background()
	draftID := id.DraftID(uuid.New())
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, s.newPending(draftID))
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one order should be persisted")
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

// TestConcurrentActivation verifies one transition under contention and that
// the stored external id belongs to the winner.
func (s *PostgresStoreSuite) TestConcurrentActivation() {
	ctx := context.Background()
	sub := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(ctx, sub))

	const goroutines = 50
	var wg sync.WaitGroup
	var winCount atomic.Int32
	var winner atomic.Value
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ext := uuid.NewString()
			ok, err := s.activate(sub, ext)
			if err == nil && ok {
				winCount.Add(1)
				winner.Store(ext)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), winCount.Load())
	got, err := s.store.FindByTxRef(ctx, sub.TxRef)
	s.Require().NoError(err)
	s.Equal(models.SubscriptionActive, got.Status)
	s.Equal(models.PaymentCompleted, got.PaymentStatus)
	s.True(got.IsActive)
	s.Equal(winner.Load(), got.ExternalID)
}

func (s *PostgresStoreSuite) TestMarkFailedDoesNotOverrideActive() {
	ctx := context.Background()
	sub := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(ctx, sub))
	ok, err := s.activate(sub, "flw-1")
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.store.MarkFailed(ctx, sub.TxRef, s.now)
	s.Require().NoError(err)
	s.False(ok)
}

// TestConcurrentLinkChild verifies child_id is set exactly once.
func (s *PostgresStoreSuite) TestConcurrentLinkChild() {
	ctx := context.Background()
	sub := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(ctx, sub))
	_, err := s.activate(sub, "flw-1")
	s.Require().NoError(err)

	const goroutines = 50
	var wg sync.WaitGroup
	var winCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.LinkChild(ctx, sub.ID, id.AccountID(uuid.New()), s.now)
			if err == nil && ok {
				winCount.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), winCount.Load())
}

func (s *PostgresStoreSuite) TestFindForDraftPrefersActive() {
	ctx := context.Background()
	draftID := id.DraftID(uuid.New())

	active := s.newPending(draftID)
	s.Require().NoError(s.store.Create(ctx, active))
	_, err := s.activate(active, "flw-1")
	s.Require().NoError(err)

	newer := s.newPending(draftID)
	newer.CreatedAt = s.now.Add(time.Hour)
	s.Require().NoError(s.store.Create(ctx, newer))

	got, err := s.store.FindForDraft(ctx, draftID)
	s.Require().NoError(err)
	s.Equal(active.ID, got.ID)
}

func (s *PostgresStoreSuite) TestExpireBatchSkipsPending() {
	ctx := context.Background()
	elapsed := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(ctx, elapsed))
	_, err := s.activate(elapsed, "flw-1")
	s.Require().NoError(err)

	pending := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(ctx, pending))

	later := s.now.Add(31 * 24 * time.Hour)
	due, err := s.store.ListExpired(ctx, later, 100)
	s.Require().NoError(err)
	s.Require().Len(due, 1)

	expired, err := s.store.ExpireBatch(ctx, []id.SubscriptionID{elapsed.ID, pending.ID}, later)
	s.Require().NoError(err)
	s.Equal([]id.SubscriptionID{elapsed.ID}, expired)

	got, err := s.store.FindByID(ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(models.SubscriptionPending, got.Status)
}
