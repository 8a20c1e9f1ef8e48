package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) newPending(draftID id.DraftID) *models.Subscription {
	sub, err := models.NewPendingSubscription(
		id.SubscriptionID(uuid.New()),
		id.PayerID(uuid.New()),
		draftID,
		models.NewTxRef(uuid.NewString()),
		models.OrderTerms{
			Amount:        decimal.NewFromInt(20000),
			Currency:      id.CurrencyRWF,
			PaymentMethod: id.PaymentMethodCard,
			ValidityDays:  30,
		},
		"https://checkout.example/pay", "ord-1", s.now,
	)
	s.Require().NoError(err)
	return sub
}

func (s *InMemorySuite) activation(sub *models.Subscription, externalID string) models.Activation {
	start, end := sub.ValidityWindow(s.now)
	return models.Activation{TxRef: sub.TxRef, ExternalID: externalID, StartAt: start, EndAt: end, At: s.now}
}

func (s *InMemorySuite) TestCreateEnforcesUniqueness() {
	s.Run("duplicate tx_ref", func() {
		sub := s.newPending(id.DraftID(uuid.New()))
		s.Require().NoError(s.store.Create(s.ctx, sub))

		dup := s.newPending(id.DraftID(uuid.New()))
		dup.TxRef = sub.TxRef
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
	})

	s.Run("second pending order for the same draft", func() {
		draftID := id.DraftID(uuid.New())
		s.Require().NoError(s.store.Create(s.ctx, s.newPending(draftID)))
		s.ErrorIs(s.store.Create(s.ctx, s.newPending(draftID)), sentinel.ErrConflict)
	})
}

func (s *InMemorySuite) TestTryActivate() {
	s.Run("first activation wins, later ones are no-ops", func() {
		sub := s.newPending(id.DraftID(uuid.New()))
		s.Require().NoError(s.store.Create(s.ctx, sub))

		ok, err := s.store.TryActivate(s.ctx, s.activation(sub, "flw-1"))
		s.Require().NoError(err)
		s.True(ok)

		ok, err = s.store.TryActivate(s.ctx, s.activation(sub, "flw-2"))
		s.Require().NoError(err)
		s.False(ok)

		got, err := s.store.FindByTxRef(s.ctx, sub.TxRef)
		s.Require().NoError(err)
		s.Equal(models.SubscriptionActive, got.Status)
		s.Equal(models.PaymentCompleted, got.PaymentStatus)
		s.True(got.IsActive)
		s.Equal("flw-1", got.ExternalID)
		s.Require().NotNil(got.EndAt)
		s.Equal(s.now.Add(30*24*time.Hour), *got.EndAt)
	})

	s.Run("unknown tx_ref matches nothing", func() {
		ok, err := s.store.TryActivate(s.ctx, models.Activation{TxRef: "sub-missing", At: s.now})
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("concurrent activations transition exactly once", func() {
		sub := s.newPending(id.DraftID(uuid.New()))
		s.Require().NoError(s.store.Create(s.ctx, sub))

		const goroutines = 50
		var wg sync.WaitGroup
		var wins atomic.Int32
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.store.TryActivate(s.ctx, s.activation(sub, uuid.NewString()))
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), wins.Load())
	})
}

func (s *InMemorySuite) TestMarkFailedOnlyFromPending() {
	sub := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(s.ctx, sub))
	_, err := s.store.TryActivate(s.ctx, s.activation(sub, "flw-1"))
	s.Require().NoError(err)

	ok, err := s.store.MarkFailed(s.ctx, sub.TxRef, s.now)
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.store.FindByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(models.SubscriptionActive, got.Status)
}

func (s *InMemorySuite) TestLinkChildOnce() {
	sub := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(s.ctx, sub))

	ok, err := s.store.LinkChild(s.ctx, sub.ID, id.AccountID(uuid.New()), s.now)
	s.Require().NoError(err)
	s.False(ok, "pending subscription cannot be linked")

	_, err = s.store.TryActivate(s.ctx, s.activation(sub, "flw-1"))
	s.Require().NoError(err)

	first := id.AccountID(uuid.New())
	ok, err = s.store.LinkChild(s.ctx, sub.ID, first, s.now)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.LinkChild(s.ctx, sub.ID, id.AccountID(uuid.New()), s.now)
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.store.FindByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(first, got.ChildID)
}

func (s *InMemorySuite) TestFindForDraftPrefersLinkedThenActive() {
	draftID := id.DraftID(uuid.New())

	failed := s.newPending(draftID)
	s.Require().NoError(s.store.Create(s.ctx, failed))
	_, err := s.store.MarkFailed(s.ctx, failed.TxRef, s.now)
	s.Require().NoError(err)

	active := s.newPending(draftID)
	active.CreatedAt = s.now.Add(time.Minute)
	s.Require().NoError(s.store.Create(s.ctx, active))
	_, err = s.store.TryActivate(s.ctx, s.activation(active, "flw-1"))
	s.Require().NoError(err)

	newest := s.newPending(draftID)
	newest.CreatedAt = s.now.Add(time.Hour)
	s.Require().NoError(s.store.Create(s.ctx, newest))

	got, err := s.store.FindForDraft(s.ctx, draftID)
	s.Require().NoError(err)
	s.Equal(active.ID, got.ID)

	_, err = s.store.FindForDraft(s.ctx, id.DraftID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestExpiry() {
	elapsed := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(s.ctx, elapsed))
	_, err := s.store.TryActivate(s.ctx, s.activation(elapsed, "flw-1"))
	s.Require().NoError(err)

	pending := s.newPending(id.DraftID(uuid.New()))
	s.Require().NoError(s.store.Create(s.ctx, pending))

	later := s.now.Add(31 * 24 * time.Hour)
	due, err := s.store.ListExpired(s.ctx, later, 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(elapsed.ID, due[0].ID)

	expired, err := s.store.ExpireBatch(s.ctx, []id.SubscriptionID{elapsed.ID, pending.ID}, later)
	s.Require().NoError(err)
	s.Equal([]id.SubscriptionID{elapsed.ID}, expired)

	again, err := s.store.ExpireBatch(s.ctx, []id.SubscriptionID{elapsed.ID}, later)
	s.Require().NoError(err)
	s.Empty(again)

	got, err := s.store.FindByID(s.ctx, elapsed.ID)
	s.Require().NoError(err)
	s.Equal(models.SubscriptionExpired, got.Status)
	s.Equal(models.PaymentFailed, got.PaymentStatus)
	s.False(got.IsActive)

	untouched, err := s.store.FindByID(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(models.SubscriptionPending, untouched.Status)
}
