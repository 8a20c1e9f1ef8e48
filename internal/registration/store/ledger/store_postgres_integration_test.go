//go:build integration

package ledger_test

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
	"brightpath/internal/registration/store/account"
	"brightpath/internal/registration/store/draft"
	"brightpath/internal/registration/store/ledger"
	"brightpath/internal/registration/store/subscription"
	id "brightpath/pkg/domain"
	"brightpath/pkg/testutil/containers"
)

// PostgresStoreSuite seeds the draft, subscription and account rows a
// ledger entry references.
type PostgresStoreSuite struct {
	suite.Suite
	postgres      *containers.PostgresContainer
	drafts        *draft.PostgresStore
	subscriptions *subscription.PostgresStore
	accounts      *account.PostgresStore
	ledger        *ledger.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	db := s.postgres.DB
	s.drafts = draft.NewPostgres(db)
	s.subscriptions = subscription.NewPostgres(db)
	s.accounts = account.NewPostgres(db)
	s.ledger = ledger.NewPostgres(db)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"ledger_transactions", "learner_profiles", "accounts", "subscriptions", "registration_drafts")
	s.Require().NoError(err)
}

// seed persists a draft, an active subscription and its account.
func (s *PostgresStoreSuite) seed(username string) (*models.Draft, *models.Subscription, *models.Account) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	payerID := id.PayerID(uuid.New())

	d, err := models.NewDraft(id.DraftID(uuid.New()), payerID, models.Applicant{
		FirstName: "Ada", LastName: "Uwase", Age: 10, Grade: "P5", Username: username,
	}, "$2a$10$hash", now)
	s.Require().NoError(err)
	s.Require().NoError(s.drafts.Create(ctx, d))

	sub, err := models.NewPendingSubscription(id.SubscriptionID(uuid.New()), payerID, d.ID,
		models.NewTxRef(uuid.NewString()),
		models.OrderTerms{Amount: decimal.NewFromInt(20000), Currency: id.CurrencyRWF, PaymentMethod: id.PaymentMethodCard, ValidityDays: 30},
		"", "", now)
	s.Require().NoError(err)
	s.Require().NoError(s.subscriptions.Create(ctx, sub))
	start, end := sub.ValidityWindow(now)
	_, err = s.subscriptions.TryActivate(ctx, models.Activation{TxRef: sub.TxRef, ExternalID: "flw-1", StartAt: start, EndAt: end, At: now})
	s.Require().NoError(err)

	acct, err := models.NewAccountFromDraft(id.AccountID(uuid.New()), d, sub, now)
	s.Require().NoError(err)
	s.Require().NoError(s.accounts.Create(ctx, acct))
	return d, sub, acct
}

// TestConcurrentLedgerInsert verifies one ledger row per payer and account.
func (s *PostgresStoreSuite) TestConcurrentLedgerInsert() {
	ctx := context.Background()
	_, sub, acct := s.seed("ada")

	const goroutines = 50
	var wg sync.WaitGroup
	var written atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := models.NewLedgerTransaction(id.LedgerEntryID(uuid.New()), sub, acct.ID, time.Now())
			ok, err := s.ledger.InsertIfAbsent(ctx, entry)
			if err == nil && ok {
				written.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), written.Load())

	exists, err := s.ledger.ExistsFor(ctx, sub.PayerID, acct.ID)
	s.Require().NoError(err)
	s.True(exists)

	entries, err := s.ledger.ListByPayer(ctx, sub.PayerID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.True(sub.Amount.Equal(entries[0].Amount))
}
