//go:build integration

package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"brightpath/internal/registration/models"
	"brightpath/internal/registration/store/account"
	"brightpath/internal/registration/store/draft"
	"brightpath/internal/registration/store/subscription"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
	"brightpath/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres      *containers.PostgresContainer
	drafts        *draft.PostgresStore
	subscriptions *subscription.PostgresStore
	store         *account.PostgresStore
	now           time.Time
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
	s.store = account.NewPostgres(db)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"ledger_transactions", "learner_profiles", "accounts", "subscriptions", "registration_drafts")
	s.Require().NoError(err)
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

// paidDraft persists a draft and an active subscription for it.
func (s *PostgresStoreSuite) paidDraft(username string) (*models.Draft, *models.Subscription) {
	ctx := context.Background()
	payerID := id.PayerID(uuid.New())
	d, err := models.NewDraft(id.DraftID(uuid.New()), payerID, models.Applicant{
		FirstName: "Ada", LastName: "Uwase", Age: 10, Grade: "P5", Username: username,
	}, "$2a$10$hash", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.drafts.Create(ctx, d))

	sub, err := models.NewPendingSubscription(id.SubscriptionID(uuid.New()), payerID, d.ID,
		models.NewTxRef(uuid.NewString()),
		models.OrderTerms{Amount: decimal.NewFromInt(20000), Currency: id.CurrencyRWF, PaymentMethod: id.PaymentMethodCard, ValidityDays: 30},
		"", "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.subscriptions.Create(ctx, sub))
	start, end := sub.ValidityWindow(s.now)
	_, err = s.subscriptions.TryActivate(ctx, models.Activation{TxRef: sub.TxRef, ExternalID: "flw-1", StartAt: start, EndAt: end, At: s.now})
	s.Require().NoError(err)
	return d, sub
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	d, sub := s.paidDraft("ada")
	acct, err := models.NewAccountFromDraft(id.AccountID(uuid.New()), d, sub, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, acct))

	got, err := s.store.FindByID(ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(sub.ID, got.SubscriptionID)
	s.Equal("ada", got.Username)
	s.Equal(d.CredentialHash, got.CredentialHash)

	_, err = s.store.FindByID(ctx, id.AccountID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestOneAccountPerSubscription() {
	ctx := context.Background()
	d, sub := s.paidDraft("ada")
	first, err := models.NewAccountFromDraft(id.AccountID(uuid.New()), d, sub, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, first))

	second, err := models.NewAccountFromDraft(id.AccountID(uuid.New()), d, sub, s.now)
	s.Require().NoError(err)
	second.Username = "someone-else"
	s.ErrorIs(s.store.Create(ctx, second), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestUsernameTaken() {
	ctx := context.Background()
	d, sub := s.paidDraft("ada")
	acct, err := models.NewAccountFromDraft(id.AccountID(uuid.New()), d, sub, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, acct))

	otherDraft, otherSub := s.paidDraft("ada")
	clash, err := models.NewAccountFromDraft(id.AccountID(uuid.New()), otherDraft, otherSub, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(ctx, clash), sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestPayerMismatchIsRejected() {
	d, _ := s.paidDraft("ada")
	_, otherSub := s.paidDraft("grace")
	clash, err := models.NewAccountFromDraft(id.AccountID(uuid.New()), d, otherSub, s.now)
	s.Require().Error(err)
	s.Nil(clash)
}
