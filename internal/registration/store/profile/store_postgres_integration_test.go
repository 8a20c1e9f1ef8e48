//go:build integration

package profile_test

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
	"brightpath/internal/registration/store/profile"
	"brightpath/internal/registration/store/subscription"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
	"brightpath/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *profile.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = profile.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"ledger_transactions", "learner_profiles", "accounts", "subscriptions", "registration_drafts")
	s.Require().NoError(err)
}

// account persists the draft, subscription and account a profile hangs off.
func (s *PostgresStoreSuite) account() *models.Account {
	ctx := context.Background()
	db := s.postgres.DB
	now := time.Now().UTC().Truncate(time.Microsecond)
	payerID := id.PayerID(uuid.New())

	d, err := models.NewDraft(id.DraftID(uuid.New()), payerID, models.Applicant{
		FirstName: "Ada", LastName: "Uwase", Age: 10, Grade: "P5", Username: "ada",
	}, "$2a$10$hash", now)
	s.Require().NoError(err)
	s.Require().NoError(draft.NewPostgres(db).Create(ctx, d))

	subs := subscription.NewPostgres(db)
	sub, err := models.NewPendingSubscription(id.SubscriptionID(uuid.New()), payerID, d.ID,
		models.NewTxRef(uuid.NewString()),
		models.OrderTerms{Amount: decimal.NewFromInt(20000), Currency: id.CurrencyRWF, PaymentMethod: id.PaymentMethodCard, ValidityDays: 30},
		"", "", now)
	s.Require().NoError(err)
	s.Require().NoError(subs.Create(ctx, sub))
	start, end := sub.ValidityWindow(now)
	_, err = subs.TryActivate(ctx, models.Activation{TxRef: sub.TxRef, ExternalID: "flw-1", StartAt: start, EndAt: end, At: now})
	s.Require().NoError(err)

	acct, err := models.NewAccountFromDraft(id.AccountID(uuid.New()), d, sub, now)
	s.Require().NoError(err)
	s.Require().NoError(account.NewPostgres(db).Create(ctx, acct))
	return acct
}

func (s *PostgresStoreSuite) TestProvisionIsIdempotent() {
	ctx := context.Background()
	acct := s.account()
	p := &models.LearnerProfile{AccountID: acct.ID, Grade: acct.Grade, CreatedAt: time.Now().UTC()}

	s.Require().NoError(s.store.Provision(ctx, p))
	s.Require().NoError(s.store.Provision(ctx, p))

	got, err := s.store.FindByAccount(ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal("P5", got.Grade)
}

func (s *PostgresStoreSuite) TestFindMissing() {
	_, err := s.store.FindByAccount(context.Background(), id.AccountID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
