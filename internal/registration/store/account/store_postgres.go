package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"brightpath/internal/platform/postgres"
	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
	txcontext "brightpath/pkg/platform/tx"
)

// PostgresStore persists learner accounts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, acct *models.Account) error {
	query := `
		INSERT INTO accounts (id, subscription_id, payer_id, first_name, last_name, age, grade, username, credential_hash, asset_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(acct.ID),
		uuid.UUID(acct.SubscriptionID),
		uuid.UUID(acct.PayerID),
		acct.FirstName,
		acct.LastName,
		acct.Age,
		acct.Grade,
		acct.Username,
		acct.CredentialHash,
		acct.AssetRef,
		acct.CreatedAt,
	)
	if err != nil {
		switch {
		case postgres.IsUniqueViolation(err, "uq_accounts_username"):
			return sentinel.ErrAlreadyUsed
		case postgres.IsUniqueViolation(err, ""):
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	query := `
		SELECT id, subscription_id, payer_id, first_name, last_name, age, grade, username, credential_hash, asset_ref, created_at
		FROM accounts
		WHERE id = $1
	`
	var (
		acct    models.Account
		acctID  uuid.UUID
		subID   uuid.UUID
		payerID uuid.UUID
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(accountID)).Scan(
		&acctID, &subID, &payerID, &acct.FirstName, &acct.LastName, &acct.Age, &acct.Grade,
		&acct.Username, &acct.CredentialHash, &acct.AssetRef, &acct.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	acct.ID = id.AccountID(acctID)
	acct.SubscriptionID = id.SubscriptionID(subID)
	acct.PayerID = id.PayerID(payerID)
	return &acct, nil
}
