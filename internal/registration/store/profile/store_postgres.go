package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
	txcontext "brightpath/pkg/platform/tx"
)

// PostgresStore persists learner profiles.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Provision(ctx context.Context, p *models.LearnerProfile) error {
	query := `
		INSERT INTO learner_profiles (account_id, grade, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO NOTHING
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, uuid.UUID(p.AccountID), p.Grade, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("provision learner profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAccount(ctx context.Context, accountID id.AccountID) (*models.LearnerProfile, error) {
	query := `SELECT account_id, grade, created_at FROM learner_profiles WHERE account_id = $1`
	var (
		p   models.LearnerProfile
		raw uuid.UUID
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(accountID)).Scan(&raw, &p.Grade, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find learner profile: %w", err)
	}
	p.AccountID = id.AccountID(raw)
	return &p, nil
}
