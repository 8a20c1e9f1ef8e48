package draft

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

// PostgresStore persists drafts in registration_drafts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, draft *models.Draft) error {
	query := `
		INSERT INTO registration_drafts (id, payer_id, first_name, last_name, age, grade, username, credential_hash, asset_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(draft.ID),
		uuid.UUID(draft.PayerID),
		draft.FirstName,
		draft.LastName,
		draft.Age,
		draft.Grade,
		draft.Username,
		draft.CredentialHash,
		draft.AssetRef,
		draft.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create draft: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, draftID id.DraftID) (*models.Draft, error) {
	query := `
		SELECT id, payer_id, first_name, last_name, age, grade, username, credential_hash, asset_ref, created_at
		FROM registration_drafts
		WHERE id = $1
	`
	var (
		d       models.Draft
		draftPK uuid.UUID
		payerID uuid.UUID
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(draftID)).Scan(
		&draftPK, &payerID, &d.FirstName, &d.LastName, &d.Age, &d.Grade, &d.Username, &d.CredentialHash, &d.AssetRef, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find draft by id: %w", err)
	}
	d.ID = id.DraftID(draftPK)
	d.PayerID = id.PayerID(payerID)
	return &d, nil
}
