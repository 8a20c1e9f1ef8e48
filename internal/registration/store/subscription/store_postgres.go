package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"brightpath/internal/platform/postgres"
	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
	txcontext "brightpath/pkg/platform/tx"
)

// PostgresStore persists subscriptions. Every state change is a conditional
// UPDATE whose RowsAffected tells the caller whether it won.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `
	id, payer_id, payer_email, draft_id, tx_ref, external_id, status, payment_status, child_id,
	amount, currency, payment_method, checkout_url, provider_order_id, validity_days,
	start_at, end_at, is_active, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(sub.ID),
		uuid.UUID(sub.PayerID),
		sub.PayerEmail,
		nullUUID(uuid.UUID(sub.DraftID)),
		sub.TxRef,
		nullString(sub.ExternalID),
		string(sub.Status),
		string(sub.PaymentStatus),
		nullUUID(uuid.UUID(sub.ChildID)),
		sub.Amount,
		string(sub.Currency),
		string(sub.PaymentMethod),
		sub.CheckoutURL,
		sub.ProviderOrderID,
		sub.ValidityDays,
		nullTime(sub.StartAt),
		nullTime(sub.EndAt),
		sub.IsActive,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, subID id.SubscriptionID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(subID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subscription by id: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) FindByTxRef(ctx context.Context, txRef string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE tx_ref = $1`
	sub, err := scanSubscription(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, txRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subscription by tx_ref: %w", err)
	}
	return sub, nil
}

// FindForDraft returns the subscription that governs a draft: one with a
// linked account first, then an active one, then the most recent.
func (s *PostgresStore) FindForDraft(ctx context.Context, draftID id.DraftID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE draft_id = $1
		ORDER BY (child_id IS NOT NULL) DESC, (status = 'ACTIVE') DESC, created_at DESC
		LIMIT 1
	`
	sub, err := scanSubscription(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(draftID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subscription for draft: %w", err)
	}
	return sub, nil
}

// TryActivate moves a PENDING subscription to ACTIVE. It reports false when
// no PENDING row matched, which callers treat as already processed.
func (s *PostgresStore) TryActivate(ctx context.Context, a models.Activation) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = 'ACTIVE',
			payment_status = 'COMPLETED',
			is_active = TRUE,
			external_id = $2,
			start_at = $3,
			end_at = $4,
			updated_at = $5
		WHERE tx_ref = $1 AND status = 'PENDING'
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, a.TxRef, nullString(a.ExternalID), a.StartAt, a.EndAt, a.At)
	if err != nil {
		if postgres.IsUniqueViolation(err, "uq_subscriptions_active_unlinked_draft") {
			return false, sentinel.ErrConflict
		}
		return false, fmt.Errorf("activate subscription: %w", err)
	}
	return affectedOne(res, "activate subscription")
}

// MarkFailed moves a PENDING subscription to FAILED. Rows in any other state
// are left untouched.
func (s *PostgresStore) MarkFailed(ctx context.Context, txRef string, now time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = 'FAILED', payment_status = 'FAILED', updated_at = $2
		WHERE tx_ref = $1 AND status = 'PENDING'
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, txRef, now)
	if err != nil {
		return false, fmt.Errorf("mark subscription failed: %w", err)
	}
	return affectedOne(res, "mark subscription failed")
}

// LinkChild sets child_id once. It reports false when another caller linked
// first or the subscription is no longer active.
func (s *PostgresStore) LinkChild(ctx context.Context, subID id.SubscriptionID, accountID id.AccountID, now time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET child_id = $2, updated_at = $3
		WHERE id = $1 AND child_id IS NULL AND status = 'ACTIVE'
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, uuid.UUID(subID), uuid.UUID(accountID), now)
	if err != nil {
		if postgres.IsUniqueViolation(err, "uq_subscriptions_child") {
			return false, sentinel.ErrConflict
		}
		return false, fmt.Errorf("link child account: %w", err)
	}
	return affectedOne(res, "link child account")
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'ACTIVE' AND end_at < $1
		ORDER BY end_at
		LIMIT $2
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired subscriptions: %w", err)
	}
	return out, nil
}

// ExpireBatch moves the given ACTIVE, elapsed subscriptions to EXPIRED and
// returns the ids this call transitioned.
func (s *PostgresStore) ExpireBatch(ctx context.Context, ids []id.SubscriptionID, now time.Time) ([]id.SubscriptionID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idStrings := make([]string, len(ids))
	for i, subID := range ids {
		idStrings[i] = subID.String()
	}
	query := `
		UPDATE subscriptions
		SET status = 'EXPIRED', payment_status = 'FAILED', is_active = FALSE, updated_at = $2
		WHERE id = ANY($1::uuid[]) AND status = 'ACTIVE' AND end_at < $2
		RETURNING id
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, pq.Array(idStrings), now)
	if err != nil {
		return nil, fmt.Errorf("expire subscriptions: %w", err)
	}
	defer rows.Close()

	expired := make([]id.SubscriptionID, 0, len(ids))
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		expired = append(expired, id.SubscriptionID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired ids: %w", err)
	}
	return expired, nil
}

type subscriptionRow interface {
	Scan(dest ...any) error
}

func scanSubscription(row subscriptionRow) (*models.Subscription, error) {
	var (
		sub           models.Subscription
		subID         uuid.UUID
		payerID       uuid.UUID
		draftID       uuid.NullUUID
		childID       uuid.NullUUID
		externalID    sql.NullString
		status        string
		paymentStatus string
		currency      string
		method        string
		startAt       sql.NullTime
		endAt         sql.NullTime
	)
	err := row.Scan(
		&subID, &payerID, &sub.PayerEmail, &draftID, &sub.TxRef, &externalID, &status, &paymentStatus, &childID,
		&sub.Amount, &currency, &method, &sub.CheckoutURL, &sub.ProviderOrderID, &sub.ValidityDays,
		&startAt, &endAt, &sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.ID = id.SubscriptionID(subID)
	sub.PayerID = id.PayerID(payerID)
	if draftID.Valid {
		sub.DraftID = id.DraftID(draftID.UUID)
	}
	if childID.Valid {
		sub.ChildID = id.AccountID(childID.UUID)
	}
	sub.ExternalID = externalID.String
	sub.Status = models.SubscriptionStatus(status)
	sub.PaymentStatus = models.PaymentStatus(paymentStatus)
	sub.Currency = id.Currency(currency)
	sub.PaymentMethod = id.PaymentMethod(method)
	if startAt.Valid {
		t := startAt.Time
		sub.StartAt = &t
	}
	if endAt.Valid {
		t := endAt.Time
		sub.EndAt = &t
	}
	return &sub, nil
}

func affectedOne(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n == 1, nil
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
