package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	txcontext "brightpath/pkg/platform/tx"
)

// PostgresStore persists billing records in ledger_transactions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ExistsFor(ctx context.Context, payerID id.PayerID, accountID id.AccountID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ledger_transactions WHERE payer_id = $1 AND account_id = $2)`
	var exists bool
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(payerID), uuid.UUID(accountID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ledger entry: %w", err)
	}
	return exists, nil
}

// InsertIfAbsent writes entry unless one already exists for the same payer
// and account. It reports whether a row was written.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, entry *models.LedgerTransaction) (bool, error) {
	query := `
		INSERT INTO ledger_transactions (id, payer_id, account_id, subscription_id, amount, currency, tx_ref, external_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (payer_id, account_id) DO NOTHING
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.PayerID),
		uuid.UUID(entry.AccountID),
		uuid.UUID(entry.SubscriptionID),
		entry.Amount,
		string(entry.Currency),
		entry.TxRef,
		entry.ExternalID,
		entry.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert ledger entry rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) ListByPayer(ctx context.Context, payerID id.PayerID) ([]*models.LedgerTransaction, error) {
	query := `
		SELECT id, payer_id, account_id, subscription_id, amount, currency, tx_ref, external_id, created_at
		FROM ledger_transactions
		WHERE payer_id = $1
		ORDER BY created_at
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(payerID))
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []*models.LedgerTransaction
	for rows.Next() {
		var (
			entry                           models.LedgerTransaction
			entryID, payer, account, subRef uuid.UUID
			currency                        string
		)
		if err := rows.Scan(&entryID, &payer, &account, &subRef, &entry.Amount, &currency, &entry.TxRef, &entry.ExternalID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.ID = id.LedgerEntryID(entryID)
		entry.PayerID = id.PayerID(payer)
		entry.AccountID = id.AccountID(account)
		entry.SubscriptionID = id.SubscriptionID(subRef)
		entry.Currency = id.Currency(currency)
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return out, nil
}
