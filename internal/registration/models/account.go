package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "brightpath/pkg/domain"
	dErrors "brightpath/pkg/domain-errors"
)

// Account is the permanent learner account created from a paid draft.
type Account struct {
	ID             id.AccountID      `json:"id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	PayerID        id.PayerID        `json:"payer_id"`
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	Age            int               `json:"age"`
	Grade          string            `json:"grade"`
	Username       string            `json:"username"`
	CredentialHash string            `json:"-"`
	AssetRef       string            `json:"asset_ref,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewAccountFromDraft copies the applicant data of a draft into a new account
// bound to sub.
func NewAccountFromDraft(accountID id.AccountID, draft *Draft, sub *Subscription, now time.Time) (*Account, error) {
	if draft == nil || sub == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account requires draft and subscription")
	}
	if draft.PayerID != sub.PayerID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "draft and subscription belong to different payers")
	}
	return &Account{
		ID:             accountID,
		SubscriptionID: sub.ID,
		PayerID:        sub.PayerID,
		FirstName:      draft.FirstName,
		LastName:       draft.LastName,
		Age:            draft.Age,
		Grade:          draft.Grade,
		Username:       draft.Username,
		CredentialHash: draft.CredentialHash,
		AssetRef:       draft.AssetRef,
		CreatedAt:      now,
	}, nil
}

// LedgerTransaction is the single billing record written per registration.
// Unique on (PayerID, AccountID).
type LedgerTransaction struct {
	ID             id.LedgerEntryID  `json:"id"`
	PayerID        id.PayerID        `json:"payer_id"`
	AccountID      id.AccountID      `json:"account_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       id.Currency       `json:"currency"`
	TxRef          string            `json:"tx_ref"`
	ExternalID     string            `json:"external_id"`
	CreatedAt      time.Time         `json:"created_at"`
}

func NewLedgerTransaction(entryID id.LedgerEntryID, sub *Subscription, accountID id.AccountID, now time.Time) *LedgerTransaction {
	return &LedgerTransaction{
		ID:             entryID,
		PayerID:        sub.PayerID,
		AccountID:      accountID,
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		TxRef:          sub.TxRef,
		ExternalID:     sub.ExternalID,
		CreatedAt:      now,
	}
}

// LearnerProfile is the per-account learning profile provisioned after
// registration.
type LearnerProfile struct {
	AccountID id.AccountID `json:"account_id"`
	Grade     string       `json:"grade"`
	CreatedAt time.Time    `json:"created_at"`
}
