package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "brightpath/pkg/domain"
	dErrors "brightpath/pkg/domain-errors"
)

// TxRefPrefix starts every merchant transaction reference.
const TxRefPrefix = "sub-"

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionPending SubscriptionStatus = "PENDING"
	SubscriptionActive  SubscriptionStatus = "ACTIVE"
	SubscriptionExpired SubscriptionStatus = "EXPIRED"
	SubscriptionFailed  SubscriptionStatus = "FAILED"
)

func (s SubscriptionStatus) String() string { return string(s) }

// PaymentStatus tracks the money side of a subscription.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

func (s PaymentStatus) String() string { return string(s) }

// Subscription is the paid entitlement opened by a payment order.
//
// Invariants:
//   - TxRef is unique and immutable
//   - Status moves PENDING → ACTIVE | FAILED and ACTIVE → EXPIRED only, each
//     through a conditional update in the store
//   - ChildID is set at most once, from nil
//   - At most one PENDING and at most one ACTIVE-unlinked subscription per draft
type Subscription struct {
	ID              id.SubscriptionID  `json:"id"`
	PayerID         id.PayerID         `json:"payer_id"`
	PayerEmail      string             `json:"-"`
	DraftID         id.DraftID         `json:"draft_id"`
	TxRef           string             `json:"tx_ref"`
	ExternalID      string             `json:"external_id,omitempty"`
	Status          SubscriptionStatus `json:"status"`
	PaymentStatus   PaymentStatus      `json:"payment_status"`
	ChildID         id.AccountID       `json:"child_id"`
	Amount          decimal.Decimal    `json:"amount"`
	Currency        id.Currency        `json:"currency"`
	PaymentMethod   id.PaymentMethod   `json:"payment_method"`
	CheckoutURL     string             `json:"checkout_url,omitempty"`
	ProviderOrderID string             `json:"provider_order_id,omitempty"`
	ValidityDays    int                `json:"validity_days"`
	StartAt         *time.Time         `json:"start_at,omitempty"`
	EndAt           *time.Time         `json:"end_at,omitempty"`
	IsActive        bool               `json:"is_active"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// OrderTerms are the commercial parameters of a new order.
type OrderTerms struct {
	Amount        decimal.Decimal
	Currency      id.Currency
	PaymentMethod id.PaymentMethod
	ValidityDays  int
}

// NewTxRef builds a merchant reference from a fresh identifier.
func NewTxRef(u string) string {
	return TxRefPrefix + u
}

// NewPendingSubscription builds the PENDING record persisted after the
// gateway accepts an order.
func NewPendingSubscription(subID id.SubscriptionID, payerID id.PayerID, draftID id.DraftID, txRef string, terms OrderTerms, checkoutURL, providerOrderID string, now time.Time) (*Subscription, error) {
	if payerID.IsNil() || draftID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subscription requires payer and draft")
	}
	if !strings.HasPrefix(txRef, TxRefPrefix) || len(txRef) == len(TxRefPrefix) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "malformed tx_ref")
	}
	if !terms.Amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "amount must be positive")
	}
	if !terms.Currency.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unsupported currency")
	}
	if terms.ValidityDays <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "validity must be positive")
	}
	return &Subscription{
		ID:              subID,
		PayerID:         payerID,
		DraftID:         draftID,
		TxRef:           txRef,
		Status:          SubscriptionPending,
		PaymentStatus:   PaymentPending,
		Amount:          terms.Amount,
		Currency:        terms.Currency,
		PaymentMethod:   terms.PaymentMethod,
		CheckoutURL:     checkoutURL,
		ProviderOrderID: providerOrderID,
		ValidityDays:    terms.ValidityDays,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// HasChild reports whether an account is already linked.
func (s *Subscription) HasChild() bool {
	return !s.ChildID.IsNil()
}

// IsPending reports whether the order is still awaiting confirmation.
func (s *Subscription) IsPending() bool {
	return s.Status == SubscriptionPending
}

// IsActiveUnlinked reports a paid subscription whose account is not yet created.
func (s *Subscription) IsActiveUnlinked() bool {
	return s.Status == SubscriptionActive && !s.HasChild()
}

// ValidityWindow returns the period that starts at activation.
func (s *Subscription) ValidityWindow(activatedAt time.Time) (time.Time, time.Time) {
	return activatedAt, activatedAt.Add(time.Duration(s.ValidityDays) * 24 * time.Hour)
}

// CanFinalize checks that the subscription is paid, active and within its
// validity window.
func (s *Subscription) CanFinalize(now time.Time) error {
	if s.Status != SubscriptionActive {
		return dErrors.New(dErrors.CodeConflict, "subscription is not active")
	}
	if s.PaymentStatus != PaymentCompleted {
		return dErrors.New(dErrors.CodeConflict, "payment is not completed")
	}
	if !s.IsActive {
		return dErrors.New(dErrors.CodeConflict, "subscription is not active")
	}
	if s.EndAt != nil && !now.Before(*s.EndAt) {
		return dErrors.New(dErrors.CodeConflict, "subscription has expired")
	}
	return nil
}

// Activation carries the fields written by the PENDING → ACTIVE transition.
type Activation struct {
	TxRef      string
	ExternalID string
	StartAt    time.Time
	EndAt      time.Time
	At         time.Time
}
