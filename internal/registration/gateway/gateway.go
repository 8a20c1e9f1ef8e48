// Package gateway talks to the hosted-checkout payment provider.
//
// Every call returns either a typed result or an *Error whose Category tells
// the caller what went wrong: a rejection, a provider failure, a timeout, a
// breaker short-circuit or the caller giving up.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	id "brightpath/pkg/domain"
)

// Gateway is the provider surface the registration workflow depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	Verify(ctx context.Context, transactionID string) (*Verification, error)
	VerifySignature(header string) bool
}

// Customer identifies the payer on the hosted checkout page.
type Customer struct {
	Email string
	Name  string
}

type OrderRequest struct {
	TxRef         string
	Amount        decimal.Decimal
	Currency      id.Currency
	PaymentMethod id.PaymentMethod
	RedirectURL   string
	Customer      Customer
	Title         string
}

type OrderResult struct {
	CheckoutURL     string
	ProviderOrderID string
}

// StatusSuccessful is the provider status of a settled charge.
const StatusSuccessful = "successful"

// Verification is the provider's authoritative view of a transaction.
type Verification struct {
	Success        bool
	ProviderStatus string
	TxRef          string
	Amount         decimal.Decimal
	Currency       id.Currency
	ExternalID     string
}

// Matches reports whether v settles an order for txRef of at least amount in
// currency.
func (v *Verification) Matches(txRef string, amount decimal.Decimal, currency id.Currency) bool {
	return v.Success &&
		v.TxRef == txRef &&
		v.Amount.GreaterThanOrEqual(amount) &&
		v.Currency == currency
}

// Category is the normalized failure taxonomy.
type Category string

const (
	CategoryTimeout     Category = "timeout"
	CategoryRejected    Category = "rejected"
	CategoryUnavailable Category = "unavailable"
	CategoryBadData     Category = "bad_data"
	CategoryCircuitOpen Category = "circuit_open"
	CategoryCancelled   Category = "cancelled"
)

// Error wraps provider failures with a category.
type Error struct {
	Category Category
	Op       string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s [%s]: %s: %v", e.Op, e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway %s [%s]: %s", e.Op, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(category Category, op, msg string, err error) *Error {
	return &Error{Category: category, Op: op, Message: msg, Err: err}
}

// CategoryOf extracts the category from err, or "" when err is not a gateway
// error.
func CategoryOf(err error) Category {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Category
	}
	return ""
}

// countsAsOutage reports whether err should trip the breaker. Rejections are
// the provider answering normally and a cancelled caller says nothing about
// the provider.
func countsAsOutage(err error) bool {
	switch CategoryOf(err) {
	case CategoryTimeout, CategoryUnavailable, CategoryBadData:
		return true
	}
	return false
}
