package domain

import (
	"strings"

	dErrors "brightpath/pkg/domain-errors"
)

// Currency is an ISO 4217 code accepted by the payment gateway.
// Invariant: the value must be one of the supported currencies.
//
// Usage: construct via ParseCurrency at trust boundaries; direct casting
// bypasses validation.
type Currency string

const (
	CurrencyRWF Currency = "RWF"
	CurrencyUSD Currency = "USD"
	CurrencyKES Currency = "KES"
	CurrencyUGX Currency = "UGX"
	CurrencyNGN Currency = "NGN"
)

var validCurrencies = map[Currency]bool{
	CurrencyRWF: true,
	CurrencyUSD: true,
	CurrencyKES: true,
	CurrencyUGX: true,
	CurrencyNGN: true,
}

// ParseCurrency normalizes case and rejects unsupported codes with
// CodeInvalidInput.
func ParseCurrency(s string) (Currency, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "currency cannot be empty")
	}
	c := Currency(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported currency")
	}
	return c, nil
}

func (c Currency) IsValid() bool {
	return validCurrencies[c]
}

func (c Currency) String() string {
	return string(c)
}

// PaymentMethod is the checkout option the payer picked.
type PaymentMethod string

const (
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodMobileMoney PaymentMethod = "mobilemoneyrwanda"
	PaymentMethodBank        PaymentMethod = "banktransfer"
)

var validPaymentMethods = map[PaymentMethod]bool{
	PaymentMethodCard:        true,
	PaymentMethodMobileMoney: true,
	PaymentMethodBank:        true,
}

// ParsePaymentMethod defaults an empty value to card.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PaymentMethodCard, nil
	}
	m := PaymentMethod(s)
	if !validPaymentMethods[m] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported payment method")
	}
	return m, nil
}

func (m PaymentMethod) String() string {
	return string(m)
}
