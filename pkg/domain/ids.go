package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "brightpath/pkg/domain-errors"
)

// Typed identifiers. Each is a distinct named type over uuid.UUID so a draft id
// can never be passed where an account id is expected.
type (
	PayerID        uuid.UUID
	DraftID        uuid.UUID
	SubscriptionID uuid.UUID
	AccountID      uuid.UUID
	LedgerEntryID  uuid.UUID
)

// maxIDLength bounds input before it reaches uuid.Parse. The longest accepted
// form is the braced/urn encoding (45 bytes).
const maxIDLength = 45

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" || strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength || !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return u, nil
}

func ParsePayerID(s string) (PayerID, error) {
	u, err := parseUUID("payer id", s)
	return PayerID(u), err
}

func ParseDraftID(s string) (DraftID, error) {
	u, err := parseUUID("draft id", s)
	return DraftID(u), err
}

func ParseSubscriptionID(s string) (SubscriptionID, error) {
	u, err := parseUUID("subscription id", s)
	return SubscriptionID(u), err
}

func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID("account id", s)
	return AccountID(u), err
}

func (id PayerID) String() string        { return uuid.UUID(id).String() }
func (id DraftID) String() string        { return uuid.UUID(id).String() }
func (id SubscriptionID) String() string { return uuid.UUID(id).String() }
func (id AccountID) String() string      { return uuid.UUID(id).String() }
func (id LedgerEntryID) String() string  { return uuid.UUID(id).String() }

func (id PayerID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id DraftID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SubscriptionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AccountID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id LedgerEntryID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs serialize as plain UUID strings in JSON.
func (id PayerID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id DraftID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id SubscriptionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AccountID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id LedgerEntryID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
