package models

import (
	"strings"
	"time"

	id "brightpath/pkg/domain"
	dErrors "brightpath/pkg/domain-errors"
)

const (
	MinLearnerAge     = 3
	MaxLearnerAge     = 18
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 8
)

// Applicant is the learner data a payer submits before paying.
type Applicant struct {
	FirstName string
	LastName  string
	Age       int
	Grade     string
	Username  string
	// AssetRef is the storage key or URL of the uploaded profile image.
	AssetRef string
}

// Draft holds an unconfirmed enrollment until payment clears.
//
// Invariants:
//   - PayerID is set; only that payer may read or finalize the draft
//   - Age is within [MinLearnerAge, MaxLearnerAge]
//   - CredentialHash is a hash, never the raw password
//   - Drafts are immutable after creation
type Draft struct {
	ID             id.DraftID `json:"id"`
	PayerID        id.PayerID `json:"payer_id"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Age            int        `json:"age"`
	Grade          string     `json:"grade"`
	Username       string     `json:"username"`
	CredentialHash string     `json:"-"`
	AssetRef       string     `json:"asset_ref,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// BelongsTo reports whether payerID owns the draft.
func (d *Draft) BelongsTo(payerID id.PayerID) bool {
	return d.PayerID == payerID
}

func NewDraft(draftID id.DraftID, payerID id.PayerID, a Applicant, credentialHash string, now time.Time) (*Draft, error) {
	if payerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "draft requires a payer")
	}
	if strings.TrimSpace(a.FirstName) == "" || strings.TrimSpace(a.LastName) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "learner name is required")
	}
	if a.Age < MinLearnerAge || a.Age > MaxLearnerAge {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "learner age out of range")
	}
	if strings.TrimSpace(a.Grade) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "grade is required")
	}
	if n := len(a.Username); n < MinUsernameLength || n > MaxUsernameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username length out of range")
	}
	if credentialHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential hash is required")
	}
	return &Draft{
		ID:             draftID,
		PayerID:        payerID,
		FirstName:      strings.TrimSpace(a.FirstName),
		LastName:       strings.TrimSpace(a.LastName),
		Age:            a.Age,
		Grade:          strings.TrimSpace(a.Grade),
		Username:       a.Username,
		CredentialHash: credentialHash,
		AssetRef:       a.AssetRef,
		CreatedAt:      now,
	}, nil
}
