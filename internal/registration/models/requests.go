package models

import (
	"strings"

	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/validation"
)

// CreateDraftRequest is the payer's enrollment form.
type CreateDraftRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Age       int    `json:"age" validate:"gte=3,lte=18"`
	Grade     string `json:"grade" validate:"required,max=32"`
	Username  string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	AssetRef  string `json:"asset_ref" validate:"omitempty,max=512"`
}

func (r *CreateDraftRequest) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Grade = strings.TrimSpace(r.Grade)
	r.Username = strings.ToLower(strings.TrimSpace(r.Username))
	r.AssetRef = strings.TrimSpace(r.AssetRef)
}

func (r *CreateDraftRequest) Validate() error {
	return validation.Struct(r)
}

// Applicant returns the learner fields of the request.
func (r *CreateDraftRequest) Applicant() Applicant {
	return Applicant{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Age:       r.Age,
		Grade:     r.Grade,
		Username:  r.Username,
		AssetRef:  r.AssetRef,
	}
}

type InitiateOrderRequest struct {
	DraftID       string `json:"draft_id" validate:"required,uuid"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,max=32"`
}

func (r *InitiateOrderRequest) Normalize() {
	r.DraftID = strings.TrimSpace(r.DraftID)
	r.PaymentMethod = strings.ToLower(strings.TrimSpace(r.PaymentMethod))
}

func (r *InitiateOrderRequest) Validate() error {
	return validation.Struct(r)
}

type FinalizeRequest struct {
	DraftID string `json:"draft_id" validate:"required,uuid"`
}

func (r *FinalizeRequest) Normalize() {
	r.DraftID = strings.TrimSpace(r.DraftID)
}

func (r *FinalizeRequest) Validate() error {
	return validation.Struct(r)
}

type MarkPaidRequest struct {
	TxRef string `json:"tx_ref" validate:"required,startswith=sub-,max=64"`
}

func (r *MarkPaidRequest) Normalize() {
	r.TxRef = strings.TrimSpace(r.TxRef)
}

func (r *MarkPaidRequest) Validate() error {
	return validation.Struct(r)
}

// OrderResult is returned to the payer after an order is opened.
type OrderResult struct {
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	TxRef          string            `json:"tx_ref"`
	CheckoutURL    string            `json:"checkout_url"`
}

// ActivationResult reports the outcome of one confirmation.
type ActivationResult struct {
	Subscription *Subscription
	// Activated is false when another confirmation already moved the
	// subscription out of PENDING.
	Activated bool
}

// RedirectStatus values returned by the browser callback.
const (
	RedirectCompleted = "completed"
)

// RedirectResult is the JSON body of the browser callback.
type RedirectResult struct {
	Status    string       `json:"status"`
	TxRef     string       `json:"tx_ref"`
	AccountID id.AccountID `json:"account_id,omitzero"`
}
