package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
)

type draftResponse struct {
	ID        id.DraftID `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Age       int        `json:"age"`
	Grade     string     `json:"grade"`
	Username  string     `json:"username"`
	AssetRef  string     `json:"asset_ref,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toDraftResponse(d *models.Draft) draftResponse {
	return draftResponse{
		ID:        d.ID,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Age:       d.Age,
		Grade:     d.Grade,
		Username:  d.Username,
		AssetRef:  d.AssetRef,
		CreatedAt: d.CreatedAt,
	}
}

type accountResponse struct {
	AccountID      id.AccountID      `json:"account_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Username       string            `json:"username"`
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	Grade          string            `json:"grade"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		AccountID:      a.ID,
		SubscriptionID: a.SubscriptionID,
		Username:       a.Username,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		Grade:          a.Grade,
		CreatedAt:      a.CreatedAt,
	}
}

type subscriptionResponse struct {
	ID            id.SubscriptionID         `json:"id"`
	DraftID       id.DraftID                `json:"draft_id"`
	TxRef         string                    `json:"tx_ref"`
	Status        models.SubscriptionStatus `json:"status"`
	PaymentStatus models.PaymentStatus      `json:"payment_status"`
	AccountID     id.AccountID              `json:"account_id,omitzero"`
	Amount        decimal.Decimal           `json:"amount"`
	Currency      id.Currency               `json:"currency"`
	CheckoutURL   string                    `json:"checkout_url,omitempty"`
	StartAt       *time.Time                `json:"start_at,omitempty"`
	EndAt         *time.Time                `json:"end_at,omitempty"`
	IsActive      bool                      `json:"is_active"`
}

func toSubscriptionResponse(s *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:            s.ID,
		DraftID:       s.DraftID,
		TxRef:         s.TxRef,
		Status:        s.Status,
		PaymentStatus: s.PaymentStatus,
		AccountID:     s.ChildID,
		Amount:        s.Amount,
		Currency:      s.Currency,
		CheckoutURL:   s.CheckoutURL,
		StartAt:       s.StartAt,
		EndAt:         s.EndAt,
		IsActive:      s.IsActive,
	}
}

type markPaidResponse struct {
	Activated    bool                 `json:"activated"`
	Subscription subscriptionResponse `json:"subscription"`
}
