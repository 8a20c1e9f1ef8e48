package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"brightpath/internal/registration/gateway"
	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	dErrors "brightpath/pkg/domain-errors"
	"brightpath/pkg/platform/audit"
	"brightpath/pkg/platform/sentinel"
	"brightpath/pkg/requestcontext"
)

// InitiateOrder opens a hosted checkout for a draft and records the PENDING
// subscription. Nothing is persisted when the gateway refuses the order.
func (s *Service) InitiateOrder(ctx context.Context, payerID id.PayerID, draftID id.DraftID, method id.PaymentMethod) (*models.OrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "registration.InitiateOrder", trace.WithAttributes(
		attribute.String("draft_id", draftID.String()),
	))
	defer span.End()

	draft, err := s.GetDraft(ctx, payerID, draftID)
	if err != nil {
		return nil, err
	}
	if err := s.checkNoOpenOrder(ctx, draftID); err != nil {
		s.incOrderFailed("conflict")
		return nil, err
	}
	if method == "" {
		method = id.PaymentMethodCard
	}

	txRef := models.NewTxRef(uuid.NewString())
	span.SetAttributes(attribute.String("tx_ref", txRef))
	email := requestcontext.PayerEmail(ctx)

	order, err := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
		TxRef:         txRef,
		Amount:        s.cfg.Price,
		Currency:      s.cfg.Currency,
		PaymentMethod: method,
		RedirectURL:   s.cfg.RedirectURL,
		Customer:      gateway.Customer{Email: email, Name: draft.FirstName + " " + draft.LastName},
		Title:         s.cfg.OrderTitle,
	})
	if err != nil {
		s.incOrderFailed(string(gateway.CategoryOf(err)))
		_ = s.logAudit(ctx, audit.EventOrderRejected, audit.Event{
			PayerID: payerID,
			Subject: txRef,
			Reason:  string(gateway.CategoryOf(err)),
		})
		return nil, dErrors.Wrap(err, dErrors.CodeExternalService, "payment provider could not open the order")
	}

	sub, err := models.NewPendingSubscription(
		id.SubscriptionID(uuid.New()),
		payerID,
		draftID,
		txRef,
		models.OrderTerms{
			Amount:        s.cfg.Price,
			Currency:      s.cfg.Currency,
			PaymentMethod: method,
			ValidityDays:  s.cfg.ValidityDays,
		},
		order.CheckoutURL,
		order.ProviderOrderID,
		requestcontext.Now(ctx),
	)
	if err != nil {
		return nil, translateInvariant(err)
	}
	sub.PayerEmail = email

	if err := s.subscriptions.Create(ctx, sub); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// The hosted order stays unpaid on the provider side.
			s.incOrderFailed("conflict")
			return nil, dErrors.New(dErrors.CodeConflict, "a payment is already pending for this draft")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save subscription")
	}

	if s.metrics != nil {
		s.metrics.IncOrderCreated()
	}
	_ = s.logAudit(ctx, audit.EventOrderInitiated, audit.Event{
		PayerID: payerID,
		Subject: txRef,
	})
	return &models.OrderResult{
		SubscriptionID: sub.ID,
		TxRef:          txRef,
		CheckoutURL:    order.CheckoutURL,
	}, nil
}

// checkNoOpenOrder rejects drafts that are already registered, already paid,
// or awaiting a payment.
func (s *Service) checkNoOpenOrder(ctx context.Context, draftID id.DraftID) error {
	existing, err := s.subscriptions.FindForDraft(ctx, draftID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscriptions for draft")
	}
	switch {
	case existing.HasChild():
		return dErrors.New(dErrors.CodeConflict, "draft is already registered")
	case existing.IsActiveUnlinked():
		return dErrors.New(dErrors.CodeConflict, "draft is already paid; finalize the registration")
	case existing.IsPending():
		return dErrors.New(dErrors.CodeConflict, "a payment is already pending for this draft")
	}
	return nil
}

func (s *Service) incOrderFailed(reason string) {
	if s.metrics != nil {
		s.metrics.IncOrderFailed(reason)
	}
}
