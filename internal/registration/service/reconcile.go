package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"brightpath/internal/registration/gateway"
	"brightpath/internal/registration/models"
	dErrors "brightpath/pkg/domain-errors"
	"brightpath/pkg/platform/audit"
	"brightpath/pkg/platform/sentinel"
	"brightpath/pkg/requestcontext"
)

// TryActivate moves the subscription for txRef from PENDING to ACTIVE. A
// subscription that already left PENDING is reported with Activated=false
// and no error.
func (s *Service) TryActivate(ctx context.Context, txRef, externalID, channel string) (*models.ActivationResult, error) {
	ctx, span := s.tracer.Start(ctx, "registration.TryActivate", trace.WithAttributes(
		attribute.String("tx_ref", txRef),
		attribute.String("channel", channel),
	))
	defer span.End()

	sub, err := s.subscriptions.FindByTxRef(ctx, txRef)
	if err != nil {
		return nil, wrapStoreErr(err, "subscription not found", "failed to load subscription")
	}

	now := requestcontext.Now(ctx)
	start, end := sub.ValidityWindow(now)
	var activated bool
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		ok, err := s.subscriptions.TryActivate(txCtx, models.Activation{
			TxRef:      txRef,
			ExternalID: externalID,
			StartAt:    start,
			EndAt:      end,
			At:         now,
		})
		if err != nil {
			return err
		}
		activated = ok
		if !ok {
			return nil
		}
		return s.logAudit(txCtx, audit.EventSubscriptionActivated, audit.Event{
			PayerID:  sub.PayerID,
			Subject:  txRef,
			Decision: "activated",
			Channel:  channel,
		})
	})
	if err != nil {
		s.incActivation(channel, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "activation failed")
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "another paid subscription is awaiting registration for this draft")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate subscription")
	}

	if activated {
		s.incActivation(channel, "activated")
	} else {
		s.incActivation(channel, "already_processed")
		_ = s.logAudit(ctx, audit.EventActivationIgnored, audit.Event{
			PayerID:  sub.PayerID,
			Subject:  txRef,
			Decision: "already_processed",
			Channel:  channel,
		})
	}
	span.SetAttributes(attribute.Bool("activated", activated))

	current, err := s.subscriptions.FindByTxRef(ctx, txRef)
	if err != nil {
		return nil, wrapStoreErr(err, "subscription not found", "failed to reload subscription")
	}
	return &models.ActivationResult{Subscription: current, Activated: activated}, nil
}

// HandleWebhook processes a push notification. The signature is checked
// before the body is parsed; an invalid signature never mutates state.
func (s *Service) HandleWebhook(ctx context.Context, signature string, body []byte) error {
	if !s.gateway.VerifySignature(signature) {
		s.incActivation(ChannelPush, "rejected")
		_ = s.logAudit(ctx, audit.EventWebhookRejected, audit.Event{
			Decision: "rejected",
			Reason:   "invalid_signature",
			Channel:  ChannelPush,
		})
		return dErrors.New(dErrors.CodeUnauthorized, "invalid webhook signature")
	}

	payload, err := gateway.ParseWebhook(body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid webhook payload")
	}
	txRef := payload.Data.TxRef
	if !payload.Successful() {
		s.logger.InfoContext(ctx, "webhook acknowledged without activation",
			"tx_ref", txRef,
			"provider_status", payload.Data.Status,
			"event", payload.Event,
		)
		return nil
	}

	sub, err := s.subscriptions.FindByTxRef(ctx, txRef)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "webhook for unknown tx_ref", "tx_ref", txRef)
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscription")
	}
	if reason := webhookMismatch(payload, sub); reason != "" {
		s.incActivation(ChannelPush, "rejected")
		_ = s.logAudit(ctx, audit.EventWebhookRejected, audit.Event{
			PayerID:  sub.PayerID,
			Subject:  txRef,
			Decision: "rejected",
			Reason:   reason,
			Channel:  ChannelPush,
		})
		return nil
	}

	res, err := s.TryActivate(ctx, txRef, payload.Data.ID.String(), ChannelPush)
	if err != nil {
		return err
	}
	if res.Activated {
		s.autoFinalize(ctx, res.Subscription)
		return nil
	}
	if res.Subscription.Status == models.SubscriptionFailed {
		s.paidAfterFailure(ctx, res.Subscription, payload.Data.ID.String())
	}
	return nil
}

// paidAfterFailure raises a settled charge for a subscription already
// marked FAILED for operator follow-up.
func (s *Service) paidAfterFailure(ctx context.Context, sub *models.Subscription, externalID string) {
	s.incActivation(ChannelPush, "paid_after_failure")
	s.logger.ErrorContext(ctx, "successful payment received for a failed subscription",
		"tx_ref", sub.TxRef,
		"transaction_id", externalID,
		"payer_id", sub.PayerID.String(),
	)
	_ = s.logAudit(ctx, audit.EventPaidAfterFailure, audit.Event{
		PayerID:  sub.PayerID,
		Subject:  sub.TxRef,
		Decision: "needs_review",
		Reason:   "paid_after_failure",
		Channel:  ChannelPush,
	})
}

// webhookMismatch compares the amount and currency announced by the push
// with the order. An empty result means the push is consistent.
func webhookMismatch(p *gateway.WebhookPayload, sub *models.Subscription) string {
	if !p.Data.Amount.IsPositive() || p.Data.Amount.LessThan(sub.Amount) {
		return "amount_mismatch"
	}
	if !strings.EqualFold(p.Data.Currency, string(sub.Currency)) {
		return "currency_mismatch"
	}
	return ""
}

// autoFinalize registers the learner right after a push activation. Failures
// are logged; the redirect or an explicit finalize call retries.
func (s *Service) autoFinalize(ctx context.Context, sub *models.Subscription) {
	if sub == nil || sub.DraftID.IsNil() {
		return
	}
	if _, _, err := s.finalize(ctx, sub.DraftID, sub.PayerID); err != nil {
		s.logger.WarnContext(ctx, "auto-finalize after webhook failed",
			"tx_ref", sub.TxRef,
			"draft_id", sub.DraftID.String(),
			"error", err,
		)
	}
}

// HandleRedirect processes the browser return from the hosted checkout. The
// transaction is verified server-to-server before activation, then the
// registration is finalized. The status query parameter is informational
// only; state changes follow the provider's answer.
func (s *Service) HandleRedirect(ctx context.Context, transactionID, txRef, status string) (*models.RedirectResult, error) {
	txRef = strings.TrimSpace(txRef)
	transactionID = strings.TrimSpace(transactionID)
	if txRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tx_ref is required")
	}

	sub, err := s.subscriptions.FindByTxRef(ctx, txRef)
	if err != nil {
		return nil, wrapStoreErr(err, "subscription not found", "failed to load subscription")
	}

	if transactionID == "" {
		s.logger.InfoContext(ctx, "redirect without transaction id",
			"tx_ref", txRef,
			"redirect_status", status,
		)
		return nil, dErrors.New(dErrors.CodeValidation, "transaction_id is required")
	}

	verification, err := s.gateway.Verify(ctx, transactionID)
	if err != nil {
		s.incActivation(ChannelRedirect, "error")
		return nil, dErrors.Wrap(err, dErrors.CodeExternalService, "payment provider could not verify the transaction")
	}
	if err := s.checkVerification(ctx, verification, sub); err != nil {
		return nil, err
	}

	if _, err := s.TryActivate(ctx, txRef, verification.ExternalID, ChannelRedirect); err != nil {
		return nil, err
	}

	acct, err := s.Finalize(ctx, sub.PayerID, sub.DraftID)
	if err != nil {
		return nil, err
	}
	return &models.RedirectResult{
		Status:    models.RedirectCompleted,
		TxRef:     txRef,
		AccountID: acct.ID,
	}, nil
}

// checkVerification accepts v only when it settles sub in full. The
// subscription is marked FAILED only for a terminal provider failure of its
// own transaction; every other rejection leaves it PENDING for the push or a
// retry to settle.
func (s *Service) checkVerification(ctx context.Context, v *gateway.Verification, sub *models.Subscription) error {
	if v.Matches(sub.TxRef, sub.Amount, sub.Currency) {
		return nil
	}
	s.incActivation(ChannelRedirect, "rejected")
	reason := verificationFailure(v, sub)
	s.logger.WarnContext(ctx, "redirect verification rejected",
		"tx_ref", sub.TxRef,
		"verified_tx_ref", v.TxRef,
		"provider_status", v.ProviderStatus,
		"reason", reason,
	)

	switch {
	case v.TxRef != sub.TxRef:
		return dErrors.New(dErrors.CodeValidation, "transaction does not belong to this order")
	case v.Success:
		_ = s.logAudit(ctx, audit.EventPaymentRejected, audit.Event{
			PayerID:  sub.PayerID,
			Subject:  sub.TxRef,
			Decision: "rejected",
			Reason:   reason,
			Channel:  ChannelRedirect,
		})
		return dErrors.New(dErrors.CodeConflict, "payment does not match the order")
	case terminalFailure(v.ProviderStatus):
		s.markFailed(ctx, sub, reason)
		return dErrors.New(dErrors.CodeConflict, "payment was not completed")
	default:
		return dErrors.New(dErrors.CodeConflict, "payment is not yet confirmed")
	}
}

// terminalFailure reports whether the provider will never settle a
// transaction in this status.
func terminalFailure(providerStatus string) bool {
	switch strings.ToLower(providerStatus) {
	case "failed", "cancelled":
		return true
	}
	return false
}

func verificationFailure(v *gateway.Verification, sub *models.Subscription) string {
	switch {
	case v.TxRef != sub.TxRef:
		return "tx_ref_mismatch"
	case !v.Success:
		return "provider_status_" + v.ProviderStatus
	case v.Currency != sub.Currency:
		return "currency_mismatch"
	default:
		return "amount_mismatch"
	}
}

// markFailed moves a PENDING subscription to FAILED. Subscriptions in any
// other state are left alone.
func (s *Service) markFailed(ctx context.Context, sub *models.Subscription, reason string) {
	ok, err := s.subscriptions.MarkFailed(ctx, sub.TxRef, requestcontext.Now(ctx))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark subscription failed", "tx_ref", sub.TxRef, "error", err)
		return
	}
	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.IncPaymentFailed()
	}
	_ = s.logAudit(ctx, audit.EventPaymentFailed, audit.Event{
		PayerID:  sub.PayerID,
		Subject:  sub.TxRef,
		Decision: "failed",
		Reason:   reason,
		Channel:  ChannelRedirect,
	})
}

// MarkPaid is the operator override: it activates txRef without asking the
// provider.
func (s *Service) MarkPaid(ctx context.Context, txRef, actor string) (*models.ActivationResult, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tx_ref is required")
	}
	res, err := s.TryActivate(ctx, txRef, "", ChannelManual)
	if err != nil {
		return nil, err
	}
	decision := "activated"
	if !res.Activated {
		decision = "already_processed"
	}
	_ = s.logAudit(ctx, audit.EventManualActivation, audit.Event{
		PayerID:  res.Subscription.PayerID,
		Subject:  txRef,
		Decision: decision,
		Channel:  ChannelManual,
		ActorID:  actor,
	})
	return res, nil
}

func (s *Service) incActivation(channel, outcome string) {
	if s.metrics != nil {
		s.metrics.IncActivation(channel, outcome)
	}
}
