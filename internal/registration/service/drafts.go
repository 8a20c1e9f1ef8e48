package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	dErrors "brightpath/pkg/domain-errors"
	"brightpath/pkg/platform/audit"
	"brightpath/pkg/platform/sentinel"
	"brightpath/pkg/requestcontext"
)

// CreateDraft validates the enrollment form, hashes the password and stores
// the draft for payerID.
func (s *Service) CreateDraft(ctx context.Context, payerID id.PayerID, req *models.CreateDraftRequest) (*models.Draft, error) {
	if payerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "payer is required")
	}
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	draft, err := models.NewDraft(id.DraftID(uuid.New()), payerID, req.Applicant(), hash, requestcontext.Now(ctx))
	if err != nil {
		return nil, translateInvariant(err)
	}
	if err := s.drafts.Create(ctx, draft); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save draft")
	}

	_ = s.logAudit(ctx, audit.EventDraftCreated, audit.Event{
		PayerID: payerID,
		Subject: draft.ID.String(),
	})
	return draft, nil
}

// GetDraft returns a draft owned by payerID. Drafts of other payers are
// reported as not found.
func (s *Service) GetDraft(ctx context.Context, payerID id.PayerID, draftID id.DraftID) (*models.Draft, error) {
	if draftID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "draft_id is required")
	}
	draft, err := s.drafts.FindByID(ctx, draftID)
	if err != nil {
		return nil, wrapStoreErr(err, "draft not found", "failed to load draft")
	}
	if !draft.BelongsTo(payerID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "draft not found")
	}
	return draft, nil
}

// GetSubscription returns the subscription for txRef when payerID owns it.
func (s *Service) GetSubscription(ctx context.Context, payerID id.PayerID, txRef string) (*models.Subscription, error) {
	if txRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tx_ref is required")
	}
	sub, err := s.subscriptions.FindByTxRef(ctx, txRef)
	if err != nil {
		return nil, wrapStoreErr(err, "subscription not found", "failed to load subscription")
	}
	if sub.PayerID != payerID {
		return nil, dErrors.New(dErrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

func wrapStoreErr(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}

func translateInvariant(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}
