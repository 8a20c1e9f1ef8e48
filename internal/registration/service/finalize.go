package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	dErrors "brightpath/pkg/domain-errors"
	"brightpath/pkg/platform/audit"
	"brightpath/pkg/platform/sentinel"
	"brightpath/pkg/requestcontext"
)

var (
	// errLostLinkRace aborts the finalize transaction when another caller
	// linked an account to the subscription first.
	errLostLinkRace = errors.New("subscription linked by a concurrent finalize")
	// errUsernameTaken is also what a concurrent finalize of the same draft
	// looks like, since both accounts carry the draft's username.
	errUsernameTaken = errors.New("username taken")
)

// Finalize turns the paid draft into a learner account. Repeated calls
// return the account created by the first one.
func (s *Service) Finalize(ctx context.Context, payerID id.PayerID, draftID id.DraftID) (*models.Account, error) {
	if payerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "payer_id is required")
	}
	if draftID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "draft_id is required")
	}
	acct, _, err := s.finalize(ctx, draftID, payerID)
	return acct, err
}

// finalize reports whether this call created the account.
func (s *Service) finalize(ctx context.Context, draftID id.DraftID, payerID id.PayerID) (*models.Account, bool, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Finalize", trace.WithAttributes(
		attribute.String("draft_id", draftID.String()),
	))
	defer span.End()

	acct, created, err := s.finalizeOnce(ctx, draftID, payerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize failed")
		s.incFinalize(finalizeOutcome(err))
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("created", created), attribute.String("account_id", acct.ID.String()))
	if created {
		s.incFinalize("created")
	} else {
		s.incFinalize("replayed")
	}
	return acct, created, nil
}

func (s *Service) finalizeOnce(ctx context.Context, draftID id.DraftID, payerID id.PayerID) (*models.Account, bool, error) {
	sub, err := s.subscriptions.FindForDraft(ctx, draftID)
	if err != nil {
		return nil, false, wrapStoreErr(err, "no subscription found for draft", "failed to load subscription")
	}
	if sub.PayerID != payerID {
		return nil, false, dErrors.New(dErrors.CodeNotFound, "no subscription found for draft")
	}
	if sub.HasChild() {
		acct, err := s.linkedAccount(ctx, sub)
		return acct, false, err
	}

	now := requestcontext.Now(ctx)
	if err := sub.CanFinalize(now); err != nil {
		return nil, false, err
	}

	draft, err := s.drafts.FindByID(ctx, draftID)
	if err != nil {
		return nil, false, wrapStoreErr(err, "draft not found", "failed to load draft")
	}

	var acct *models.Account
	created := false
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.subscriptions.FindByID(txCtx, sub.ID)
		if err != nil {
			return err
		}
		if current.HasChild() {
			acct, err = s.accounts.FindByID(txCtx, current.ChildID)
			return err
		}

		a, err := models.NewAccountFromDraft(id.AccountID(uuid.New()), draft, current, now)
		if err != nil {
			return translateInvariant(err)
		}
		if err := s.accounts.Create(txCtx, a); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				return errUsernameTaken
			case errors.Is(err, sentinel.ErrConflict):
				return errLostLinkRace
			}
			return err
		}

		linked, err := s.subscriptions.LinkChild(txCtx, current.ID, a.ID, now)
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return errLostLinkRace
			}
			return err
		}
		if !linked {
			return errLostLinkRace
		}

		if err := s.recordLedger(txCtx, current, a.ID, now); err != nil {
			return err
		}
		if err := s.logAudit(txCtx, audit.EventRegistrationFinalized, audit.Event{
			PayerID:  payerID,
			Subject:  a.ID.String(),
			Decision: "created",
			Reason:   current.TxRef,
		}); err != nil {
			return err
		}
		acct = a
		created = true
		return nil
	})

	switch {
	case errors.Is(err, errLostLinkRace), errors.Is(err, errUsernameTaken):
		reloaded, rErr := s.subscriptions.FindByID(ctx, sub.ID)
		if rErr != nil {
			return nil, false, dErrors.Wrap(rErr, dErrors.CodeInternal, "failed to reload subscription")
		}
		if !reloaded.HasChild() {
			if errors.Is(err, errUsernameTaken) {
				return nil, false, dErrors.New(dErrors.CodeConflict, "username is already taken")
			}
			return nil, false, dErrors.New(dErrors.CodeConflict, "subscription is no longer eligible for registration")
		}
		acct, err := s.linkedAccount(ctx, reloaded)
		return acct, false, err
	case err != nil:
		if _, coded := dErrors.CodeOf(err); coded {
			return nil, false, err
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to finalize registration")
	}

	if created {
		if s.metrics != nil {
			s.metrics.IncAccountCreated()
		}
		s.provisionProfile(ctx, acct)
	}
	return acct, created, nil
}

// recordLedger writes the single billing record for the registration.
func (s *Service) recordLedger(ctx context.Context, sub *models.Subscription, accountID id.AccountID, now time.Time) error {
	exists, err := s.ledger.ExistsFor(ctx, sub.PayerID, accountID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.ledger.InsertIfAbsent(ctx, models.NewLedgerTransaction(id.LedgerEntryID(uuid.New()), sub, accountID, now))
	return err
}

func (s *Service) linkedAccount(ctx context.Context, sub *models.Subscription) (*models.Account, error) {
	acct, err := s.accounts.FindByID(ctx, sub.ChildID)
	if err != nil {
		return nil, wrapStoreErr(err, "linked account not found", "failed to load linked account")
	}
	_ = s.logAudit(ctx, audit.EventFinalizeReplayed, audit.Event{
		PayerID:  sub.PayerID,
		Subject:  acct.ID.String(),
		Decision: "replayed",
	})
	return acct, nil
}

// provisionProfile creates the learner profile. The account is already
// committed, so failures are logged and not returned.
func (s *Service) provisionProfile(ctx context.Context, acct *models.Account) {
	if s.profiles == nil {
		return
	}
	err := s.profiles.Provision(ctx, &models.LearnerProfile{
		AccountID: acct.ID,
		Grade:     acct.Grade,
		CreatedAt: requestcontext.Now(ctx),
	})
	if err == nil {
		return
	}
	s.logger.WarnContext(ctx, "learner profile provisioning failed",
		"account_id", acct.ID.String(),
		"error", err,
	)
	_ = s.logAudit(ctx, audit.EventProvisioningFailed, audit.Event{
		PayerID: acct.PayerID,
		Subject: acct.ID.String(),
		Reason:  err.Error(),
	})
}

func finalizeOutcome(err error) string {
	code, ok := dErrors.CodeOf(err)
	if !ok {
		return "error"
	}
	switch code {
	case dErrors.CodeConflict:
		return "ineligible"
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeValidation:
		return "invalid"
	}
	return "error"
}

func (s *Service) incFinalize(outcome string) {
	if s.metrics != nil {
		s.metrics.IncFinalize(outcome)
	}
}
