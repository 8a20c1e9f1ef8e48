// Package handler exposes the registration workflow over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"brightpath/internal/registration/gateway"
	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	dErrors "brightpath/pkg/domain-errors"
	"brightpath/pkg/platform/httputil"
	"brightpath/pkg/platform/middleware/admin"
	"brightpath/pkg/platform/middleware/auth"
	request "brightpath/pkg/platform/middleware/request"
	"brightpath/pkg/requestcontext"
)

// maxWebhookBytes caps push bodies; provider notifications are small.
const maxWebhookBytes = 64 << 10

// Service is the registration workflow as seen by the transport layer.
type Service interface {
	CreateDraft(ctx context.Context, payerID id.PayerID, req *models.CreateDraftRequest) (*models.Draft, error)
	GetDraft(ctx context.Context, payerID id.PayerID, draftID id.DraftID) (*models.Draft, error)
	InitiateOrder(ctx context.Context, payerID id.PayerID, draftID id.DraftID, method id.PaymentMethod) (*models.OrderResult, error)
	Finalize(ctx context.Context, payerID id.PayerID, draftID id.DraftID) (*models.Account, error)
	GetSubscription(ctx context.Context, payerID id.PayerID, txRef string) (*models.Subscription, error)
	HandleWebhook(ctx context.Context, signature string, body []byte) error
	HandleRedirect(ctx context.Context, transactionID, txRef, status string) (*models.RedirectResult, error)
	MarkPaid(ctx context.Context, txRef, actor string) (*models.ActivationResult, error)
}

type Handler struct {
	service    Service
	logger     *slog.Logger
	validator  auth.JWTValidator
	adminToken string
}

func New(service Service, logger *slog.Logger, validator auth.JWTValidator, adminToken string) *Handler {
	return &Handler{
		service:    service,
		logger:     logger,
		validator:  validator,
		adminToken: adminToken,
	}
}

// Register mounts the payer, provider and operator routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.validator, h.logger))
		r.Post("/v1/registrations/drafts", h.HandleCreateDraft)
		r.Get("/v1/registrations/drafts/{id}", h.HandleGetDraft)
		r.Post("/v1/payments/orders", h.HandleInitiateOrder)
		r.Post("/v1/registrations/finalize", h.HandleFinalize)
		r.Get("/v1/subscriptions/{txRef}", h.HandleGetSubscription)
	})

	// Provider-facing: authenticated by webhook signature or verified
	// server-to-server.
	r.Post("/v1/payments/webhook", h.HandleWebhook)
	r.Get("/v1/payments/callback", h.HandleCallback)

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		r.Post("/v1/admin/payments/mark-paid", h.HandleMarkPaid)
	})
}

func (h *Handler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateDraftRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	draft, err := h.service.CreateDraft(ctx, requestcontext.PayerID(ctx), req)
	if err != nil {
		h.writeFailure(ctx, w, "failed to create draft", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toDraftResponse(draft))
}

func (h *Handler) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	draftID, err := id.ParseDraftID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err)))
		return
	}
	draft, err := h.service.GetDraft(ctx, requestcontext.PayerID(ctx), draftID)
	if err != nil {
		h.writeFailure(ctx, w, "failed to load draft", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDraftResponse(draft))
}

func (h *Handler) HandleInitiateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.InitiateOrderRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	draftID, err := id.ParseDraftID(req.DraftID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err)))
		return
	}
	method, err := id.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err)))
		return
	}

	order, err := h.service.InitiateOrder(ctx, requestcontext.PayerID(ctx), draftID, method)
	if err != nil {
		h.writeFailure(ctx, w, "failed to initiate order", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.FinalizeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	draftID, err := id.ParseDraftID(req.DraftID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err)))
		return
	}
	acct, err := h.service.Finalize(ctx, requestcontext.PayerID(ctx), draftID)
	if err != nil {
		h.writeFailure(ctx, w, "failed to finalize registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (h *Handler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txRef := strings.TrimSpace(chi.URLParam(r, "txRef"))
	sub, err := h.service.GetSubscription(ctx, requestcontext.PayerID(ctx), txRef)
	if err != nil {
		h.writeFailure(ctx, w, "failed to load subscription", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// HandleWebhook acknowledges provider pushes. Only a bad signature, a
// malformed body or an internal failure produce a non-200 answer; the
// provider retries on 5xx.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read request body"))
		return
	}

	if err := h.service.HandleWebhook(ctx, r.Header.Get(gateway.SignatureHeader), body); err != nil {
		h.writeFailure(ctx, w, "webhook processing failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	res, err := h.service.HandleRedirect(ctx, q.Get("transaction_id"), q.Get("tx_ref"), q.Get("status"))
	if err != nil {
		h.writeFailure(ctx, w, "payment callback failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleMarkPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.MarkPaidRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.MarkPaid(ctx, req.TxRef, requestcontext.AdminActor(ctx))
	if err != nil {
		h.writeFailure(ctx, w, "manual activation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, markPaidResponse{
		Activated:    res.Activated,
		Subscription: toSubscriptionResponse(res.Subscription),
	})
}

// writeFailure logs client errors at warn and everything else at error
// before writing the mapped response.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	args := []any{"request_id", request.GetRequestID(ctx), "error", err}
	code, _ := dErrors.CodeOf(err)
	if httputil.StatusFor(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
	} else {
		h.logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}
