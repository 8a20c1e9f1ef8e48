package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"brightpath/internal/registration/gateway"
	"brightpath/internal/registration/handler/mocks"
	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	dErrors "brightpath/pkg/domain-errors"
	"brightpath/pkg/platform/middleware/admin"
	"brightpath/pkg/platform/middleware/auth"
	"brightpath/pkg/testutil"
)

const adminToken = "ops-token"

type stubValidator struct {
	payer id.PayerID
}

func (v stubValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	if token != "good" {
		return nil, errors.New("invalid token")
	}
	return &auth.JWTClaims{PayerID: v.payer.String(), Email: "parent@example.com"}, nil
}

type HandlerSuite struct {
	suite.Suite
	payer   id.PayerID
	service *mocks.MockService
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.payer = id.PayerID(uuid.New())
	s.service = mocks.NewMockService(ctrl)

	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), stubValidator{payer: s.payer}, adminToken)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) authed(req *http.Request) *http.Request {
	return testutil.WithBearer(req, "good")
}

func (s *HandlerSuite) TestPayerRoutesRequireToken() {
	for _, path := range []string{"/v1/registrations/drafts", "/v1/payments/orders", "/v1/registrations/finalize"} {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	}
}

func (s *HandlerSuite) TestCreateDraft() {
	s.Run("created", func() {
		draft := &models.Draft{ID: id.DraftID(uuid.New()), PayerID: s.payer, FirstName: "Ada", Username: "ada10", CredentialHash: "secret-hash"}
		s.service.EXPECT().CreateDraft(gomock.Any(), s.payer, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.PayerID, req *models.CreateDraftRequest) (*models.Draft, error) {
				s.Equal("ada10", req.Username)
				return draft, nil
			})

		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/registrations/drafts", map[string]any{
			"first_name": "Ada", "last_name": "Uwase", "age": 10, "grade": "P5",
			"username": "ADA10", "password": "correct-horse",
		}))
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		s.NotContains(rr.Body.String(), "secret-hash")
		s.NotContains(rr.Body.String(), "correct-horse")
		testutil.AssertJSONContains(s.T(), rr, "id", draft.ID.String())
	})

	s.Run("validation failure never reaches the service", func() {
		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/registrations/drafts", map[string]any{
			"first_name": "Ada", "last_name": "Uwase", "age": 25, "grade": "P5",
			"username": "ada10", "password": "correct-horse",
		}))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("unknown fields are rejected", func() {
		req := s.authed(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/registrations/drafts", `{"nope":1}`))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
}

func (s *HandlerSuite) TestGetDraft() {
	draftID := id.DraftID(uuid.New())
	s.service.EXPECT().GetDraft(gomock.Any(), s.payer, draftID).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "draft not found"))

	rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/v1/registrations/drafts/"+draftID.String())))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))

	rr = testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/v1/registrations/drafts/not-a-uuid")))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *HandlerSuite) TestInitiateOrder() {
	draftID := id.DraftID(uuid.New())

	s.Run("returns the checkout url", func() {
		s.service.EXPECT().InitiateOrder(gomock.Any(), s.payer, draftID, id.PaymentMethodMobileMoney).
			Return(&models.OrderResult{TxRef: "sub-1", CheckoutURL: "https://checkout.test/sub-1"}, nil)

		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/payments/orders", map[string]string{
			"draft_id": draftID.String(), "payment_method": "MobileMoneyRwanda",
		}))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertJSONContains(s.T(), rr, "checkout_url", "https://checkout.test/sub-1")
	})

	s.Run("gateway failure maps to bad gateway", func() {
		s.service.EXPECT().InitiateOrder(gomock.Any(), s.payer, draftID, id.PaymentMethodCard).
			Return(nil, dErrors.New(dErrors.CodeExternalService, "payment provider could not open the order"))

		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/payments/orders", map[string]string{"draft_id": draftID.String()}))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadGateway, string(dErrors.CodeExternalService))
	})

	s.Run("unsupported payment method", func() {
		req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/payments/orders", map[string]string{
			"draft_id": draftID.String(), "payment_method": "barter",
		}))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestFinalize() {
	draftID := id.DraftID(uuid.New())
	acct := &models.Account{ID: id.AccountID(uuid.New()), Username: "ada10", CredentialHash: "secret-hash", CreatedAt: time.Now()}

	s.service.EXPECT().Finalize(gomock.Any(), s.payer, draftID).Return(acct, nil)
	req := s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/registrations/finalize", map[string]string{"draft_id": draftID.String()}))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.NotContains(rr.Body.String(), "secret-hash")
	testutil.AssertJSONContains(s.T(), rr, "account_id", acct.ID.String())

	s.service.EXPECT().Finalize(gomock.Any(), s.payer, draftID).
		Return(nil, dErrors.New(dErrors.CodeConflict, "subscription is not active"))
	req = s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/registrations/finalize", map[string]string{"draft_id": draftID.String()}))
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConflict))
}

func (s *HandlerSuite) TestGetSubscription() {
	sub := &models.Subscription{
		ID: id.SubscriptionID(uuid.New()), TxRef: "sub-abc", Status: models.SubscriptionActive,
		Amount: decimal.NewFromInt(20000), Currency: id.CurrencyRWF, PayerEmail: "parent@example.com",
	}
	s.service.EXPECT().GetSubscription(gomock.Any(), s.payer, "sub-abc").Return(sub, nil)

	rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/v1/subscriptions/sub-abc")))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.NotContains(rr.Body.String(), "parent@example.com")
	testutil.AssertJSONContains(s.T(), rr, "status", "ACTIVE")
}

func (s *HandlerSuite) TestWebhook() {
	body := `{"event":"charge.completed","data":{"id":1,"tx_ref":"sub-1","status":"successful"}}`

	s.Run("acknowledged", func() {
		s.service.EXPECT().HandleWebhook(gomock.Any(), "hash", []byte(body)).Return(nil)
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/payments/webhook", body)
		req.Header.Set(gateway.SignatureHeader, "hash")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("bad signature", func() {
		s.service.EXPECT().HandleWebhook(gomock.Any(), "", gomock.Any()).
			Return(dErrors.New(dErrors.CodeUnauthorized, "invalid webhook signature"))
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/payments/webhook", body)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})

	s.Run("internal failure lets the provider retry", func() {
		s.service.EXPECT().HandleWebhook(gomock.Any(), "hash", gomock.Any()).
			Return(dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "failed to activate subscription"))
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/payments/webhook", body)
		req.Header.Set(gateway.SignatureHeader, "hash")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
		s.NotContains(rr.Body.String(), "db down")
	})

	s.Run("oversized body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/payments/webhook", strings.Repeat("x", maxWebhookBytes+1))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestCallback() {
	accountID := id.AccountID(uuid.New())
	s.service.EXPECT().HandleRedirect(gomock.Any(), "5001", "sub-1", "successful").
		Return(&models.RedirectResult{Status: models.RedirectCompleted, TxRef: "sub-1", AccountID: accountID}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
		"/v1/payments/callback?transaction_id=5001&tx_ref=sub-1&status=successful"))
	testutil.AssertStatusOK(s.T(), rr)
	res := testutil.UnmarshalResponse[models.RedirectResult](s.T(), rr)
	s.Equal(models.RedirectCompleted, res.Status)
	s.Equal(accountID, res.AccountID)
}

func (s *HandlerSuite) TestMarkPaid() {
	s.Run("requires the admin token", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/payments/mark-paid", map[string]string{"tx_ref": "sub-1"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("activates with the operator as actor", func() {
		sub := &models.Subscription{TxRef: "sub-1", Status: models.SubscriptionActive}
		s.service.EXPECT().MarkPaid(gomock.Any(), "sub-1", "ops@example.com").
			Return(&models.ActivationResult{Subscription: sub, Activated: true}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/payments/mark-paid", map[string]string{"tx_ref": "sub-1"})
		req.Header.Set(admin.HeaderAdminToken, adminToken)
		req.Header.Set(admin.HeaderAdminActor, "ops@example.com")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "activated", true)
	})

	s.Run("rejects a malformed tx_ref", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/payments/mark-paid", map[string]string{"tx_ref": "order-1"})
		req.Header.Set(admin.HeaderAdminToken, adminToken)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}
