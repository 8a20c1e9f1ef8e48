package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/circuit"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// CallObserver receives one sample per provider call.
type CallObserver func(op, outcome string, elapsed time.Duration)

// FlutterwaveClient implements Gateway against the Flutterwave v3 REST API.
type FlutterwaveClient struct {
	baseURL     string
	secretKey   string
	webhookHash string
	timeout     time.Duration
	http        *http.Client
	breaker     *circuit.Breaker
	verifies    singleflight.Group
	tracer      trace.Tracer
	logger      *slog.Logger
	observe     CallObserver
}

type Option func(*FlutterwaveClient)

func WithHTTPClient(c *http.Client) Option {
	return func(f *FlutterwaveClient) {
		if c != nil {
			f.http = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *FlutterwaveClient) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(f *FlutterwaveClient) {
		if b != nil {
			f.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *FlutterwaveClient) {
		f.logger = logger
	}
}

func WithCallObserver(fn CallObserver) Option {
	return func(f *FlutterwaveClient) {
		f.observe = fn
	}
}

func NewFlutterwave(baseURL, secretKey, webhookHash string, opts ...Option) *FlutterwaveClient {
	c := &FlutterwaveClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		secretKey:   secretKey,
		webhookHash: webhookHash,
		timeout:     defaultTimeout,
		http:        &http.Client{},
		breaker:     circuit.New("flutterwave"),
		tracer:      otel.Tracer("brightpath/gateway"),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type paymentRequest struct {
	TxRef          string          `json:"tx_ref"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	RedirectURL    string          `json:"redirect_url"`
	PaymentOptions string          `json:"payment_options,omitempty"`
	Customer       struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
	} `json:"customer"`
	Customizations struct {
		Title string `json:"title,omitempty"`
	} `json:"customizations"`
}

type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type paymentLink struct {
	Link string `json:"link"`
}

type transaction struct {
	ID       json.Number     `json:"id"`
	TxRef    string          `json:"tx_ref"`
	FlwRef   string          `json:"flw_ref"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CreateOrder opens a hosted checkout and returns the payer's redirect URL.
func (c *FlutterwaveClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	const op = "create_order"
	ctx, span := c.tracer.Start(ctx, "gateway.CreateOrder", trace.WithAttributes(
		attribute.String("tx_ref", req.TxRef),
		attribute.String("currency", string(req.Currency)),
	))
	defer span.End()

	body := paymentRequest{
		TxRef:          req.TxRef,
		Amount:         req.Amount,
		Currency:       string(req.Currency),
		RedirectURL:    req.RedirectURL,
		PaymentOptions: string(req.PaymentMethod),
	}
	body.Customer.Email = req.Customer.Email
	body.Customer.Name = req.Customer.Name
	body.Customizations.Title = req.Title

	var out envelope[paymentLink]
	if err := c.call(ctx, op, http.MethodPost, "/v3/payments", body, &out); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if out.Data.Link == "" {
		err := newError(CategoryBadData, op, "response missing checkout link", nil)
		recordSpanError(span, err)
		return nil, err
	}
	return &OrderResult{CheckoutURL: out.Data.Link, ProviderOrderID: req.TxRef}, nil
}

// Verify asks the provider for the authoritative status of transactionID.
// Concurrent verifications of the same id share one request, which runs to
// completion even when the caller that started it goes away.
func (c *FlutterwaveClient) Verify(ctx context.Context, transactionID string) (*Verification, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, newError(CategoryRejected, "verify", "transaction id is required", nil)
	}
	ch := c.verifies.DoChan(transactionID, func() (any, error) {
		return c.verify(context.WithoutCancel(ctx), transactionID)
	})
	select {
	case <-ctx.Done():
		return nil, newError(CategoryCancelled, "verify", "request cancelled by caller", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Verification), nil
	}
}

func (c *FlutterwaveClient) verify(ctx context.Context, transactionID string) (*Verification, error) {
	const op = "verify"
	ctx, span := c.tracer.Start(ctx, "gateway.Verify", trace.WithAttributes(
		attribute.String("transaction_id", transactionID),
	))
	defer span.End()

	var out envelope[transaction]
	path := "/v3/transactions/" + url.PathEscape(transactionID) + "/verify"
	if err := c.call(ctx, op, http.MethodGet, path, nil, &out); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if out.Data.TxRef == "" {
		err := newError(CategoryBadData, op, "response missing tx_ref", nil)
		recordSpanError(span, err)
		return nil, err
	}
	status := strings.ToLower(out.Data.Status)
	span.SetAttributes(attribute.String("tx_ref", out.Data.TxRef), attribute.String("provider_status", status))
	return &Verification{
		Success:        strings.EqualFold(out.Status, "success") && status == StatusSuccessful,
		ProviderStatus: status,
		TxRef:          out.Data.TxRef,
		Amount:         out.Data.Amount,
		Currency:       id.Currency(strings.ToUpper(out.Data.Currency)),
		ExternalID:     out.Data.ID.String(),
	}, nil
}

// VerifySignature compares the webhook header against the configured secret
// in constant time. An unconfigured secret rejects every request.
func (c *FlutterwaveClient) VerifySignature(header string) bool {
	return constantTimeEqual(header, c.webhookHash)
}

func constantTimeEqual(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (c *FlutterwaveClient) call(ctx context.Context, op, method, path string, body, out any) (err error) {
	if !c.breaker.Allow() {
		c.record(op, "circuit_open", 0)
		return newError(CategoryCircuitOpen, op, "provider calls suspended", nil)
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(CategoryOf(err))
		}
		c.record(op, outcome, time.Since(start))
		c.trackBreaker(err)
	}()

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, mErr := json.Marshal(body)
		if mErr != nil {
			return newError(CategoryBadData, op, "encode request", mErr)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return newError(CategoryBadData, op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(parent, ctx, op, "provider request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transportError(parent, ctx, op, "read response", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return newError(CategoryUnavailable, op, fmt.Sprintf("provider returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return newError(CategoryRejected, op, rejectionMessage(raw, resp.StatusCode), nil)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return newError(CategoryBadData, op, "decode response", err)
	}
	return nil
}

// transportError classifies a failed round trip. parent is the caller's
// context and ctx the per-call one carrying the provider timeout.
func transportError(parent, ctx context.Context, op, msg string, err error) *Error {
	switch {
	case parent.Err() != nil:
		return newError(CategoryCancelled, op, "request cancelled by caller", err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newError(CategoryTimeout, op, "provider did not respond in time", err)
	}
	return newError(CategoryUnavailable, op, msg, err)
}

func rejectionMessage(raw []byte, status int) string {
	var e envelope[json.RawMessage]
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("provider returned %d", status)
}

func (c *FlutterwaveClient) trackBreaker(err error) {
	if CategoryOf(err) == CategoryCancelled {
		return
	}
	if err != nil && countsAsOutage(err) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.Warn("gateway circuit opened", "breaker", c.breaker.Name())
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("gateway circuit closed", "breaker", c.breaker.Name())
	}
}

func (c *FlutterwaveClient) record(op, outcome string, elapsed time.Duration) {
	if c.observe != nil {
		c.observe(op, outcome, elapsed)
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(CategoryOf(err)))
}
