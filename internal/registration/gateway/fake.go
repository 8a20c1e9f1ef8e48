package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	id "brightpath/pkg/domain"
)

// Fake is an in-process Gateway for local development and tests. Orders are
// recorded; transactions become verifiable once Settle is called.
type Fake struct {
	mu           sync.Mutex
	checkoutBase string
	webhookHash  string
	orders       map[string]OrderRequest
	transactions map[string]*Verification
	createErr    error
	verifyErr    error
	createCalls  int
	verifyCalls  int
}

func NewFake(checkoutBase, webhookHash string) *Fake {
	return &Fake{
		checkoutBase: strings.TrimRight(checkoutBase, "/"),
		webhookHash:  webhookHash,
		orders:       make(map[string]OrderRequest),
		transactions: make(map[string]*Verification),
	}
}

func (f *Fake) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if err := ctx.Err(); err != nil {
		return nil, newError(CategoryCancelled, "create_order", "request cancelled", err)
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.orders[req.TxRef] = req
	return &OrderResult{
		CheckoutURL:     f.checkoutBase + "/checkout/" + req.TxRef,
		ProviderOrderID: req.TxRef,
	}, nil
}

func (f *Fake) Verify(ctx context.Context, transactionID string) (*Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if err := ctx.Err(); err != nil {
		return nil, newError(CategoryCancelled, "verify", "request cancelled", err)
	}
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	v, ok := f.transactions[transactionID]
	if !ok {
		return nil, newError(CategoryRejected, "verify", "no transaction was found for this id", nil)
	}
	cp := *v
	return &cp, nil
}

func (f *Fake) VerifySignature(header string) bool {
	return constantTimeEqual(header, f.webhookHash)
}

// Settle records the outcome of a payment for txRef under transactionID.
func (f *Fake) Settle(txRef, transactionID, status string, amount decimal.Decimal, currency id.Currency) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status = strings.ToLower(status)
	f.transactions[transactionID] = &Verification{
		Success:        status == StatusSuccessful,
		ProviderStatus: status,
		TxRef:          txRef,
		Amount:         amount,
		Currency:       currency,
		ExternalID:     transactionID,
	}
}

// SettleOrder settles a previously created order for its full amount.
func (f *Fake) SettleOrder(txRef, transactionID string) bool {
	f.mu.Lock()
	order, ok := f.orders[txRef]
	f.mu.Unlock()
	if !ok {
		return false
	}
	f.Settle(txRef, transactionID, StatusSuccessful, order.Amount, order.Currency)
	return true
}

func (f *Fake) FailCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

func (f *Fake) FailVerify(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyErr = err
}

// Order returns the request recorded for txRef.
func (f *Fake) Order(txRef string) (OrderRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[txRef]
	return o, ok
}

func (f *Fake) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func (f *Fake) VerifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls
}
