package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SignatureHeader carries the shared webhook secret.
const SignatureHeader = "verif-hash"

// WebhookPayload is the push notification body.
type WebhookPayload struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

type WebhookData struct {
	ID       json.Number     `json:"id"`
	TxRef    string          `json:"tx_ref"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// ParseWebhook decodes and validates a push body. Call it only after the
// signature header has been verified.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	p.Data.TxRef = strings.TrimSpace(p.Data.TxRef)
	p.Data.Status = strings.ToLower(strings.TrimSpace(p.Data.Status))
	if p.Data.TxRef == "" {
		return nil, fmt.Errorf("webhook missing tx_ref")
	}
	if p.Data.ID.String() == "" {
		return nil, fmt.Errorf("webhook missing transaction id")
	}
	return &p, nil
}

// Successful reports whether the push announces a settled charge.
func (p *WebhookPayload) Successful() bool {
	return p.Data.Status == StatusSuccessful
}
