package audit

import (
	"context"
	"time"

	id "brightpath/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// Categories drive retention and downstream routing.
type EventCategory string

const (
	// CategoryCompliance covers money movement and account creation.
	// These are written fail-closed and retained long term.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected callbacks and override usage.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine workflow steps useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	PayerID   id.PayerID
	// Subject is the resource acted on: a txRef, draft id or account id.
	Subject  string
	Action   string
	Decision string
	Reason   string
	// Channel records how a confirmation arrived (push, redirect, manual, reaper).
	Channel   string
	RequestID string
	// ActorID tracks who performed the action when different from PayerID,
	// e.g. an operator using the manual override.
	ActorID    string
	ClientIP   string
	ClientKind string
}

type AuditEvent string

const (
	// Registration events
	EventDraftCreated AuditEvent = "draft_created"

	// Payment order events
	EventOrderInitiated AuditEvent = "order_initiated"
	EventOrderRejected  AuditEvent = "order_rejected"

	// Confirmation events
	EventSubscriptionActivated AuditEvent = "subscription_activated"
	EventActivationIgnored     AuditEvent = "activation_ignored"
	EventPaymentFailed         AuditEvent = "payment_failed"
	EventPaymentRejected       AuditEvent = "payment_rejected"
	EventPaidAfterFailure      AuditEvent = "paid_after_failure"
	EventWebhookRejected       AuditEvent = "webhook_rejected"
	EventManualActivation      AuditEvent = "manual_activation"

	// Finalization events
	EventRegistrationFinalized AuditEvent = "registration_finalized"
	EventFinalizeReplayed      AuditEvent = "finalize_replayed"
	EventProvisioningFailed    AuditEvent = "provisioning_failed"

	// Expiry events
	EventSubscriptionExpired AuditEvent = "subscription_expired"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventSubscriptionActivated: CategoryCompliance,
	EventPaymentFailed:         CategoryCompliance,
	EventPaidAfterFailure:      CategoryCompliance,
	EventRegistrationFinalized: CategoryCompliance,
	EventSubscriptionExpired:   CategoryCompliance,

	EventWebhookRejected:  CategorySecurity,
	EventPaymentRejected:  CategorySecurity,
	EventManualActivation: CategorySecurity,

	EventDraftCreated:       CategoryOperations,
	EventOrderInitiated:     CategoryOperations,
	EventOrderRejected:      CategoryOperations,
	EventActivationIgnored:  CategoryOperations,
	EventFinalizeReplayed:   CategoryOperations,
	EventProvisioningFailed: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByPayer(ctx context.Context, payerID id.PayerID) ([]Event, error)
}
