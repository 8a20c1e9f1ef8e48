package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"brightpath/internal/registration/gateway"
	regmetrics "brightpath/internal/registration/metrics"
	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/audit"
	"brightpath/pkg/requestcontext"
	"brightpath/pkg/secrets"
)

type DraftStore interface {
	Create(ctx context.Context, draft *models.Draft) error
	FindByID(ctx context.Context, draftID id.DraftID) (*models.Draft, error)
}

type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, subID id.SubscriptionID) (*models.Subscription, error)
	FindByTxRef(ctx context.Context, txRef string) (*models.Subscription, error)
	FindForDraft(ctx context.Context, draftID id.DraftID) (*models.Subscription, error)
	TryActivate(ctx context.Context, a models.Activation) (bool, error)
	MarkFailed(ctx context.Context, txRef string, now time.Time) (bool, error)
	LinkChild(ctx context.Context, subID id.SubscriptionID, accountID id.AccountID, now time.Time) (bool, error)
}

type AccountStore interface {
	Create(ctx context.Context, acct *models.Account) error
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
}

type LedgerStore interface {
	ExistsFor(ctx context.Context, payerID id.PayerID, accountID id.AccountID) (bool, error)
	InsertIfAbsent(ctx context.Context, entry *models.LedgerTransaction) (bool, error)
}

// ProfileProvisioner creates the learner profile that depends on a new account.
type ProfileProvisioner interface {
	Provision(ctx context.Context, p *models.LearnerProfile) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type PasswordHasher interface {
	Hash(secret string) (string, error)
}

// StoreTx runs fn in a transaction. Stores called with the context passed to
// fn take part in it.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores groups the persistence dependencies of the service.
type Stores struct {
	Drafts        DraftStore
	Subscriptions SubscriptionStore
	Accounts      AccountStore
	Ledger        LedgerStore
	Profiles      ProfileProvisioner
}

// Config holds the commercial terms applied to every order.
type Config struct {
	Price        decimal.Decimal
	Currency     id.Currency
	ValidityDays int
	RedirectURL  string
	OrderTitle   string
}

// Confirmation channels, recorded on metrics and audit events.
const (
	ChannelPush     = "push"
	ChannelRedirect = "redirect"
	ChannelManual   = "manual"
)

// Service drives the payment-gated registration workflow: drafts, payment
// orders, confirmation reconciliation and finalization.
type Service struct {
	drafts         DraftStore
	subscriptions  SubscriptionStore
	accounts       AccountStore
	ledger         LedgerStore
	profiles       ProfileProvisioner
	gateway        gateway.Gateway
	cfg            Config
	tx             StoreTx
	hasher         PasswordHasher
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *regmetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *regmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx sets the transaction runner. Defaults to a process-wide lock
// suitable for the in-memory stores.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithHasher(h PasswordHasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

func New(stores Stores, gw gateway.Gateway, cfg Config, opts ...Option) (*Service, error) {
	switch {
	case stores.Drafts == nil, stores.Subscriptions == nil, stores.Accounts == nil, stores.Ledger == nil:
		return nil, errors.New("registration stores are required")
	case gw == nil:
		return nil, errors.New("payment gateway is required")
	case !cfg.Price.IsPositive():
		return nil, errors.New("subscription price must be positive")
	case !cfg.Currency.IsValid():
		return nil, errors.New("subscription currency is not supported")
	case cfg.ValidityDays <= 0:
		return nil, errors.New("validity days must be positive")
	}
	if cfg.OrderTitle == "" {
		cfg.OrderTitle = "BrightPath subscription"
	}

	s := &Service{
		drafts:        stores.Drafts,
		subscriptions: stores.Subscriptions,
		accounts:      stores.Accounts,
		ledger:        stores.Ledger,
		profiles:      stores.Profiles,
		gateway:       gw,
		cfg:           cfg,
		logger:        slog.Default(),
		tracer:        otel.Tracer("brightpath/registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newInMemoryStoreTx()
	}
	if s.hasher == nil {
		s.hasher = secrets.NewHasher(0)
	}
	return s, nil
}

// logAudit writes the structured audit log line and forwards the event to the
// publisher. The publisher error is returned so compliance events written
// inside a transaction can fail it.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, ev audit.Event) error {
	ev.Action = string(event)
	ev.Category = event.Category()
	ev.Timestamp = requestcontext.Now(ctx)
	ev.RequestID = requestcontext.RequestID(ctx)
	ev.ClientIP = requestcontext.ClientIP(ctx)
	ev.ClientKind = requestcontext.ClientKind(ctx)

	args := []any{
		"event", ev.Action,
		"log_type", "audit",
		"category", string(ev.Category),
		"subject", ev.Subject,
	}
	if !ev.PayerID.IsNil() {
		args = append(args, "payer_id", ev.PayerID.String())
	}
	if ev.Decision != "" {
		args = append(args, "decision", ev.Decision)
	}
	if ev.Reason != "" {
		args = append(args, "reason", ev.Reason)
	}
	if ev.Channel != "" {
		args = append(args, "channel", ev.Channel)
	}
	if ev.ActorID != "" {
		args = append(args, "actor_id", ev.ActorID)
	}
	if ev.RequestID != "" {
		args = append(args, "request_id", ev.RequestID)
	}
	s.logger.InfoContext(ctx, ev.Action, args...)

	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "event", ev.Action, "error", err)
		return err
	}
	return nil
}
