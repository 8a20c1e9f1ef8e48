// Package notification delivers payer-facing messages. Delivery is fire and
// forget from the caller's point of view: errors are returned for logging and
// metrics, never for rollback.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"brightpath/pkg/email"
	"brightpath/pkg/requestcontext"
)

// KindSubscriptionExpired tags expiry notices on the wire.
const KindSubscriptionExpired = "subscription_expired"

var ErrInvalidRecipient = errors.New("invalid notification recipient")

// Notifier sends payer notifications.
type Notifier interface {
	SendExpiredSubscriptionEmail(ctx context.Context, recipient, name string) error
}

// Message is the payload published for the mail relay.
type Message struct {
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func expiredMessage(ctx context.Context, recipient, name string) (Message, error) {
	addr, ok := email.Normalize(recipient)
	if !ok {
		return Message{}, ErrInvalidRecipient
	}
	greeting := email.GreetingName(name, addr)
	return Message{
		Kind:      KindSubscriptionExpired,
		Recipient: addr,
		Name:      greeting,
		Subject:   "Your BrightPath subscription has expired",
		Body: fmt.Sprintf("Hello %s,\n\nThe BrightPath subscription for your learner has expired. "+
			"Renew it from your dashboard to keep access to lessons.\n", greeting),
		RequestID: requestcontext.RequestID(ctx),
		CreatedAt: requestcontext.Now(ctx),
	}, nil
}

// LogNotifier writes notifications to the log. Used when no broker is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendExpiredSubscriptionEmail(ctx context.Context, recipient, name string) error {
	msg, err := expiredMessage(ctx, recipient, name)
	if err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "notification queued",
		"kind", msg.Kind,
		"recipient", msg.Recipient,
		"subject", msg.Subject,
	)
	return nil
}

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaNotifier publishes notifications to a topic consumed by the mail
// relay.
type KafkaNotifier struct {
	producer Producer
	topic    string
}

func NewKafkaNotifier(producer Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) SendExpiredSubscriptionEmail(ctx context.Context, recipient, name string) error {
	msg, err := expiredMessage(ctx, recipient, name)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(msg.Recipient),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(msg.Kind)},
		},
		Timestamp: msg.CreatedAt,
	}
	if err := n.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
