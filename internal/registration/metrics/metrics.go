package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration workflow.
type Metrics struct {
	OrdersCreated        prometheus.Counter
	OrdersFailed         *prometheus.CounterVec
	Activations          *prometheus.CounterVec
	PaymentsFailed       prometheus.Counter
	FinalizeOutcomes     *prometheus.CounterVec
	AccountsCreated      prometheus.Counter
	ReaperExpired        prometheus.Counter
	ReaperNotifyFailures prometheus.Counter
	ReaperSkippedTicks   *prometheus.CounterVec
	GatewayCallDuration  *prometheus.HistogramVec
}

// New registers the registration metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics with reg. Tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "brightpath_orders_created_total",
			Help: "Payment orders accepted by the gateway and persisted as PENDING",
		}),
		OrdersFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brightpath_orders_failed_total",
			Help: "Payment orders that could not be opened, by reason",
		}, []string{"reason"}),
		Activations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brightpath_activations_total",
			Help: "Activation attempts by confirmation channel and outcome",
		}, []string{"channel", "outcome"}),
		PaymentsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "brightpath_payments_failed_total",
			Help: "Subscriptions marked FAILED after verification",
		}),
		FinalizeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brightpath_finalize_total",
			Help: "Finalize calls by outcome",
		}, []string{"outcome"}),
		AccountsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "brightpath_accounts_created_total",
			Help: "Learner accounts created by registration",
		}),
		ReaperExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "brightpath_reaper_expired_total",
			Help: "Subscriptions moved to EXPIRED by the reaper",
		}),
		ReaperNotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "brightpath_reaper_notify_failures_total",
			Help: "Expiry notifications that could not be sent",
		}),
		ReaperSkippedTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brightpath_reaper_skipped_ticks_total",
			Help: "Reaper ticks skipped because another sweep held the lock",
		}, []string{"reason"}),
		GatewayCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brightpath_gateway_call_duration_seconds",
			Help:    "Payment gateway call latency by operation and outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op", "outcome"}),
	}
}

func (m *Metrics) IncOrderCreated() {
	m.OrdersCreated.Inc()
}

func (m *Metrics) IncOrderFailed(reason string) {
	m.OrdersFailed.WithLabelValues(reason).Inc()
}

// IncActivation records an activation attempt. outcome is one of
// "activated", "already_processed", "rejected", "paid_after_failure" or
// "error".
func (m *Metrics) IncActivation(channel, outcome string) {
	m.Activations.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) IncPaymentFailed() {
	m.PaymentsFailed.Inc()
}

func (m *Metrics) IncFinalize(outcome string) {
	m.FinalizeOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAccountCreated() {
	m.AccountsCreated.Inc()
}

func (m *Metrics) AddExpired(n int) {
	m.ReaperExpired.Add(float64(n))
}

func (m *Metrics) IncNotifyFailure() {
	m.ReaperNotifyFailures.Inc()
}

func (m *Metrics) IncSkippedTick(reason string) {
	m.ReaperSkippedTicks.WithLabelValues(reason).Inc()
}

// ObserveGatewayCall matches gateway.CallObserver.
func (m *Metrics) ObserveGatewayCall(op, outcome string, elapsed time.Duration) {
	m.GatewayCallDuration.WithLabelValues(op, outcome).Observe(elapsed.Seconds())
}
