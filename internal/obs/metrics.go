package obs

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cloudpay/internal/payment"
)

// Metrics holds the payment collectors.
type Metrics struct {
	// OutcomeTotal counts API call outcomes by operation.
	OutcomeTotal *prometheus.CounterVec
	// CallDuration records API call latency in seconds.
	CallDuration *prometheus.HistogramVec
	// NotificationTotal counts inbound webhooks by kind and result.
	NotificationTotal *prometheus.CounterVec
	// ReconcileTotal counts reconciliation lookups by result.
	ReconcileTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg, reusing
// collectors that are already registered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		OutcomeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_outcome_total",
			Help:      "Count of payment API call outcomes.",
		}, []string{"operation", "outcome"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_call_duration_seconds",
			Help:      "Latency of payment API calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"operation"}),
		NotificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_notification_total",
			Help:      "Count of processed provider notifications.",
		}, []string{"kind", "result"}),
		ReconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconcile_total",
			Help:      "Count of reconciliation lookups by result.",
		}, []string{"result"}),
	}

	m.OutcomeTotal = register(reg, m.OutcomeTotal)
	m.CallDuration = register(reg, m.CallDuration)
	m.NotificationTotal = register(reg, m.NotificationTotal)
	m.ReconcileTotal = register(reg, m.ReconcileTotal)
	return m
}

// Observer returns a payment.Observer feeding OutcomeTotal and CallDuration.
func (m *Metrics) Observer() payment.Observer {
	return func(operation string, kind payment.OutcomeKind, elapsed time.Duration) {
		m.OutcomeTotal.WithLabelValues(operation, kind.String()).Inc()
		m.CallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
