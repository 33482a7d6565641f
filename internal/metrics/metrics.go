package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ledger"

// Metrics holds the ledger's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reconciliationsTotal    *prometheus.CounterVec
	reconcileDuration       *prometheus.HistogramVec
	retryAttemptsTotal      *prometheus.CounterVec
	mirrorEventsTotal       *prometheus.CounterVec
	withdrawalRequestsTotal *prometheus.CounterVec
	depositIntentsTotal     *prometheus.CounterVec
	stalePending            *prometheus.GaugeVec
}

// New registers the collectors with reg. A nil reg creates unregistered
// collectors, which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		reconciliationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Webhook reconciliations partitioned by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		reconcileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Wall time of a reconciliation including retries.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"kind"},
		),
		retryAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Retries triggered by transient conflicts.",
			},
			[]string{"kind"},
		),
		mirrorEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mirror",
				Name:      "events_total",
				Help:      "Mirror store writes partitioned by result.",
			},
			[]string{"result"},
		),
		withdrawalRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "withdrawal_requests_total",
				Help:      "Withdrawal requests partitioned by result.",
			},
			[]string{"result"},
		),
		depositIntentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deposit_intents_total",
				Help:      "Deposit intents partitioned by result.",
			},
			[]string{"result"},
		),
		stalePending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stale_pending_records",
				Help:      "Pending deposits and withdrawals older than the stale threshold.",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) ObserveReconcile(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconciliationsTotal.WithLabelValues(kind, outcome).Inc()
	m.reconcileDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) RetryAttempt(kind string) {
	if m == nil {
		return
	}
	m.retryAttemptsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) MirrorEvent(result string) {
	if m == nil {
		return
	}
	m.mirrorEventsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) WithdrawalRequest(result string) {
	if m == nil {
		return
	}
	m.withdrawalRequestsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) DepositIntent(result string) {
	if m == nil {
		return
	}
	m.depositIntentsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetStalePending(kind string, n int) {
	if m == nil {
		return
	}
	m.stalePending.WithLabelValues(kind).Set(float64(n))
}
