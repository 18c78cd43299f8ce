package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the intent lifecycle and the
// callback reconciler. All methods are nil-safe so code paths never have to
// check whether metrics are wired.
type Metrics struct {
	intentsCreatedTotal     *prometheus.CounterVec
	callbacksTotal          *prometheus.CounterVec
	reconcileDurationSecs   *prometheus.HistogramVec
	webhookRejectionsTotal  *prometheus.CounterVec
	balanceMutationsTotal   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		intentsCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "samanaffa",
				Subsystem: "intents",
				Name:      "created_total",
				Help:      "Total transaction intents created, by intent type.",
			},
			[]string{"intent_type"},
		),
		callbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "samanaffa",
				Subsystem: "reconciler",
				Name:      "callbacks_total",
				Help:      "Total provider callbacks processed, by reconciliation outcome.",
			},
			[]string{"outcome"},
		),
		reconcileDurationSecs: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "samanaffa",
				Subsystem: "reconciler",
				Name:      "duration_seconds",
				Help:      "Time spent reconciling one provider callback.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		webhookRejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "samanaffa",
				Subsystem: "webhook",
				Name:      "rejections_total",
				Help:      "Webhook requests rejected before reconciliation, by reason.",
			},
			[]string{"reason"},
		),
		balanceMutationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "samanaffa",
				Subsystem: "accounts",
				Name:      "balance_mutations_total",
				Help:      "Balance mutations committed at settlement, by intent type.",
			},
			[]string{"intent_type"},
		),
	}
}

func (m *Metrics) IntentCreated(intentType string) {
	if m == nil {
		return
	}
	m.intentsCreatedTotal.WithLabelValues(intentType).Inc()
}

func (m *Metrics) CallbackProcessed(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.callbacksTotal.WithLabelValues(outcome).Inc()
	m.reconcileDurationSecs.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) WebhookRejected(reason string) {
	if m == nil {
		return
	}
	m.webhookRejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) BalanceMutated(intentType string) {
	if m == nil {
		return
	}
	m.balanceMutationsTotal.WithLabelValues(intentType).Inc()
}
