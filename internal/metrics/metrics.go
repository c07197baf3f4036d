package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	PaymentsInitiated       *prometheus.CounterVec
	StatusTransitions       *prometheus.CounterVec
	VerificationChecks      *prometheus.CounterVec
	VerificationPassSeconds prometheus.Histogram
	GatewayRequestSeconds   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PaymentsInitiated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mobile_money_payments_initiated_total",
				Help: "Mobile-money payment initiations by operator, country and result",
			},
			[]string{"operator", "country", "result"},
		),
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mobile_money_status_transitions_total",
				Help: "Payments moved out of pending, by target status",
			},
			[]string{"status"},
		),
		VerificationChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mobile_money_verification_checks_total",
				Help: "Gateway verification checks by outcome",
			},
			[]string{"outcome"},
		),
		VerificationPassSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mobile_money_verification_pass_duration_seconds",
				Help:    "Duration of one verification pass over pending payments",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		GatewayRequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mobile_money_gateway_request_duration_seconds",
				Help:    "Latency of gateway calls",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"provider", "operation"},
		),
	}
}

func (m *Metrics) RecordInitiation(operator, country, result string) {
	if m == nil {
		return
	}
	m.PaymentsInitiated.WithLabelValues(operator, country, result).Inc()
}

func (m *Metrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.VerificationChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePass(d time.Duration) {
	if m == nil {
		return
	}
	m.VerificationPassSeconds.Observe(d.Seconds())
}

func (m *Metrics) ObserveGateway(provider, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequestSeconds.WithLabelValues(provider, operation).Observe(d.Seconds())
}
