// Package metrics is the gateway's Prometheus exposition surface,
// generalized from the teacher's root metrics.go: package-level
// collectors registered in init(), with small setter/incrementer
// helpers so callers never touch a prometheus.* type directly. Where
// the teacher tracked one trading product's orders/decisions/exits,
// this tracks every (user, venue, symbol) the gateway serves, plus the
// webhook, risk, and AI-worker surfaces spec.md §4 adds.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhook_requests_total",
			Help: "Inbound webhook requests by outcome (executed|accepted|rejected|failed).",
		},
		[]string{"status"},
	)

	RiskDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_risk_denials_total",
			Help: "Trades denied by the risk-limit engine, by venue.",
		},
		[]string{"venue"},
	)

	AdapterCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_adapter_call_duration_seconds",
			Help:    "Latency of venue adapter calls by venue and operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"venue", "operation"},
	)

	AIDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ai_decisions_total",
			Help: "AI worker decisions by action (buy|sell|close|hold).",
		},
		[]string{"action"},
	)

	ClosedTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_closed_trades_total",
			Help: "Closed trades by exit reason and venue.",
		},
		[]string{"exit_reason", "venue"},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_open_positions",
			Help: "Currently tracked open positions across all users and venues.",
		},
	)
)

func init() {
	prometheus.MustRegister(WebhookRequests, RiskDenials, AdapterCallLatency, AIDecisions, ClosedTrades, OpenPositions)
}

// IncWebhookRequest records one inbound webhook's terminal status.
func IncWebhookRequest(status string) { WebhookRequests.WithLabelValues(status).Inc() }

// IncRiskDenial records one risk-limit denial for venueName.
func IncRiskDenial(venueName string) { RiskDenials.WithLabelValues(venueName).Inc() }

// ObserveAdapterCall records the duration of one adapter call.
func ObserveAdapterCall(venueName, operation string, seconds float64) {
	AdapterCallLatency.WithLabelValues(venueName, operation).Observe(seconds)
}

// IncAIDecision records one AI-worker decision by action.
func IncAIDecision(action string) { AIDecisions.WithLabelValues(action).Inc() }

// IncClosedTrade records one closed trade by exit reason and venue.
func IncClosedTrade(exitReason, venueName string) {
	ClosedTrades.WithLabelValues(exitReason, venueName).Inc()
}

// SetOpenPositions sets the current open-position gauge.
func SetOpenPositions(n int) { OpenPositions.Set(float64(n)) }
