package settlement

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidewell/storeops/internal/metrics"
)

var (
	// CompletionsTotal counts completions by settlement route and outcome.
	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "settlement",
			Name:      "completions_total",
			Help:      "Reservation completions by settlement route and outcome.",
		},
		[]string{"route", "outcome"},
	)

	// CompletionDuration observes completion latency by mode (single, batch).
	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "settlement",
			Name:      "completion_duration_seconds",
			Help:      "Completion duration in seconds, including lock wait and commit.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	// BatchItemsTotal counts batch items by result.
	BatchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "settlement",
			Name:      "batch_items_total",
			Help:      "Batch completion items by result.",
		},
		[]string{"result"},
	)

	// HoldMissingTotal counts hold conversions that found no HOLD entry.
	HoldMissingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "settlement",
			Name:      "hold_missing_total",
			Help:      "Hold conversions skipped because no matching HOLD entry exists.",
		},
		[]string{"book"},
	)

	// CreditDeductedTotal sums points charged by direct deduction.
	CreditDeductedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "settlement",
		Name:      "credit_deducted_points_total",
		Help:      "Credit points charged by direct deduction.",
	})
)

func init() {
	prometheus.MustRegister(
		CompletionsTotal,
		CompletionDuration,
		BatchItemsTotal,
		HoldMissingTotal,
		CreditDeductedTotal,
	)
}

// Completion outcomes.
const (
	outcomeCompleted    = "completed"
	outcomeSkipped      = "skipped"
	outcomeInsufficient = "insufficient_balance"
	outcomeFailed       = "failed"
)

func observeDuration(mode string, start time.Time) {
	CompletionDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

func recordCompletion(route Route, outcome string) {
	if route == "" {
		route = "unrouted" // rejected before a plan was chosen
	}
	CompletionsTotal.WithLabelValues(string(route), outcome).Inc()
}

// recordSuccess is called once a completion has committed.
func recordSuccess(o Outcome) {
	outcome := outcomeCompleted
	if o.Route == RouteNone {
		outcome = outcomeSkipped
	}
	recordCompletion(o.Route, outcome)
	if o.CreditDeducted.IsPositive() {
		CreditDeductedTotal.Add(o.CreditDeducted.InexactFloat64())
	}
}
